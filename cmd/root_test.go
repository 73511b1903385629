package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "worker", "migrate", "monitor", "parse", "reconstruct", "validate", "tasks"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "doctrans", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestTasksCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range tasksCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "count", "show", "export", "import"} {
		assert.True(t, names[name], "expected tasks subcommand %q not found", name)
	}
}

func TestTasksListCommand_Flags(t *testing.T) {
	flag := tasksListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
	for _, name := range []string{"status", "stage", "type", "editor"} {
		assert.NotNil(t, tasksListCmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestParseCommand_Flags(t *testing.T) {
	flag := parseCmd.Flags().Lookup("type")
	require.NotNil(t, flag)
	assert.Equal(t, "PLAIN_TEXT", flag.DefValue)
	assert.Equal(t, "t", flag.Shorthand)

	out := parseCmd.Flags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "json", out.DefValue)
}

func TestMonitorCommand_Flags(t *testing.T) {
	require.NotNil(t, monitorCmd.Flags().Lookup("once"))
}
