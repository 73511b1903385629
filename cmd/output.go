package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// writeValue encodes v as indented JSON or as YAML. YAML output goes
// through JSON first so both formats use the same field names.
func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "encode json")
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return eris.Wrap(err, "decode json")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unsupported output format %q (json or yaml)", format)
	}
}

// readValue decodes JSON or YAML into v using v's JSON field names.
func readValue(data []byte, v any) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return eris.Wrap(err, "decode yaml")
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return eris.Wrap(err, "encode json")
	}
	if err := json.Unmarshal(out, v); err != nil {
		return eris.Wrap(err, "decode document")
	}
	return nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path) //nolint:gosec
	return data, eris.Wrapf(err, "read %s", path)
}
