package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/doctrans/internal/export"
	"github.com/sells-group/doctrans/internal/model"
	"github.com/sells-group/doctrans/internal/store"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and edit translation tasks",
}

// -- tasks list --

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		stage, _ := cmd.Flags().GetString("stage")
		typ, _ := cmd.Flags().GetString("type")
		editor, _ := cmd.Flags().GetString("editor")
		limit, _ := cmd.Flags().GetInt("limit")

		tasks, err := st.ListTasks(ctx, store.TaskFilter{
			Status:   model.TaskStatus(status),
			Stage:    model.TaskStage(stage),
			Type:     model.DocumentType(typ),
			EditorID: editor,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "tasks list")
		}
		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "No tasks found.")
			return nil
		}
		formatTaskList(cmd.OutOrStdout(), tasks)
		return nil
	},
}

func formatTaskList(w io.Writer, tasks []model.TranslationTask) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPAIR\tSTAGE\tSTATUS\tWORDS\tEDITOR\tUPDATED")
	for _, t := range tasks {
		editor := t.EditorID
		if editor == "" {
			editor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Type, t.SourceLanguage+"->"+t.TargetLanguage, t.Stage, t.Status,
			t.WordCount, editor, t.UpdatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

// -- tasks count --

var tasksCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count tasks by stage and status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		counts, err := st.CountTasks(ctx)
		if err != nil {
			return eris.Wrap(err, "tasks count")
		}
		formatTaskCounts(cmd.OutOrStdout(), counts)
		return nil
	},
}

func formatTaskCounts(w io.Writer, counts []store.TaskCount) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tCOUNT")
	total := 0
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Stage, c.Status, c.Count)
		total += c.Count
	}
	fmt.Fprintf(tw, "\t\t%d\n", total)
	tw.Flush() //nolint:errcheck
}

// -- tasks show --

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task and its segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		task, err := st.GetTask(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "tasks show")
		}
		segments, err := st.GetSegments(ctx, task.ID)
		if err != nil {
			return eris.Wrap(err, "tasks show")
		}
		output, _ := cmd.Flags().GetString("output")
		return writeValue(cmd.OutOrStdout(), output, struct {
			Task     *model.TranslationTask `json:"task"`
			Segments []model.Segment        `json:"segments"`
		}{task, segments})
	},
}

// -- tasks export --

var tasksExportCmd = &cobra.Command{
	Use:   "export <task-id>",
	Short: "Write a bilingual review workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		task, err := st.GetTask(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "tasks export")
		}
		segments, err := st.GetSegments(ctx, task.ID)
		if err != nil {
			return eris.Wrap(err, "tasks export")
		}

		path, _ := cmd.Flags().GetString("out")
		if path == "" {
			path = "task-" + task.ID + ".xlsx"
		}
		f, err := os.Create(path) //nolint:gosec
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close() //nolint:errcheck
		if err := export.WriteBilingual(f, task, segments); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d segments to %s\n", len(segments), path)
		return nil
	},
}

// -- tasks import --

var tasksImportCmd = &cobra.Command{
	Use:   "import <task-id> <workbook.xlsx>",
	Short: "Submit the edits of a review workbook",
	Long:  "Reads the Edited column of a workbook written by `tasks export` and submits it for a task in EDITING. The task completes when every edit passes validation.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := readInput(args[1])
		if err != nil {
			return err
		}
		edits, err := export.ReadEdits(data)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		task, err := env.Pipeline.SubmitEdits(ctx, args[0], edits)
		if err != nil {
			return eris.Wrap(err, "tasks import")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %s %s/%s with %d edited segments\n", task.ID, task.Stage, task.Status, len(edits))
		return nil
	},
}

func init() {
	tasksListCmd.Flags().String("status", "", "filter by status")
	tasksListCmd.Flags().String("stage", "", "filter by stage")
	tasksListCmd.Flags().String("type", "", "filter by document type")
	tasksListCmd.Flags().String("editor", "", "filter by editor id")
	tasksListCmd.Flags().Int("limit", 50, "maximum tasks to list")
	tasksShowCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	tasksExportCmd.Flags().String("out", "", "output path (default task-<id>.xlsx)")

	tasksCmd.AddCommand(tasksListCmd, tasksCountCmd, tasksShowCmd, tasksExportCmd, tasksImportCmd)
	rootCmd.AddCommand(tasksCmd)
}
