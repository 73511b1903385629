package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/doctrans/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch task health and send alerts",
	Long:  "Periodically counts tasks by stage and status, flags tasks idle in an automated stage and posts alerts to the configured webhook. With --once it prints one snapshot and exits.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("monitor"); err != nil {
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

		collector := monitoring.NewCollector(st, nil, cfg.Monitoring.StuckAfter())
		alerter := monitoring.NewAlerter(cfg.Monitoring)

		once, _ := cmd.Flags().GetBool("once")
		if once {
			snap, err := collector.Collect(ctx)
			if err != nil {
				return eris.Wrap(err, "monitor")
			}
			alerts := alerter.Evaluate(snap)
			alerter.SendAlerts(ctx, alerts)
			output, _ := cmd.Flags().GetString("output")
			return writeValue(cmd.OutOrStdout(), output, struct {
				Snapshot *monitoring.MetricsSnapshot `json:"snapshot"`
				Alerts   []monitoring.Alert          `json:"alerts"`
			}{snap, alerts})
		}

		monitoring.NewChecker(collector, alerter, cfg.Monitoring).Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().Bool("once", false, "collect one snapshot and exit")
	monitorCmd.Flags().StringP("output", "o", "json", "output format for --once: json or yaml")
	rootCmd.AddCommand(monitorCmd)
}
