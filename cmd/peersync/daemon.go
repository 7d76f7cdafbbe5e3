package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run profiles on their schedules",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start [profile...]",
	Short: "Start the scheduler in the foreground",
	Long: `Start runs every named profile on its configured interval, or all
profiles with an enabled [schedule] block when none are named. Runs of one
profile never overlap; stop with SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		once, _ := cmd.Flags().GetBool("once")
		return daemon.New(configRoot(), slog.Default()).Start(cmd.Context(), args, once)
	},
}

func init() {
	daemonStartCmd.Flags().Bool("once", false, "run each selected profile a single time and exit")
	daemonCmd.AddCommand(daemonStartCmd)
}
