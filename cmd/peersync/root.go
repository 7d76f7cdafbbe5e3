package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/peersync/peersync/internal/config"
	"github.com/peersync/peersync/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "peersync",
	Short:         "Two-endpoint directory synchronization over local paths and ssh",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config-dir", "c", config.DefaultConfigRoot(), "configuration directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, daemonCmd, profilesCmd, statusCmd, initCmd, completionCmd)
}

// setup binds flags and environment, raises verbosity, and attaches the log
// file sink now that the config directory is known.
func setup(cmd *cobra.Command) error {
	viper.BindPFlag("config_dir", cmd.Flags().Lookup("config-dir"))
	viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	viper.SetEnvPrefix("PEERSYNC")
	viper.AutomaticEnv()

	if viper.GetBool("verbose") {
		logLevel.Set(slog.LevelDebug)
	}

	root, err := config.EnsureConfigRoot(viper.GetString("config_dir"))
	if err != nil {
		return err
	}
	viper.Set("config_dir", root)

	logPath := filepath.Join(config.LogsDir(root), "peersync.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logHandler.Attach(slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return nil
}

func configRoot() string {
	return viper.GetString("config_dir")
}
