package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Write a commented profile template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := config.WriteProfileTemplate(configRoot(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", green("created"), path)
		fmt.Printf("edit it, then try %s\n", cyan("peersync run "+args[0]+" --dry-run"))
		return nil
	},
}
