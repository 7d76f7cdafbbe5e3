package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/config"
	"github.com/peersync/peersync/internal/sync"
	"github.com/peersync/peersync/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status [profile]",
	Short: "Show tracked paths and outstanding conflicts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		names := args
		if len(names) == 0 {
			all, err := config.ProfileNames(configRoot())
			if err != nil {
				return err
			}
			names = all
		}
		for _, name := range names {
			if err := printStatus(name); err != nil {
				return err
			}
		}
		return nil
	},
}

func printStatus(name string) error {
	p, err := config.LoadProfile(configRoot(), name)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", cyan(name))

	dbPath := filepath.Join(config.StateDir(configRoot()), name+".db")
	if !utils.FileExists(dbPath) {
		fmt.Println("  never synchronized")
		return nil
	}
	journal, err := sync.OpenJournal(dbPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	for _, epName := range p.EndpointOrder {
		count, err := journal.BaselineCount(name, epName)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %d tracked path(s)\n", epName, count)
	}

	conflicts, err := journal.Conflicts(name)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Printf("  %s\n", green("no outstanding conflicts"))
		return nil
	}
	for _, c := range conflicts {
		fmt.Printf("  %s %s (%s, %s)\n", yellow("conflict"), c.Path, c.Reason, humanize.Time(c.DetectedAt))
	}
	return nil
}
