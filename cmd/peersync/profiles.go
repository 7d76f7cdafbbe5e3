package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configured profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		names, err := config.ProfileNames(configRoot())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Printf("no profiles in %s; create one with %s\n", config.ProfilesDir(configRoot()), cyan("peersync init <name>"))
			return nil
		}
		for _, name := range names {
			p, err := config.LoadProfile(configRoot(), name)
			if err != nil {
				fmt.Printf("  %s  %s\n", red(name), err)
				continue
			}
			a, b := p.OrderedEndpoints()
			schedule := ""
			if p.Schedule.Enabled {
				schedule = fmt.Sprintf("  [every %ds]", p.Schedule.IntervalSeconds)
			}
			fmt.Printf("  %s  %s <-> %s%s\n", cyan(name), endpointLabel(a), endpointLabel(b), schedule)
		}
		return nil
	},
}

func endpointLabel(ep config.EndpointBlock) string {
	if ep.Type == config.EndpointSSH {
		return fmt.Sprintf("%s:%s", ep.Host, ep.Path)
	}
	return ep.Path
}
