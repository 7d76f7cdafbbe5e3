package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/config"
	"github.com/peersync/peersync/internal/sync"
)

var runCmd = &cobra.Command{
	Use:   "run <profile>",
	Short: "Synchronize a profile once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		profile, err := config.LoadProfile(configRoot(), args[0])
		if err != nil {
			return err
		}

		syncer, err := sync.NewSyncer(configRoot(), profile, slog.Default())
		if err != nil {
			return err
		}
		report, err := syncer.Run(cmd.Context(), dryRun)
		if err != nil {
			return err
		}

		epA, epB := profile.OrderedEndpoints()
		if dryRun {
			printPlan(report, epA.Name, epB.Name)
			for _, rec := range report.Conflicts {
				fmt.Printf("  %s %s (%s) -> %s\n", yellow("conflict"), rec.Path, rec.Reason, rec.Resolution)
			}
			if report.Unresolved > 0 {
				return fmt.Errorf("%d conflict(s) need manual resolution", report.Unresolved)
			}
			return nil
		}

		printReport(report, epA.Name, epB.Name)
		if report.Failed > 0 {
			return fmt.Errorf("%d action(s) failed", report.Failed)
		}
		if report.Unresolved > 0 {
			return fmt.Errorf("%d conflict(s) need manual resolution", report.Unresolved)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("dry-run", "n", false, "plan only, mutate nothing")
}

func printPlan(report *sync.Report, epA, epB string) {
	if report.Plan.Empty() {
		fmt.Println(green("nothing to do, endpoints are in sync"))
		return
	}
	for _, act := range report.Plan.Actions {
		fmt.Printf("  %s  %s\n", cyan(describeAction(act, epA, epB)), act.Path)
	}
}

func describeAction(act sync.Action, epA, epB string) string {
	switch act.Type {
	case sync.ActionCopyAToB:
		return fmt.Sprintf("copy  %s -> %s", epA, epB)
	case sync.ActionCopyBToA:
		return fmt.Sprintf("copy  %s -> %s", epB, epA)
	case sync.ActionDeleteOnA:
		return "del   on " + epA
	case sync.ActionDeleteOnB:
		return "del   on " + epB
	case sync.ActionMkdirOnA:
		return "mkdir on " + epA
	case sync.ActionMkdirOnB:
		return "mkdir on " + epB
	case sync.ActionMergeBoth:
		return "merge both sides"
	case sync.ActionRecordConflict:
		return "conflict (manual)"
	default:
		return act.Type.String()
	}
}

func printReport(report *sync.Report, epA, epB string) {
	for i, act := range report.Plan.Actions {
		if i < len(report.Outcomes) && report.Outcomes[i].Err != nil {
			fmt.Printf("  %s %s: %v\n", red("failed"), act.Path, report.Outcomes[i].Err)
		}
	}
	for _, rec := range report.Conflicts {
		line := fmt.Sprintf("  conflict %s (%s) -> %s", rec.Path, rec.Reason, rec.Resolution)
		if rec.Resolution == sync.ResolutionManual {
			fmt.Println(yellow(line))
		} else {
			fmt.Println(line)
		}
	}
	status := green("ok")
	if report.Failed > 0 || report.Unresolved > 0 {
		status = red("incomplete")
	}
	fmt.Printf("%s  applied %d, failed %d, unresolved %d, %s in %s\n",
		status, report.Applied, report.Failed, report.Unresolved,
		humanize.Bytes(uint64(report.BytesTransferred)),
		report.Duration.Round(time.Millisecond))
}
