package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"memlab/internal/campaign"
)

// statusCmd summarizes the latest campaign snapshot
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest campaign snapshot",
	RunE:  runStatus,
}

// reportCmd prints per-device outcomes
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-device campaign outcomes",
	Long: `Prints each device's final stage and score history from the latest
campaign snapshot. Use --json for the full machine-readable records.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Bool("json", false, "Emit the full outcome records as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSetup()
	if err != nil {
		return err
	}
	snap, err := campaign.LatestSnapshot(cfg.Campaign.DataDir)
	if err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSetup()
	if err != nil {
		return err
	}
	snap, err := campaign.LatestSnapshot(cfg.Campaign.DataDir)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		data, err := json.MarshalIndent(snap.Devices, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%-12s %-20s %5s %8s %-14s %s\n", "DEVICE", "STAGE", "TESTS", "BEST", "LAST CLASS", "FINAL")
	for _, d := range snap.Devices {
		var best float64
		lastClass := "-"
		for _, e := range d.ScoreHistory {
			if e.Score > best {
				best = e.Score
			}
			lastClass = string(e.Class)
		}
		final := ""
		if d.SelectedForFinal {
			final = "selected"
		}
		fmt.Printf("%-12s %-20s %5d %8.1f %-14s %s\n",
			d.DeviceID, d.FinalStage, len(d.ScoreHistory), best, lastClass, final)
	}
	return nil
}

// printSnapshot writes the campaign summary the run and status commands
// share.
func printSnapshot(snap campaign.Snapshot) {
	fmt.Printf("campaign %s (%s)\n", snap.Name, snap.ID)
	fmt.Printf("  status:  %s\n", snap.Status)
	fmt.Printf("  started: %s\n", snap.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  updated: %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  devices: %d total, %d terminal\n", snap.TotalDevices, snap.TerminalDevices)

	counts := make(map[string]int)
	for _, d := range snap.Devices {
		counts[string(d.FinalStage)]++
	}
	stages := make([]string, 0, len(counts))
	for s := range counts {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Printf("    %-20s %d\n", s, counts[s])
	}

	if len(snap.Halted) > 0 {
		fmt.Printf("  halted devices:\n")
		ids := make([]string, 0, len(snap.Halted))
		for id := range snap.Halted {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("    %-12s %s\n", id, snap.Halted[id])
		}
	}
}
