package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"memlab/internal/campaign"
	"memlab/internal/classify"
	"memlab/internal/features"
	"memlab/internal/sweep"
)

// classifyCmd scores sweep files
var classifyCmd = &cobra.Command{
	Use:   "classify [sweep-file...]",
	Short: "Classify one or more sweep files",
	Long: `Decodes sweep files (JSON or CSV), extracts their features and prints
the winning label per sweep. A single file gets the full per-class score
breakdown; multiple files are scored concurrently and summarized as a
table.

Examples:
  memlab classify spool/W1__iv-quick.json
  memlab classify spool/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

// extractCmd prints the feature record for one sweep file
var extractCmd = &cobra.Command{
	Use:   "extract [sweep-file]",
	Short: "Extract the feature record from a sweep file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func runClassify(cmd *cobra.Command, args []string) error {
	_, w, err := loadSetup()
	if err != nil {
		return err
	}
	if len(args) > 1 {
		return classifyMany(args, w)
	}
	return classifyOne(args[0], w)
}

// classifyMany fans the sweeps out across the classification pool and
// prints one summary row per file, in argument order.
func classifyMany(paths []string, w classify.Weights) error {
	sweeps := make([]sweep.RawSweep, 0, len(paths))
	for _, path := range paths {
		s, err := sweep.DecodeFile(path)
		if err != nil {
			return err
		}
		sweeps = append(sweeps, s)
	}
	ex := features.NewExtractor(features.DefaultConfig())
	results, err := campaign.ClassifyBatch(context.Background(), ex, w, sweeps, 0)
	if err != nil {
		return err
	}

	fmt.Printf("%-32s %-10s %-15s %8s %6s\n", "SWEEP", "DEVICE", "WINNER", "SCORE", "CONF")
	for i, res := range results {
		fmt.Printf("%-32s %-10s %-15s %8.1f %6.2f\n",
			filepath.Base(paths[i]), sweeps[i].Device, res.Label, res.Score, res.Confidence)
	}
	return nil
}

func classifyOne(path string, w classify.Weights) error {
	s, err := sweep.DecodeFile(path)
	if err != nil {
		return err
	}
	rec, err := features.NewExtractor(features.DefaultConfig()).Extract(s)
	if err != nil {
		return err
	}
	res, err := classify.Classify(rec, w)
	if err != nil {
		return err
	}

	fmt.Printf("sweep %s", s.ID)
	if s.Device != "" {
		fmt.Printf(" (device %s)", s.Device)
	}
	fmt.Printf(": %d samples\n\n", len(s.Voltage))

	fmt.Printf("%-15s %8s %8s\n", "CLASS", "SCORE", "RAW")
	for _, label := range classify.Classes() {
		fmt.Printf("%-15s %8.1f %8.1f\n", label, res.Scores[label], res.Raw[label])
	}
	fmt.Printf("\nwinner:     %s\n", res.Label)
	fmt.Printf("confidence: %.2f\n", res.Confidence)
	if res.OhmicTier != "" {
		fmt.Printf("ohmic tier: %s\n", res.OhmicTier)
	}
	if len(res.Flags) > 0 {
		fmt.Printf("flags:      %s\n", strings.Join(res.Flags, ", "))
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	s, err := sweep.DecodeFile(args[0])
	if err != nil {
		return err
	}
	rec, err := features.NewExtractor(features.DefaultConfig()).Extract(s)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
