package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"memlab/internal/bench"
)

// simulateCmd emits synthetic sweeps
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emit synthetic sweep files into the spool directory",
	Long: `Acquires one sweep per device from the simulated bench and writes it as
a JSON spool file, so the ingest path can be exercised without hardware.

Example:
  memlab simulate --devices W1:memristor,W2:capacitor,W3:noisy-resistor --seed 7`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringSlice("devices", []string{"W1:memristor", "W2:capacitor", "W3:resistor"}, "Devices to simulate as id or id:model entries")
	simulateCmd.Flags().String("out", "", "Output directory (default: the configured spool directory)")
	simulateCmd.Flags().String("test", "", "Test name stamped on the sweeps (default: the policy's quick test)")
	simulateCmd.Flags().Int64("seed", 1, "Seed for noisy device models")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSetup()
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Campaign.SpoolDir
	}
	testName, _ := cmd.Flags().GetString("test")
	if testName == "" {
		testName = cfg.Policy.QuickTest.CustomSweepName
	}
	specs, _ := cmd.Flags().GetStringSlice("devices")
	seed, _ := cmd.Flags().GetInt64("seed")

	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	sim := bench.NewSimBench()
	var ids []string
	for _, spec := range specs {
		id, model, err := parseDeviceSpec(spec, seed)
		if err != nil {
			return err
		}
		sim.AddDevice(id, model)
		ids = append(ids, id)
	}

	for _, id := range ids {
		s, err := sim.RunTest(context.Background(), id, testName)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(out, fmt.Sprintf("%s__%s.json", id, testName))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write sweep: %w", err)
		}
		fmt.Printf("wrote %s (%d samples)\n", path, len(s.Voltage))
	}
	return nil
}

// parseDeviceSpec splits an "id" or "id:model" entry and builds the
// model. The bare form defaults to a memristor.
func parseDeviceSpec(spec string, seed int64) (string, bench.Model, error) {
	id, name, _ := strings.Cut(strings.TrimSpace(spec), ":")
	if id == "" {
		return "", nil, fmt.Errorf("empty device id in spec %q", spec)
	}
	if name == "" {
		name = "memristor"
	}
	m, err := modelFor(name, seed)
	if err != nil {
		return "", nil, fmt.Errorf("device %s: %w", id, err)
	}
	return id, m, nil
}

func modelFor(name string, seed int64) (bench.Model, error) {
	switch name {
	case "memristor":
		return bench.NewMemristor(), nil
	case "memcapacitor":
		return bench.NewMemcapacitor(), nil
	case "capacitor":
		return bench.NewCapacitor(), nil
	case "resistor", "ohmic":
		return bench.NewResistor(1e4), nil
	case "noisy-resistor":
		return bench.NewNoisyResistor(1e4, 0.005, rand.New(rand.NewSource(seed))), nil
	case "quadratic", "conductor":
		return bench.NewQuadraticConductor(), nil
	default:
		return nil, fmt.Errorf("unknown device model %q (want memristor, memcapacitor, capacitor, resistor, noisy-resistor or quadratic)", name)
	}
}
