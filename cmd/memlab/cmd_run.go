package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"memlab/internal/bench"
	"memlab/internal/campaign"
	"memlab/internal/config"
	"memlab/internal/registry"
	"memlab/internal/selector"
)

// runCmd executes a campaign
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a test campaign over a device population",
	Long: `Runs the conditional workflow over every registered device: quick test,
threshold branch, basic and high-quality tiers, then (if enabled and
confirmed) the final selection test.

Devices are driven on the simulated bench; each entry of --devices is
"id" or "id:model" with models memristor, memcapacitor, capacitor,
resistor, noisy-resistor and quadratic.

With --spool the command instead watches the spool directory and ingests
sweep files dropped by external acquisition as quick-test results, until
interrupted. A later bench run picks those devices up from quick_done.

Examples:
  memlab run --devices W1:memristor,W2:resistor,W3:capacitor
  memlab run --resume --devices W1:memristor,W2:resistor
  memlab run --devices W1,W2,W3 --confirm-final
  memlab run --spool`,
	RunE: runCampaign,
}

func init() {
	runCmd.Flags().StringSlice("devices", nil, "Device population as id or id:model entries")
	runCmd.Flags().String("policy", "", "Standalone policy file overriding the config's policy block")
	runCmd.Flags().Bool("spool", false, "Watch the spool directory instead of driving the bench")
	runCmd.Flags().Bool("resume", false, "Continue a campaign already present in the registry store")
	runCmd.Flags().Bool("confirm-final", false, "Execute the destructive final test on the selected devices")
	runCmd.Flags().Int64("seed", 1, "Seed for noisy device models")
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, w, err := loadSetup()
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("policy"); path != "" {
		pol, err := config.LoadPolicy(path)
		if err != nil {
			return err
		}
		cfg.Policy = pol
	}

	deviceSpecs, _ := cmd.Flags().GetStringSlice("devices")
	spoolMode, _ := cmd.Flags().GetBool("spool")
	resume, _ := cmd.Flags().GetBool("resume")
	confirmFinal, _ := cmd.Flags().GetBool("confirm-final")
	seed, _ := cmd.Flags().GetInt64("seed")

	store, err := registry.NewSQLiteStore(cfg.Campaign.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	reg, err := registry.Open(store)
	if err != nil {
		return err
	}
	if !resume && !spoolMode && reg.Len() > 0 {
		return fmt.Errorf("registry %s already holds %d devices; pass --resume to continue or point --workdir at a fresh directory",
			cfg.Campaign.DatabasePath, reg.Len())
	}

	sim := bench.NewSimBench()
	specs := append(append([]string{}, cfg.Campaign.Devices...), deviceSpecs...)
	for _, spec := range specs {
		id, model, err := parseDeviceSpec(spec, seed)
		if err != nil {
			return err
		}
		sim.AddDevice(id, model)
		if err := reg.Register(id); err != nil {
			return err
		}
	}

	o := campaign.New(cfg, w, sim, reg)

	if spoolMode {
		return watchSpool(cfg, o)
	}

	if reg.Len() == 0 {
		return fmt.Errorf("no devices to test: pass --devices, or --resume a campaign with a populated registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First interrupt aborts between stages; a second one cancels hard.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nabort requested; finishing the current acquisition")
		o.Abort()
		<-sigCh
		cancel()
	}()

	snap, err := o.Run(ctx)
	if err != nil {
		return err
	}
	printSnapshot(snap)

	if !cfg.Policy.FinalTest.Enabled {
		return nil
	}
	plan, err := selector.BuildPlan(reg, cfg.Policy)
	if err != nil {
		var incomplete *selector.CampaignIncompleteError
		if errors.As(err, &incomplete) {
			fmt.Printf("\nfinal selection deferred: %v\n", err)
			return nil
		}
		return err
	}
	printPlan(plan)

	if !confirmFinal {
		if len(plan.Selected) > 0 {
			fmt.Println("\nfinal test not run; pass --confirm-final to execute it on the selected devices")
		}
		return nil
	}
	if len(plan.Selected) == 0 {
		return nil
	}
	exec := selector.NewExecutor(sim, reg, w)
	if err := exec.Execute(ctx, plan); err != nil {
		return err
	}
	fmt.Printf("\nfinal test %q complete on %d devices\n", plan.TestName, len(plan.Selected))
	return nil
}

// watchSpool ingests external sweep drops until interrupted.
func watchSpool(cfg *config.Config, o *campaign.Orchestrator) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	watcher, err := campaign.NewSpoolWatcher(cfg.Campaign.SpoolDir, o.Ingest)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("watching %s for sweep files (interrupt to stop)\n", cfg.Campaign.SpoolDir)
	<-ctx.Done()
	watcher.Stop()
	return nil
}
