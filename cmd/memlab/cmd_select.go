package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"memlab/internal/registry"
	"memlab/internal/selector"
)

// selectCmd previews the final selection
var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Preview the final-test selection (dry run)",
	Long: `Ranks the finished population and shows which devices the policy would
send into the destructive final test. This command never executes the
test; that happens only through "run --confirm-final".`,
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().Bool("json", false, "Emit the plan as JSON")
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSetup()
	if err != nil {
		return err
	}

	store, err := registry.NewSQLiteStore(cfg.Campaign.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()
	reg, err := registry.Open(store)
	if err != nil {
		return err
	}
	if reg.Len() == 0 {
		return fmt.Errorf("registry %s holds no devices", cfg.Campaign.DatabasePath)
	}

	plan, err := selector.BuildPlan(reg, cfg.Policy)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printPlan(plan)
	fmt.Println("\ndry run only; execute with: memlab run --resume --confirm-final")
	return nil
}

// printPlan writes the ranked selection table the run and select
// commands share.
func printPlan(plan selector.Plan) {
	fmt.Printf("\nfinal selection (%s, threshold %.1f, test %q)\n", plan.Mode, plan.Threshold, plan.TestName)
	if len(plan.Candidates) == 0 {
		fmt.Println("  no candidates: every device was screened out")
		return
	}
	fmt.Printf("  %-4s %-12s %8s %-20s %s\n", "RANK", "DEVICE", "BEST", "STAGE", "SELECTED")
	for idx, c := range plan.Candidates {
		mark := ""
		if c.Selected {
			mark = "yes"
		}
		fmt.Printf("  %-4d %-12s %8.1f %-20s %s\n", idx+1, c.DeviceID, c.BestScore, c.Stage, mark)
	}
	fmt.Printf("  %d of %d devices selected\n", len(plan.Selected), len(plan.Candidates))
}
