package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"memlab/internal/config"
)

// weightsCmd prints the effective scoring weights
var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Print the effective scoring weights",
	Long: `Prints the scoring weights the classifier would use, after applying any
configured overlay file, with a provenance note. Use --template to emit
the annotated starter file instead.`,
	RunE: runWeights,
}

func init() {
	weightsCmd.Flags().Bool("template", false, "Print the annotated default weights file")
}

func runWeights(cmd *cobra.Command, args []string) error {
	if template, _ := cmd.Flags().GetBool("template"); template {
		fmt.Print(string(config.DefaultWeightsYAML()))
		return nil
	}

	cfg, w, err := loadSetup()
	if err != nil {
		return err
	}

	_, fromFile, err := config.LoadWeights(cfg.Campaign.WeightsPath)
	if err != nil {
		return err
	}
	switch {
	case fromFile:
		fmt.Printf("# effective weights: defaults overlaid with %s\n", cfg.Campaign.WeightsPath)
	case cfg.Campaign.WeightsPath != "":
		fmt.Printf("# effective weights: built-in defaults (%s not found)\n", cfg.Campaign.WeightsPath)
	default:
		fmt.Println("# effective weights: built-in defaults")
	}

	data, err := yaml.Marshal(w)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
