package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memlab/internal/classify"
	"memlab/internal/config"
	"memlab/internal/logging"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	workdir     string
	weightsPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memlab",
	Short: "memlab - conditional test campaigns for two-terminal devices",
	Long: `memlab characterizes two-terminal devices (memristors, capacitors,
plain resistors) from I-V sweeps and drives a conditional test campaign
over a device population.

Each device gets a cheap quick test; promising ones graduate to basic and
high-quality tiers; the best of the finished population can be selected
for one destructive final test, which always requires explicit
confirmation.

Sweeps come from the built-in simulated bench or from files dropped into
a spool directory by external acquisition.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.UseCore(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// loadSetup may have swapped the shared core for the config-built
		// one; flush whichever is live.
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memlab.yaml", "Campaign configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workdir, "workdir", "w", "", "Base directory for data, spool and registry (overrides config paths)")
	rootCmd.PersistentFlags().StringVar(&weightsPath, "weights", "", "Scoring weights overlay file (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(weightsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSetup resolves the effective configuration and scoring weights,
// applying the --workdir and --weights overrides.
func loadSetup() (*config.Config, classify.Weights, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, classify.Weights{}, err
	}
	if workdir != "" {
		cfg.Campaign.DataDir = filepath.Join(workdir, "data")
		cfg.Campaign.SpoolDir = filepath.Join(workdir, "spool")
		cfg.Campaign.DatabasePath = filepath.Join(workdir, "data", "memlab.db")
	}
	if weightsPath != "" {
		cfg.Campaign.WeightsPath = weightsPath
	}

	// --verbose keeps the debug console logger; otherwise the config's
	// logging block takes over (level, format, optional file sink).
	if !verbose {
		if err := logging.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
			return nil, classify.Weights{}, err
		}
	}

	w, fromFile, err := config.LoadWeights(cfg.Campaign.WeightsPath)
	if err != nil {
		return nil, classify.Weights{}, err
	}
	if cfg.Campaign.WeightsPath != "" && !fromFile {
		logging.Get(logging.CategoryBoot).Warn("weights file %s not found, using built-in defaults", cfg.Campaign.WeightsPath)
	}
	return cfg, w, nil
}
