// Package commands provides CLI commands for harryAI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fumbl3b/harryAi/internal/config"
)

var (
	// Global flags
	configFlag string
	debugFlag  bool

	// Version info (set at build time)
	Version = "0.1.0"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "harryai",
	Short: "A conversational assistant for your terminal",
	Long: `harryAI keeps a running conversation with an OpenAI-compatible chat model
and reveals each reply progressively.

Examples:
  harryai                      Start interactive chat
  harryai ask "What is Go?"    Send a single message
  harryai serve --addr :8100   Serve the chat over HTTP

Configuration is read from ~/.harryai/config.yaml (or --config) and the
OPENAI_API_KEY, OPENAI_MODEL and OPENAI_BASE_URL environment variables.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "harryai %s\n", Version)
			return nil
		}
		return runChat(cmd, NewDependencies())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	AddGlobalFlags(rootCmd)
	rootCmd.Flags().BoolP("version", "v", false, "Show version and exit")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(NewServeCmd())
}

// AddGlobalFlags registers --config and --debug as persistent flags of cmd.
// Standalone binaries built from a single subcommand call it on that command.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default ~/.harryai/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// loadConfig reads and validates the configuration named by the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return cfg, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the production logger. Interactive commands pass
// toFile so log lines never reach the terminal: they go to cfg.LogFile, or
// nowhere when it is unset.
func newLogger(cfg config.Config, toFile bool) (*zap.Logger, error) {
	if toFile && cfg.LogFile == "" {
		return zap.NewNop(), nil
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if toFile {
		zcfg.OutputPaths = []string{cfg.LogFile}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile}
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
