package cmd

import (
	"fmt"
	"os"

	"github.com/Yates-Labs/respin/internal/config"
	"github.com/Yates-Labs/respin/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	logLevel   string

	appConfig config.Config
	logger    = zap.NewNop()
	cleanup   = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "respin",
	Short: "Respin - human-in-the-loop chapter rewriting",
	Long: `Respin scrapes a book chapter, rewrites it with a language model and
walks an editor through rating, editing, re-spinning and finalizing it.

Every revision is stored in a searchable ledger, and the editor's decisions
are turned into rewards that teach the tool which rewriting prompts work.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default: built-in settings)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")
}

// setup loads configuration and builds the logger shared by every command.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	l, done, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}

	appConfig = cfg
	logger = l
	cleanup = done
	logger.Debug("config loaded", zap.String("file", configFile), zap.String("backend", cfg.Store.Backend))
	return nil
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
