package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codesig/internal/config"
	"codesig/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig        string
	flagProvider      string
	flagReference     string
	flagLogLevel      string
	flagLogFormat     string
	flagWorkers       int
	flagEmbedProvider string
	flagModel         string
	flagOllama        string
)

// Loaded by the root PersistentPreRunE before any subcommand runs.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:               "codesig",
	Short:             "Flag malicious source files by their embedding-cluster signature",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logging.Sync(logger)
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	pf.StringVar(&flagProvider, "provider", "", "content provider: github, git or local")
	pf.StringVar(&flagReference, "reference", "", "reference signature database")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: console or json")
	pf.IntVar(&flagWorkers, "workers", 0, "parallel workers (default number of CPUs)")
	pf.StringVar(&flagEmbedProvider, "embed-provider", "", "embedding provider: ollama, openai or fastembed")
	pf.StringVar(&flagModel, "model", "", "embedding model")
	pf.StringVar(&flagOllama, "ollama", "", "ollama base URL")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		c.Provider = flagProvider
	}
	if flags.Changed("reference") {
		c.Reference.Path = flagReference
	}
	if flags.Changed("log-level") {
		c.Log.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = flagLogFormat
	}
	if flags.Changed("workers") {
		c.Workers = flagWorkers
	}
	if flags.Changed("embed-provider") {
		c.Embedding.Provider = flagEmbedProvider
	}
	if flags.Changed("model") {
		c.Embedding.Model = flagModel
	}
	if flags.Changed("ollama") {
		c.Embedding.OllamaURL = flagOllama
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logging.New(c.Log)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	logger.Debug("config loaded",
		zap.String("provider", cfg.Provider),
		zap.String("embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model),
		zap.String("reference", cfg.Reference.Path),
		zap.Int("workers", cfg.Workers),
	)
	return nil
}
