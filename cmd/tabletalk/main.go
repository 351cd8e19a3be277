// tabletalk answers natural-language questions about tabular data by
// generating, sandboxing and caching small Go programs over a declared
// schema.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tabletalk/internal/agent"
	"tabletalk/internal/config"
	"tabletalk/internal/dataset"
	"tabletalk/internal/llm"
	"tabletalk/internal/logging"
	"tabletalk/internal/sandbox"
	"tabletalk/internal/semantic"
	"tabletalk/internal/store"
)

var version = "dev"

var (
	// Global flags
	configPath string
	verbose    bool
	jsonLogs   bool
	schemaDir  string
	dataDir    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tabletalk",
	Short: "tabletalk - ask questions about your tables in plain language",
	Long: `tabletalk turns natural-language questions over tabular data into
generated Go code, runs that code in a sandbox against your tables, and
caches validated answers so repeated questions cost nothing.

Describe your tables once in schema YAML, point tabletalk at a directory
of CSV files, and ask.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if jsonLogs {
			cfg.Logging.JSON = true
		}
		if schemaDir != "" {
			cfg.Schema.Dir = schemaDir
		}
		if dataDir != "" {
			cfg.Data.Dir = dataDir
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tabletalk.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "structured JSON log output")
	rootCmd.PersistentFlags().StringVar(&schemaDir, "schema", "", "schema directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (overrides config)")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// engine bundles everything a query command needs.
type engine struct {
	registry *semantic.Registry
	agent    *agent.Agent
	store    *store.ArtifactStore
}

func (e *engine) close() {
	e.agent.Drain()
	if e.store != nil {
		_ = e.store.Close()
	}
}

// buildEngine wires the registry, data provider, model client, artifact
// store and agent from the loaded configuration.
func buildEngine(ctx context.Context) (*engine, error) {
	registry := semantic.NewRegistry(logger)
	if err := registry.LoadDir(cfg.Schema.Dir); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	provider, err := dataset.NewCSVProvider(cfg.Data.Dir, logger)
	if err != nil {
		return nil, err
	}

	client, err := buildClient(ctx)
	if err != nil {
		return nil, err
	}

	var artifacts *store.ArtifactStore
	if cfg.Engine.ArtifactDB != "" {
		artifacts, err = store.Open(cfg.Engine.ArtifactDB, logger)
		if err != nil {
			return nil, err
		}
	}

	a := agent.New(registry, client, provider, artifacts, agent.Options{
		MaxAttempts: cfg.Engine.MaxAttempts,
		Sandbox: sandbox.Options{
			Timeout:    cfg.Engine.SandboxTimeoutDuration(),
			CellBudget: cfg.Engine.CellBudget,
		},
		CacheSize: cfg.Engine.CacheSize,
	}, logger)

	return &engine{registry: registry, agent: a, store: artifacts}, nil
}

func buildClient(ctx context.Context) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key: set llm.api_key or TABLETALK_API_KEY")
	}
	switch cfg.LLM.Provider {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		conf := llm.DefaultOpenAIConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			conf.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.LLM.Model != "" {
			conf.Model = cfg.LLM.Model
		}
		conf.Timeout = cfg.LLM.RequestTimeout()
		conf.RequestsPerMinute = cfg.LLM.RequestsPerMinute
		return llm.NewOpenAIClient(conf), nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
