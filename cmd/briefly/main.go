package main

import (
	"fmt"
	"os"
	"path/filepath"

	"briefly/internal/api"
	"briefly/internal/config"
	"briefly/internal/logging"
	"briefly/internal/store"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	serverURL  string

	// Logger for one-shot subcommands; the TUI logs to files only.
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "briefly",
	Short: "briefly - terminal client for the Briefly PDF assistant",
	Long: `briefly talks to a Briefly backend: upload a PDF, ask questions about it,
read block summaries as they are generated and download the conversation.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive UI owns the terminal.
		if cmd == cmd.Root() {
			return nil
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractiveChat,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .briefly/config.yaml or ~/.briefly/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Backend base URL (overrides config and BRIEFLY_SERVER_URL)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles what every command needs: config, logging and the API client.
type app struct {
	cfg    *config.Config
	dir    string
	client *api.Client
	store  *store.Store
}

// loadApp resolves the config file, initializes file logging and builds the
// API client.
func loadApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := logging.Initialize(dir, cfg.Logging.ToLogging()); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}
	logging.Boot("config loaded from %s (server %s)", path, cfg.Server.BaseURL)

	client, err := api.NewClient(cfg.Server.BaseURL,
		api.WithTimeout(cfg.GetTimeout()),
		api.WithUploadTimeout(cfg.GetUploadTimeout()),
		api.WithSessionCacheTTL(cfg.GetSessionCacheTTL()),
	)
	if err != nil {
		return nil, err
	}
	logger.Debug("client ready", zap.String("server", client.BaseURL()), zap.String("config", path))

	return &app{cfg: cfg, dir: dir, client: client}, nil
}

// openStore opens the transcript archive. It returns nil when disabled.
func (a *app) openStore() (*store.Store, error) {
	if !a.cfg.Store.Enabled {
		return nil, nil
	}
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.cfg.DBPath(a.dir))
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var result *multierror.Error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
		a.store = nil
	}
	logging.CloseAll()
	return result.ErrorOrNil()
}
