package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issueboard/internal/board"
	"github.com/joescharf/issueboard/internal/identity"
	"github.com/joescharf/issueboard/internal/llm"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "board",
	Short: "Issue board - file, triage and watch team issues",
	Long: `board is a shared issue board for a small team.
It warns before filing likely duplicates, enforces the
Open -> In Progress -> Done workflow, and keeps filtered
views live as teammates make changes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/board/config.yaml)")
}

func initConfig() {
	// Variables already in the environment take precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: cannot load .env: %v\n", err)
	}

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := defaultConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := defaultConfigDir()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default, rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "board.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("duplicates.window", similarity.DefaultWindow)
	viper.SetDefault("duplicates.pending_ttl", board.DefaultConfig().PendingTTL)
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.postgres_dsn", "")
	viper.SetDefault("store.poll_interval", store.DefaultPollInterval)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", llm.DefaultModel)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}
	ctx := context.Background()

	var s store.Store
	switch driver := viper.GetString("store.driver"); driver {
	case "", "sqlite":
		dbPath := viper.GetString("db_path")
		ui.VerboseLog("Opening SQLite store %s", dbPath)
		sq, err := store.NewSQLiteStore(dbPath, store.WithPollInterval(viper.GetDuration("store.poll_interval")))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = sq
	case "postgres":
		dsn := viper.GetString("store.postgres_dsn")
		if dsn == "" {
			return nil, fmt.Errorf("store.postgres_dsn is required when store.driver is postgres")
		}
		ui.VerboseLog("Connecting to PostgreSQL store")
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = pg
	default:
		return nil, fmt.Errorf("unknown store.driver %q (want sqlite or postgres)", driver)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// closeStore releases the shared store, if one was opened.
func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}

// boardConfig reads the duplicate-detection settings.
func boardConfig() board.Config {
	return board.Config{
		Window:     viper.GetInt("duplicates.window"),
		PendingTTL: viper.GetDuration("duplicates.pending_ttl"),
	}
}

// getBoard builds the board engine over the shared store.
func getBoard() (*board.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	b, err := board.NewService(s, boardConfig())
	if err != nil {
		return nil, fmt.Errorf("board config: %w", err)
	}
	return b, nil
}

// getIdentity builds the identity service over the shared store.
func getIdentity() (*identity.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return identity.NewService(s), nil
}

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}
