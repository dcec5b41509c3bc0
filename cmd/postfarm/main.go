package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"

	"github.com/postfarm/postfarm/internal/api"
	"github.com/postfarm/postfarm/internal/auth"
	"github.com/postfarm/postfarm/internal/genai"
	"github.com/postfarm/postfarm/internal/llamasrv"
	"github.com/postfarm/postfarm/internal/oauth"
	"github.com/postfarm/postfarm/internal/platform"
	"github.com/postfarm/postfarm/internal/scheduler"
	"github.com/postfarm/postfarm/internal/store"
	"github.com/postfarm/postfarm/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PostFarm state data
	DefaultStateDir = "/var/lib/postfarm"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "postfarm.db"
	// DefaultModelsDirName is the default subdirectory for GGUF models
	DefaultModelsDirName = "models"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.DevLogging)

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("PostFarm failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PostFarm exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL          string
	StateDir             string
	APIAddr              string
	ModelsDir            string
	DefaultProvider      string
	JWKSURL              string
	LlamaPort            int
	DevLogging           bool
	TwitterClientID      string
	TwitterClientSecret  string
	TwitterRedirectURI   string
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURI  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	apiAddr         *string
	modelsDir       *string
	defaultProvider *string
	jwksURL         *string
}

// initializeLogger sets up structured logging. Development mode uses a
// colorized console handler, production emits JSON.
func initializeLogger(dev bool) {
	var handler slog.Handler
	if dev {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		StateDir:             util.GetEnv("POSTFARM_STATE_DIR", DefaultStateDir),
		APIAddr:              os.Getenv("API_ADDR"),
		ModelsDir:            os.Getenv("POSTFARM_MODELS_DIR"),
		DefaultProvider:      util.GetEnv("DEFAULT_PROVIDER", genai.DefaultProviderName),
		JWKSURL:              os.Getenv("SUPABASE_JWKS_URL"),
		LlamaPort:            util.ParseIntEnv("LLAMA_SERVER_PORT", llamasrv.DefaultPort),
		DevLogging:           util.ParseBoolEnv("POSTFARM_DEV_LOGGING", false),
		TwitterClientID:      os.Getenv("TWITTER_CLIENT_ID"),
		TwitterClientSecret:  os.Getenv("TWITTER_CLIENT_SECRET"),
		TwitterRedirectURI:   os.Getenv("TWITTER_REDIRECT_URI"),
		LinkedInClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
		LinkedInClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
		LinkedInRedirectURI:  os.Getenv("LINKEDIN_REDIRECT_URI"),
	}

	if config.ModelsDir == "" {
		config.ModelsDir = filepath.Join(config.StateDir, DefaultModelsDirName)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"POSTFARM_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"POSTFARM_MODELS_DIR", config.ModelsDir,
		"DEFAULT_PROVIDER", config.DefaultProvider,
		"SUPABASE_JWKS_URL_SET", config.JWKSURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for PostFarm data (overrides $POSTFARM_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN, a Postgres URL or SQLite file path (overrides $DATABASE_URL)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		modelsDir:       flag.String("models-dir", config.ModelsDir, "directory of GGUF models for the local llama server (overrides $POSTFARM_MODELS_DIR)"),
		defaultProvider: flag.String("default-provider", config.DefaultProvider, "default AI provider when none is selected (overrides $DEFAULT_PROVIDER)"),
		jwksURL:         flag.String("jwks-url", config.JWKSURL, "JWKS URL for token verification, empty disables auth (overrides $SUPABASE_JWKS_URL)"),
	}

	flag.Parse()

	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", *flags.dbDSN)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore opens the storage backend matching the DSN shape.
func buildStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	verifier, err := auth.NewVerifier(ctx, *flags.jwksURL)
	if err != nil {
		return err
	}

	platformSvc := platform.NewService(st)
	llm := genai.NewService(st, *flags.defaultProvider)
	llama := llamasrv.NewManager(*flags.modelsDir, llamasrv.WithPort(config.LlamaPort))
	oauthSvc := oauth.NewService(st, oauth.Config{
		TwitterClientID:      config.TwitterClientID,
		TwitterClientSecret:  config.TwitterClientSecret,
		TwitterRedirectURI:   config.TwitterRedirectURI,
		LinkedInClientID:     config.LinkedInClientID,
		LinkedInClientSecret: config.LinkedInClientSecret,
		LinkedInRedirectURI:  config.LinkedInRedirectURI,
	})

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := llama.Stop(stopCtx); err != nil {
			slog.Warn("Failed to stop managed llama server", "error", err)
		}
	}()

	sched := scheduler.NewService(st, platformSvc)
	sched.Start(ctx)
	defer sched.Stop()

	c := cron.New()
	if err := oauthSvc.RegisterPurgeJob(c); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	server := api.NewServer(api.Opts{
		Addr:      *flags.apiAddr,
		Store:     st,
		Scheduler: sched,
		Platform:  platformSvc,
		LLM:       llm,
		Llama:     llama,
		OAuth:     oauthSvc,
		Verifier:  verifier,
	})

	if llama.IsRunning(ctx) {
		slog.Info("Local llama server already running")
	}

	return server.Run(ctx)
}
