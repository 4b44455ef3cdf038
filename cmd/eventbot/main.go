// ABOUTME: Entry point for the event bot
// ABOUTME: Wires store, bus, pipeline, conversations, and the Matrix bridge

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/runeclock/eventbot/internal/bridge"
	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/commands"
	"github.com/runeclock/eventbot/internal/config"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/dispatch"
	"github.com/runeclock/eventbot/internal/flows"
	"github.com/runeclock/eventbot/internal/hiscores"
	"github.com/runeclock/eventbot/internal/lifecycle"
	"github.com/runeclock/eventbot/internal/metrics"
	"github.com/runeclock/eventbot/internal/store"
	"github.com/runeclock/eventbot/internal/throttle"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   ┏━╸╻ ╻┏━╸┏┓╻╺┳╸┏┓ ┏━┓╺┳╸       │
    │   ┣╸ ┃┏┛┣╸ ┃┗┫ ┃ ┣┻┓┃ ┃ ┃        │
    │   ┗━╸┗┛ ┗━╸╹ ╹ ╹ ┗━┛┗━┛ ╹        │
    │                                  │
    │      clan event scoreboards      │
    │                                  │
    ╰──────────────────────────────────╯
`

// forcedRefreshSpacing is the per-event cool-down for operator refreshes.
const forcedRefreshSpacing = 5 * time.Minute

// getConfigPath returns the path to the bot config file.
// Priority: EVENTBOT_CONFIG env var > XDG_CONFIG_HOME/eventbot/config.toml > ~/.config/eventbot/config.toml
func getConfigPath() string {
	if envPath := os.Getenv("EVENTBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "eventbot", "config.toml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.Username)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	cacheTTL, err := cfg.HiscoresCacheTTL()
	if err != nil {
		return fmt.Errorf("parsing hiscores cache ttl: %w", err)
	}
	stats := hiscores.NewClient(cfg.Hiscores.BaseURL, cacheTTL)
	defer stats.Close()

	signals := bus.New(logger)
	defer signals.Close()

	client, err := bridge.NewClient(cfg.Matrix.Homeserver, logger)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}
	if err := client.Login(ctx, cfg.Matrix.Username, cfg.Matrix.Password); err != nil {
		return err
	}

	dispatcher := dispatch.New(client, logger)
	sessions := conversation.NewManager(dispatcher, logger)

	limiter := throttle.New(forcedRefreshSpacing)
	defer limiter.Close()

	deps := flows.Deps{Store: db, Bus: signals}
	router := commands.NewRouter(deps, sessions, limiter, logger)

	pipeline := lifecycle.New(lifecycle.Deps{
		Store:  db,
		Bus:    signals,
		Chat:   dispatcher,
		Stats:  stats,
		Logger: logger,
	})
	pipeline.Register(signals)
	go pipeline.Run(ctx)

	if cfg.Metrics.Enabled {
		go metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, logger)
	}

	b := bridge.New(client, dispatcher, sessions, router,
		cfg.Bridge.CommandPrefix, cfg.Bridge.AllowedRooms, logger)
	return b.Run(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
