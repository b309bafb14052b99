package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lookupbot/internal/channel"
	"lookupbot/internal/config"
	"lookupbot/internal/convo"
	"lookupbot/internal/gate"
	"lookupbot/internal/lookup"
	"lookupbot/internal/pipeline"
	"lookupbot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "lookupbot",
		Short: "lookupbot: Telegram OSINT lookup bot",
		Long:  "lookupbot forwards user queries to configured lookup APIs and returns branded, redacted results over Telegram.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.lookupbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and command registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfgPath := config.DefaultConfigPath()
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			regPath := config.DefaultRegistryPath()
			if _, err := os.Stat(regPath); os.IsNotExist(err) {
				if err := os.WriteFile(regPath, []byte(config.SampleRegistryYAML), 0o644); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "registry", regPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (Telegram polling + health endpoint)",
		Long:  "Connects to Telegram, loads the command registry, and serves lookups. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = buildLogger(cfg)

	registry, err := config.LoadRegistry(config.ExpandPath(cfg.Registry))
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	logger.Info("command registry loaded", "commands", registry.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := config.ExpandPath(cfg.Database.Path)
	if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
		return err
	}
	db, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// Initial admins from config become stored admins, attributed to the owner.
	for _, id := range cfg.Telegram.InitialAdmins {
		if err := db.AddAdmin(ctx, id, cfg.Telegram.OwnerID); err != nil {
			logger.Warn("cannot seed admin", "id", id, "err", err)
		}
	}

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:    cfg.Telegram.Token,
		Config:   cfg,
		Registry: registry,
		Store:    db,
		Logger:   logger,
	})

	admitGate := gate.New(db, tg, cfg.Gate.Channels, cfg.Telegram.OwnerID, logger)
	cache := pipeline.NewCopyCache(time.Duration(cfg.Limits.CacheTTLSeconds) * time.Second)
	auditor := pipeline.NewAuditor(tg, cfg.Limits.AuditTruncateLen, logger)

	pipe := pipeline.New(pipeline.Config{
		Registry:       registry,
		Client:         lookup.NewClient(time.Duration(cfg.Limits.LookupTimeoutSeconds)*time.Second, logger),
		Redactor:       lookup.NewRedactor(cfg.Redaction.Blacklist),
		Cache:          cache,
		Auditor:        auditor,
		Store:          db,
		Messenger:      tg,
		Brand:          lookup.Branding{Developer: cfg.Branding.Developer, PoweredBy: cfg.Branding.PoweredBy},
		Footer:         cfg.Branding.Footer,
		InlineMaxLen:   cfg.Limits.InlineMaxLen,
		RedactedMaxLen: cfg.Limits.RedactedMaxLen,
		Logger:         logger,
	})

	sessions := convo.NewSessions(db, tg, logger)
	tg.Attach(admitGate, pipe, sessions, cache)

	if cfg.Health.Enabled {
		health := channel.NewHealth(cfg.Health.Host, cfg.Health.Port, logger)
		go func() {
			if err := health.Start(ctx); err != nil {
				logger.Error("health endpoint error", "err", err)
			}
		}()
	}

	logger.Info("lookupbot started", "version", version)
	return tg.Start(ctx)
}

// buildLogger applies the configured level and optional log file. Falls
// back to the startup logger on a bad config rather than failing the run.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(config.ExpandPath(cfg.General.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			registry, err := config.LoadRegistry(config.ExpandPath(cfg.Registry))
			if err != nil {
				logger.Info("registry", "loaded", false, "err", err)
			} else {
				logger.Info("registry", "loaded", true, "commands", registry.Len())
			}

			db, err := store.NewSQLiteStore(config.ExpandPath(cfg.Database.Path), logger)
			if err != nil {
				logger.Info("database", "reachable", false, "err", err)
				return nil
			}
			defer db.Close()
			stats, err := db.Stats(context.Background())
			if err != nil {
				logger.Info("database", "reachable", false, "err", err)
				return nil
			}
			logger.Info("database", "reachable", true,
				"users", stats.TotalUsers, "lookups", stats.TotalLookups)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. limits.lookupTimeoutSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.groupOnly true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
