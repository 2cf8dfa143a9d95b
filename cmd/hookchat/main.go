package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hookchat/internal/channel"
	"hookchat/internal/config"
	"hookchat/internal/conversation"
	"hookchat/internal/kv"
	"hookchat/internal/transport"
	"hookchat/internal/upload"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

const historyLimit = 500

func main() {
	// .env in the working directory is optional.
	godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "hookchat",
		Short: "hookchat: webhook-backed knowledge base gateway",
		Long:  "hookchat serves a local browser UI for feeding documents to an automation webhook and chatting with the knowledge base behind it.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.hookchat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", dataDir)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (web UI + optional Telegram relay)",
		Long:  "Starts the browser UI and all enabled channels. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
	}

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := kv.NewSQLiteStore(filepath.Join(cfg.General.DataDir, "settings.db"), logger)
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	defer settings.Close()
	webhooks := config.NewWebhookStore(settings, logger)

	convStore, err := conversation.NewStore(filepath.Join(cfg.General.DataDir, "conversation.db"), logger)
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	defer convStore.Close()

	log := conversation.NewLog()
	if history, err := convStore.History(ctx, historyLimit); err != nil {
		logger.Warn("cannot restore transcript", "err", err)
	} else {
		log.Restore(history)
	}

	queue, err := upload.NewQueue(upload.QueueConfig{
		StageDir:     filepath.Join(cfg.General.DataDir, "staging"),
		MaxFileBytes: cfg.Uploads.MaxFileBytes,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("upload queue: %w", err)
	}

	hintRules, err := transport.LoadHintRules(cfg.General.HintRulesFile)
	if err != nil {
		logger.Warn("cannot load hint rules, using built-ins", "file", cfg.General.HintRulesFile, "err", err)
		hintRules = nil
	}

	client := transport.NewClient(transport.ClientConfig{
		Timeout:   time.Duration(cfg.General.RequestTimeoutSeconds) * time.Second,
		HintRules: hintRules,
		Logger:    logger,
	})

	webCh := channel.NewWeb(channel.WebOptions{
		Host:         cfg.Web.Host,
		Port:         cfg.Web.Port,
		Logger:       logger,
		Version:      version,
		Client:       client,
		Webhooks:     webhooks,
		Log:          log,
		Store:        convStore,
		Queue:        queue,
		MaxFileBytes: cfg.Uploads.MaxFileBytes,
		ClearDelay:   time.Duration(cfg.Uploads.ClearDelaySeconds) * time.Second,
	})

	var telegramCh *channel.Telegram
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		telegramCh, err = channel.NewTelegram(channel.TelegramOptions{
			Token:     cfg.Telegram.Token,
			AllowFrom: cfg.Telegram.AllowFrom,
			Client:    client,
			Webhooks:  webhooks,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
		go func() {
			if err := telegramCh.Start(ctx); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- webCh.Start(ctx) }()

	logger.Info("gateway started. Press Ctrl+C to stop.")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web channel: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down...")
		// Web server shutdown is driven by ctx; wait for it to drain.
		shutdownTimer := time.NewTimer(10 * time.Second)
		defer shutdownTimer.Stop()
		select {
		case <-errCh:
		case <-shutdownTimer.C:
			logger.Warn("shutdown timed out, forcing exit")
			webCh.Stop()
		}
	}

	if telegramCh != nil {
		telegramCh.Stop()
	}
	queue.Clear()
	logger.Info("shutdown complete")
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. web.port)",
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
		Short: "Set a config value (e.g. web.port 9090)",
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
