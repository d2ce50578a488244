// Package main provides the entry point for voicekeeper.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voicekeeper/internal/config"
	"voicekeeper/internal/database"
	"voicekeeper/internal/discord"
	"voicekeeper/internal/telemetry"
)

// version is set at build time.
var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "voicekeeper",
	Short:   "Track voice time and keep a moderation log for Discord guilds",
	Version: version,
	RunE:    run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables and exit",
	RunE:  migrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an optional YAML configuration file")
	rootCmd.AddCommand(migrateCmd)
}

func setup() (*config.Config, *logrus.Logger, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	log.SetLevel(level)

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return cfg, log, nil
}

func migrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// database.New creates missing tables
	db, err := database.New(cmd.Context(), cfg.DatabaseOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.WithField("driver", db.Driver()).Info("Database schema is up to date")
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("Received shutdown signal")
		cancel()
	}()

	// Initialize database
	db, err := database.New(ctx, cfg.DatabaseOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Create repository
	repository := database.NewRepository(db, log)

	// Initialize Discord bot
	bot, err := discord.New(discord.Options{
		Token:        cfg.Discord.Token,
		Prefix:       cfg.Discord.Prefix,
		Owner:        cfg.Discord.Owner,
		Version:      version,
		EmitterRate:  cfg.LogEmitter.Rate,
		EmitterBurst: cfg.LogEmitter.Burst,
		EventTimeout: 2 * cfg.Database.QueryTimeout,
	}, repository, log)
	if err != nil {
		return fmt.Errorf("failed to create Discord bot: %w", err)
	}

	telemetry.Init()
	if err := telemetry.RegisterDB(db.GetConnection(), db.Driver()); err != nil {
		log.WithError(err).Warn("Failed to register database metrics")
	}
	if err := telemetry.RegisterQueueDepth(bot.QueueDepth); err != nil {
		log.WithError(err).Warn("Failed to register queue depth metric")
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Start bot
	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	log.Info("Shutting down bot...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := bot.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("Pending events were not processed before shutdown")
	}

	log.Info("Shutdown complete")
	return nil
}
