package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/internal/catalog"
	"github.com/seanblong/folio/internal/config"
	"github.com/seanblong/folio/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("folio-indexer", pflag.ExitOnError)
	force := fs.Bool("force", false, "Reindex entries even when their content is unchanged")
	workers := fs.Int("workers", 0, "Concurrent embed/upsert workers (default: CPUs, max 8)")
	lockFile := fs.String("lock-file", filepath.Join(os.TempDir(), "folio-indexer.lock"), "Lock file that keeps concurrent loads apart")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid provider")
	}
	zlog.Info().Str("provider", string(clientConfig.Provider)).Str("root", cfg.CatalogRoot).Msg("starting catalog load")

	release, err := catalog.AcquireLock(*lockFile)
	if err != nil {
		zlog.Fatal().Err(err).Msg("cannot start catalog load")
	}
	defer release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.Close()

	c, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create AI client")
	}
	if c.Dim() == 0 {
		zlog.Fatal().Msg("embedding dimension must be set")
	}
	if err := st.Migrate(ctx, c.Dim()); err != nil {
		zlog.Fatal().Err(err).Msg("failed to migrate database")
	}

	ld := catalog.New(st, cfg.CatalogRoot, c)
	ld.Force = *force
	ld.Workers = *workers

	stats, err := ld.Run(ctx)
	if err != nil {
		zlog.Fatal().Err(err).Msg("catalog load failed")
	}
	if stats.Failed > 0 {
		zlog.Error().Int("failed", stats.Failed).Msg("some catalog entries were not loaded")
		st.Close()
		_ = release()
		os.Exit(1)
	}
}
