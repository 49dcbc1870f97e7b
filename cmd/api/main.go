package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/seanblong/folio/internal/ai"
	"github.com/seanblong/folio/internal/auth"
	"github.com/seanblong/folio/internal/blob"
	"github.com/seanblong/folio/internal/config"
	"github.com/seanblong/folio/internal/relay"
	"github.com/seanblong/folio/internal/search"
	"github.com/seanblong/folio/internal/server"
	"github.com/seanblong/folio/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("folio-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("provider", cfg.Provider).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Dur("upstream_timeout", cfg.UpstreamTimeout).
		Msg("starting folio api")

	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.Close()

	c, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create AI client")
	}
	logger.Info().Int("embedding_dim", c.Dim()).Str("chat_model", clientConfig.ChatModel).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.Migrate(ctx, c.Dim()); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	persona, err := cfg.Persona()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load persona")
	}
	rl, err := relay.NewService(c, st, relay.Options{
		Persona: persona,
		Timeout: cfg.UpstreamTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build relay")
	}

	authenticator := auth.New(auth.Config{
		JwtSecret:    cfg.Auth.JwtSecret,
		ClientID:     cfg.Auth.GithubClientID,
		ClientSecret: cfg.Auth.GithubClientSecret,
		RedirectURL:  cfg.Auth.GithubRedirectURL,
		AllowedOrg:   cfg.Auth.GithubAllowedOrg,
		Enabled:      cfg.Auth.Enabled,
	})
	if authenticator.Enabled() {
		logger.Info().Str("allowed_org", cfg.Auth.GithubAllowedOrg).Msg("authentication is ENABLED")
	} else {
		logger.Warn().Msg("authentication is DISABLED - admin API is open")
	}

	bucket, err := blob.Open(ctx, cfg.BlobRoot, cfg.BlobBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("root", cfg.BlobRoot).Msg("failed to open file storage")
	}
	defer bucket.Close()
	if err := bucket.Available(ctx); err != nil {
		logger.Warn().Err(err).Str("root", cfg.BlobRoot).Msg("file storage unavailable")
	}

	srv := server.New(server.Config{
		Relay:       rl,
		Catalog:     st,
		Search:      search.NewService(c, st),
		Admin:       st,
		Bucket:      bucket,
		Auth:        authenticator,
		Logger:      logger,
		DB:          st,
		FilesPrefix: filesPrefix(cfg.BlobBaseURL),
	})

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// filesPrefix returns the path to serve the bucket under when the public
// base URL points at this server.
func filesPrefix(baseURL string) string {
	if !strings.HasPrefix(baseURL, "/") {
		return ""
	}
	return strings.TrimRight(baseURL, "/")
}
