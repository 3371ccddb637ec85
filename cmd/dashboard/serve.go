package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sonil/dashboard/internal/api"
	"sonil/dashboard/internal/config"
	"sonil/dashboard/internal/database"
	"sonil/dashboard/internal/session"
	"sonil/dashboard/internal/upstream"
)

func newServeCmd() *cobra.Command {
	var envFiles []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(envFiles)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env", "backend/.env"}, "env files read under the process environment")
	return cmd
}

func runServe(envFiles []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	baseCtx := logger.WithContext(context.Background())

	ctx, cancel := context.WithTimeout(baseCtx, 40*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, cfg.SchemaPath); err != nil {
		return err
	}

	db := database.OpenSQL(pool)
	defer db.Close()
	sessions := session.NewStore(db, cfg.JWTSecret)

	client := upstream.NewClient(upstream.Config{
		BaseURL:      cfg.UpstreamBaseURL,
		FarmInputsID: cfg.FarmInputsID,
		ProgressID:   cfg.ProgressID,
		Timeout:      cfg.UpstreamTimeout,
	}, nil)

	srv := api.NewServer(api.Options{
		Upstream:       client,
		Sessions:       sessions,
		JWTSecret:      cfg.JWTSecret,
		SessionTTL:     cfg.SessionTTL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		LoginAttempts:  cfg.LoginAttempts,
		LoginWindow:    cfg.LoginWindow,
		Logger:         logger,
	})

	purgeCtx, stopPurge := context.WithCancel(baseCtx)
	defer stopPurge()
	go purgeSessions(purgeCtx, sessions, 30*time.Minute)

	return listen(&logger, &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	})
}

func purgeSessions(ctx context.Context, store *session.Store, every time.Duration) {
	logger := zerolog.Ctx(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("purge expired sessions")
				continue
			}
			if n > 0 {
				logger.Info().Int64("removed", n).Msg("purged expired sessions")
			}
		}
	}
}

// listen serves until SIGINT or SIGTERM, then drains outstanding requests.
func listen(logger *zerolog.Logger, server *http.Server) error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("dashboard api listening")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-shutdown:
		logger.Info().Msg("shutdown initiated")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			return server.Close()
		}
	}
	return nil
}
