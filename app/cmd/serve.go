package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codegen/app/config"
	"codegen/internal/infrastructure/highlight"
	"codegen/internal/infrastructure/metrics"
	"codegen/internal/infrastructure/transport"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port  int
		style string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and the JSON/WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger := newLogger(cfg.Log, os.Stderr)
			return runServer(cmd.Context(), cfg, style, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overrides SERVER_PORT")
	cmd.Flags().StringVar(&style, "style", highlight.DefaultStyle, "syntax highlighting style")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, style string, logger zerolog.Logger) error {
	logger.Info().
		Object("llm", cfg.LLM).
		Str("history", cfg.History.Backend).
		Bool("events", cfg.AMQP.URL != "").
		Msg("starting codegen")

	svcs, err := buildServices(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svcs.Close(closeCtx)
	}()

	handler := transport.NewCodegenHandler(svcs.codeService, highlight.New(style), svcs.configErr, logger)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if cfg.Metrics.Enabled() {
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("starting metrics server")
			if err := metrics.StartMetricsServer(gctx, cfg.Metrics.Addr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("service stopped")
	return nil
}
