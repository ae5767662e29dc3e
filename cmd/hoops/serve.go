package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/derekprior/hoops/internal/api"
	"github.com/derekprior/hoops/internal/cache"
	"github.com/derekprior/hoops/internal/manager"
	"github.com/derekprior/hoops/internal/store"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(configFile *string) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the schedule HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configFile, addr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")
	return serveCmd
}

func runServe(configFlag, addr string) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := manager.New(ctx, cfg, st, nil)
	if err != nil {
		return err
	}

	sweeper, err := cache.NewSweeper(cfg.Server.CacheTTL)
	if err != nil {
		return err
	}
	if err := m.RegisterCaches(sweeper); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(m, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("season", m.Season().Name).
			Str("policy", string(m.Policy())).
			Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		return err
	}
	return nil
}
