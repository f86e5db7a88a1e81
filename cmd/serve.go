package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adobe/aio-tvm/internal/api"
	"github.com/adobe/aio-tvm/internal/audit"
	"github.com/adobe/aio-tvm/internal/config"
	"github.com/adobe/aio-tvm/internal/metrics"
	"github.com/adobe/aio-tvm/internal/providers"
	"github.com/adobe/aio-tvm/internal/service"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TVM server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		log.Info().Msg("Initializing providers...")
		generators, err := providers.BuildRegistry(cfg.Providers)
		if err != nil {
			return fmt.Errorf("building provider registry: %w", err)
		}

		recorder := metrics.NewRecorder()
		auditor := audit.New(cfg.Audit)
		defer func() {
			if err := auditor.Close(); err != nil {
				log.Warn().Err(err).Msg("closing auditor")
			}
		}()

		pipelines, err := service.BuildPipelines(cfg, generators, service.NewDependencies(cfg, recorder, auditor))
		if err != nil {
			return fmt.Errorf("building pipelines: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pusherDone := make(chan struct{})
		if cfg.Metrics.URL != "" {
			log.Info().Str("url", cfg.Metrics.URL).Dur("interval", cfg.Metrics.PushInterval).Msg("Pushing metrics")
			go func() {
				defer close(pusherDone)
				recorder.RunPusher(ctx, cfg.Metrics.URL, cfg.Metrics.PushInterval)
			}()
		} else {
			close(pusherDone)
		}

		srv := api.NewServer(pipelines, auditor, recorder.Handler())
		server := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes([]byte(cfg.Admin.SigningKey)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case err := <-serveErr:
			stop()
			<-pusherDone
			return fmt.Errorf("server crashed: %w", err)
		case <-ctx.Done():
		}
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		<-pusherDone

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
}
