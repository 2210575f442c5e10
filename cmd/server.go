package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/observability"
	"github.com/atmo-climate/atmo/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP question gateway",
	Long:  `Starts the atmo HTTP gateway: streaming /ask, a WebSocket endpoint, session history and export, health and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics := observability.NewCollector("atmo")

		a, err := newApp(metrics)
		if err != nil {
			return err
		}
		defer a.Close()

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}

		srv := server.New(server.Config{
			Port:           port,
			StaticDir:      a.cfg.Server.StaticDir,
			AllowAll:       a.cfg.Server.AllowAllOrigins,
			RequestTimeout: a.cfg.RequestTimeout(),
		}, a.db, a.gateway, metrics, a.logger.Named("http"))

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			a.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown failed", zap.Error(err))
			}
		}()

		a.logger.Info("atmo server starting",
			zap.String("version", Version),
			zap.Int("port", port),
			zap.String("provider", string(a.cfg.Provider)),
			zap.String("model", a.cfg.Model),
			zap.String("region", a.region.Name),
			zap.String("database", a.db.Path()))

		if err := srv.Start(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8001, "port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
