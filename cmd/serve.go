package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Registry HTTP API.

The server loads every stored embedding into the similarity index before it
starts listening, then serves enrollment, recognition and identity lookup
endpoints. Prometheus metrics are exposed on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	// A failed initial load is not fatal: the engine retries on the next request.
	if err := a.engine.Rebuild(ctx); err != nil {
		a.logger.Warn("initial index build failed", zap.Error(err))
	} else {
		stats := a.engine.Stats()
		a.logger.Info("index ready",
			zap.String("mode", string(stats.Mode)),
			zap.Int("vectors", stats.Vectors),
			zap.Int("identities", stats.Identities))
	}
	if a.cfg.Auth.JWTSecret == "" {
		a.logger.Warn("API_JWT_SECRET is not set, write endpoints are unauthenticated")
	}

	server := web.NewServer(a.cfg, a.engine, a.logger, a.registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Printf("Face Registry API listening on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
