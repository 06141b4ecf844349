package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Face Registry HTTP API.

Endpoints:
  GET    /api/v1/health
  GET    /api/v1/identities            cached identity names (?details=true for full records)
  GET    /api/v1/identities/{name}
  POST   /api/v1/identities            multipart: name, description, affiliation, images
  PUT    /api/v1/identities/{name}     multipart: new_name, description, affiliation, images
  DELETE /api/v1/identities/{name}
  POST   /api/v1/verify                multipart: file
  GET    /api/v1/cache
  GET    /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides API_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides API_HOST)")
	serveCmd.Flags().Bool("warm", true, "Load the embedding cache before accepting requests")
}

// warmCache loads the embedding cache so the first verification does not
// pay for the store enumeration. Failure is not fatal.
func warmCache(ctx context.Context, a *app) {
	names, err := a.verifier.Names(ctx)
	if err != nil {
		a.logger.Warn("embedding cache warm-up failed", zap.Error(err))
		return
	}
	a.logger.Info("embedding cache loaded", zap.Int("identities", len(names)))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cmd, true, func(cfg *config.Config) {
		if port := mustGetInt(cmd, "port"); port > 0 {
			cfg.API.Port = port
		}
		if host := mustGetString(cmd, "host"); host != "" {
			cfg.API.Host = host
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if mustGetBool(cmd, "warm") {
		warmCache(ctx, a)
	}

	server := web.NewServer(a.cfg, a.enroller, a.verifier, a.registry, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Registry API on http://%s:%d\n", a.cfg.API.Host, a.cfg.API.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
