// internal/cli/serve.go
package cli

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor: scheduler, websocket push and HTTP API",
	Example: `  # Run with defaults (listens on :8080)
  marktwatch serve

  # Custom listen address and database location
  marktwatch serve --addr :9000 --db /var/lib/marktwatch/marktwatch.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a := GetApp()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.Orchestrator.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Interrupt received, shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
