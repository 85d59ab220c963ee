// internal/cli/root.go
package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/roelvdh/marktwatch/internal/app"
	"github.com/roelvdh/marktwatch/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "marktwatch",
	Short:   "Monitor classifieds searches for new listings",
	Long:    `Marktwatch watches saved classifieds searches through a logged-in browser session, detects new listings, and notifies by email and websocket push.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Lazily initialize the application before running commands (avoid
	// opening the store and starting goroutines for -h/help).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetApp() != nil {
			return nil
		}

		cfg, err := config.Load(rootCmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}

		SetApp(cmd, a)
		SetApp(rootCmd, a)
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		a := GetApp()
		if a == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown error")
		}
		SetApp(cmd, nil)
		SetApp(rootCmd, nil)
	}
}
