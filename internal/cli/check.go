// internal/cli/check.go
package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single check cycle and print the result",
	Long: `Check runs one complete cycle against the configured targets: log in
if needed, fetch each saved search, extract listings, compare with the stored
snapshot and send notifications for anything new. The cycle result is printed
as JSON.`,
	Example: `  # One-shot check, useful from an external cron
  marktwatch check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a := GetApp()

	result, err := a.Orchestrator.RunCycle(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
