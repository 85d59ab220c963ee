package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Emit logs in JSON format")
	cmd.PersistentFlags().String("addr", "", "HTTP listen address (e.g. :8080)")
	cmd.PersistentFlags().String("db", "", "Path to the SQLite database file")
	cmd.PersistentFlags().String("timeout", "60s", "Hard timeout for page navigation")
}
