package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cartsync",
	Short: "Local cart and wishlist with server sync",
	Long: `cartsync keeps a shopping cart and wishlist on this machine and
reconciles them with your account on the cartsync server when you sign in,
sign out or switch accounts. Every local change is pushed while signed in.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides CARTSYNC_DB_PATH)")
	rootCmd.PersistentFlags().String("api-url", "", "Server API base URL (overrides CARTSYNC_API_URL)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}
