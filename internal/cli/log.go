package cli

import (
	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent local changes and sync transitions",
	Long: `Lists entries from the local event log, newest first: cart and
wishlist changes and sign-in, sign-out and switch transitions with their
outcome.

Examples:
  cartsync log --limit 20
  cartsync log --resource session`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logResource string
	logLimit    int
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().StringVar(&logResource, "resource", "", "Only show one resource type: cart, wishlist, session")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "Maximum number of entries (0 for all)")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	evs, err := app.Events.List(cmd.Context(), logResource, logLimit)
	if err != nil {
		return err
	}
	return app.Out.Events(evs)
}
