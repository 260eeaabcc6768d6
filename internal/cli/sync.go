package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
	"github.com/lherron/cartsync/internal/reconcile"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the local cart and wishlist to the signed-in account",
	Long: `Pushes both collections to the server, as the app does when it is
sent to the background. Nothing is pushed for a guest or while a merge is
pending; see 'cartsync retry'.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithSync(), runSync),
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry a sign-in merge that could not reach the server",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithSync(), runRetry),
}

func init() {
	rootCmd.AddCommand(syncCmd, retryCmd)
}

func runSync(app *appctx.App, cmd *cobra.Command, args []string) error {
	if !app.Session.Current().Present() {
		fmt.Fprintln(cmd.OutOrStdout(), "not signed in; nothing to push")
		return nil
	}
	if err := app.Sync.Background(cmd.Context()); err != nil {
		return err
	}
	if app.Sync.MergePending() {
		return reconcile.ErrMergePending
	}
	if err := app.Sync.LastError(); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed cart and wishlist for %s\n", app.Session.Current().UserID)
	return nil
}

func runRetry(app *appctx.App, cmd *cobra.Command, args []string) error {
	err := app.Sync.Retry(cmd.Context())
	if errors.Is(err, reconcile.ErrMergePending) {
		if last := app.Sync.LastError(); last != nil {
			return fmt.Errorf("%w: %v", err, last)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "in sync")
	return nil
}
