package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
)

var loginCmd = &cobra.Command{
	Use:   "login <user-id>",
	Short: "Sign in and merge the local cart and wishlist with the account",
	Long: `Signs in as user-id. When the account already has a saved cart or
wishlist on the server, the local copy is replaced by it. Otherwise the
local (guest) cart and wishlist are uploaded to the account.

Signing in as a different user while signed in first saves and clears the
current user's data.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithSync(), runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Save the cart and wishlist to the account and clear them locally",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithSync(), runLogout),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runWhoami),
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func runLogin(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := app.Session.SignIn(ctx, args[0]); err != nil {
		return err
	}
	if err := app.Settle(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%d cart item(s), %d wishlist product(s))\n",
		args[0], app.Cart().ItemCount(), app.Wishlist().Len())
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runLogout(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prev := app.Session.Current()
	if !prev.Present() {
		fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
		return nil
	}
	if err := app.Session.SignOut(ctx); err != nil {
		return err
	}
	if err := app.Settle(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed out %s\n", prev.UserID)
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runWhoami(app *appctx.App, cmd *cobra.Command, args []string) error {
	id := app.Session.Current()
	out := map[string]interface{}{
		"userId":   id.UserID,
		"guest":    !id.Present(),
		"apiUrl":   app.Remote.BaseURL(),
		"database": app.DB.Path(),
	}
	if ok, err := app.Out.Structured(out); ok {
		return err
	}
	if !id.Present() {
		fmt.Fprintln(cmd.OutOrStdout(), "guest")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), id.UserID)
	return nil
}
