package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
)

var wishlistCmd = &cobra.Command{
	Use:     "wishlist",
	Aliases: []string{"wl"},
	Short:   "Show and edit the local wishlist",
}

var wishlistAddCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Add a product to the wishlist",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.WithSync(), runWishlistAdd),
}

var wishlistRmCmd = &cobra.Command{
	Use:   "rm <product-id>",
	Short: "Remove a product from the wishlist",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.WithSync(), runWishlistRm),
}

var wishlistClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every wishlist product",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithSync(), runWishlistClear),
}

var wishlistLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List wishlist products",
	Args:    cobra.NoArgs,
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runWishlistLs),
}

var (
	wishlistAddOffline bool
	wishlistAddName    string
	wishlistAddPrice   float64
)

func init() {
	rootCmd.AddCommand(wishlistCmd)
	wishlistCmd.AddCommand(wishlistAddCmd, wishlistRmCmd, wishlistClearCmd, wishlistLsCmd)

	wishlistAddCmd.Flags().BoolVar(&wishlistAddOffline, "offline", false, "Do not look the product up on the server")
	wishlistAddCmd.Flags().StringVar(&wishlistAddName, "name", "", "Product name (with --offline)")
	wishlistAddCmd.Flags().Float64Var(&wishlistAddPrice, "price", 0, "Product price (with --offline)")
}

func runWishlistAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if app.Wishlist().Contains(args[0]) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already on the wishlist\n", args[0])
		return nil
	}
	product, err := lookupProduct(ctx, app, args[0], wishlistAddOffline, wishlistAddName, wishlistAddPrice)
	if err != nil {
		return err
	}
	if err := app.Wishlist().Add(product); err != nil {
		return err
	}
	if err := app.Settle(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", product.ID)
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runWishlistRm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if !app.Wishlist().Contains(args[0]) {
		return fmt.Errorf("%s is not on the wishlist", args[0])
	}
	app.Wishlist().Remove(args[0])
	if err := app.Settle(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runWishlistClear(app *appctx.App, cmd *cobra.Command, args []string) error {
	app.Wishlist().Clear()
	if err := app.Settle(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "wishlist cleared")
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runWishlistLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	return app.Out.Wishlist(app.Wishlist().Items())
}
