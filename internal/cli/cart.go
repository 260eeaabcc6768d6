package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
	"github.com/lherron/cartsync/internal/domain"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show and edit the local cart",
}

var cartAddCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Add a product to the cart",
	Long: `Adds a product to the cart. A line with the same product and variant
selection has its quantity increased instead of being duplicated.

Examples:
  cartsync cart add P1 --variant size=M --qty 2
  cartsync cart add P9 --offline --name "Gift card" --price 25`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithSync(), runCartAdd),
}

var cartRmCmd = &cobra.Command{
	Use:   "rm <item-id>",
	Short: "Remove a cart line",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.WithSync(), runCartRm),
}

var cartSetCmd = &cobra.Command{
	Use:   "set <item-id> <quantity>",
	Short: "Set the quantity of a cart line (0 removes it)",
	Args:  cobra.ExactArgs(2),
	RunE:  appctx.WithApp(appctx.WithSync(), runCartSet),
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cart line",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithSync(), runCartClear),
}

var cartLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List cart lines and totals",
	Args:    cobra.NoArgs,
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runCartLs),
}

var (
	cartAddQty      int
	cartAddVariants []string
	cartAddOffline  bool
	cartAddName     string
	cartAddPrice    float64
)

func init() {
	rootCmd.AddCommand(cartCmd)
	cartCmd.AddCommand(cartAddCmd, cartRmCmd, cartSetCmd, cartClearCmd, cartLsCmd)

	cartAddCmd.Flags().IntVarP(&cartAddQty, "qty", "n", 1, "Quantity to add")
	cartAddCmd.Flags().StringArrayVarP(&cartAddVariants, "variant", "v", nil, "Variant selection as name=value (repeatable)")
	cartAddCmd.Flags().BoolVar(&cartAddOffline, "offline", false, "Do not look the product up on the server")
	cartAddCmd.Flags().StringVar(&cartAddName, "name", "", "Product name (with --offline)")
	cartAddCmd.Flags().Float64Var(&cartAddPrice, "price", 0, "Product price (with --offline)")
}

func runCartAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	selections, err := parseVariants(cartAddVariants)
	if err != nil {
		return err
	}
	product, err := lookupProduct(ctx, app, args[0], cartAddOffline, cartAddName, cartAddPrice)
	if err != nil {
		return err
	}
	if err := domain.ValidateVariantSelection(product, selections); err != nil {
		return err
	}
	if err := app.Cart().AddToCart(product, cartAddQty, selections); err != nil {
		return err
	}
	if err := app.Settle(ctx); err != nil {
		return err
	}

	itemID := domain.CartItemID(product.ID, selections)
	item, _ := app.Cart().Item(itemID)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: quantity %d\n", itemID, item.Quantity)
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runCartRm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if _, ok := app.Cart().Item(args[0]); !ok {
		return fmt.Errorf("no cart line %q", args[0])
	}
	app.Cart().RemoveFromCart(args[0])
	if err := app.Settle(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runCartSet(app *appctx.App, cmd *cobra.Command, args []string) error {
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[1], err)
	}
	if _, ok := app.Cart().Item(args[0]); !ok {
		return fmt.Errorf("no cart line %q", args[0])
	}
	app.Cart().UpdateQuantity(args[0], qty)
	if err := app.Settle(cmd.Context()); err != nil {
		return err
	}
	if qty <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: quantity %d\n", args[0], qty)
	}
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runCartClear(app *appctx.App, cmd *cobra.Command, args []string) error {
	app.Cart().ClearCart()
	if err := app.Settle(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cart cleared")
	reportSync(app, cmd.ErrOrStderr())
	return nil
}

func runCartLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	return app.Out.Cart(app.Cart().Snapshot())
}
