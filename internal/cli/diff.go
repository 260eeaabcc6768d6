package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/cartsync/internal/cli/appctx"
	"github.com/lherron/cartsync/internal/domain"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the local cart and wishlist with the signed-in account",
	Long: `Fetches the account's saved cart and wishlist and prints a unified
diff against the local copies. Lines are compared in sorted order, so a
reordering alone is not a difference.

Examples:
  cartsync diff
  cartsync diff -o json`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDiff),
}

var diffUnified int

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().IntVar(&diffUnified, "unified", 3, "Lines of unified context")
}

// syncDiff is the comparison of one user's local and remote collections.
type syncDiff struct {
	UserID   string `json:"userId" yaml:"user_id"`
	Cart     string `json:"cart,omitempty" yaml:"cart,omitempty"`
	Wishlist string `json:"wishlist,omitempty" yaml:"wishlist,omitempty"`
	InSync   bool   `json:"inSync" yaml:"in_sync"`
}

func runDiff(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user := app.Session.Current()
	if !user.Present() {
		return fmt.Errorf("not signed in; run 'cartsync login <user-id>' first")
	}

	remoteCart, err := app.Remote.FetchCart(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote cart: %w", err)
	}
	remoteWishlist, err := app.Remote.FetchWishlist(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote wishlist: %w", err)
	}

	result, err := compareCollections(user.UserID,
		domain.CartLines(app.Cart().Items()), remoteCart.Items,
		domain.ProductIDs(app.Wishlist().Items()), remoteWishlist.ProductIDs,
		diffUnified)
	if err != nil {
		return err
	}

	if ok, err := app.Out.Structured(result); ok {
		return err
	}
	out := cmd.OutOrStdout()
	if result.InSync {
		fmt.Fprintf(out, "local cart and wishlist match %s\n", user.UserID)
		return nil
	}
	fmt.Fprint(out, result.Cart)
	fmt.Fprint(out, result.Wishlist)
	return nil
}

func compareCollections(userID string, localCart, remoteCart []domain.CartLine, localWishlist, remoteWishlist []string, contextLines int) (syncDiff, error) {
	cartDiff, err := unifiedDiff(cartText(localCart), cartText(remoteCart), "local/cart", "remote/cart", contextLines)
	if err != nil {
		return syncDiff{}, err
	}
	wishlistDiff, err := unifiedDiff(idText(localWishlist), idText(remoteWishlist), "local/wishlist", "remote/wishlist", contextLines)
	if err != nil {
		return syncDiff{}, err
	}
	return syncDiff{
		UserID:   userID,
		Cart:     cartDiff,
		Wishlist: wishlistDiff,
		InSync:   cartDiff == "" && wishlistDiff == "",
	}, nil
}

func unifiedDiff(a, b, fromFile, toFile string, contextLines int) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  contextLines,
	})
}

// cartText renders one line per merge key, with variant keys in canonical
// form, sorted.
func cartText(lines []domain.CartLine) string {
	qty := make(map[string]int, len(lines))
	for _, l := range lines {
		key := domain.CartItemID(l.ProductID, domain.ParseVariantKey(l.VariantKey))
		qty[key] += l.Quantity
	}
	keys := make([]string, 0, len(qty))
	for k := range qty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + " x" + strconv.Itoa(qty[k]) + "\n")
	}
	return b.String()
}

func idText(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var b strings.Builder
	for _, id := range sorted {
		b.WriteString(id + "\n")
	}
	return b.String()
}
