package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lherron/cartsync/internal/cli/appctx"
	"github.com/lherron/cartsync/internal/domain"
)

// parseVariants turns repeated name=value flags into a selection map.
func parseVariants(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid variant %q: expected name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}

// lookupProduct fetches the product snapshot from the server. With offline
// set, a placeholder carrying only the id, name and price is used instead.
func lookupProduct(ctx context.Context, app *appctx.App, id string, offline bool, name string, price float64) (domain.Product, error) {
	if offline {
		if name == "" {
			name = id
		}
		return domain.Product{ID: id, Name: name, Price: price}, nil
	}
	p, err := app.Remote.Product(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to look up product %s: %w (use --offline to add without the server)", id, err)
	}
	return p, nil
}

// reportSync prints the controller's last error, if any, without failing the
// command: local state is authoritative and has already been saved.
func reportSync(app *appctx.App, w io.Writer) {
	if app.Sync == nil {
		return
	}
	if err := app.Sync.LastError(); err != nil {
		fmt.Fprintf(w, "warning: sync: %v\n", err)
	}
	if app.Sync.MergePending() {
		fmt.Fprintln(w, "warning: server data could not be merged; run 'cartsync retry'")
	}
}
