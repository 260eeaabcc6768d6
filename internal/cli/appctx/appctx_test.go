package appctx

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/config"
	"github.com/lherron/cartsync/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBPath:         filepath.Join(t.TempDir(), "client.db"),
		APIURL:         "http://127.0.0.1:1/api/v1",
		RequestTimeout: time.Second,
		FetchFailure:   "abort",
		LogLevel:       "error",
		Output:         "table",
	}
}

func TestOpen_StatePersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Open(ctx, cfg, io.Discard, io.Discard, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, app.Sync)
	require.NoError(t, app.Cart().AddToCart(domain.Product{ID: "P1", Price: 5}, 2, nil))
	require.NoError(t, app.Wishlist().Add(domain.Product{ID: "W1"}))
	require.NoError(t, app.Session.SignIn(ctx, "u1"))
	require.NoError(t, app.Close(ctx))
	require.NoError(t, app.Close(ctx))

	app, err = Open(ctx, cfg, io.Discard, io.Discard, DefaultOptions())
	require.NoError(t, err)
	defer app.Close(ctx)
	assert.Equal(t, 2, app.Cart().ItemCount())
	assert.True(t, app.Wishlist().Contains("W1"))
	assert.Equal(t, "u1", app.Session.Current().UserID)

	evs, err := app.Events.List(ctx, "cart", 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "cart.item_added", evs[0].EventType)
}

func TestOpen_WithSyncStartsController(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, testConfig(t), io.Discard, io.Discard, WithSync())
	require.NoError(t, err)
	require.NotNil(t, app.Sync)
	assert.NoError(t, app.Settle(ctx))
	assert.False(t, app.Sync.Owner().Present())
	require.NoError(t, app.Close(ctx))
	assert.Nil(t, app.Sync)
}

func TestOpen_InvalidSettings(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Output = "xml"
	_, err := Open(ctx, cfg, io.Discard, io.Discard, DefaultOptions())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.APIURL = "ftp://example.com"
	_, err = Open(ctx, cfg, io.Discard, io.Discard, DefaultOptions())
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "")
	cmd.Flags().String("output", "", "")
	require.NoError(t, cmd.Flags().Set("db", "/tmp/other.db"))

	cfg := testConfig(t)
	applyFlags(cmd, cfg)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "table", cfg.Output)
}
