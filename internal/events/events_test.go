package events_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/db"
	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := events.NewBus()
	var got []string
	bus.Subscribe(func(c events.Change) { got = append(got, "a:"+c.Op) })
	bus.Subscribe(func(c events.Change) { got = append(got, "b:"+c.Op) })

	bus.Publish(events.Change{Resource: domain.ResourceCart, Op: "add"})
	assert.Equal(t, []string{"a:add", "b:add"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := events.NewBus()
	calls := 0
	unsub := bus.Subscribe(func(events.Change) { calls++ })
	other := 0
	bus.Subscribe(func(events.Change) { other++ })

	bus.Publish(events.Change{})
	unsub()
	unsub()
	bus.Publish(events.Change{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_HandlerMaySubscribe(t *testing.T) {
	bus := events.NewBus()
	bus.Subscribe(func(events.Change) {
		bus.Subscribe(func(events.Change) {})
	})
	bus.Publish(events.Change{})
	assert.Equal(t, 2, bus.Len())
}

func TestWriter_LogChangeAndList(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenMigrated(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	w := events.NewWriter(database.DB)
	items := []domain.CartItem{{
		ID:               "P1_size:M",
		Product:          domain.Product{ID: "P1", Price: 5},
		Quantity:         3,
		SelectedVariants: map[string]string{"size": "M"},
	}}
	require.NoError(t, w.LogChange(ctx, events.Change{Resource: domain.ResourceCart, Op: "item_added", Cart: items}))
	require.NoError(t, w.LogChange(ctx, events.Change{Resource: domain.ResourceWishlist, Op: "item_added", Wishlist: []domain.Product{{ID: "P2"}}}))
	require.NoError(t, w.LogTransition(ctx, "login", domain.Guest, domain.User("u1"), "uploaded"))

	all, err := w.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "session.login", all[0].EventType)
	require.NotNil(t, all[0].UserID)
	assert.Equal(t, "u1", *all[0].UserID)

	carts, err := w.List(ctx, "cart", 10)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, "cart.item_added", carts[0].EventType)

	var payload struct {
		Items      []domain.CartLine `json:"items"`
		TotalItems int               `json:"total_items"`
	}
	require.NotNil(t, carts[0].Payload)
	require.NoError(t, json.Unmarshal([]byte(*carts[0].Payload), &payload))
	assert.Equal(t, 3, payload.TotalItems)
	assert.Equal(t, "size:M", payload.Items[0].VariantKey)
}
