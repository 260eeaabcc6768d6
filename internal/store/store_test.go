package store

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/events"
	"github.com/lherron/cartsync/internal/kv"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, storage kv.Storage) *Store {
	t.Helper()
	s := New(Options{
		Storage: storage,
		Now:     func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { _ = s.Flush(context.Background()) })
	return s
}

func product(id string, price float64) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: price}
}

func requireTotalsConsistent(t *testing.T, c *CartStore) {
	t.Helper()
	snap := c.Snapshot()
	wantItems, wantPrice := 0, 0.0
	for _, item := range snap.Items {
		wantItems += item.Quantity
		wantPrice += item.Product.Price * float64(item.Quantity)
	}
	require.Equal(t, wantItems, snap.TotalItems)
	require.Equal(t, wantPrice, snap.TotalPrice)
}

func TestCart_AddMergesSameKey(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	p1 := product("P1", 10)

	require.NoError(t, s.Cart.AddToCart(p1, 2, map[string]string{"size": "M"}))
	require.NoError(t, s.Cart.AddToCart(p1, 1, map[string]string{"size": "M"}))

	items := s.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P1_size:M", items[0].ID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, fixedNow, items[0].DateAdded)
	assert.Equal(t, 3, s.Cart.ItemCount())
	assert.InDelta(t, 30.0, s.Cart.TotalPrice(), 0.001)
}

func TestCart_AddSumsRandomQuantities(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 20; run++ {
		s := newTestStore(t, kv.NewMemory())
		p := product("P", 2.5)
		total := 0
		n := rng.Intn(10) + 1
		for i := 0; i < n; i++ {
			q := rng.Intn(5) + 1
			total += q
			// Build the selection map in a random insertion order.
			sel := map[string]string{}
			if rng.Intn(2) == 0 {
				sel["color"] = "red"
				sel["size"] = "L"
			} else {
				sel["size"] = "L"
				sel["color"] = "red"
			}
			require.NoError(t, s.Cart.AddToCart(p, q, sel))
			requireTotalsConsistent(t, s.Cart)
		}
		items := s.Cart.Items()
		require.Len(t, items, 1)
		assert.Equal(t, total, items[0].Quantity)
	}
}

func TestCart_DifferentVariantsAreSeparateLines(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	p := product("P1", 1)
	require.NoError(t, s.Cart.AddToCart(p, 1, map[string]string{"size": "M"}))
	require.NoError(t, s.Cart.AddToCart(p, 1, map[string]string{"size": "L"}))
	require.NoError(t, s.Cart.AddToCart(p, 1, nil))

	items := s.Cart.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"P1_size:M", "P1_size:L", "P1_"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestCart_AddRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	var vErr *domain.ValidationError
	assert.True(t, errors.As(s.Cart.AddToCart(product("P1", 1), 0, nil), &vErr))
	assert.True(t, errors.As(s.Cart.AddToCart(domain.Product{}, 1, nil), &vErr))
	assert.Empty(t, s.Cart.Items())
}

func TestCart_AddDoesNotAliasCallerSelection(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	sel := map[string]string{"size": "M"}
	require.NoError(t, s.Cart.AddToCart(product("P1", 1), 1, sel))
	sel["size"] = "XL"
	assert.Equal(t, "M", s.Cart.Items()[0].SelectedVariants["size"])
}

func TestCart_RemoveAndUpdate(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	require.NoError(t, s.Cart.AddToCart(product("A", 3), 1, nil))
	require.NoError(t, s.Cart.AddToCart(product("B", 4), 2, nil))

	s.Cart.UpdateQuantity("A_", 5)
	requireTotalsConsistent(t, s.Cart)
	item, ok := s.Cart.Item("A_")
	require.True(t, ok)
	assert.Equal(t, 5, item.Quantity)

	s.Cart.RemoveFromCart("missing")
	assert.Len(t, s.Cart.Items(), 2)

	s.Cart.RemoveFromCart("B_")
	requireTotalsConsistent(t, s.Cart)
	assert.Len(t, s.Cart.Items(), 1)
}

func TestCart_UpdateQuantityZeroEqualsRemove(t *testing.T) {
	build := func() *Store {
		s := newTestStore(t, kv.NewMemory())
		require.NoError(t, s.Cart.AddToCart(product("A", 3), 1, nil))
		require.NoError(t, s.Cart.AddToCart(product("B", 4), 2, map[string]string{"size": "S"}))
		return s
	}

	viaUpdate := build()
	viaRemove := build()
	viaUpdate.Cart.UpdateQuantity("B_size:S", 0)
	viaRemove.Cart.RemoveFromCart("B_size:S")
	assert.Equal(t, viaRemove.Cart.Snapshot(), viaUpdate.Cart.Snapshot())

	viaNegative := build()
	viaNegative.Cart.UpdateQuantity("B_size:S", -3)
	assert.Equal(t, viaRemove.Cart.Snapshot(), viaNegative.Cart.Snapshot())
}

func TestCart_ClearPersistsEmptyState(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem)
	require.NoError(t, s.Cart.AddToCart(product("A", 3), 1, nil))
	s.Cart.ClearCart()
	require.NoError(t, s.Flush(ctx))

	var saved domain.Cart
	ok, err := kv.LoadJSON(ctx, mem, CartKey, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, saved.Items)
	assert.Zero(t, saved.TotalItems)
	assert.Zero(t, saved.TotalPrice)
}

func TestCart_WriteThroughAndReload(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem)
	require.NoError(t, s.Cart.AddToCart(product("A", 1.5), 2, map[string]string{"size": "M"}))
	require.NoError(t, s.Cart.AddToCart(product("B", 2), 1, nil))
	require.NoError(t, s.Flush(ctx))

	reloaded := newTestStore(t, mem)
	reloaded.Cart.LoadCart(ctx)
	assert.Equal(t, s.Cart.Snapshot(), reloaded.Cart.Snapshot())
	requireTotalsConsistent(t, reloaded.Cart)
}

func TestCart_LoadRecomputesTotals(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	corrupt := domain.Cart{
		Items:      []domain.CartItem{{ID: "A_", Product: product("A", 2), Quantity: 3}},
		TotalItems: 99,
		TotalPrice: 1234,
	}
	data, err := json.Marshal(corrupt)
	require.NoError(t, err)
	require.NoError(t, mem.Save(ctx, CartKey, data))

	s := newTestStore(t, mem)
	s.Cart.LoadCart(ctx)
	snap := s.Cart.Snapshot()
	assert.Equal(t, 3, snap.TotalItems)
	assert.InDelta(t, 6.0, snap.TotalPrice, 0.001)
}

func TestCart_LoadWithoutSnapshotKeepsDefault(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	s.Cart.LoadCart(context.Background())
	assert.Empty(t, s.Cart.Items())
	assert.NotNil(t, s.Cart.Items())
}

func TestCart_LoadDoesNotClobberConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, kv.SaveJSON(ctx, mem, CartKey, domain.NewCart([]domain.CartItem{
		{ID: "OLD_", Product: product("OLD", 1), Quantity: 1},
	})))

	s := newTestStore(t, mem)
	mem.BeforeLoad = func(string) {
		// A user action lands while the snapshot is being read.
		require.NoError(t, s.Cart.AddToCart(product("NEW", 1), 1, nil))
	}
	s.Cart.LoadCart(ctx)

	items := s.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "NEW_", items[0].ID)
}

func TestCart_LoadFlushesPendingWrites(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	release := make(chan struct{})
	mem.BeforeSave = func(string, []byte) { <-release }

	s := newTestStore(t, mem)
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	s.Cart.LoadCart(ctx)

	items := s.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "A_", items[0].ID)
}

func TestCart_PersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	mem.SetFailures(errors.New("disk full"), nil, nil)

	s := newTestStore(t, mem)
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 2, nil))
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, 2, s.Cart.ItemCount())
	assert.Zero(t, mem.Saves())
}

func TestCart_NewestWriteWins(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem)
	mem.BeforeSave = func(string, []byte) { time.Sleep(2 * time.Millisecond) }

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	}
	require.NoError(t, s.Flush(ctx))

	var saved domain.Cart
	ok, err := kv.LoadJSON(ctx, mem, CartKey, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, saved.Items, 1)
	assert.Equal(t, 20, saved.Items[0].Quantity)
	assert.Less(t, mem.Saves(), 20)
}

func TestCart_SetChangeCallbackReplaces(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())

	var first, second [][]domain.CartItem
	s.Cart.SetChangeCallback(func(items []domain.CartItem) { first = append(first, items) })
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))

	s.Cart.SetChangeCallback(func(items []domain.CartItem) { second = append(second, items) })
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	s.Cart.ClearCart()

	require.Len(t, first, 1)
	require.Len(t, second, 2)
	assert.Equal(t, 2, second[0][0].Quantity)
	assert.Empty(t, second[1])

	s.Cart.SetChangeCallback(nil)
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	assert.Len(t, second, 2)
}

func TestCart_BusSubscribersCoexistWithCallback(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	var busOps []string
	s.Bus().Subscribe(func(c events.Change) { busOps = append(busOps, string(c.Resource)+"."+c.Op) })

	calls := 0
	s.Cart.SetChangeCallback(func([]domain.CartItem) { calls++ })
	s.Cart.SetChangeCallback(func([]domain.CartItem) { calls++ })

	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	require.NoError(t, s.Wishlist.Add(product("W", 1)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"cart.item_added", "wishlist.item_added"}, busOps)
}

func TestCart_NoOpsDoNotNotify(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 2, nil))

	calls := 0
	s.Cart.SetChangeCallback(func([]domain.CartItem) { calls++ })
	s.Cart.RemoveFromCart("missing")
	s.Cart.UpdateQuantity("missing", 4)
	assert.Zero(t, calls)
}

func TestCart_UpdateToSameQuantityPersistsAndNotifies(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem)
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 2, nil))
	require.NoError(t, s.Flush(context.Background()))
	saves := mem.Saves()

	var got [][]domain.CartItem
	s.Cart.SetChangeCallback(func(items []domain.CartItem) { got = append(got, items) })
	s.Cart.UpdateQuantity("A_", 2)
	require.NoError(t, s.Flush(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0][0].Quantity)
	assert.Greater(t, mem.Saves(), saves)
}

func TestCart_TotalPriceIsExactSum(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	require.NoError(t, s.Cart.AddToCart(product("A", 0.1), 3, nil))
	require.NoError(t, s.Cart.AddToCart(product("B", 1.004), 1, nil))
	require.NoError(t, s.Cart.AddToCart(product("C", 19.99), 7, map[string]string{"size": "M"}))

	want := 0.0
	for _, item := range s.Cart.Items() {
		want += item.Product.Price * float64(item.Quantity)
	}
	assert.Equal(t, want, s.Cart.TotalPrice())
	assert.Equal(t, want, s.Cart.Snapshot().TotalPrice)
}

func TestCart_AddRejectsAmbiguousVariantSelection(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	p := product("P", 1)
	require.NoError(t, s.Cart.AddToCart(p, 1, map[string]string{"a": "1", "b": "2"}))

	var vErr *domain.ValidationError
	err := s.Cart.AddToCart(p, 1, map[string]string{"a": "1|b:2"})
	require.True(t, errors.As(err, &vErr))
	assert.True(t, errors.As(s.Cart.AddToCart(p, 1, map[string]string{"a:b": "1"}), &vErr))

	items := s.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, items[0].SelectedVariants)
}

func TestWishlist_AddIsIdempotent(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	p := product("P1", 5)

	require.NoError(t, s.Wishlist.Add(p))
	require.NoError(t, s.Wishlist.Add(p))

	items := s.Wishlist.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P1", items[0].ID)
	assert.True(t, s.Wishlist.Contains("P1"))
	assert.False(t, s.Wishlist.Contains("P2"))
}

func TestWishlist_RemoveClearAndReload(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newTestStore(t, mem)
	require.NoError(t, s.Wishlist.Add(product("A", 1)))
	require.NoError(t, s.Wishlist.Add(product("B", 1)))
	require.NoError(t, s.Wishlist.Add(product("C", 1)))

	s.Wishlist.Remove("B")
	s.Wishlist.Remove("missing")
	require.NoError(t, s.Flush(ctx))

	reloaded := newTestStore(t, mem)
	reloaded.Wishlist.Load(ctx)
	assert.Equal(t, []string{"A", "C"}, domain.ProductIDs(reloaded.Wishlist.Items()))

	reloaded.Wishlist.Clear()
	require.NoError(t, reloaded.Flush(ctx))
	again := newTestStore(t, mem)
	again.Wishlist.Load(ctx)
	assert.Zero(t, again.Wishlist.Len())
}

func TestWishlist_ReplaceDedupes(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	s.Wishlist.Replace([]domain.Product{product("A", 1), product("B", 1), {ID: "A", Name: "dup"}})
	items := s.Wishlist.Items()
	assert.Equal(t, []string{"A", "B"}, domain.ProductIDs(items))
	assert.Equal(t, "Product A", items[0].Name)
}

func TestWishlist_SetChangeCallback(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	var got [][]domain.Product
	s.Wishlist.SetChangeCallback(func(items []domain.Product) { got = append(got, items) })

	require.NoError(t, s.Wishlist.Add(product("A", 1)))
	require.NoError(t, s.Wishlist.Add(product("A", 1)))
	s.Wishlist.Remove("A")
	require.NoError(t, s.Cart.AddToCart(product("C", 1), 1, nil))

	require.Len(t, got, 2)
	assert.Len(t, got[0], 1)
	assert.Empty(t, got[1])
}

func TestStore_LoadFailureIsLogged(t *testing.T) {
	mem := kv.NewMemory()
	mem.SetFailures(nil, errors.New("corrupt"), nil)
	s := newTestStore(t, mem)
	s.Load(context.Background())
	assert.True(t, s.Empty())
}

func TestStore_ClearEmptiesBoth(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	require.NoError(t, s.Wishlist.Add(product("B", 1)))
	assert.False(t, s.Empty())
	s.Clear()
	assert.True(t, s.Empty())
}

func TestCart_ConcurrentCommitsPublishInOrder(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	var lens []int
	s.Cart.SetChangeCallback(func(items []domain.CartItem) { lens = append(lens, len(items)) })

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Cart.AddToCart(product(strconv.Itoa(i), 1), 1, nil))
		}(i)
	}
	wg.Wait()

	require.Len(t, lens, n)
	for i, l := range lens {
		assert.Equal(t, i+1, l)
	}
}

func TestStore_OriginIsPublished(t *testing.T) {
	s := newTestStore(t, kv.NewMemory())
	var got []string
	s.Bus().Subscribe(func(c events.Change) { got = append(got, string(c.Resource)+"."+c.Op+"@"+c.Origin) })

	require.NoError(t, s.Cart.AddToCart(product("A", 1), 1, nil))
	s.Cart.ReplaceAs("sync", nil)
	s.Wishlist.ReplaceAs("sync", []domain.Product{product("W", 1)})
	s.ClearAs("sync")

	assert.Equal(t, []string{
		"cart.item_added@",
		"cart.replaced@sync",
		"wishlist.replaced@sync",
		"cart.cleared@sync",
		"wishlist.cleared@sync",
	}, got)
}
