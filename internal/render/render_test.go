package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/domain"
)

func sampleCart() domain.Cart {
	return domain.NewCart([]domain.CartItem{
		{
			ID:               "P1_size:M",
			Product:          domain.Product{ID: "P1", Name: "Sneakers", Price: 56},
			Quantity:         3,
			SelectedVariants: map[string]string{"size": "M"},
		},
		{ID: "P2_", Product: domain.Product{ID: "P2", Name: "Tee", Price: 9.5}, Quantity: 1},
	})
}

func TestCart_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatTable).Cart(sampleCart()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "size=M")
	assert.Contains(t, lines[2], "168.00")
	assert.Equal(t, "4 item(s), total 177.50", lines[len(lines)-1])
}

func TestCart_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatTable).Cart(domain.NewCart(nil)))
	assert.Equal(t, "cart is empty\n", buf.String())
}

func TestCart_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatJSON).Cart(sampleCart()))

	var got domain.Cart
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 4, got.TotalItems)
	assert.Len(t, got.Items, 2)
}

func TestWishlist_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatYAML).Wishlist([]domain.Product{{ID: "W1", Name: "Boots"}}))
	assert.Contains(t, buf.String(), "id: W1")
	assert.Contains(t, buf.String(), "name: Boots")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)
	f, err = ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
