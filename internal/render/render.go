// Package render writes CLI output as a table, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lherron/cartsync/internal/domain"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name; "" selects FormatTable.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be one of: table, json, yaml", s)
	}
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	format Format
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, format Format) *Renderer {
	return &Renderer{writer: writer, format: format}
}

// Structured writes data as JSON or YAML. It reports false in table mode,
// leaving the caller to draw a table.
func (r *Renderer) Structured(data interface{}) (bool, error) {
	switch r.format {
	case FormatJSON:
		encoder := json.NewEncoder(r.writer)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(data)
	case FormatYAML:
		encoder := yaml.NewEncoder(r.writer)
		defer encoder.Close()
		return true, encoder.Encode(data)
	default:
		return false, nil
	}
}

// Cart renders the cart lines and totals.
func (r *Renderer) Cart(cart domain.Cart) error {
	if ok, err := r.Structured(cart); ok {
		return err
	}
	if len(cart.Items) == 0 {
		_, err := fmt.Fprintln(r.writer, "cart is empty")
		return err
	}
	rows := make([][]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		rows = append(rows, []string{
			item.ID,
			item.Product.Name,
			variants(item.SelectedVariants),
			strconv.Itoa(item.Quantity),
			money(item.Product.Price),
			money(item.Product.Price * float64(item.Quantity)),
		})
	}
	r.Table([]string{"ID", "PRODUCT", "VARIANTS", "QTY", "PRICE", "SUBTOTAL"}, rows)
	_, err := fmt.Fprintf(r.writer, "\n%d item(s), total %s\n", cart.TotalItems, money(cart.TotalPrice))
	return err
}

// Wishlist renders wishlist products.
func (r *Renderer) Wishlist(products []domain.Product) error {
	if ok, err := r.Structured(products); ok {
		return err
	}
	if len(products) == 0 {
		_, err := fmt.Fprintln(r.writer, "wishlist is empty")
		return err
	}
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		sale := ""
		if p.IsFlashSale {
			sale = "flash sale"
		}
		rows = append(rows, []string{p.ID, p.Name, money(p.Price), sale})
	}
	r.Table([]string{"ID", "PRODUCT", "PRICE", ""}, rows)
	return nil
}

// Events renders event log rows, newest first.
func (r *Renderer) Events(evs []domain.Event) error {
	if ok, err := r.Structured(evs); ok {
		return err
	}
	rows := make([][]string, 0, len(evs))
	for _, ev := range evs {
		user := ""
		if ev.UserID != nil {
			user = *ev.UserID
		}
		payload := ""
		if ev.Payload != nil {
			payload = *ev.Payload
		}
		rows = append(rows, []string{
			strconv.FormatInt(ev.ID, 10),
			ev.Timestamp.Local().Format(time.DateTime),
			ev.EventType,
			user,
			payload,
		})
	}
	r.Table([]string{"ID", "TIME", "EVENT", "USER", "PAYLOAD"}, rows)
	return nil
}

// Table renders rows as aligned columns under a header.
func (r *Renderer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	r.tableRow(headers, widths)
	r.tableSeparator(widths)
	for _, row := range rows {
		r.tableRow(row, widths)
	}
}

func (r *Renderer) tableRow(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i > 0 {
			b.WriteString("  ")
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
		} else {
			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}
	}
	fmt.Fprintln(r.writer, strings.TrimRight(b.String(), " "))
}

func (r *Renderer) tableSeparator(widths []int) {
	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width)
	}
	fmt.Fprintln(r.writer, strings.Join(parts, "  "))
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func variants(selections map[string]string) string {
	if len(selections) == 0 {
		return "-"
	}
	names := make([]string, 0, len(selections))
	for name := range selections {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+selections[name])
	}
	return strings.Join(parts, ",")
}
