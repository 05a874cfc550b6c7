package printing

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplateEngine(t *testing.T) {
	engine := NewTemplateEngine()
	assert.NotNil(t, engine)
	assert.NotNil(t, engine.funcMap)
}

func TestTemplateEngine_GetFuncMap(t *testing.T) {
	engine := NewTemplateEngine()
	funcMap := engine.GetFuncMap()

	assert.NotNil(t, funcMap["formatMoney"])
	assert.NotNil(t, funcMap["formatMoneyRaw"])
	assert.NotNil(t, funcMap["formatDate"])
	assert.NotNil(t, funcMap["formatDateTime"])
	assert.NotNil(t, funcMap["formatDecimal"])
	assert.NotNil(t, funcMap["truncate"])
	assert.NotNil(t, funcMap["add"])
}

func TestTemplateEngine_RenderString_Simple(t *testing.T) {
	engine := NewTemplateEngine()

	html, err := engine.RenderString("t", `<p>Hola, {{.Name}}!</p>`, map[string]interface{}{
		"Name": "Mundo",
	})

	require.NoError(t, err)
	assert.Contains(t, html, "Hola, Mundo!")
}

func TestTemplateEngine_RenderString_EmptyContent(t *testing.T) {
	engine := NewTemplateEngine()

	_, err := engine.RenderString("t", "", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "template content is empty")
}

func TestTemplateEngine_RenderString_InvalidTemplate(t *testing.T) {
	engine := NewTemplateEngine()

	_, err := engine.RenderString("t", `{{.Name`, map[string]interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestTemplateEngine_RenderString_EscapesUserContent(t *testing.T) {
	engine := NewTemplateEngine()

	html, err := engine.RenderString("t", `<p>{{.Name}}</p>`, map[string]interface{}{
		"Name": `<script>alert("x")</script>`,
	})

	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.56", formatMoney(decimal.RequireFromString("1234.56")))
	assert.Equal(t, "$0.00", formatMoney(decimal.Zero))
	assert.Equal(t, "$1,000,000.00", formatMoney(int64(1000000)))
}

func TestFormatMoneyRaw(t *testing.T) {
	assert.Equal(t, "2,500.00", formatMoneyRaw(decimal.RequireFromString("2500")))
	assert.Equal(t, "-1,234.50", formatMoneyRaw(decimal.RequireFromString("-1234.5")))
	assert.Equal(t, "999.99", formatMoneyRaw("999.99"))
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-14", formatDate(ts))
	assert.Equal(t, "2025-03-14 09:30:00", formatDateTime(ts))
	assert.Equal(t, "", formatDate(time.Time{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 10))
	assert.Equal(t, "Botella...", truncate("Botella de agua 20L", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestRenderDeliveryNote(t *testing.T) {
	engine := NewTemplateEngine()

	qty := decimal.NewFromInt(2)
	price := decimal.RequireFromString("500")
	data := &NoteData{
		CompanyName:  "Distribuidora Central",
		Code:         "ENT-42-CLI-007-1756710000000-A3F7KQ",
		OrderID:      42,
		CustomerCode: "CLI-007",
		CustomerName: "Comercial El Faro",
		Warehouse:    "Bodega Norte",
		OrderDate:    time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC),
		IssuedAt:     time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
		Items: []NoteItem{
			{ProductName: "Botella 20L", Quantity: qty, UnitPrice: price, Subtotal: qty.Mul(price)},
		},
		Total:      decimal.RequireFromString("2500"),
		QRImage:    "data:image/png;base64,AAAA",
		ConfirmURL: "https://erp.example.com/confirmar-entrega?codigo=ENT-42-CLI-007-1756710000000-A3F7KQ&pedido=42",
	}

	html, err := engine.RenderDeliveryNote(data)
	require.NoError(t, err)

	assert.Contains(t, html, "ENT-42-CLI-007-1756710000000-A3F7KQ")
	assert.Contains(t, html, "Comercial El Faro")
	assert.Contains(t, html, "CLI-007")
	assert.Contains(t, html, "Pedido #42")
	assert.Contains(t, html, "Botella 20L")
	assert.Contains(t, html, "$2,500.00")
	assert.Contains(t, html, "data:image/png;base64,AAAA")
	assert.Contains(t, html, "confirmar-entrega")
	// No lines omitted, no truncation note
	assert.NotContains(t, html, "m&aacute;s. El total")

	// Footer restates the code and the issue timestamp
	assert.Contains(t, html, "Emitida 2025-09-01 10:00:00")
	assert.Equal(t, 2, strings.Count(html, "2025-09-01 10:00:00"),
		"issue timestamp appears in the header block and the footer")
}

func TestRenderDeliveryNote_OmittedItems(t *testing.T) {
	engine := NewTemplateEngine()

	items := make([]NoteItem, 12)
	for i := range items {
		items[i] = NoteItem{
			ProductName: "Producto",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(100),
			Subtotal:    decimal.NewFromInt(100),
		}
	}

	html, err := engine.RenderDeliveryNote(&NoteData{
		CompanyName:  "Distribuidora Central",
		Code:         "ENT-7-CLI-001-1756710000000-B2XK9M",
		OrderID:      7,
		CustomerCode: "CLI-001",
		CustomerName: "Cliente Grande",
		OrderDate:    time.Now(),
		IssuedAt:     time.Now(),
		Items:        items,
		OmittedItems: 5,
		Total:        decimal.NewFromInt(1700),
		QRImage:      "data:image/png;base64,AAAA",
		ConfirmURL:   "https://erp.example.com/confirmar-entrega?codigo=X&pedido=7",
	})
	require.NoError(t, err)

	assert.Equal(t, 12, strings.Count(html, "<tr>")-1) // header row plus item rows
	assert.Contains(t, html, "y 5 producto(s)")
	assert.Contains(t, html, "El total incluye todas las")
}
