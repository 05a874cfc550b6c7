package printing

import (
	_ "embed"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/delivery_note_a4.html
var deliveryNoteTemplate string

// NoteItem is one line of the delivery note table
type NoteItem struct {
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

// NoteData carries everything the delivery note template binds.
// Items must already be truncated by the caller; OmittedItems holds
// how many lines were cut so the note can say so.
type NoteData struct {
	CompanyName  string
	Code         string
	OrderID      int64
	CustomerCode string
	CustomerName string
	Warehouse    string
	OrderDate    time.Time
	IssuedAt     time.Time
	Items        []NoteItem
	OmittedItems int
	Total        decimal.Decimal
	// QRImage is a PNG data URI produced by QRCodeDataURI
	QRImage    string
	ConfirmURL string
}

// RenderDeliveryNote renders the embedded A4 delivery note template
func (e *TemplateEngine) RenderDeliveryNote(data *NoteData) (string, error) {
	return e.RenderString("delivery_note_a4", deliveryNoteTemplate, data)
}
