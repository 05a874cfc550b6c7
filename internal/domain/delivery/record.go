package delivery

import (
	"time"

	"github.com/erp/delivery/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Delivery-specific domain errors
var (
	ErrInvalidCode      = shared.NewDomainError("INVALID_CODE", "Delivery code not found or expired")
	ErrAlreadyConfirmed = shared.NewDomainError("ALREADY_CONFIRMED", "Delivery has already been confirmed")
)

// DeliveryItem is a snapshot of an order line item taken at artifact-build
// time. It is copied, not referenced: later edits to the order never change
// what the customer signed for.
type DeliveryItem struct {
	ID          uuid.UUID
	RecordID    uuid.UUID
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal // Quantity * UnitPrice
	CreatedAt   time.Time
}

// NewDeliveryItem creates a new delivery line item snapshot
func NewDeliveryItem(recordID uuid.UUID, productName string, quantity, unitPrice decimal.Decimal) (*DeliveryItem, error) {
	if productName == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	return &DeliveryItem{
		ID:          uuid.New(),
		RecordID:    recordID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    quantity.Mul(unitPrice),
		CreatedAt:   time.Now(),
	}, nil
}

// DeliveryRecord is the aggregate root for a single hand-off. It is created
// in the pending set when a delivery note is printed and moved exactly once
// to the confirmed set when the customer scans the code. Identity fields
// (Code, OrderID, Items, Total) are immutable after confirmation; only
// confirmation metadata is appended.
type DeliveryRecord struct {
	shared.BaseAggregateRoot
	Code         string
	OrderID      int64
	CustomerID   *uuid.UUID // nil when the order has no bound customer yet
	CustomerCode string
	CustomerName string
	Warehouse    string
	OrderDate    time.Time
	Items        []DeliveryItem
	Total        decimal.Decimal
	Confirmed    bool
	ConfirmedAt  *time.Time
	ConfirmedBy  *uuid.UUID
}

// NewDeliveryRecord creates a pending delivery record from an order snapshot
func NewDeliveryRecord(code string, orderID int64, customerCode, customerName, warehouse string, orderDate time.Time) (*DeliveryRecord, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Delivery code cannot be empty")
	}
	if orderID <= 0 {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID must be positive")
	}
	if customerCode == "" {
		customerCode = UnknownCustomerCode
	}

	return &DeliveryRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		OrderID:           orderID,
		CustomerCode:      customerCode,
		CustomerName:      customerName,
		Warehouse:         warehouse,
		OrderDate:         orderDate,
		Items:             make([]DeliveryItem, 0),
		Total:             decimal.Zero,
		Confirmed:         false,
	}, nil
}

// BindCustomer sets the intended confirming customer
func (r *DeliveryRecord) BindCustomer(customerID uuid.UUID) {
	r.CustomerID = &customerID
	r.UpdatedAt = time.Now()
}

// AddItem appends a line item snapshot and recomputes the total.
// Only allowed while the record is pending.
func (r *DeliveryRecord) AddItem(productName string, quantity, unitPrice decimal.Decimal) (*DeliveryItem, error) {
	if r.Confirmed {
		return nil, shared.ErrInvalidState
	}

	item, err := NewDeliveryItem(r.ID, productName, quantity, unitPrice)
	if err != nil {
		return nil, err
	}

	r.Items = append(r.Items, *item)
	r.recalculateTotal()
	r.UpdatedAt = time.Now()

	return &r.Items[len(r.Items)-1], nil
}

// recalculateTotal sums every line item, not just the ones a truncated
// printout displays
func (r *DeliveryRecord) recalculateTotal() {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Subtotal)
	}
	r.Total = total
}

// Confirm stamps the confirmation metadata. Set membership in the store is
// authoritative; this keeps the redundant flag consistent with it.
func (r *DeliveryRecord) Confirm(confirmedBy uuid.UUID, confirmedAt time.Time) error {
	if r.Confirmed {
		return ErrAlreadyConfirmed
	}
	if confirmedBy == uuid.Nil {
		return shared.NewDomainError("INVALID_CONFIRMER", "Confirming user cannot be empty")
	}

	r.Confirmed = true
	r.ConfirmedAt = &confirmedAt
	r.ConfirmedBy = &confirmedBy
	r.UpdatedAt = confirmedAt

	r.AddDomainEvent(NewDeliveryConfirmedEvent(r))
	return nil
}

// MatchesOrder cross-checks the order ID presented in the confirmation URL
// against the order the code was minted for
func (r *DeliveryRecord) MatchesOrder(orderID int64) bool {
	return r.OrderID == orderID
}

// Credits returns the per-line-item payloads for the reconciliation
// fallback path, one per item in order
func (r *DeliveryRecord) Credits() []ProductCredit {
	credits := make([]ProductCredit, 0, len(r.Items))
	for _, item := range r.Items {
		credits = append(credits, ProductCredit{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return credits
}
