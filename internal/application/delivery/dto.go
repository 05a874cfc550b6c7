package delivery

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/delivery/internal/domain/delivery"
)

// Caller identifies the authenticated user executing an operation
type Caller struct {
	UserID       uuid.UUID
	Username     string
	CustomerCode string
	Role         string
}

// BuildDeliveryNoteRequest carries the order snapshot for artifact building
type BuildDeliveryNoteRequest struct {
	OrderID      int64               `json:"order_id" binding:"required,gt=0"`
	CustomerID   *uuid.UUID          `json:"customer_id"`
	CustomerCode string              `json:"customer_code"`
	CustomerName string              `json:"customer_name"`
	Warehouse    string              `json:"warehouse"`
	OrderDate    time.Time           `json:"order_date"`
	Items        []DeliveryItemInput `json:"items" binding:"required,min=1,dive"`
}

// DeliveryItemInput is one order line in the build request
type DeliveryItemInput struct {
	ProductName string          `json:"product_name" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

// BuildDeliveryNoteResponse is the result of building a delivery note
type BuildDeliveryNoteResponse struct {
	Code         string          `json:"code"`
	RecordID     uuid.UUID       `json:"record_id"`
	OrderID      int64           `json:"order_id"`
	Total        decimal.Decimal `json:"total"`
	PDFPath      string          `json:"pdf_path"`
	PDFURL       string          `json:"pdf_url"`
	ConfirmURL   string          `json:"confirm_url"`
	RevokedCodes int64           `json:"revoked_codes"`
	IssuedAt     time.Time       `json:"issued_at"`
}

// DeliveryItemResponse is one credited line in resolve/confirm responses
type DeliveryItemResponse struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ResolveResponse classifies a (code, order) pair for the confirmation page
type ResolveResponse struct {
	State        string                 `json:"state"`
	Code         string                 `json:"code"`
	OrderID      int64                  `json:"order_id"`
	CustomerName string                 `json:"customer_name,omitempty"`
	Warehouse    string                 `json:"warehouse,omitempty"`
	Total        decimal.Decimal        `json:"total"`
	Items        []DeliveryItemResponse `json:"items,omitempty"`
	ConfirmedAt  *time.Time             `json:"confirmed_at,omitempty"`
}

// ConfirmRequest carries the scanned code and its order cross-check
type ConfirmRequest struct {
	Code    string `json:"code" binding:"required"`
	OrderID int64  `json:"order_id" binding:"required,gt=0"`
}

// Confirmation outcomes
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeAlreadyConfirmed = "already_confirmed"
)

// WarningReconciliationPending signals that stock crediting was deferred
// to the retry worker. The confirmation itself succeeded.
const WarningReconciliationPending = "reconciliation_pending"

// ConfirmResponse is the result of executing a confirmation
type ConfirmResponse struct {
	Outcome     string                 `json:"outcome"`
	Code        string                 `json:"code"`
	OrderID     int64                  `json:"order_id"`
	ConfirmedAt time.Time              `json:"confirmed_at"`
	Items       []DeliveryItemResponse `json:"items"`
	Warning     string                 `json:"warning,omitempty"`
}

// toItemResponses maps domain line items to response items
func toItemResponses(items []delivery.DeliveryItem) []DeliveryItemResponse {
	out := make([]DeliveryItemResponse, len(items))
	for i, item := range items {
		out[i] = DeliveryItemResponse{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		}
	}
	return out
}
