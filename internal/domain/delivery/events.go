package delivery

import (
	"time"

	"github.com/erp/delivery/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeDeliveryRecord = "DeliveryRecord"

// Event type constants
const (
	EventTypeDeliveryNoteIssued   = "DeliveryNoteIssued"
	EventTypeDeliveryConfirmed    = "DeliveryConfirmed"
	EventTypeReconciliationFailed = "StockReconciliationFailed"
)

// DeliveryNoteIssuedEvent is raised when a printable delivery note is built
// and its pending record stored
type DeliveryNoteIssuedEvent struct {
	shared.BaseDomainEvent
	Code         string          `json:"code"`
	OrderID      int64           `json:"order_id"`
	CustomerCode string          `json:"customer_code"`
	Warehouse    string          `json:"warehouse"`
	Total        decimal.Decimal `json:"total"`
}

// NewDeliveryNoteIssuedEvent creates a new DeliveryNoteIssuedEvent
func NewDeliveryNoteIssuedEvent(record *DeliveryRecord) *DeliveryNoteIssuedEvent {
	return &DeliveryNoteIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDeliveryNoteIssued, AggregateTypeDeliveryRecord, record.ID),
		Code:            record.Code,
		OrderID:         record.OrderID,
		CustomerCode:    record.CustomerCode,
		Warehouse:       record.Warehouse,
		Total:           record.Total,
	}
}

// EventType returns the event type name
func (e *DeliveryNoteIssuedEvent) EventType() string {
	return EventTypeDeliveryNoteIssued
}

// DeliveryConfirmedEvent is raised when the pending record moves to the
// confirmed set
type DeliveryConfirmedEvent struct {
	shared.BaseDomainEvent
	Code        string     `json:"code"`
	OrderID     int64      `json:"order_id"`
	CustomerID  *uuid.UUID `json:"customer_id,omitempty"`
	ConfirmedBy uuid.UUID  `json:"confirmed_by"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

// NewDeliveryConfirmedEvent creates a new DeliveryConfirmedEvent
func NewDeliveryConfirmedEvent(record *DeliveryRecord) *DeliveryConfirmedEvent {
	e := &DeliveryConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDeliveryConfirmed, AggregateTypeDeliveryRecord, record.ID),
		Code:            record.Code,
		OrderID:         record.OrderID,
		CustomerID:      record.CustomerID,
	}
	if record.ConfirmedBy != nil {
		e.ConfirmedBy = *record.ConfirmedBy
	}
	if record.ConfirmedAt != nil {
		e.ConfirmedAt = *record.ConfirmedAt
	}
	return e
}

// EventType returns the event type name
func (e *DeliveryConfirmedEvent) EventType() string {
	return EventTypeDeliveryConfirmed
}

// ReconciliationFailedEvent is raised when the bulk crediting call and at
// least one per-line-item fallback call failed. The confirmation itself is
// never rolled back; this event is the durable signal that drives the retry
// worker. Credits holds only the line items still owed. Partial marks that
// other lines of the same delivery were already credited, in which case a
// bulk replay would credit them a second time and must not run.
type ReconciliationFailedEvent struct {
	shared.BaseDomainEvent
	Code       string          `json:"code"`
	OrderID    int64           `json:"order_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Credits    []ProductCredit `json:"credits"`
	Partial    bool            `json:"partial"`
	Reason     string          `json:"reason"`
}

// NewReconciliationFailedEvent creates a new ReconciliationFailedEvent
func NewReconciliationFailedEvent(record *DeliveryRecord, customerID uuid.UUID, credits []ProductCredit, partial bool, reason string) *ReconciliationFailedEvent {
	return &ReconciliationFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationFailed, AggregateTypeDeliveryRecord, record.ID),
		Code:            record.Code,
		OrderID:         record.OrderID,
		CustomerID:      customerID,
		Credits:         credits,
		Partial:         partial,
		Reason:          reason,
	}
}

// EventType returns the event type name
func (e *ReconciliationFailedEvent) EventType() string {
	return EventTypeReconciliationFailed
}
