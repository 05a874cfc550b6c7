package models

import (
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingDeliveryModel is the persistence model for delivery records awaiting
// confirmation. Membership in this table is what makes a code valid.
type PendingDeliveryModel struct {
	AggregateModel
	Code         string              `gorm:"type:varchar(100);not null;uniqueIndex"`
	OrderID      int64               `gorm:"not null;index"`
	CustomerID   *uuid.UUID          `gorm:"type:uuid;index"`
	CustomerCode string              `gorm:"type:varchar(50);not null"`
	CustomerName string              `gorm:"type:varchar(200)"`
	Warehouse    string              `gorm:"type:varchar(100)"`
	OrderDate    time.Time           `gorm:"not null"`
	Items        []DeliveryItemModel `gorm:"foreignKey:RecordID;references:ID"`
	Total        decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (PendingDeliveryModel) TableName() string {
	return "pending_deliveries"
}

// ToDomain converts the persistence model to a domain DeliveryRecord
func (m *PendingDeliveryModel) ToDomain() *delivery.DeliveryRecord {
	record := &delivery.DeliveryRecord{
		Code:         m.Code,
		OrderID:      m.OrderID,
		CustomerID:   m.CustomerID,
		CustomerCode: m.CustomerCode,
		CustomerName: m.CustomerName,
		Warehouse:    m.Warehouse,
		OrderDate:    m.OrderDate,
		Total:        m.Total,
		Confirmed:    false,
		Items:        make([]delivery.DeliveryItem, len(m.Items)),
	}
	m.PopulateAggregateRoot(&record.BaseAggregateRoot)
	for i, item := range m.Items {
		record.Items[i] = *item.ToDomain()
	}
	return record
}

// FromDomain populates the persistence model from a domain DeliveryRecord
func (m *PendingDeliveryModel) FromDomain(r *delivery.DeliveryRecord) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.Code = r.Code
	m.OrderID = r.OrderID
	m.CustomerID = r.CustomerID
	m.CustomerCode = r.CustomerCode
	m.CustomerName = r.CustomerName
	m.Warehouse = r.Warehouse
	m.OrderDate = r.OrderDate
	m.Total = r.Total
	m.Items = make([]DeliveryItemModel, len(r.Items))
	for i, item := range r.Items {
		m.Items[i] = *DeliveryItemModelFromDomain(&item)
	}
}

// PendingDeliveryModelFromDomain creates a new persistence model from a domain DeliveryRecord
func PendingDeliveryModelFromDomain(r *delivery.DeliveryRecord) *PendingDeliveryModel {
	m := &PendingDeliveryModel{}
	m.FromDomain(r)
	return m
}

// ConfirmedDeliveryModel is the persistence model for confirmed hand-offs.
// Rows arrive here exactly once, by atomic move from pending_deliveries.
type ConfirmedDeliveryModel struct {
	AggregateModel
	Code         string              `gorm:"type:varchar(100);not null;uniqueIndex"`
	OrderID      int64               `gorm:"not null;index"`
	CustomerID   *uuid.UUID          `gorm:"type:uuid;index"`
	CustomerCode string              `gorm:"type:varchar(50);not null"`
	CustomerName string              `gorm:"type:varchar(200)"`
	Warehouse    string              `gorm:"type:varchar(100)"`
	OrderDate    time.Time           `gorm:"not null"`
	Items        []DeliveryItemModel `gorm:"foreignKey:RecordID;references:ID"`
	Total        decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	ConfirmedAt  time.Time           `gorm:"not null;index"`
	ConfirmedBy  uuid.UUID           `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (ConfirmedDeliveryModel) TableName() string {
	return "confirmed_deliveries"
}

// ToDomain converts the persistence model to a domain DeliveryRecord
func (m *ConfirmedDeliveryModel) ToDomain() *delivery.DeliveryRecord {
	confirmedAt := m.ConfirmedAt
	confirmedBy := m.ConfirmedBy
	record := &delivery.DeliveryRecord{
		Code:         m.Code,
		OrderID:      m.OrderID,
		CustomerID:   m.CustomerID,
		CustomerCode: m.CustomerCode,
		CustomerName: m.CustomerName,
		Warehouse:    m.Warehouse,
		OrderDate:    m.OrderDate,
		Total:        m.Total,
		Confirmed:    true,
		ConfirmedAt:  &confirmedAt,
		ConfirmedBy:  &confirmedBy,
		Items:        make([]delivery.DeliveryItem, len(m.Items)),
	}
	m.PopulateAggregateRoot(&record.BaseAggregateRoot)
	for i, item := range m.Items {
		record.Items[i] = *item.ToDomain()
	}
	return record
}

// FromDomain populates the persistence model from a confirmed domain DeliveryRecord
func (m *ConfirmedDeliveryModel) FromDomain(r *delivery.DeliveryRecord) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.Code = r.Code
	m.OrderID = r.OrderID
	m.CustomerID = r.CustomerID
	m.CustomerCode = r.CustomerCode
	m.CustomerName = r.CustomerName
	m.Warehouse = r.Warehouse
	m.OrderDate = r.OrderDate
	m.Total = r.Total
	if r.ConfirmedAt != nil {
		m.ConfirmedAt = *r.ConfirmedAt
	}
	if r.ConfirmedBy != nil {
		m.ConfirmedBy = *r.ConfirmedBy
	}
	m.Items = make([]DeliveryItemModel, len(r.Items))
	for i, item := range r.Items {
		m.Items[i] = *DeliveryItemModelFromDomain(&item)
	}
}

// ConfirmedDeliveryModelFromDomain creates a new persistence model from a domain DeliveryRecord
func ConfirmedDeliveryModelFromDomain(r *delivery.DeliveryRecord) *ConfirmedDeliveryModel {
	m := &ConfirmedDeliveryModel{}
	m.FromDomain(r)
	return m
}

// DeliveryItemModel is the persistence model for delivery line item snapshots.
// Items are shared between the pending and confirmed tables via RecordID,
// which survives the move unchanged.
type DeliveryItemModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	RecordID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductName string          `gorm:"type:varchar(200);not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DeliveryItemModel) TableName() string {
	return "delivery_items"
}

// ToDomain converts the persistence model to a domain DeliveryItem
func (m *DeliveryItemModel) ToDomain() *delivery.DeliveryItem {
	return &delivery.DeliveryItem{
		ID:          m.ID,
		RecordID:    m.RecordID,
		ProductName: m.ProductName,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		Subtotal:    m.Subtotal,
		CreatedAt:   m.CreatedAt,
	}
}

// DeliveryItemModelFromDomain creates a new persistence model from a domain DeliveryItem
func DeliveryItemModelFromDomain(i *delivery.DeliveryItem) *DeliveryItemModel {
	return &DeliveryItemModel{
		ID:          i.ID,
		RecordID:    i.RecordID,
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice,
		Subtotal:    i.Subtotal,
		CreatedAt:   i.CreatedAt,
	}
}
