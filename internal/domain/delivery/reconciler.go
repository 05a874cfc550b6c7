package delivery

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductCredit is the per-line-item payload for the fallback crediting path
type ProductCredit struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// StockReconciler credits a confirmed delivery into the customer's stock
// ledger. It is implemented by an adapter for the external inventory
// service. AddFromOrder is the preferred bulk path; AddProduct is the
// granular fallback, invoked once per line item when the bulk call fails.
// A timeout is treated the same as a failure.
type StockReconciler interface {
	AddFromOrder(ctx context.Context, orderID int64, customerID uuid.UUID) error
	AddProduct(ctx context.Context, customerID uuid.UUID, credit ProductCredit) error
}
