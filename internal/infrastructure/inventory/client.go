package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 1 * 1024 * 1024 // 1MB max response

// Common errors
var (
	ErrLedgerUnavailable   = errors.New("stock ledger unavailable")
	ErrLedgerRequestFailed = errors.New("stock ledger request failed")
)

// Client is an HTTP client for the stock ledger service. It implements
// StockReconciler; every call is bounded by the configured timeout and a
// timeout counts as a failure, never as an open-ended wait.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new stock ledger client
func NewClient(cfg config.InventoryConfig) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// creditOrderRequest credits the customer's returnable stock for every item
// of a delivered order in one call
type creditOrderRequest struct {
	OrderID    int64  `json:"orderId"`
	CustomerID string `json:"customerId"`
}

// creditProductRequest credits a single product line
type creditProductRequest struct {
	CustomerID  string          `json:"customerId"`
	ProductName string          `json:"productName"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// AddFromOrder credits the customer's stock ledger with every item of the
// order in a single bulk call
func (c *Client) AddFromOrder(ctx context.Context, orderID int64, customerID uuid.UUID) error {
	payload := creditOrderRequest{
		OrderID:    orderID,
		CustomerID: customerID.String(),
	}
	return c.post(ctx, "/api/v1/stock/credit-order", payload)
}

// AddProduct credits a single product line on the customer's stock ledger.
// Used as the per-item fallback when the bulk call fails.
func (c *Client) AddProduct(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error {
	payload := creditProductRequest{
		CustomerID:  customerID.String(),
		ProductName: credit.ProductName,
		Quantity:    credit.Quantity,
		UnitPrice:   credit.UnitPrice,
	}
	return c.post(ctx, "/api/v1/stock/credit-product", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stock ledger: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("stock ledger: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize)); err != nil {
		return fmt.Errorf("stock ledger: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrLedgerRequestFailed, resp.StatusCode)
	}

	return nil
}

// Ensure Client implements StockReconciler
var _ delivery.StockReconciler = (*Client)(nil)
