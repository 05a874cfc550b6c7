package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.InventoryConfig{
		BaseURL:     serverURL,
		APIKey:      "test-key",
		CallTimeout: 2 * time.Second,
	})
}

func TestClient_AddFromOrder(t *testing.T) {
	t.Run("posts bulk credit request", func(t *testing.T) {
		customerID := uuid.New()
		var received creditOrderRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/stock/credit-order", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		err := newTestClient(server.URL).AddFromOrder(context.Background(), 42, customerID)

		require.NoError(t, err)
		assert.Equal(t, int64(42), received.OrderID)
		assert.Equal(t, customerID.String(), received.CustomerID)
	})

	t.Run("reports server errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := newTestClient(server.URL).AddFromOrder(context.Background(), 42, uuid.New())

		assert.ErrorIs(t, err, ErrLedgerRequestFailed)
	})

	t.Run("times out instead of waiting", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
		}))
		defer server.Close()

		client := NewClient(config.InventoryConfig{
			BaseURL:     server.URL,
			CallTimeout: 50 * time.Millisecond,
		})

		start := time.Now()
		err := client.AddFromOrder(context.Background(), 42, uuid.New())

		assert.ErrorIs(t, err, ErrLedgerUnavailable)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("reports connection failures", func(t *testing.T) {
		// Closed server, connection refused
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		err := newTestClient(server.URL).AddFromOrder(context.Background(), 42, uuid.New())

		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})
}

func TestClient_AddProduct(t *testing.T) {
	t.Run("posts single line credit", func(t *testing.T) {
		customerID := uuid.New()
		var received creditProductRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/stock/credit-product", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		credit := delivery.ProductCredit{
			ProductName: "Botella 20L",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.NewFromInt(500),
		}
		err := newTestClient(server.URL).AddProduct(context.Background(), customerID, credit)

		require.NoError(t, err)
		assert.Equal(t, "Botella 20L", received.ProductName)
		assert.True(t, received.Quantity.Equal(decimal.NewFromInt(2)))
		assert.Equal(t, customerID.String(), received.CustomerID)
	})

	t.Run("reports rejection of a single line", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		credit := delivery.ProductCredit{
			ProductName: "Botella 12L",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(350),
		}
		err := newTestClient(server.URL).AddProduct(context.Background(), uuid.New(), credit)

		assert.ErrorIs(t, err, ErrLedgerRequestFailed)
	})
}
