package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepository is a mock implementation for testing
type mockOutboxRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *mockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusPending {
			result = append(result, e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before) {
			result = append(result, e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, e := range r.entries {
		if e.Status == shared.OutboxStatusSent && e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			delete(r.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// mockReconciler is a mock StockReconciler for testing
type mockReconciler struct {
	mu             sync.Mutex
	addFromOrderFn func(ctx context.Context, orderID int64, customerID uuid.UUID) error
	addProductFn   func(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error
	bulkCalls      int
	productCalls   int
}

func (m *mockReconciler) AddFromOrder(ctx context.Context, orderID int64, customerID uuid.UUID) error {
	m.mu.Lock()
	m.bulkCalls++
	m.mu.Unlock()
	if m.addFromOrderFn != nil {
		return m.addFromOrderFn(ctx, orderID, customerID)
	}
	return nil
}

func (m *mockReconciler) AddProduct(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error {
	m.mu.Lock()
	m.productCalls++
	m.mu.Unlock()
	if m.addProductFn != nil {
		return m.addProductFn(ctx, customerID, credit)
	}
	return nil
}

// mockIdempotencyStore is an in-memory IdempotencyStore for testing
type mockIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{keys: make(map[string]bool)}
}

func (s *mockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *mockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *mockIdempotencyStore) Close() error { return nil }

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newFailedEntry(t *testing.T, credits int) (*shared.OutboxEntry, *delivery.ReconciliationFailedEvent) {
	record, err := delivery.NewDeliveryRecord(
		"ENT-42-CLI-007-1756710000000-A3F7KQ", 42, "CLI-007", "Cliente Siete", "Central", time.Now(),
	)
	require.NoError(t, err)
	for i := 0; i < credits; i++ {
		_, err := record.AddItem("Botella 20L", mustDecimal(t, "2"), mustDecimal(t, "500"))
		require.NoError(t, err)
	}

	event := delivery.NewReconciliationFailedEvent(record, uuid.New(), record.Credits(), false, "inventory unavailable")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return shared.NewOutboxEntry(event, payload), event
}

// newPartialEntry builds an entry whose delivery already had some lines
// credited inline, leaving only the given credits owed
func newPartialEntry(t *testing.T, owed int) (*shared.OutboxEntry, *delivery.ReconciliationFailedEvent) {
	record, err := delivery.NewDeliveryRecord(
		"ENT-42-CLI-007-1756710000000-A3F7KQ", 42, "CLI-007", "Cliente Siete", "Central", time.Now(),
	)
	require.NoError(t, err)
	for i := 0; i < owed+1; i++ {
		_, err := record.AddItem("Botella 20L", mustDecimal(t, "2"), mustDecimal(t, "500"))
		require.NoError(t, err)
	}

	event := delivery.NewReconciliationFailedEvent(record, uuid.New(), record.Credits()[:owed], true, "line rejected")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return shared.NewOutboxEntry(event, payload), event
}

func newTestWorker(repo shared.OutboxRepository, reconciler delivery.StockReconciler, store shared.IdempotencyStore) *ReconciliationWorker {
	return NewReconciliationWorker(repo, reconciler, store, DefaultReconciliationWorkerConfig(), zap.NewNop())
}

func TestReconciliationWorker_ReplaysBulkCredit(t *testing.T) {
	repo := newMockOutboxRepository()
	reconciler := &mockReconciler{}
	store := newMockIdempotencyStore()
	worker := newTestWorker(repo, reconciler, store)

	entry, _ := newFailedEntry(t, 2)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	assert.Equal(t, 1, reconciler.bulkCalls)
	assert.Equal(t, 0, reconciler.productCalls, "fallback should not run when bulk succeeds")
	assert.Equal(t, shared.OutboxStatusSent, repo.entries[entry.ID].Status)

	processed, err := store.IsProcessed(context.Background(), entry.EventID.String())
	require.NoError(t, err)
	assert.True(t, processed, "successful replay should be marked in the idempotency store")
}

func TestReconciliationWorker_FallsBackPerLine(t *testing.T) {
	repo := newMockOutboxRepository()
	reconciler := &mockReconciler{
		addFromOrderFn: func(ctx context.Context, orderID int64, customerID uuid.UUID) error {
			return errors.New("bulk endpoint down")
		},
	}
	worker := newTestWorker(repo, reconciler, newMockIdempotencyStore())

	entry, event := newFailedEntry(t, 3)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	assert.Equal(t, len(event.Credits), reconciler.productCalls)
	assert.Equal(t, shared.OutboxStatusSent, repo.entries[entry.ID].Status)
}

func TestReconciliationWorker_PartialEntrySkipsBulkReplay(t *testing.T) {
	repo := newMockOutboxRepository()
	reconciler := &mockReconciler{}
	worker := newTestWorker(repo, reconciler, newMockIdempotencyStore())

	entry, event := newPartialEntry(t, 2)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	// The bulk call credits the whole order and would double-credit the
	// lines already credited inline
	assert.Equal(t, 0, reconciler.bulkCalls)
	assert.Equal(t, len(event.Credits), reconciler.productCalls)
	assert.Equal(t, shared.OutboxStatusSent, repo.entries[entry.ID].Status)
}

func TestReconciliationWorker_ShrinksPayloadToUncreditedLines(t *testing.T) {
	repo := newMockOutboxRepository()
	var calls int
	reconciler := &mockReconciler{
		addFromOrderFn: func(ctx context.Context, orderID int64, customerID uuid.UUID) error {
			return errors.New("bulk endpoint down")
		},
		addProductFn: func(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error {
			calls++
			if calls == 2 {
				return errors.New("line rejected")
			}
			return nil
		},
	}
	worker := newTestWorker(repo, reconciler, newMockIdempotencyStore())

	entry, _ := newFailedEntry(t, 3)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	// All three lines were attempted; only the rejected one is still owed
	assert.Equal(t, 3, reconciler.productCalls)

	stored := repo.entries[entry.ID]
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)

	var event delivery.ReconciliationFailedEvent
	require.NoError(t, json.Unmarshal(stored.Payload, &event))
	assert.Len(t, event.Credits, 1)
	assert.True(t, event.Partial, "next replay must not run the bulk call")
}

func TestReconciliationWorker_MarksFailedWithBackoff(t *testing.T) {
	repo := newMockOutboxRepository()
	down := errors.New("inventory unreachable")
	reconciler := &mockReconciler{
		addFromOrderFn: func(ctx context.Context, orderID int64, customerID uuid.UUID) error { return down },
		addProductFn: func(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error {
			return down
		},
	}
	worker := newTestWorker(repo, reconciler, newMockIdempotencyStore())

	entry, _ := newFailedEntry(t, 1)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	stored := repo.entries[entry.ID]
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	assert.Contains(t, stored.LastError, "inventory unreachable")
}

func TestReconciliationWorker_MovesToDeadAfterMaxRetries(t *testing.T) {
	repo := newMockOutboxRepository()
	reconciler := &mockReconciler{
		addFromOrderFn: func(ctx context.Context, orderID int64, customerID uuid.UUID) error {
			return errors.New("still down")
		},
		addProductFn: func(ctx context.Context, customerID uuid.UUID, credit delivery.ProductCredit) error {
			return errors.New("still down")
		},
	}
	worker := newTestWorker(repo, reconciler, newMockIdempotencyStore())

	entry, _ := newFailedEntry(t, 1)
	entry.RetryCount = entry.MaxRetries - 1
	entry.Status = shared.OutboxStatusFailed
	past := time.Now().Add(-time.Minute)
	entry.NextRetryAt = &past
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	assert.Equal(t, shared.OutboxStatusDead, repo.entries[entry.ID].Status)
}

func TestReconciliationWorker_SkipsAlreadyCredited(t *testing.T) {
	repo := newMockOutboxRepository()
	reconciler := &mockReconciler{}
	store := newMockIdempotencyStore()
	worker := newTestWorker(repo, reconciler, store)

	entry, _ := newFailedEntry(t, 1)
	_, err := store.MarkProcessed(context.Background(), entry.EventID.String(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), entry))

	worker.ProcessBatch(context.Background())

	assert.Equal(t, 0, reconciler.bulkCalls, "already credited replay must not call the ledger")
	assert.Equal(t, shared.OutboxStatusSent, repo.entries[entry.ID].Status)
}

func TestReconciliationWorker_StartStop(t *testing.T) {
	repo := newMockOutboxRepository()
	worker := newTestWorker(repo, &mockReconciler{}, newMockIdempotencyStore())

	require.NoError(t, worker.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, worker.Stop(stopCtx))
}
