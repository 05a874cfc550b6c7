package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"go.uber.org/zap"
)

// ReconciliationWorkerConfig holds configuration for the retry worker
type ReconciliationWorkerConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	Idempotency      shared.IdempotencyConfig
}

// DefaultReconciliationWorkerConfig returns default configuration
func DefaultReconciliationWorkerConfig() ReconciliationWorkerConfig {
	return ReconciliationWorkerConfig{
		BatchSize:        50,
		PollInterval:     15 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  1 * time.Hour,
		Idempotency:      shared.DefaultIdempotencyConfig(),
	}
}

// ReconciliationWorker replays stock reconciliations that could not be
// completed inline after a confirmation. Entries are retried with
// exponential backoff until they succeed or exhaust their retries; the
// idempotency store guards against crediting the same delivery twice when
// an entry is replayed after a partial success.
type ReconciliationWorker struct {
	repo        shared.OutboxRepository
	reconciler  delivery.StockReconciler
	idempotency shared.IdempotencyStore
	config      ReconciliationWorkerConfig
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciliationWorker creates a new reconciliation retry worker
func NewReconciliationWorker(
	repo shared.OutboxRepository,
	reconciler delivery.StockReconciler,
	idempotency shared.IdempotencyStore,
	config ReconciliationWorkerConfig,
	logger *zap.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		repo:        repo,
		reconciler:  reconciler,
		idempotency: idempotency,
		config:      config,
		logger:      logger,
	}
}

// Start starts the background processing
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.processLoop(ctx)

	if w.config.CleanupEnabled {
		w.wg.Add(1)
		go w.cleanupLoop(ctx)
	}

	w.logger.Info("reconciliation worker started",
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("poll_interval", w.config.PollInterval),
	)

	return nil
}

// Stop gracefully stops the worker
func (w *ReconciliationWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("reconciliation worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processLoop is the main processing loop
func (w *ReconciliationWorker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch processes one batch of pending and retryable entries
func (w *ReconciliationWorker) ProcessBatch(ctx context.Context) {
	pending, err := w.repo.FindPending(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to find pending entries", zap.Error(err))
		return
	}
	for _, entry := range pending {
		w.processEntry(ctx, entry)
	}

	retryable, err := w.repo.FindRetryable(ctx, time.Now(), w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to find retryable entries", zap.Error(err))
		return
	}
	for _, entry := range retryable {
		w.processEntry(ctx, entry)
	}
}

// processEntry replays a single stored reconciliation
func (w *ReconciliationWorker) processEntry(ctx context.Context, entry *shared.OutboxEntry) {
	if entry.EventType != delivery.EventTypeReconciliationFailed {
		w.logger.Warn("skipping entry of unexpected type",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
		)
		entry.MarkSent()
		w.updateEntry(ctx, entry)
		return
	}

	var event delivery.ReconciliationFailedEvent
	if err := json.Unmarshal(entry.Payload, &event); err != nil {
		w.fail(ctx, entry, "failed to decode payload: "+err.Error())
		return
	}

	if w.config.Idempotency.Enabled {
		processed, err := w.idempotency.IsProcessed(ctx, entry.EventID.String())
		if err != nil {
			w.logger.Warn("idempotency check failed, proceeding",
				zap.String("event_id", entry.EventID.String()),
				zap.Error(err),
			)
		} else if processed {
			w.logger.Info("reconciliation already credited, skipping",
				zap.String("event_id", entry.EventID.String()),
				zap.Int64("order_id", event.OrderID),
			)
			entry.MarkSent()
			w.updateEntry(ctx, entry)
			return
		}
	}

	if err := w.reconcile(ctx, entry, &event); err != nil {
		w.fail(ctx, entry, err.Error())
		return
	}

	if w.config.Idempotency.Enabled {
		if _, err := w.idempotency.MarkProcessed(ctx, entry.EventID.String(), w.config.Idempotency.TTL); err != nil {
			w.logger.Warn("failed to mark reconciliation as processed",
				zap.String("event_id", entry.EventID.String()),
				zap.Error(err),
			)
		}
	}

	entry.MarkSent()
	w.updateEntry(ctx, entry)
	w.logger.Info("reconciliation replayed successfully",
		zap.String("event_id", entry.EventID.String()),
		zap.Int64("order_id", event.OrderID),
		zap.String("code", event.Code),
	)
}

// reconcile retries the bulk call first and falls back to per-line credits,
// mirroring the inline confirmation path. A partial entry means other lines
// of the delivery were already credited, so the bulk call must not run: it
// credits the whole order and would double-credit those lines.
func (w *ReconciliationWorker) reconcile(ctx context.Context, entry *shared.OutboxEntry, event *delivery.ReconciliationFailedEvent) error {
	if !event.Partial {
		bulkErr := w.reconciler.AddFromOrder(ctx, event.OrderID, event.CustomerID)
		if bulkErr == nil {
			return nil
		}
		w.logger.Warn("bulk reconciliation failed, falling back to per-line credits",
			zap.Int64("order_id", event.OrderID),
			zap.Error(bulkErr),
		)
	}

	var failed []delivery.ProductCredit
	var lineErr error
	for _, credit := range event.Credits {
		if err := w.reconciler.AddProduct(ctx, event.CustomerID, credit); err != nil {
			failed = append(failed, credit)
			lineErr = err
		}
	}
	if lineErr == nil {
		return nil
	}

	// Shrink the stored payload to the lines still owed so the next replay
	// cannot credit the ones that just succeeded a second time.
	if len(failed) < len(event.Credits) {
		event.Credits = failed
		event.Partial = true
		if payload, err := json.Marshal(event); err == nil {
			entry.Payload = payload
		}
	}
	return lineErr
}

// fail records the failure and advances the retry state
func (w *ReconciliationWorker) fail(ctx context.Context, entry *shared.OutboxEntry, reason string) {
	entry.MarkFailed(reason)
	if entry.IsDead() {
		w.logger.Error("reconciliation moved to dead letter queue",
			zap.String("event_id", entry.EventID.String()),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	} else {
		w.logger.Warn("reconciliation retry failed",
			zap.String("event_id", entry.EventID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	w.updateEntry(ctx, entry)
}

func (w *ReconciliationWorker) updateEntry(ctx context.Context, entry *shared.OutboxEntry) {
	if err := w.repo.Update(ctx, entry); err != nil {
		w.logger.Error("failed to update outbox entry",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
	}
}

// cleanupLoop periodically removes old processed entries
func (w *ReconciliationWorker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

// cleanup removes old processed entries
func (w *ReconciliationWorker) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-w.config.CleanupRetention)
	deleted, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to clean up old entries", zap.Error(err))
		return
	}

	if deleted > 0 {
		w.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
