package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
)

// RoleCustomer is the only role allowed to execute confirmations
const RoleCustomer = "customer"

const defaultReconcileTimeout = 10 * time.Second

// outboxEnqueueTimeout bounds the outbox insert on its own. The reconcile
// budget may already be exhausted when the insert runs, and the insert is
// what keeps the credit from being lost.
const outboxEnqueueTimeout = 5 * time.Second

// ConfirmationService resolves and executes delivery confirmations. A
// confirmation consumes the single-use code exactly once and credits the
// customer's stock ledger; crediting failures never roll it back.
type ConfirmationService struct {
	records          delivery.DeliveryRecordRepository
	reconciler       delivery.StockReconciler
	outbox           shared.OutboxRepository
	reconcileTimeout time.Duration
	logger           *zap.Logger
	now              func() time.Time
}

// NewConfirmationService creates a new ConfirmationService
func NewConfirmationService(
	records delivery.DeliveryRecordRepository,
	reconciler delivery.StockReconciler,
	outbox shared.OutboxRepository,
	reconcileTimeout time.Duration,
	logger *zap.Logger,
) *ConfirmationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconcileTimeout <= 0 {
		reconcileTimeout = defaultReconcileTimeout
	}
	return &ConfirmationService{
		records:          records,
		reconciler:       reconciler,
		outbox:           outbox,
		reconcileTimeout: reconcileTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

// Resolve classifies a (code, order) pair into exactly one of ready,
// already_confirmed or invalid. It never mutates state; the confirmation
// page calls it to decide what to show.
func (s *ConfirmationService) Resolve(ctx context.Context, code string, orderID int64) (*ResolveResponse, error) {
	if code == "" || orderID <= 0 {
		return &ResolveResponse{State: delivery.StateInvalid.String(), Code: code, OrderID: orderID}, nil
	}

	pending, err := s.records.FindPending(ctx, code, orderID)
	if err == nil {
		if pending.Confirmed {
			// Membership is authoritative; a confirmed flag inside the
			// pending set means the move is mid-flight, treat as consumed
			return s.alreadyConfirmedResponse(pending), nil
		}
		return &ResolveResponse{
			State:        delivery.StateReady.String(),
			Code:         pending.Code,
			OrderID:      pending.OrderID,
			CustomerName: pending.CustomerName,
			Warehouse:    pending.Warehouse,
			Total:        pending.Total,
			Items:        toItemResponses(pending.Items),
		}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve pending record: %w", err)
	}

	confirmed, err := s.records.FindConfirmed(ctx, code)
	if err == nil {
		return s.alreadyConfirmedResponse(confirmed), nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve confirmed record: %w", err)
	}

	return &ResolveResponse{State: delivery.StateInvalid.String(), Code: code, OrderID: orderID}, nil
}

// Confirm executes the hand-off confirmation: it atomically consumes the
// pending code, then credits the stock ledger. A repeat call for an already
// consumed code is an idempotent success carrying the original timestamp.
func (s *ConfirmationService) Confirm(ctx context.Context, caller Caller, req ConfirmRequest) (*ConfirmResponse, error) {
	if caller.UserID == uuid.Nil {
		return nil, shared.ErrUnauthorized
	}
	if caller.Role != RoleCustomer {
		return nil, shared.ErrForbidden
	}

	confirmedAt := s.now()
	record, err := s.records.MoveToConfirmed(ctx, req.Code, req.OrderID, confirmedAt, caller.UserID)
	if err != nil {
		if errors.Is(err, delivery.ErrAlreadyConfirmed) {
			confirmed, findErr := s.records.FindConfirmed(ctx, req.Code)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load confirmed record: %w", findErr)
			}
			resp := &ConfirmResponse{
				Outcome: OutcomeAlreadyConfirmed,
				Code:    confirmed.Code,
				OrderID: confirmed.OrderID,
				Items:   toItemResponses(confirmed.Items),
			}
			if confirmed.ConfirmedAt != nil {
				resp.ConfirmedAt = *confirmed.ConfirmedAt
			}
			return resp, nil
		}
		return nil, err
	}

	s.logger.Info("delivery confirmed",
		zap.String("code", record.Code),
		zap.Int64("order_id", record.OrderID),
		zap.String("confirmed_by", caller.UserID.String()))

	warning := s.reconcileStock(ctx, record, caller)

	return &ConfirmResponse{
		Outcome:     OutcomeConfirmed,
		Code:        record.Code,
		OrderID:     record.OrderID,
		ConfirmedAt: confirmedAt,
		Items:       toItemResponses(record.Items),
		Warning:     warning,
	}, nil
}

// reconcileStock credits the confirmed delivery into the stock ledger.
// Bulk first, per line item on bulk failure, durable outbox entry for
// whatever is still owed afterwards. Runs detached from the request context
// so a client navigating away cannot abort it.
func (s *ConfirmationService) reconcileStock(ctx context.Context, record *delivery.DeliveryRecord, caller Caller) string {
	customerID := caller.UserID
	if record.CustomerID != nil {
		customerID = *record.CustomerID
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reconcileTimeout)
	defer cancel()

	bulkErr := s.reconciler.AddFromOrder(rctx, record.OrderID, customerID)
	if bulkErr == nil {
		s.logger.Info("stock ledger credited",
			zap.String("code", record.Code),
			zap.Int64("order_id", record.OrderID))
		return ""
	}

	s.logger.Warn("bulk stock credit failed, falling back per line item",
		zap.String("code", record.Code),
		zap.Int64("order_id", record.OrderID),
		zap.Error(bulkErr))

	// Every line is attempted even after one fails; the outbox entry must
	// carry only the lines still owed, never a line already credited.
	credits := record.Credits()
	failed := make([]delivery.ProductCredit, 0, len(credits))
	var lineErr error
	for _, credit := range credits {
		if err := s.reconciler.AddProduct(rctx, customerID, credit); err != nil {
			failed = append(failed, credit)
			lineErr = err
		}
	}
	if len(failed) == 0 {
		s.logger.Info("stock ledger credited per line item",
			zap.String("code", record.Code),
			zap.Int64("order_id", record.OrderID),
			zap.Int("items", len(record.Items)))
		return ""
	}

	s.logger.Error("stock reconciliation failed, deferring to retry worker",
		zap.String("code", record.Code),
		zap.Int64("order_id", record.OrderID),
		zap.Int("failed_items", len(failed)),
		zap.Int("total_items", len(credits)),
		zap.NamedError("bulk_error", bulkErr),
		zap.NamedError("line_error", lineErr))

	partial := len(failed) < len(credits)
	if err := s.enqueueRetry(ctx, record, customerID, failed, partial, lineErr); err != nil {
		// Last resort is the log line above; the confirmation stands either way
		s.logger.Error("failed to enqueue reconciliation retry",
			zap.String("code", record.Code),
			zap.Int64("order_id", record.OrderID),
			zap.Error(err))
	}

	return WarningReconciliationPending
}

// enqueueRetry persists a ReconciliationFailedEvent carrying the credits
// still owed. It runs under its own deadline: the reconcile budget is
// typically exhausted by the time the entry is written, and a dead context
// here would lose the credit entirely.
func (s *ConfirmationService) enqueueRetry(ctx context.Context, record *delivery.DeliveryRecord, customerID uuid.UUID, failed []delivery.ProductCredit, partial bool, cause error) error {
	event := delivery.NewReconciliationFailedEvent(record, customerID, failed, partial, cause.Error())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation event: %w", err)
	}

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outboxEnqueueTimeout)
	defer cancel()
	return s.outbox.Save(ectx, shared.NewOutboxEntry(event, payload))
}

// alreadyConfirmedResponse builds the idempotent resolve response for a
// consumed code
func (s *ConfirmationService) alreadyConfirmedResponse(record *delivery.DeliveryRecord) *ResolveResponse {
	return &ResolveResponse{
		State:        delivery.StateAlreadyConfirmed.String(),
		Code:         record.Code,
		OrderID:      record.OrderID,
		CustomerName: record.CustomerName,
		Warehouse:    record.Warehouse,
		Total:        record.Total,
		Items:        toItemResponses(record.Items),
		ConfirmedAt:  record.ConfirmedAt,
	}
}
