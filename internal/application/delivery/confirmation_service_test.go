package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app "github.com/erp/delivery/internal/application/delivery"
	domain "github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
)

const testCode = "ENT-42-CLI-007-1756710000000-A3F7KQ"

func newCustomerCaller() app.Caller {
	return app.Caller{
		UserID:       uuid.New(),
		Username:     "elfaro",
		CustomerCode: "CLI-007",
		Role:         app.RoleCustomer,
	}
}

func newPendingRecord(t *testing.T) *domain.DeliveryRecord {
	t.Helper()
	record, err := domain.NewDeliveryRecord(testCode, 42, "CLI-007", "Comercial El Faro", "Bodega Norte",
		time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = record.AddItem("Botella 20L", decimal.NewFromInt(2), decimal.NewFromInt(500))
	require.NoError(t, err)
	_, err = record.AddItem("Bidon 10L", decimal.NewFromInt(3), decimal.NewFromInt(500))
	require.NoError(t, err)
	return record
}

func newConfirmedRecord(t *testing.T, confirmedBy uuid.UUID, confirmedAt time.Time) *domain.DeliveryRecord {
	t.Helper()
	record := newPendingRecord(t)
	require.NoError(t, record.Confirm(confirmedBy, confirmedAt))
	return record
}

func newConfirmationService(records *MockDeliveryRecordRepository, reconciler *MockStockReconciler, outbox *MockOutboxRepository) *app.ConfirmationService {
	return app.NewConfirmationService(records, reconciler, outbox, 2*time.Second, nil)
}

func TestConfirmationService_Resolve_Ready(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	svc := newConfirmationService(records, new(MockStockReconciler), new(MockOutboxRepository))

	records.On("FindPending", mock.Anything, testCode, int64(42)).Return(newPendingRecord(t), nil)

	resp, err := svc.Resolve(context.Background(), testCode, 42)

	require.NoError(t, err)
	assert.Equal(t, "ready", resp.State)
	assert.Equal(t, testCode, resp.Code)
	assert.Equal(t, "Comercial El Faro", resp.CustomerName)
	assert.Len(t, resp.Items, 2)
	assert.True(t, resp.Total.Equal(decimal.NewFromInt(2500)))
	assert.Nil(t, resp.ConfirmedAt)
}

func TestConfirmationService_Resolve_AlreadyConfirmed(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	svc := newConfirmationService(records, new(MockStockReconciler), new(MockOutboxRepository))

	confirmedAt := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	records.On("FindPending", mock.Anything, testCode, int64(42)).Return(nil, shared.ErrNotFound)
	records.On("FindConfirmed", mock.Anything, testCode).Return(newConfirmedRecord(t, uuid.New(), confirmedAt), nil)

	resp, err := svc.Resolve(context.Background(), testCode, 42)

	require.NoError(t, err)
	assert.Equal(t, "already_confirmed", resp.State)
	require.NotNil(t, resp.ConfirmedAt)
	assert.True(t, resp.ConfirmedAt.Equal(confirmedAt))
}

func TestConfirmationService_Resolve_Invalid(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	svc := newConfirmationService(records, new(MockStockReconciler), new(MockOutboxRepository))

	records.On("FindPending", mock.Anything, "ENT-99-X-1-ZZZZZZ", int64(99)).Return(nil, shared.ErrNotFound)
	records.On("FindConfirmed", mock.Anything, "ENT-99-X-1-ZZZZZZ").Return(nil, shared.ErrNotFound)

	resp, err := svc.Resolve(context.Background(), "ENT-99-X-1-ZZZZZZ", 99)

	require.NoError(t, err)
	assert.Equal(t, "invalid", resp.State)
}

func TestConfirmationService_Resolve_BlankCodeIsInvalid(t *testing.T) {
	svc := newConfirmationService(new(MockDeliveryRecordRepository), new(MockStockReconciler), new(MockOutboxRepository))

	resp, err := svc.Resolve(context.Background(), "", 0)

	require.NoError(t, err)
	assert.Equal(t, "invalid", resp.State)
}

func TestConfirmationService_Confirm_Success(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	svc := newConfirmationService(records, reconciler, new(MockOutboxRepository))

	caller := newCustomerCaller()
	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.AnythingOfType("time.Time"), caller.UserID).
		Return(newConfirmedRecord(t, caller.UserID, time.Now()), nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), caller.UserID).Return(nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	assert.Equal(t, app.OutcomeConfirmed, resp.Outcome)
	assert.Equal(t, testCode, resp.Code)
	assert.Len(t, resp.Items, 2)
	assert.Empty(t, resp.Warning)
	assert.False(t, resp.ConfirmedAt.IsZero())
	reconciler.AssertNotCalled(t, "AddProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmationService_Confirm_Unauthenticated(t *testing.T) {
	svc := newConfirmationService(new(MockDeliveryRecordRepository), new(MockStockReconciler), new(MockOutboxRepository))

	_, err := svc.Confirm(context.Background(), app.Caller{}, app.ConfirmRequest{Code: testCode, OrderID: 42})

	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestConfirmationService_Confirm_WrongRole(t *testing.T) {
	svc := newConfirmationService(new(MockDeliveryRecordRepository), new(MockStockReconciler), new(MockOutboxRepository))

	caller := newCustomerCaller()
	caller.Role = "operator"

	_, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestConfirmationService_Confirm_RepeatIsIdempotent(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	svc := newConfirmationService(records, reconciler, new(MockOutboxRepository))

	caller := newCustomerCaller()
	originalAt := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(nil, domain.ErrAlreadyConfirmed)
	records.On("FindConfirmed", mock.Anything, testCode).
		Return(newConfirmedRecord(t, uuid.New(), originalAt), nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	assert.Equal(t, app.OutcomeAlreadyConfirmed, resp.Outcome)
	assert.True(t, resp.ConfirmedAt.Equal(originalAt))
	// Stock was credited by the first confirmation; never again
	reconciler.AssertNotCalled(t, "AddFromOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmationService_Confirm_InvalidCode(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	svc := newConfirmationService(records, new(MockStockReconciler), new(MockOutboxRepository))

	caller := newCustomerCaller()
	records.On("MoveToConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrInvalidCode)

	_, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: "ENT-1-X-1-NOPE", OrderID: 1})

	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestConfirmationService_Confirm_FallsBackPerLineItem(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	svc := newConfirmationService(records, reconciler, new(MockOutboxRepository))

	caller := newCustomerCaller()
	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(newConfirmedRecord(t, caller.UserID, time.Now()), nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), caller.UserID).
		Return(errors.New("bulk endpoint unavailable"))
	reconciler.On("AddProduct", mock.Anything, caller.UserID, mock.AnythingOfType("delivery.ProductCredit")).
		Return(nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	assert.Equal(t, app.OutcomeConfirmed, resp.Outcome)
	assert.Empty(t, resp.Warning)
	// One fallback call per line item
	reconciler.AssertNumberOfCalls(t, "AddProduct", 2)
}

func TestConfirmationService_Confirm_TotalReconciliationFailureDefersToOutbox(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	outbox := new(MockOutboxRepository)
	svc := newConfirmationService(records, reconciler, outbox)

	caller := newCustomerCaller()
	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(newConfirmedRecord(t, caller.UserID, time.Now()), nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), caller.UserID).
		Return(errors.New("inventory unavailable"))
	reconciler.On("AddProduct", mock.Anything, caller.UserID, mock.Anything).
		Return(errors.New("inventory unavailable"))
	outbox.On("Save", mock.Anything, mock.AnythingOfType("[]*shared.OutboxEntry")).Return(nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	// Confirmation is never rolled back
	require.NoError(t, err)
	assert.Equal(t, app.OutcomeConfirmed, resp.Outcome)
	assert.Equal(t, app.WarningReconciliationPending, resp.Warning)

	// The outbox entry replays the reconciliation later
	outbox.AssertCalled(t, "Save", mock.Anything, mock.Anything)
	entries := outbox.Calls[0].Arguments.Get(1).([]*shared.OutboxEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventTypeReconciliationFailed, entries[0].EventType)
	assert.Equal(t, shared.OutboxStatusPending, entries[0].Status)

	// Nothing was credited, so the entry carries every line and the worker
	// may replay the bulk call
	var event domain.ReconciliationFailedEvent
	require.NoError(t, json.Unmarshal(entries[0].Payload, &event))
	assert.Len(t, event.Credits, 2)
	assert.False(t, event.Partial)
}

func TestConfirmationService_Confirm_PartialLineFailureDefersOnlyUncreditedLines(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	outbox := new(MockOutboxRepository)
	svc := newConfirmationService(records, reconciler, outbox)

	caller := newCustomerCaller()
	record, err := domain.NewDeliveryRecord(testCode, 42, "CLI-007", "Comercial El Faro", "Bodega Norte",
		time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	for _, name := range []string{"Botella 20L", "Bidon 10L", "Dispensador"} {
		_, err := record.AddItem(name, decimal.NewFromInt(1), decimal.NewFromInt(500))
		require.NoError(t, err)
	}
	require.NoError(t, record.Confirm(caller.UserID, time.Now()))

	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(record, nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), caller.UserID).
		Return(errors.New("bulk endpoint unavailable"))
	reconciler.On("AddProduct", mock.Anything, caller.UserID, mock.MatchedBy(func(c domain.ProductCredit) bool {
		return c.ProductName == "Bidon 10L"
	})).Return(errors.New("line rejected"))
	reconciler.On("AddProduct", mock.Anything, caller.UserID, mock.Anything).Return(nil)
	outbox.On("Save", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	assert.Equal(t, app.WarningReconciliationPending, resp.Warning)

	// Every line is attempted even though the second one failed
	reconciler.AssertNumberOfCalls(t, "AddProduct", 3)

	// The outbox entry carries only the line still owed and is marked
	// partial, so the worker never replays the bulk call or the two lines
	// that were already credited
	entries := outbox.Calls[0].Arguments.Get(1).([]*shared.OutboxEntry)
	require.Len(t, entries, 1)
	var event domain.ReconciliationFailedEvent
	require.NoError(t, json.Unmarshal(entries[0].Payload, &event))
	require.Len(t, event.Credits, 1)
	assert.Equal(t, "Bidon 10L", event.Credits[0].ProductName)
	assert.True(t, event.Partial)
}

func TestConfirmationService_Confirm_EnqueuesRetryUnderLiveContext(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	outbox := new(MockOutboxRepository)
	// A reconcile budget this small is spent before the ledger calls return
	svc := app.NewConfirmationService(records, reconciler, outbox, time.Nanosecond, nil)

	caller := newCustomerCaller()
	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(newConfirmedRecord(t, caller.UserID, time.Now()), nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), caller.UserID).
		Return(context.DeadlineExceeded)
	reconciler.On("AddProduct", mock.Anything, caller.UserID, mock.Anything).
		Return(context.DeadlineExceeded)

	saveCtxErr := errors.New("save never ran")
	outbox.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saveCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	resp, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	assert.Equal(t, app.WarningReconciliationPending, resp.Warning)
	assert.NoError(t, saveCtxErr, "outbox save must not inherit the exhausted reconcile deadline")
}

func TestConfirmationService_Confirm_UsesBoundCustomerForCrediting(t *testing.T) {
	records := new(MockDeliveryRecordRepository)
	reconciler := new(MockStockReconciler)
	svc := newConfirmationService(records, reconciler, new(MockOutboxRepository))

	caller := newCustomerCaller()
	boundCustomer := uuid.New()
	record := newPendingRecord(t)
	record.BindCustomer(boundCustomer)
	require.NoError(t, record.Confirm(caller.UserID, time.Now()))

	records.On("MoveToConfirmed", mock.Anything, testCode, int64(42), mock.Anything, caller.UserID).
		Return(record, nil)
	reconciler.On("AddFromOrder", mock.Anything, int64(42), boundCustomer).Return(nil)

	_, err := svc.Confirm(context.Background(), caller, app.ConfirmRequest{Code: testCode, OrderID: 42})

	require.NoError(t, err)
	reconciler.AssertCalled(t, "AddFromOrder", mock.Anything, int64(42), boundCustomer)
}
