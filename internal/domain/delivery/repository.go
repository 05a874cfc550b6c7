package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeliveryRecordRepository persists the two disjoint record sets. A code
// appears in at most one of {pending, confirmed} at any time.
type DeliveryRecordRepository interface {
	// AddPending inserts a record into the pending set. Returns
	// shared.ErrAlreadyExists if a record with the same code exists in
	// either set.
	AddPending(ctx context.Context, record *DeliveryRecord) error

	// FindPending looks up a pending record by code, cross-checked
	// against the order ID. Returns shared.ErrNotFound on a miss.
	FindPending(ctx context.Context, code string, orderID int64) (*DeliveryRecord, error)

	// FindConfirmed looks up a confirmed record by code.
	// Returns shared.ErrNotFound on a miss.
	FindConfirmed(ctx context.Context, code string) (*DeliveryRecord, error)

	// MoveToConfirmed atomically removes the record from the pending set,
	// stamps the confirmation metadata and appends it to the confirmed
	// set. This is the only write path that produces a confirmed record.
	// Concurrent calls for the same code are serialized by the store:
	// exactly one wins, the rest get ErrAlreadyConfirmed. Returns
	// ErrInvalidCode when the code is in neither set.
	MoveToConfirmed(ctx context.Context, code string, orderID int64, confirmedAt time.Time, confirmedBy uuid.UUID) (*DeliveryRecord, error)

	// DeletePendingByOrder revokes any pending codes minted for the order
	// without issuing a replacement. Confirmed records are never touched.
	DeletePendingByOrder(ctx context.Context, orderID int64) (int64, error)

	// SupersedePending revokes any pending codes for the record's order and
	// inserts the record, all in one transaction. Concurrent re-issues for
	// the same order therefore cannot each survive the other's revoke and
	// leave two live codes. Returns the revoked count; fails with
	// shared.ErrAlreadyExists under the same conditions as AddPending, in
	// which case the revoke is rolled back too.
	SupersedePending(ctx context.Context, record *DeliveryRecord) (int64, error)
}
