package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/delivery/internal/domain/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"github.com/erp/delivery/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDeliveryRecordRepository implements DeliveryRecordRepository using GORM.
// The pending and confirmed sets are separate tables; line items live in a
// shared table keyed by record ID and survive the move unchanged.
type GormDeliveryRecordRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRecordRepository creates a new GormDeliveryRecordRepository
func NewGormDeliveryRecordRepository(db *gorm.DB) *GormDeliveryRecordRepository {
	return &GormDeliveryRecordRepository{db: db}
}

// AddPending inserts a record into the pending set
func (r *GormDeliveryRecordRepository) AddPending(ctx context.Context, record *delivery.DeliveryRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addPendingTx(tx, record)
	})
}

func addPendingTx(tx *gorm.DB, record *delivery.DeliveryRecord) error {
	var count int64
	if err := tx.Model(&models.ConfirmedDeliveryModel{}).
		Where("code = ?", record.Code).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrAlreadyExists
	}

	model := models.PendingDeliveryModelFromDomain(record)
	if err := tx.Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindPending looks up a pending record by code cross-checked against the order ID
func (r *GormDeliveryRecordRepository) FindPending(ctx context.Context, code string, orderID int64) (*delivery.DeliveryRecord, error) {
	var model models.PendingDeliveryModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("code = ? AND order_id = ?", code, orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindConfirmed looks up a confirmed record by code
func (r *GormDeliveryRecordRepository) FindConfirmed(ctx context.Context, code string) (*delivery.DeliveryRecord, error) {
	var model models.ConfirmedDeliveryModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("code = ?", code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MoveToConfirmed atomically moves a record from the pending set to the
// confirmed set. The pending row is locked first, so concurrent confirmations
// of the same code serialize here: the loser re-reads after the winner's
// delete commits, finds the code in the confirmed set and gets
// ErrAlreadyConfirmed.
func (r *GormDeliveryRecordRepository) MoveToConfirmed(ctx context.Context, code string, orderID int64, confirmedAt time.Time, confirmedBy uuid.UUID) (*delivery.DeliveryRecord, error) {
	var confirmed *delivery.DeliveryRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.PendingDeliveryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&pending).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			var count int64
			if err := tx.Model(&models.ConfirmedDeliveryModel{}).
				Where("code = ?", code).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return delivery.ErrAlreadyConfirmed
			}
			return delivery.ErrInvalidCode
		}

		if pending.OrderID != orderID {
			return delivery.ErrInvalidCode
		}

		if err := tx.Where("record_id = ?", pending.ID).
			Find(&pending.Items).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", pending.ID).
			Delete(&models.PendingDeliveryModel{}).Error; err != nil {
			return err
		}

		record := pending.ToDomain()
		if err := record.Confirm(confirmedBy, confirmedAt); err != nil {
			return err
		}

		// Items stay in delivery_items under the same record ID
		model := models.ConfirmedDeliveryModelFromDomain(record)
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}

		confirmed = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// DeletePendingByOrder revokes any pending codes minted for the order,
// including their line item snapshots. Confirmed records are never touched.
func (r *GormDeliveryRecordRepository) DeletePendingByOrder(ctx context.Context, orderID int64) (int64, error) {
	var revoked int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := deletePendingByOrderTx(tx, orderID)
		if err != nil {
			return err
		}
		revoked = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

func deletePendingByOrderTx(tx *gorm.DB, orderID int64) (int64, error) {
	var ids []uuid.UUID
	if err := tx.Model(&models.PendingDeliveryModel{}).
		Where("order_id = ?", orderID).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := tx.Where("record_id IN ?", ids).
		Delete(&models.DeliveryItemModel{}).Error; err != nil {
		return 0, err
	}

	result := tx.Where("id IN ?", ids).
		Delete(&models.PendingDeliveryModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SupersedePending revokes the order's pending codes and inserts the new
// record in one transaction. Either both happen or neither does; two
// concurrent builds for the same order serialize on the row deletes and
// cannot both leave a live code.
func (r *GormDeliveryRecordRepository) SupersedePending(ctx context.Context, record *delivery.DeliveryRecord) (int64, error) {
	var revoked int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := deletePendingByOrderTx(tx, record.OrderID)
		if err != nil {
			return err
		}
		revoked = n
		return addPendingTx(tx, record)
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}
