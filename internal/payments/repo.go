package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkSuccess flips the record from pending to success exactly once. False
// means another delivery already settled it. A blank transaction id is
// stored as NULL; transaction_id carries a unique index and empty strings
// would collide across records.
func (r *repository) MarkSuccess(ctx context.Context, intentID, transactionID string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE payment_records
		SET status = ?, transaction_id = NULLIF(?, ''), captured_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE intent_id = ? AND status = ?
	`, enums.PaymentStatusSuccess, transactionID, time.Now().UTC(), intentID, enums.PaymentStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
