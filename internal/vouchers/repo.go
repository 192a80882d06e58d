package vouchers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a vouchers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateVoucher(ctx context.Context, voucher *models.Voucher) (*models.Voucher, error) {
	if err := r.db.WithContext(ctx).Create(voucher).Error; err != nil {
		return nil, err
	}
	return voucher, nil
}

func (r *repository) FindVoucherByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// DecrementQuantity takes one claim slot off the voucher. False means the
// voucher is exhausted.
func (r *repository) DecrementQuantity(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE vouchers
		SET quantity = quantity - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quantity > 0
	`, voucherID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateClaim(ctx context.Context, claim *models.UserVoucher) (*models.UserVoucher, error) {
	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		return nil, err
	}
	return claim, nil
}

func (r *repository) FindClaim(ctx context.Context, userID, voucherID uuid.UUID) (*models.UserVoucher, error) {
	var claim models.UserVoucher
	err := r.db.WithContext(ctx).
		Preload("Voucher").
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// MarkClaimUsed flips the claim exactly once and links the consuming order.
// False means another transaction consumed it first.
func (r *repository) MarkClaimUsed(ctx context.Context, claimID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE user_vouchers
		SET used = ?, order_id = ?, used_at = ?
		WHERE id = ? AND used = ?
	`, true, orderID, time.Now().UTC(), claimID, false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListClaimsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserVoucher, error) {
	var claims []models.UserVoucher
	err := r.db.WithContext(ctx).
		Preload("Voucher").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}
