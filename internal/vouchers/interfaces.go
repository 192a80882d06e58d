package vouchers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
)

// Repository defines persistence operations for voucher tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateVoucher(ctx context.Context, voucher *models.Voucher) (*models.Voucher, error)
	FindVoucherByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	DecrementQuantity(ctx context.Context, voucherID uuid.UUID) (bool, error)
	CreateClaim(ctx context.Context, claim *models.UserVoucher) (*models.UserVoucher, error)
	FindClaim(ctx context.Context, userID, voucherID uuid.UUID) (*models.UserVoucher, error)
	MarkClaimUsed(ctx context.Context, claimID, orderID uuid.UUID) (bool, error)
	ListClaimsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserVoucher, error)
}
