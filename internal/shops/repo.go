package shops

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// Repository defines persistence operations for shops.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shop *models.Shop) (*models.Shop, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error)
	Approve(ctx context.Context, shopID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shops repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shop *models.Shop) (*models.Shop, error) {
	if err := r.db.WithContext(ctx).Create(shop).Error; err != nil {
		return nil, err
	}
	return shop, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&shop).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&shop).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// Approve flips a pending shop to approved. False means the shop was already
// approved or does not exist.
func (r *repository) Approve(ctx context.Context, shopID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE shops
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, enums.ShopStatusApproved, shopID, enums.ShopStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
