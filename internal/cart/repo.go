package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
)

// Repository exposes the cart operations the order builder needs.
type Repository interface {
	FindItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	ClearItems(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClearItems removes only the ordered products from the cart; entries for
// other products stay untouched. Runs inside the order transaction.
func (r *repository) ClearItems(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&models.CartItem{}).Error
}
