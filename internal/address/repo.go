package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
)

// Repository exposes the address lookups the order builder needs.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an address repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&addr).Error
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
