package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// Shop starts pending and flips to approved once its registration fee
// settles.
type Shop struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;uniqueIndex"`
	Name      string           `gorm:"column:name;not null"`
	Slug      string           `gorm:"column:slug;not null;uniqueIndex"`
	Status    enums.ShopStatus `gorm:"column:status;type:text;not null;default:pending"`
	Deleted   bool             `gorm:"column:deleted;not null;default:false"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
