package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

type Product struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	Name      string              `gorm:"column:name;not null"`
	Price     int64               `gorm:"column:price;not null"`
	Status    enums.ProductStatus `gorm:"column:status;type:text;not null;default:active"`
	Deleted   bool                `gorm:"column:deleted;not null;default:false"`
	Inventory *InventoryItem      `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
