package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock ledger row for a product. AvailableQty never goes
// negative; reserve and release move quantity between the two counters with
// single conditional updates.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	SoldQty      int       `gorm:"column:sold_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
