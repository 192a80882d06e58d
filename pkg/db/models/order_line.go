package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine snapshots one product at purchase time. Price and name are copied
// from the product so later catalog edits do not rewrite history.
type OrderLine struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	UnitPrice   int64     `gorm:"column:unit_price;not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	Subtotal    int64     `gorm:"column:subtotal;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
