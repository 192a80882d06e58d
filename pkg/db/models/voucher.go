package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// Voucher is a discount definition, platform-wide when ShopID is nil.
// Quantity counts remaining claims and is decremented with a conditional
// update at claim time.
type Voucher struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    *uuid.UUID        `gorm:"column:shop_id;type:uuid;index"`
	Code      string            `gorm:"column:code;not null;uniqueIndex"`
	Type      enums.VoucherType `gorm:"column:type;type:text;not null"`
	Value     int64             `gorm:"column:value;not null"`
	MinSpend  int64             `gorm:"column:min_spend;not null;default:0"`
	MaxAmount int64             `gorm:"column:max_amount;not null;default:0"`
	Quantity  int               `gorm:"column:quantity;not null"`
	StartsAt  time.Time         `gorm:"column:starts_at;not null"`
	ExpiresAt time.Time         `gorm:"column:expires_at;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
