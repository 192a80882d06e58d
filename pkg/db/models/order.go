package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// Order is the purchase aggregate produced by checkout. Amounts are captured
// at creation time and never updated; the soft-delete flag is the only field
// cancellation may touch.
type Order struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID     uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	ShopID         uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	AddressID      uuid.UUID           `gorm:"column:address_id;type:uuid;not null"`
	TotalAmount    int64               `gorm:"column:total_amount;not null"`
	DiscountAmount int64               `gorm:"column:discount_amount;not null;default:0"`
	FinalAmount    int64               `gorm:"column:final_amount;not null"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Deleted        bool                `gorm:"column:deleted;not null;default:false"`
	Lines          []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusEvents   []OrderStatusEvent  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
