package models

import (
	"time"

	"github.com/google/uuid"
)

// UserVoucher records a claim of a voucher by a user. The unique index keeps
// claims one-per-user; Used flips once when the voucher is consumed on a paid
// order.
type UserVoucher struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_user_vouchers_user_voucher"`
	VoucherID uuid.UUID  `gorm:"column:voucher_id;type:uuid;not null;uniqueIndex:uq_user_vouchers_user_voucher"`
	Used      bool       `gorm:"column:used;not null;default:false"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	Voucher   *Voucher   `gorm:"foreignKey:VoucherID"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
