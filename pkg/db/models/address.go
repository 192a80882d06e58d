package models

import (
	"time"

	"github.com/google/uuid"
)

type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Recipient  string    `gorm:"column:recipient;not null"`
	Phone      string    `gorm:"column:phone;not null"`
	Line1      string    `gorm:"column:line1;not null"`
	City       string    `gorm:"column:city;not null"`
	Province   string    `gorm:"column:province;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Deleted    bool      `gorm:"column:deleted;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
