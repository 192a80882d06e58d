package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dhanwira/lokapasar-backend/pkg/enums"
)

// PaymentRecord tracks one gateway intent from creation to settlement. The
// subject pair says what the money is for, so settlement never has to guess
// which pending record a capture belongs to. IntentID and TransactionID are
// unique so duplicate gateway deliveries collapse onto the same row.
type PaymentRecord struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SubjectType   enums.PaymentSubject `gorm:"column:subject_type;type:text;not null;index:idx_payment_records_subject"`
	SubjectID     uuid.UUID            `gorm:"column:subject_id;type:uuid;not null;index:idx_payment_records_subject"`
	IntentID      string               `gorm:"column:intent_id;not null;uniqueIndex"`
	TransactionID *string              `gorm:"column:transaction_id;uniqueIndex"`
	Amount        int64                `gorm:"column:amount;not null"`
	Status        enums.PaymentStatus  `gorm:"column:status;type:text;not null;default:pending"`
	CapturedAt    *time.Time           `gorm:"column:captured_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
