package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	"github.com/dhanwira/lokapasar-backend/pkg/paypal"
)

// Repository defines persistence operations for payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PaymentRecord) (*models.PaymentRecord, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.PaymentRecord, error)
	MarkSuccess(ctx context.Context, intentID, transactionID string) (bool, error)
}

// Gateway is the slice of the gateway client the reconciler uses.
type Gateway interface {
	CreateOrder(ctx context.Context, params paypal.OrderCreateParams) (*paypal.Intent, error)
	CaptureOrder(ctx context.Context, intentID string) (*paypal.Capture, error)
}

// OrderMarker applies the paid transition to an order inside the settlement
// transaction. The orders package provides the implementation.
type OrderMarker interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// ShopApprover flips a pending shop to approved when its registration fee
// settles.
type ShopApprover interface {
	Approve(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error)
}

// Redirect carries the gateway handoff returned to clients after an intent
// is opened.
type Redirect struct {
	IntentID    string `json:"intent_id"`
	RedirectURL string `json:"redirect_url"`
}

// SettlementResult reports what a settlement attempt did.
type SettlementResult struct {
	SubjectType    enums.PaymentSubject `json:"subject_type"`
	SubjectID      uuid.UUID            `json:"subject_id"`
	Status         enums.PaymentStatus  `json:"status"`
	AlreadySettled bool                 `json:"already_settled"`
}
