package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/paypal"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Service opens gateway intents and settles them. Settlement is the single
// shared path for the redirect callback and the webhook.
type Service interface {
	CreateOrderIntent(ctx context.Context, orderID uuid.UUID, amount int64) (*Redirect, error)
	CreateShopRegistrationIntent(ctx context.Context, shopID uuid.UUID, amount int64) (*Redirect, error)
	Settle(ctx context.Context, intentID string) (*SettlementResult, error)
	SettleWebhookEvent(ctx context.Context, eventID, intentID string) (*SettlementResult, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	gateway    Gateway
	orders     OrderMarker
	shops      ShopApprover
	dedupe     idempotencyStore
	webhookTTL time.Duration
}

// NewService builds the payment service with the required dependencies. The
// dedupe store is optional; without it webhook replays fall through to the
// conditional update, which stays authoritative either way.
func NewService(
	repo Repository,
	tx txRunner,
	gateway Gateway,
	orders OrderMarker,
	shops ShopApprover,
	dedupe idempotencyStore,
	webhookTTL time.Duration,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order marker required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop approver required")
	}
	if webhookTTL <= 0 {
		webhookTTL = 30 * 24 * time.Hour
	}
	return &service{
		repo:       repo,
		tx:         tx,
		gateway:    gateway,
		orders:     orders,
		shops:      shops,
		dedupe:     dedupe,
		webhookTTL: webhookTTL,
	}, nil
}

func (s *service) CreateOrderIntent(ctx context.Context, orderID uuid.UUID, amount int64) (*Redirect, error) {
	return s.createIntent(ctx, enums.PaymentSubjectOrder, orderID, amount)
}

func (s *service) CreateShopRegistrationIntent(ctx context.Context, shopID uuid.UUID, amount int64) (*Redirect, error) {
	return s.createIntent(ctx, enums.PaymentSubjectShopRegistration, shopID, amount)
}

// createIntent opens the gateway order first and records it second, so a
// gateway failure leaves no dangling pending record. The subject reference
// rides the gateway custom id for reconciliation from raw webhook payloads.
func (s *service) createIntent(ctx context.Context, subject enums.PaymentSubject, subjectID uuid.UUID, amount int64) (*Redirect, error) {
	if subjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment subject id required")
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	intent, err := s.gateway.CreateOrder(ctx, paypal.OrderCreateParams{
		ReferenceID: subjectID.String(),
		CustomID:    SubjectRef(subject, subjectID),
		AmountLocal: amount,
	})
	if err != nil {
		return nil, err
	}

	record := &models.PaymentRecord{
		ID:          uuid.New(),
		SubjectType: subject,
		SubjectID:   subjectID,
		IntentID:    intent.ID,
		Amount:      amount,
		Status:      enums.PaymentStatusPending,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment intent")
	}

	return &Redirect{IntentID: intent.ID, RedirectURL: intent.ApproveURL}, nil
}

// Settle captures an approved intent and applies its subject effect. Safe to
// call any number of times for the same intent: the capture itself tolerates
// repeats, and the conditional status flip lets exactly one caller through.
func (s *service) Settle(ctx context.Context, intentID string) (*SettlementResult, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id required")
	}

	record, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment record")
	}
	if record.Status == enums.PaymentStatusSuccess {
		return &SettlementResult{
			SubjectType:    record.SubjectType,
			SubjectID:      record.SubjectID,
			Status:         record.Status,
			AlreadySettled: true,
		}, nil
	}

	// Capture runs outside any DB transaction; it is a network call with its
	// own timeout.
	captured, err := s.gateway.CaptureOrder(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if captured.Status != "COMPLETED" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway capture did not complete").
			WithDetails(map[string]any{"gateway_status": captured.Status})
	}

	result := &SettlementResult{
		SubjectType: record.SubjectType,
		SubjectID:   record.SubjectID,
		Status:      enums.PaymentStatusSuccess,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.MarkSuccess(ctx, intentID, captured.CaptureID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment record")
		}
		if !won {
			// Another delivery settled first; its transaction applied the
			// subject effect.
			result.AlreadySettled = true
			return nil
		}

		switch record.SubjectType {
		case enums.PaymentSubjectOrder:
			return s.orders.MarkPaid(ctx, tx, record.SubjectID)
		case enums.PaymentSubjectShopRegistration:
			if _, err := s.shops.Approve(ctx, tx, record.SubjectID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve shop")
			}
			return nil
		default:
			return pkgerrors.New(pkgerrors.CodeInternal, "unknown payment subject type")
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SettleWebhookEvent settles from a webhook delivery. The redis guard drops
// byte-for-byte replays cheaply; the conditional update in Settle remains
// the authoritative gate.
func (s *service) SettleWebhookEvent(ctx context.Context, eventID, intentID string) (*SettlementResult, error) {
	if s.dedupe != nil && eventID != "" {
		key := s.dedupe.IdempotencyKey("gateway-webhook", eventID)
		first, err := s.dedupe.SetNX(ctx, key, "1", s.webhookTTL)
		if err == nil && !first {
			record, lookupErr := s.repo.FindByIntentID(ctx, intentID)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "load payment record")
			}
			return &SettlementResult{
				SubjectType:    record.SubjectType,
				SubjectID:      record.SubjectID,
				Status:         record.Status,
				AlreadySettled: true,
			}, nil
		}
		// A guard error is not fatal; settlement stays idempotent without it.
	}
	return s.Settle(ctx, intentID)
}

// SubjectRef encodes the settlement subject for the gateway custom id.
func SubjectRef(subject enums.PaymentSubject, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", subject, id)
}
