package vouchers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/dhanwira/lokapasar-backend/pkg/db"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines voucher operations: administration, claiming, and the
// discount evaluation the order builder calls during checkout.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Voucher, error)
	Claim(ctx context.Context, userID, voucherID uuid.UUID) (*models.UserVoucher, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]ClaimSummary, error)
	Evaluate(ctx context.Context, tx *gorm.DB, input EvaluateInput) (*Evaluation, error)
	ConsumeRedemption(ctx context.Context, tx *gorm.DB, claimID, orderID uuid.UUID) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// CreateInput carries a new voucher definition. ShopID nil means the voucher
// applies platform-wide.
type CreateInput struct {
	ShopID    *uuid.UUID
	Code      string
	Type      enums.VoucherType
	Value     int64
	MinSpend  int64
	MaxAmount int64
	Quantity  int
	StartsAt  time.Time
	ExpiresAt time.Time
}

// EvaluateInput identifies the claim to apply against an order subtotal.
type EvaluateInput struct {
	UserID    uuid.UUID
	VoucherID uuid.UUID
	ShopID    uuid.UUID
	Subtotal  int64
	Now       time.Time
}

// Evaluation is the outcome of applying a claimed voucher to a subtotal.
type Evaluation struct {
	Discount int64
	ClaimID  uuid.UUID
}

// ClaimSummary is the customer-facing view of a claimed voucher.
type ClaimSummary struct {
	ClaimID   uuid.UUID         `json:"claim_id"`
	VoucherID uuid.UUID         `json:"voucher_id"`
	Code      string            `json:"code"`
	Type      enums.VoucherType `json:"type"`
	Value     int64             `json:"value"`
	MinSpend  int64             `json:"min_spend"`
	ShopID    *uuid.UUID        `json:"shop_id,omitempty"`
	Used      bool              `json:"used"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// NewService builds a voucher service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vouchers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Voucher, error) {
	if input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher type must be percent or fixed")
	}
	if input.Type == enums.VoucherTypePercent && (input.Value < 1 || input.Value > 100) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percent value must be between 1 and 100")
	}
	if input.Type == enums.VoucherTypeFixed && input.Value <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fixed value must be positive")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.ExpiresAt.After(input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry must be after start")
	}

	voucher := &models.Voucher{
		ID:        uuid.New(),
		ShopID:    input.ShopID,
		Code:      input.Code,
		Type:      input.Type,
		Value:     input.Value,
		MinSpend:  input.MinSpend,
		MaxAmount: input.MaxAmount,
		Quantity:  input.Quantity,
		StartsAt:  input.StartsAt,
		ExpiresAt: input.ExpiresAt,
	}
	created, err := s.repo.CreateVoucher(ctx, voucher)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "voucher code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
	}
	return created, nil
}

func (s *service) Claim(ctx context.Context, userID, voucherID uuid.UUID) (*models.UserVoucher, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if voucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}

	var claim *models.UserVoucher
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		voucher, err := repo.FindVoucherByID(ctx, voucherID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if !time.Now().Before(voucher.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher expired")
		}

		ok, err := repo.DecrementQuantity(ctx, voucherID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement voucher quantity")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher exhausted")
		}

		claim, err = repo.CreateClaim(ctx, &models.UserVoucher{
			ID:        uuid.New(),
			UserID:    userID,
			VoucherID: voucherID,
		})
		if err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "voucher already claimed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create claim")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]ClaimSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	claims, err := s.repo.ListClaimsByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list claims")
	}

	summaries := make([]ClaimSummary, 0, len(claims))
	for _, claim := range claims {
		summary := ClaimSummary{
			ClaimID:   claim.ID,
			VoucherID: claim.VoucherID,
			Used:      claim.Used,
		}
		if claim.Voucher != nil {
			summary.Code = claim.Voucher.Code
			summary.Type = claim.Voucher.Type
			summary.Value = claim.Voucher.Value
			summary.MinSpend = claim.Voucher.MinSpend
			summary.ShopID = claim.Voucher.ShopID
			summary.ExpiresAt = claim.Voucher.ExpiresAt
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Evaluate resolves a claimed voucher against an order subtotal. It runs
// inside the caller's transaction and does not consume the claim; the order
// builder does that once the order row exists.
func (s *service) Evaluate(ctx context.Context, tx *gorm.DB, input EvaluateInput) (*Evaluation, error) {
	if input.VoucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	repo := s.repo.WithTx(tx)

	claim, err := repo.FindClaim(ctx, input.UserID, input.VoucherID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not claimed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher claim")
	}
	if claim.Used {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "voucher already used")
	}
	voucher := claim.Voucher
	if voucher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	if now.Before(voucher.StartsAt) || !now.Before(voucher.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "voucher is outside its validity window")
	}
	if voucher.ShopID != nil && *voucher.ShopID != input.ShopID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "voucher does not apply to this shop")
	}
	if input.Subtotal < voucher.MinSpend {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order subtotal below voucher minimum").
			WithDetails(map[string]any{"min_spend": voucher.MinSpend, "subtotal": input.Subtotal})
	}

	return &Evaluation{
		Discount: computeDiscount(voucher, input.Subtotal),
		ClaimID:  claim.ID,
	}, nil
}

// ConsumeRedemption flips the claim to used and links the order. Zero rows
// means a concurrent order got there first.
func (s *service) ConsumeRedemption(ctx context.Context, tx *gorm.DB, claimID, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	ok, err := repo.MarkClaimUsed(ctx, claimID, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume voucher claim")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "voucher already used")
	}
	return nil
}

// computeDiscount applies the voucher to the subtotal. Percent discounts are
// capped at max_amount when set; every discount is clamped to the subtotal so
// totals never go negative.
func computeDiscount(voucher *models.Voucher, subtotal int64) int64 {
	var discount int64
	switch voucher.Type {
	case enums.VoucherTypePercent:
		discount = subtotal * voucher.Value / 100
		if voucher.MaxAmount > 0 && discount > voucher.MaxAmount {
			discount = voucher.MaxAmount
		}
	case enums.VoucherTypeFixed:
		discount = voucher.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
