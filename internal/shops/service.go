package shops

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/internal/payments"
	pkgdb "github.com/dhanwira/lokapasar-backend/pkg/db"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
)

// FeeIntentCreator opens the registration-fee gateway intent. The payments
// package provides the implementation.
type FeeIntentCreator interface {
	CreateShopRegistrationIntent(ctx context.Context, shopID uuid.UUID, amount int64) (*payments.Redirect, error)
}

// Service defines shop registration and lookup operations. Approval only
// happens through the payment reconciler when the fee settles.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
	Approve(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error)
}

// RegisterInput carries a new shop registration.
type RegisterInput struct {
	OwnerID uuid.UUID
	Name    string
}

// RegisterResult reports the pending shop plus the fee payment handoff.
type RegisterResult struct {
	ShopID  uuid.UUID          `json:"shop_id"`
	Slug    string             `json:"slug"`
	Status  enums.ShopStatus   `json:"status"`
	Fee     int64              `json:"fee"`
	Payment *payments.Redirect `json:"payment"`
}

type service struct {
	repo    Repository
	intents FeeIntentCreator
	fee     int64
}

// NewService builds the shop service. fee is the registration fee in local
// currency units.
func NewService(repo Repository, intents FeeIntentCreator, fee int64) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shops repository required")
	}
	if intents == nil {
		return nil, fmt.Errorf("fee intent creator required")
	}
	if fee <= 0 {
		return nil, fmt.Errorf("registration fee must be positive")
	}
	return &service{repo: repo, intents: intents, fee: fee}, nil
}

// Register creates the pending shop and opens the fee intent. A gateway
// failure leaves the pending shop in place; re-registering surfaces the
// conflict and the client retries payment out of band.
func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop name required")
	}

	shop := &models.Shop{
		ID:      uuid.New(),
		OwnerID: input.OwnerID,
		Name:    name,
		Slug:    slugify(name),
		Status:  enums.ShopStatusPending,
	}
	created, err := s.repo.Create(ctx, shop)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "shop already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shop")
	}

	redirect, err := s.intents.CreateShopRegistrationIntent(ctx, created.ID, s.fee)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create registration fee intent").
			WithDetails(map[string]any{"shop_id": created.ID.String()})
	}

	return &RegisterResult{
		ShopID:  created.ID,
		Slug:    created.Slug,
		Status:  created.Status,
		Fee:     s.fee,
		Payment: redirect,
	}, nil
}

func (s *service) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	return s.repo.FindByID(ctx, id)
}

// Approve runs inside the settlement transaction via the repository rebind.
func (s *service) Approve(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error) {
	return s.repo.WithTx(tx).Approve(ctx, shopID)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = uuid.NewString()[:8]
	}
	return slug
}
