package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderLines(ctx context.Context, lines []models.OrderLine) error
	AppendStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListStatusEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEvent, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	MarkDeleted(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// InventoryLedger moves stock for order lines inside the order transaction.
type InventoryLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// DiscountEvaluator resolves and consumes voucher claims during checkout.
type DiscountEvaluator interface {
	Evaluate(ctx context.Context, tx *gorm.DB, input DiscountInput) (int64, uuid.UUID, error)
	ConsumeRedemption(ctx context.Context, tx *gorm.DB, claimID, orderID uuid.UUID) error
}

// DiscountInput mirrors the voucher evaluation contract without importing
// the vouchers package.
type DiscountInput struct {
	UserID    uuid.UUID
	VoucherID uuid.UUID
	ShopID    uuid.UUID
	Subtotal  int64
}

// ShopFinder resolves the shop an order targets.
type ShopFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

// ProductFinder resolves products for line snapshotting.
type ProductFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// AddressFinder resolves the delivery address.
type AddressFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

// CartCleaner removes ordered products from the customer's cart inside the
// order transaction. Cart entries for other products stay untouched.
type CartCleaner interface {
	ClearItems(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) error
}

// IntentCreator opens a gateway payment intent for an order. The payments
// package provides the implementation.
type IntentCreator interface {
	CreateOrderIntent(ctx context.Context, orderID uuid.UUID, amount int64) (*payments.Redirect, error)
}
