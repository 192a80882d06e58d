package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
)

// Ledger moves stock between the available and sold counters. Both moves are
// single conditional updates so concurrent orders for the last unit cannot
// both succeed; callers run them inside their own transaction.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger exposes the default inventory ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

// Reserve decrements available stock and increments sold for one product.
// Zero affected rows means the guard failed, either because the product has
// no ledger row or the remaining stock is short.
func (ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			sold_qty = sold_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID.String(), "requested_qty": qty})
	}
	return nil
}

// Release returns sold stock to available, used when an order is cancelled.
// The sold_qty guard keeps a double release from minting stock.
func (ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			sold_qty = sold_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND sold_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "release exceeds sold quantity").
			WithDetails(map[string]any{"product_id": productID.String(), "requested_qty": qty})
	}
	return nil
}
