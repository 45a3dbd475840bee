package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
)

// StockReservationRequest asks for qty units of a product inside the
// caller's transaction.
type StockReservationRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// StockReservationResult reports per-product reservation outcomes.
type StockReservationResult struct {
	ProductID uuid.UUID
	Reserved  bool
	Reason    string
}

// Ledger mutates product stock. Both methods require the caller's
// transaction so reservation and release commit with the order rows.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []StockReservationRequest) ([]StockReservationResult, error)
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger exposes the default stock ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

// Reserve decrements stock for each request using a guarded UPDATE so
// concurrent checkouts can never drive stock_qty negative. A request
// that cannot be satisfied is reported, not errored, so the caller
// decides whether to roll back.
func (ledger) Reserve(ctx context.Context, tx *gorm.DB, requests []StockReservationRequest) ([]StockReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	results := make([]StockReservationResult, 0, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET stock_qty = stock_qty - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND stock_qty >= ?
		`, req.Qty, req.ProductID, req.Qty)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}

		result := StockReservationResult{ProductID: req.ProductID, Reserved: res.RowsAffected == 1}
		if !result.Reserved {
			result.Reason = "insufficient stock"
		}
		results = append(results, result)
	}
	return results, nil
}

// Restore returns qty units to a product, used when orders are
// cancelled before fulfillment.
func (ledger) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_qty = stock_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
	}
	return nil
}
