package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// Repository encapsulates cart persistence. A buyer has at most one
// active cart, enforced by a partial unique index.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error)
	FindByIDAndBuyer(ctx context.Context, id, buyerID uuid.UUID) (*models.CartRecord, error)
	Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error)
	UpsertItem(ctx context.Context, cartID uuid.UUID, item *models.CartItem) error
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error
	MarkCheckedOut(ctx context.Context, id, buyerID uuid.UUID, convertedAt time.Time) (bool, error)
	MarkAbandoned(ctx context.Context, id, buyerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_id = ? AND status = ?", buyerID, enums.CartStatusActive).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByIDAndBuyer(ctx context.Context, id, buyerID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND buyer_id = ?", id, buyerID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error) {
	if record.Status == "" {
		record.Status = enums.CartStatusActive
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertItem inserts the cart line or replaces its quantity and price
// if the product is already in the cart.
func (r *repository) UpsertItem(ctx context.Context, cartID uuid.UUID, item *models.CartItem) error {
	var existing models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, item.ProductID).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		item.CartID = cartID
		return r.db.WithContext(ctx).Create(item).Error
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"quantity":         item.Quantity,
			"unit_price_cents": item.UnitPriceCents,
		}).Error
}

func (r *repository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

// MarkCheckedOut closes the cart so it cannot back another order. The
// status guard makes concurrent checkouts of the same cart lose cleanly.
func (r *repository) MarkCheckedOut(ctx context.Context, id, buyerID uuid.UUID, convertedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ? AND buyer_id = ? AND status = ?", id, buyerID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":       enums.CartStatusCheckedOut,
			"converted_at": convertedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkAbandoned(ctx context.Context, id, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ? AND buyer_id = ? AND status = ?", id, buyerID, enums.CartStatusActive).
		Update("status", enums.CartStatusAbandoned).Error
}
