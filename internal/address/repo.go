package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
)

// Repository persists buyer shipping addresses. Checkout only consults
// Exists; the rest backs the address book endpoints.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, addr *models.Address) (*models.Address, error)
	FindByIDAndBuyer(ctx context.Context, id, buyerID uuid.UUID) (*models.Address, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Address, error)
	Exists(ctx context.Context, id, buyerID uuid.UUID) (bool, error)
	Delete(ctx context.Context, id, buyerID uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, addr *models.Address) (*models.Address, error) {
	if err := r.db.WithContext(ctx).Create(addr).Error; err != nil {
		return nil, err
	}
	return addr, nil
}

func (r *repository) FindByIDAndBuyer(ctx context.Context, id, buyerID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND buyer_id = ?", id, buyerID).
		First(&addr).Error
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Address, error) {
	var addrs []models.Address
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("is_default DESC, created_at DESC").
		Find(&addrs).Error
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

func (r *repository) Exists(ctx context.Context, id, buyerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("id = ? AND buyer_id = ?", id, buyerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Delete(ctx context.Context, id, buyerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND buyer_id = ?", id, buyerID).
		Delete(&models.Address{}).Error
}
