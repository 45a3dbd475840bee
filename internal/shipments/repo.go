package shipments

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// Repository persists per-vendor shipments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateShipments(ctx context.Context, shipments []models.Shipment) error
	FindShipment(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
	UpdateShipment(ctx context.Context, shipmentID uuid.UUID, from enums.ShipmentStatus, updates map[string]any) (bool, error)
	CountUndelivered(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateShipments(ctx context.Context, shipments []models.Shipment) error {
	if len(shipments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&shipments).Error
}

func (r *repository) FindShipment(ctx context.Context, shipmentID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("id = ?", shipmentID).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&shipments).Error
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

// UpdateShipment applies updates only while the shipment still holds
// the expected status, so racing updates cannot both win.
func (r *repository) UpdateShipment(ctx context.Context, shipmentID uuid.UUID, from enums.ShipmentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status = ?", shipmentID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountUndelivered(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("order_id = ? AND status <> ?", orderID, enums.ShipmentStatusDelivered).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GeneratePickupPIN returns the 6 digit code a buyer presents at
// handover.
func GeneratePickupPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
