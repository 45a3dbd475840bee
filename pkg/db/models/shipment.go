package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// Shipment is the per-vendor fulfillment unit of an order. PickupPIN is
// presented by the buyer at handover to confirm delivery.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	VendorID       uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null"`
	AddressID      uuid.UUID            `gorm:"column:address_id;type:uuid;not null"`
	Status         enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null;default:'created'"`
	Carrier        *string              `gorm:"column:carrier"`
	TrackingNumber *string              `gorm:"column:tracking_number"`
	Notes          *string              `gorm:"column:notes"`
	PickupPIN      string               `gorm:"column:pickup_pin;not null"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
