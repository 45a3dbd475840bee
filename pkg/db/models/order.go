package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// Order is a buyer order spanning one or more vendors.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Currency         enums.Currency    `gorm:"column:currency;type:text;not null;default:'KES'"`
	SubtotalCents    int               `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents int               `gorm:"column:shipping_fee_cents;not null;default:0"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	Notes            *string           `gorm:"column:notes"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments         []Payment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipments        []Shipment        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
