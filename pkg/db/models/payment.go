package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// Payment tracks reconciliation of a single payment attempt. An order
// may accumulate several attempts over time but a partial unique index
// guarantees at most one reaches a settled state. ProviderRef is the
// provider-side transaction reference used to match webhooks.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'card'"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	AmountCents   int                 `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null;default:'KES'"`
	ProviderRef   *string             `gorm:"column:provider_ref;uniqueIndex"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CompletedAt   *time.Time          `gorm:"column:completed_at"`
	RefundedAt    *time.Time          `gorm:"column:refunded_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
