package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order split across vendor shipments.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	BuyerID     uuid.UUID   `json:"buyer_id"`
	ShipmentIDs []uuid.UUID `json:"shipment_ids"`
	TotalCents  int         `json:"total_cents"`
}

// OrderCancelledEvent is emitted when a buyer cancels a pending order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// PaymentStatusEvent carries a payment reconciliation outcome.
type PaymentStatusEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int                 `json:"amount_cents"`
	ProviderRef   *string             `json:"provider_ref,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// PaymentRefundedEvent is emitted once a completed payment is refunded.
type PaymentRefundedEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	AmountCents int       `json:"amount_cents"`
	RefundedAt  time.Time `json:"refunded_at"`
}

// PaymentExpiredEvent reports a pending payment swept past its TTL.
type PaymentExpiredEvent struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// ShipmentStatusChangedEvent tracks vendor fulfillment progress.
type ShipmentStatusChangedEvent struct {
	ShipmentID uuid.UUID            `json:"shipment_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	VendorID   uuid.UUID            `json:"vendor_id"`
	Status     enums.ShipmentStatus `json:"status"`
}

// NotificationRequestedEvent tells the notification consumer to record
// an in-app notification for the recipient.
type NotificationRequestedEvent struct {
	RecipientID uuid.UUID              `json:"recipient_id"`
	Type        enums.NotificationType `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Link        string                 `json:"link,omitempty"`
}
