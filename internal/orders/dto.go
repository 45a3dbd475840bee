package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// OrderLineInput is a single (product, quantity) pair requested at
// order creation time.
type OrderLineInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput carries everything the creation path needs.
type CreateOrderInput struct {
	BuyerID   uuid.UUID
	Lines     []OrderLineInput
	Notes     *string
	ActorRole string
}

// CancelOrderInput identifies the order and the requesting buyer.
type CancelOrderInput struct {
	OrderID   uuid.UUID
	BuyerID   uuid.UUID
	ActorRole string
}

// BuyerOrderFilters describe the inputs supported by the order lists.
type BuyerOrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// BuyerOrderSummary exposes the aggregated fields returned in the buyer list.
type BuyerOrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	Status        enums.OrderStatus   `json:"status"`
	Currency      enums.Currency      `json:"currency"`
	TotalCents    int                 `json:"total_cents"`
	TotalItems    int                 `json:"total_items"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// BuyerOrderList wraps the paginated orders plus the next page cursor.
type BuyerOrderList struct {
	Orders     []BuyerOrderSummary `json:"orders"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// VendorOrderSummary exposes the slice of an order a vendor can see,
// scoped to their own line items and shipment.
type VendorOrderSummary struct {
	ID             uuid.UUID             `json:"id"`
	CreatedAt      time.Time             `json:"created_at"`
	Status         enums.OrderStatus     `json:"status"`
	Currency       enums.Currency        `json:"currency"`
	VendorCents    int                   `json:"vendor_cents"`
	VendorItems    int                   `json:"vendor_items"`
	ShipmentStatus *enums.ShipmentStatus `json:"shipment_status,omitempty"`
}

// VendorOrderList wraps paginated vendor orders plus the next cursor.
type VendorOrderList struct {
	Orders     []VendorOrderSummary `json:"orders"`
	NextCursor string               `json:"next_cursor,omitempty"`
}
