package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
)

// CreatePaymentInput starts a new payment attempt for a pending order.
// Email is forwarded to the provider so it can address the checkout page.
type CreatePaymentInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	AmountCents int
	Currency    enums.Currency
	Method      enums.PaymentMethod
	Email       string
	ActorRole   string
}

// CreatePaymentResult returns the stored attempt plus the provider
// checkout handle when the provider call succeeded. ExpiresAt is the
// horizon after which the attempt may be swept as expired.
type CreatePaymentResult struct {
	Payment          *models.Payment
	AuthorizationURL string
	ExpiresAt        time.Time
}

// UpdateStatusInput applies a reconciliation outcome, typically sourced
// from a provider webhook.
type UpdateStatusInput struct {
	PaymentID     uuid.UUID
	Status        enums.PaymentStatus
	ProviderRef   *string
	FailureReason string
	ActorUserID   uuid.UUID
	ActorRole     string
}

// RefundInput reverses a completed payment.
type RefundInput struct {
	PaymentID   uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   string
}
