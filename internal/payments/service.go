package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/outbox/payloads"
	"github.com/tmakori/sokohub-backend/pkg/paystack"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Provider is the payment gateway surface the service depends on.
// *paystack.Client satisfies it.
type Provider interface {
	Initiate(ctx context.Context, req paystack.InitiateRequest) (*paystack.InitiateResponse, error)
	Refund(ctx context.Context, req paystack.RefundRequest) (*paystack.RefundResponse, error)
}

// Service reconciles payment attempts against orders.
type Service interface {
	Create(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Payment, error)
	ResolveByReference(ctx context.Context, reference string) (*models.Payment, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	ExpirePending(ctx context.Context, now time.Time) (int, error)
	Detail(ctx context.Context, paymentID, buyerID uuid.UUID) (*models.Payment, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	provider Provider
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

// NewService wires the payments service.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, provider Provider, cfg config.PaymentsConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments: repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("payments: tx runner is required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("payments: outbox publisher is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("payments: provider is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("payments: logger is required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outboxSvc,
		provider: provider,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

// Create records a pending attempt for the buyer's order, then tries to
// open a provider transaction. Provider failures are logged and do not
// fail the attempt; the webhook or a later retry completes the story.
func (s *service) Create(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requesting user is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.Method))
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", input.OrderID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to a different user")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order is %s, payments can only be created for pending orders", order.Status))
	}
	if input.AmountCents != order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("payment amount %d does not match order total %d", input.AmountCents, order.TotalCents))
	}
	if input.Currency != order.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("payment currency %s does not match order currency %s", input.Currency, order.Currency))
	}

	if s.cfg.MaxPendingAttempts > 0 {
		open, err := s.repo.CountOpenAttempts(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open attempts")
		}
		if open >= int64(s.cfg.MaxPendingAttempts) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("order already has %d open payment attempts", open))
		}
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Method:      input.Method,
		Status:      enums.PaymentStatusPending,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
	}
	if _, err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	result := &CreatePaymentResult{
		Payment:   payment,
		ExpiresAt: time.Now().UTC().Add(s.cfg.PendingTTL),
	}

	if input.Method.RequiresProvider() {
		resp, err := s.provider.Initiate(ctx, paystack.InitiateRequest{
			Reference:   payment.ID.String(),
			AmountMinor: payment.AmountCents,
			Currency:    payment.Currency.String(),
			Email:       input.Email,
			CallbackURL: s.cfg.CallbackURL,
		})
		if err != nil {
			// The attempt stays pending; reconciliation happens via
			// webhook or the expiry sweep.
			pctx := s.logg.WithPaymentID(ctx, payment.ID.String())
			s.logg.Warn(pctx, "payment provider initiate failed: "+err.Error())
		} else {
			result.AuthorizationURL = resp.AuthorizationURL
			if resp.Reference != "" && resp.Reference != payment.ID.String() {
				ref := resp.Reference
				if _, err := s.repo.UpdatePayment(ctx, payment.ID, enums.PaymentStatusPending, map[string]any{
					"provider_ref": ref,
				}); err == nil {
					payment.ProviderRef = &ref
				}
			}
		}
	}

	return result, nil
}

// UpdateStatus applies a completed or failed outcome. Attempts already
// in a terminal state are returned unchanged so duplicate webhook
// deliveries succeed without side effects.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Payment, error) {
	if input.Status != enums.PaymentStatusCompleted && input.Status != enums.PaymentStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status %q is not a reconciliation outcome", input.Status))
	}

	payment, err := s.repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", input.PaymentID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	order, err := s.repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{"status": input.Status}
		if input.ProviderRef != nil {
			updates["provider_ref"] = *input.ProviderRef
		}
		switch input.Status {
		case enums.PaymentStatusCompleted:
			updates["completed_at"] = now
		case enums.PaymentStatusFailed:
			updates["failure_reason"] = input.FailureReason
		}

		updated, err := repo.UpdatePayment(ctx, payment.ID, enums.PaymentStatusPending, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if !updated {
			// Lost a race with another delivery. The re-read below
			// turns this into the idempotent no-op path.
			return errConcurrentReconcile
		}

		payment.Status = input.Status
		if input.ProviderRef != nil {
			payment.ProviderRef = input.ProviderRef
		}
		if input.Status == enums.PaymentStatusCompleted {
			payment.CompletedAt = &now
			// The guard tolerates an order that moved on, e.g. one
			// cancelled while the charge settled.
			if _, err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusProcessing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order")
			}
		} else {
			payment.FailureReason = &input.FailureReason
		}

		eventType := enums.EventPaymentCompleted
		if input.Status == enums.PaymentStatusFailed {
			eventType = enums.EventPaymentFailed
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: payloads.PaymentStatusEvent{
				PaymentID:     payment.ID,
				OrderID:       payment.OrderID,
				BuyerID:       order.BuyerID,
				Status:        input.Status,
				AmountCents:   payment.AmountCents,
				ProviderRef:   payment.ProviderRef,
				FailureReason: input.FailureReason,
			},
		})
	})
	if errors.Is(err, errConcurrentReconcile) {
		current, findErr := s.repo.FindPayment(ctx, payment.ID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload payment")
		}
		if current.Status.IsTerminal() {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment changed concurrently, retry")
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ResolveByReference finds the attempt a provider webhook refers to.
// Paystack echoes back the reference we initiated with, which is the
// payment id, but manual retries may only carry the provider ref.
func (s *service) ResolveByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if id, err := uuid.Parse(reference); err == nil {
		payment, err := s.repo.FindPayment(ctx, id)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
	}
	payment, err := s.repo.FindPaymentByProviderRef(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no payment for reference %q", reference))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by reference")
	}
	return payment, nil
}

// Refund reverses a completed payment. The provider is asked first;
// nothing is mutated locally if that call fails. On success the payment
// moves to refunded and the order is cancelled. Stock is not restored,
// returned goods re-enter inventory through a separate receiving flow.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", input.PaymentID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	order, err := s.repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.ActorRole != "admin" && order.BuyerID != input.ActorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to a different user")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, only completed payments can be refunded", payment.Status))
	}

	transactionRef := payment.ID.String()
	if payment.ProviderRef != nil {
		transactionRef = *payment.ProviderRef
	}
	if _, err := s.provider.Refund(ctx, paystack.RefundRequest{
		TransactionRef: transactionRef,
		AmountMinor:    payment.AmountCents,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provider refund")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updated, err := repo.UpdatePayment(ctx, payment.ID, enums.PaymentStatusCompleted, map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"refunded_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment changed concurrently, retry")
		}
		if err := repo.CancelOrder(ctx, order.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		payment.Status = enums.PaymentStatusRefunded
		payment.RefundedAt = &now

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: payloads.PaymentRefundedEvent{
				PaymentID:   payment.ID,
				OrderID:     payment.OrderID,
				BuyerID:     order.BuyerID,
				AmountCents: payment.AmountCents,
				RefundedAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ExpirePending fails pending attempts older than the configured TTL.
// Invoked by the cron sweep; returns how many attempts were expired.
func (s *service) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.PendingTTL)
	stale, err := s.repo.ListExpiredPending(ctx, cutoff, 100)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired pending")
	}

	expired := 0
	for i := range stale {
		payment := stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			updated, err := repo.UpdatePayment(ctx, payment.ID, enums.PaymentStatusPending, map[string]any{
				"status":         enums.PaymentStatusFailed,
				"failure_reason": "expired",
			})
			if err != nil {
				return err
			}
			if !updated {
				// Reconciled between the scan and the sweep.
				return nil
			}
			expired++
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentExpired,
				AggregateType: enums.AggregatePayment,
				AggregateID:   payment.ID,
				Version:       1,
				Data: payloads.PaymentExpiredEvent{
					PaymentID: payment.ID,
					OrderID:   payment.OrderID,
					ExpiredAt: now,
				},
			})
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment")
		}
	}
	return expired, nil
}

// Detail returns a payment the buyer owns.
func (s *service) Detail(ctx context.Context, paymentID, buyerID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("payment %s not found", paymentID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	order, err := s.repo.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to a different user")
	}
	return payment, nil
}

var errConcurrentReconcile = errors.New("payments: concurrent reconcile")

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
