package payments

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/paystack"
)

type stubPaymentsRepo struct {
	payments     map[uuid.UUID]*models.Payment
	orders       map[uuid.UUID]*models.Order
	openAttempts int64

	orderAdvances []enums.OrderStatus
	cancelledIDs  []uuid.UUID
}

func newStubPaymentsRepo() *stubPaymentsRepo {
	return &stubPaymentsRepo{
		payments: map[uuid.UUID]*models.Payment{},
		orders:   map[uuid.UUID]*models.Order{},
	}
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) CreatePayment(_ context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *stubPaymentsRepo) FindPayment(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (s *stubPaymentsRepo) FindPaymentByProviderRef(_ context.Context, providerRef string) (*models.Payment, error) {
	for _, payment := range s.payments {
		if payment.ProviderRef != nil && *payment.ProviderRef == providerRef {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPaymentsRepo) FindOrder(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubPaymentsRepo) CountOpenAttempts(_ context.Context, _ uuid.UUID) (int64, error) {
	return s.openAttempts, nil
}

func (s *stubPaymentsRepo) UpdatePayment(_ context.Context, paymentID uuid.UUID, from enums.PaymentStatus, updates map[string]any) (bool, error) {
	payment, ok := s.payments[paymentID]
	if !ok || payment.Status != from {
		return false, nil
	}
	for key, value := range updates {
		switch key {
		case "status":
			payment.Status = value.(enums.PaymentStatus)
		case "provider_ref":
			ref := value.(string)
			payment.ProviderRef = &ref
		case "failure_reason":
			reason := value.(string)
			payment.FailureReason = &reason
		case "completed_at":
			at := value.(time.Time)
			payment.CompletedAt = &at
		case "refunded_at":
			at := value.(time.Time)
			payment.RefundedAt = &at
		}
	}
	return true, nil
}

func (s *stubPaymentsRepo) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	s.orderAdvances = append(s.orderAdvances, to)
	return true, nil
}

func (s *stubPaymentsRepo) CancelOrder(_ context.Context, orderID uuid.UUID, cancelledAt time.Time) error {
	order, ok := s.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelledAt = &cancelledAt
	s.cancelledIDs = append(s.cancelledIDs, orderID)
	return nil
}

func (s *stubPaymentsRepo) ListExpiredPending(_ context.Context, cutoff time.Time, _ int) ([]models.Payment, error) {
	var stale []models.Payment
	for _, payment := range s.payments {
		if payment.Status == enums.PaymentStatusPending && payment.CreatedAt.Before(cutoff) {
			stale = append(stale, *payment)
		}
	}
	return stale, nil
}

type stubProvider struct {
	initiateCalls []paystack.InitiateRequest
	refundCalls   []paystack.RefundRequest
	initiateErr   error
	refundErr     error
	providerRef   string
}

func (s *stubProvider) Initiate(_ context.Context, req paystack.InitiateRequest) (*paystack.InitiateResponse, error) {
	s.initiateCalls = append(s.initiateCalls, req)
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	ref := req.Reference
	if s.providerRef != "" {
		ref = s.providerRef
	}
	return &paystack.InitiateResponse{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		AccessCode:       "ac_test",
		Reference:        ref,
	}, nil
}

func (s *stubProvider) Refund(_ context.Context, req paystack.RefundRequest) (*paystack.RefundResponse, error) {
	s.refundCalls = append(s.refundCalls, req)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &paystack.RefundResponse{RefundRef: "rf_test", Status: "processed"}, nil
}

type stubPublisher struct {
	events []outbox.DomainEvent
}

func (s *stubPublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type paymentsFixture struct {
	repo      *stubPaymentsRepo
	provider  *stubProvider
	publisher *stubPublisher
	svc       Service
	buyerID   uuid.UUID
	order     *models.Order
}

func newPaymentsFixture(t *testing.T, cfg config.PaymentsConfig) *paymentsFixture {
	t.Helper()

	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = 30 * time.Minute
	}

	repo := newStubPaymentsRepo()
	provider := &stubProvider{}
	publisher := &stubPublisher{}
	logg := logger.New(logger.Options{Output: io.Discard})

	svc, err := NewService(repo, stubTxRunner{}, publisher, provider, cfg, logg)
	require.NoError(t, err)

	buyerID := uuid.New()
	order := &models.Order{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		Status:        enums.OrderStatusPending,
		Currency:      enums.CurrencyKES,
		SubtotalCents: 5000,
		TotalCents:    5000,
	}
	repo.orders[order.ID] = order

	return &paymentsFixture{
		repo:      repo,
		provider:  provider,
		publisher: publisher,
		svc:       svc,
		buyerID:   buyerID,
		order:     order,
	}
}

func (f *paymentsFixture) createInput() CreatePaymentInput {
	return CreatePaymentInput{
		OrderID:     f.order.ID,
		BuyerID:     f.buyerID,
		AmountCents: 5000,
		Currency:    enums.CurrencyKES,
		Method:      enums.PaymentMethodCard,
		Email:       "buyer@example.com",
	}
}

func TestCreatePaymentInitiatesProviderTransaction(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})

	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, 5000, result.Payment.AmountCents)
	assert.NotEmpty(t, result.AuthorizationURL)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), result.ExpiresAt, 5*time.Second)

	require.Len(t, f.provider.initiateCalls, 1)
	call := f.provider.initiateCalls[0]
	assert.Equal(t, result.Payment.ID.String(), call.Reference)
	assert.Equal(t, 5000, call.AmountMinor)
	assert.Equal(t, "KES", call.Currency)
}

func TestCreatePaymentSurvivesProviderOutage(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	f.provider.initiateErr = errors.New("gateway timeout")

	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Empty(t, result.AuthorizationURL)
	assert.Contains(t, f.repo.payments, result.Payment.ID)
}

func TestCreatePaymentRejectsForeignOrder(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})

	input := f.createInput()
	input.BuyerID = uuid.New()

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestCreatePaymentRequiresPendingOrder(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	f.order.Status = enums.OrderStatusProcessing

	_, err := f.svc.Create(context.Background(), f.createInput())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, f.provider.initiateCalls)
}

func TestCreatePaymentRejectsAmountMismatch(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})

	input := f.createInput()
	input.AmountCents = 4999

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCreatePaymentEnforcesAttemptCap(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{MaxPendingAttempts: 2})
	f.repo.openAttempts = 2

	_, err := f.svc.Create(context.Background(), f.createInput())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreatePaymentUnlimitedAttemptsByDefault(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	f.repo.openAttempts = 25

	_, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)
}

func TestUpdateStatusCompletedAdvancesOrder(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	ref := "ps_ref_1"
	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID:   result.Payment.ID,
		Status:      enums.PaymentStatusCompleted,
		ProviderRef: &ref,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, enums.OrderStatusProcessing, f.repo.orders[f.order.ID].Status)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, enums.EventPaymentCompleted, f.publisher.events[0].EventType)
}

func TestUpdateStatusIsIdempotentOnTerminalPayments(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	ref := "ps_ref_1"
	first, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID:   result.Payment.ID,
		Status:      enums.PaymentStatusCompleted,
		ProviderRef: &ref,
	})
	require.NoError(t, err)

	// Duplicate webhook delivery succeeds without touching anything.
	second, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID: result.Payment.ID,
		Status:    enums.PaymentStatusCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, f.publisher.events, 1)
	assert.Len(t, f.repo.orderAdvances, 1)
}

func TestUpdateStatusFailedLeavesOrderPending(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID:     result.Payment.ID,
		Status:        enums.PaymentStatusFailed,
		FailureReason: "card declined",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusFailed, updated.Status)
	require.NotNil(t, updated.FailureReason)
	assert.Equal(t, "card declined", *updated.FailureReason)
	assert.Equal(t, enums.OrderStatusPending, f.repo.orders[f.order.ID].Status)
	assert.Empty(t, f.repo.orderAdvances)

	// The buyer can open a fresh attempt for the same order.
	retry, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)
	assert.NotEqual(t, result.Payment.ID, retry.Payment.ID)
}

func TestUpdateStatusUnknownPayment(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID: uuid.New(),
		Status:    enums.PaymentStatusCompleted,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestResolveByReferenceMatchesPaymentIDAndProviderRef(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	byID, err := f.svc.ResolveByReference(context.Background(), result.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, result.Payment.ID, byID.ID)

	ref := "ps_ref_9"
	f.repo.payments[result.Payment.ID].ProviderRef = &ref
	byRef, err := f.svc.ResolveByReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, result.Payment.ID, byRef.ID)

	_, err = f.svc.ResolveByReference(context.Background(), "unknown-ref")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRefundReversesPaymentAndCancelsOrder(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	ref := "ps_ref_1"
	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID:   result.Payment.ID,
		Status:      enums.PaymentStatusCompleted,
		ProviderRef: &ref,
	})
	require.NoError(t, err)

	refunded, err := f.svc.Refund(context.Background(), RefundInput{
		PaymentID:   result.Payment.ID,
		ActorUserID: f.buyerID,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, enums.OrderStatusCancelled, f.repo.orders[f.order.ID].Status)

	require.Len(t, f.provider.refundCalls, 1)
	assert.Equal(t, ref, f.provider.refundCalls[0].TransactionRef)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, enums.EventPaymentRefunded, f.publisher.events[1].EventType)
}

func TestRefundAbortsWhenProviderFails(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID: result.Payment.ID,
		Status:    enums.PaymentStatusCompleted,
	})
	require.NoError(t, err)

	f.provider.refundErr = errors.New("refund endpoint down")
	_, err = f.svc.Refund(context.Background(), RefundInput{
		PaymentID:   result.Payment.ID,
		ActorUserID: f.buyerID,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	// Nothing was mutated locally.
	assert.Equal(t, enums.PaymentStatusCompleted, f.repo.payments[result.Payment.ID].Status)
	assert.Equal(t, enums.OrderStatusProcessing, f.repo.orders[f.order.ID].Status)
	assert.Empty(t, f.repo.cancelledIDs)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), RefundInput{
		PaymentID:   result.Payment.ID,
		ActorUserID: f.buyerID,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Empty(t, f.provider.refundCalls)
}

func TestRefundTwiceIsRejected(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID: result.Payment.ID,
		Status:    enums.PaymentStatusCompleted,
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), RefundInput{PaymentID: result.Payment.ID, ActorUserID: f.buyerID})
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), RefundInput{PaymentID: result.Payment.ID, ActorUserID: f.buyerID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Len(t, f.provider.refundCalls, 1)
}

func TestRefundRejectsForeignActor(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{})
	result, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		PaymentID: result.Payment.ID,
		Status:    enums.PaymentStatusCompleted,
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), RefundInput{
		PaymentID:   result.Payment.ID,
		ActorUserID: uuid.New(),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	// Admins may refund on the buyer's behalf.
	_, err = f.svc.Refund(context.Background(), RefundInput{
		PaymentID:   result.Payment.ID,
		ActorUserID: uuid.New(),
		ActorRole:   "admin",
	})
	require.NoError(t, err)
}

func TestExpirePendingSweepsStaleAttempts(t *testing.T) {
	f := newPaymentsFixture(t, config.PaymentsConfig{PendingTTL: 30 * time.Minute})

	stale, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)
	f.repo.payments[stale.Payment.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)

	fresh, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	count, err := f.svc.ExpirePending(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, enums.PaymentStatusFailed, f.repo.payments[stale.Payment.ID].Status)
	assert.Equal(t, enums.PaymentStatusPending, f.repo.payments[fresh.Payment.ID].Status)

	var expiredEvents int
	for _, event := range f.publisher.events {
		if event.EventType == enums.EventPaymentExpired {
			expiredEvents++
		}
	}
	assert.Equal(t, 1, expiredEvents)
}
