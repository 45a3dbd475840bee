package notifications

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/enums"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/outbox/payloads"
)

func newTestConsumer(repo repository) *Consumer {
	return &Consumer{
		repo: repo,
		logg: logger.New(logger.Options{Output: io.Discard}),
	}
}

func marshalPayload(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestConsumer_OrderCreatedNotifiesBuyer(t *testing.T) {
	repo := &fakeRepository{}
	consumer := newTestConsumer(repo)

	buyerID := uuid.New()
	data := marshalPayload(t, payloads.OrderCreatedEvent{
		OrderID:     uuid.New(),
		BuyerID:     buyerID,
		ShipmentIDs: []uuid.UUID{uuid.New(), uuid.New()},
		TotalCents:  9000,
	})

	if err := consumer.handleEvent(context.Background(), enums.EventOrderCreated, data, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	if repo.created[0].RecipientID != buyerID {
		t.Fatalf("expected buyer recipient, got %s", repo.created[0].RecipientID)
	}
	if repo.created[0].Type != enums.NotificationOrderCreated {
		t.Fatalf("unexpected type %s", repo.created[0].Type)
	}
}

func TestConsumer_PaymentFailedIncludesReason(t *testing.T) {
	repo := &fakeRepository{}
	consumer := newTestConsumer(repo)

	data := marshalPayload(t, payloads.PaymentStatusEvent{
		PaymentID:     uuid.New(),
		OrderID:       uuid.New(),
		BuyerID:       uuid.New(),
		Status:        enums.PaymentStatusFailed,
		FailureReason: "card declined",
	})

	if err := consumer.handleEvent(context.Background(), enums.EventPaymentFailed, data, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	if repo.created[0].Type != enums.NotificationPaymentFailed {
		t.Fatalf("unexpected type %s", repo.created[0].Type)
	}
}

func TestConsumer_ShipmentCreatedStatusSkipped(t *testing.T) {
	repo := &fakeRepository{}
	consumer := newTestConsumer(repo)

	data := marshalPayload(t, payloads.ShipmentStatusChangedEvent{
		ShipmentID: uuid.New(),
		OrderID:    uuid.New(),
		VendorID:   uuid.New(),
		Status:     enums.ShipmentStatusCreated,
	})

	if err := consumer.handleEvent(context.Background(), enums.EventShipmentStatusChanged, data, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notifications, got %d", len(repo.created))
	}
}

func TestConsumer_UnknownEventIgnored(t *testing.T) {
	repo := &fakeRepository{}
	consumer := newTestConsumer(repo)

	if err := consumer.handleEvent(context.Background(), enums.EventPaymentExpired, json.RawMessage(`{}`), context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notifications, got %d", len(repo.created))
	}
}
