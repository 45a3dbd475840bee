package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/outbox/idempotency"
	"github.com/tmakori/sokohub-backend/pkg/outbox/payloads"
)

const domainNotificationConsumer = "domain-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and records in-app notifications for
// the affected buyer or vendor. Delivery is at-least-once; the
// idempotency manager keeps duplicates from producing duplicate rows.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a domain notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, domainNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handleEvent(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, domainNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) handleEvent(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventOrderCreated:
		var payload payloads.OrderCreatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notify(ctx, logCtx, &models.Notification{
			RecipientID: payload.BuyerID,
			Type:        enums.NotificationOrderCreated,
			Title:       "Order placed",
			Message:     fmt.Sprintf("Your order %s was placed with %d vendor shipment(s).", payload.OrderID, len(payload.ShipmentIDs)),
			Link:        stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
		})
	case enums.EventOrderCancelled:
		var payload payloads.OrderCancelledEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notify(ctx, logCtx, &models.Notification{
			RecipientID: payload.BuyerID,
			Type:        enums.NotificationOrderCancelled,
			Title:       "Order cancelled",
			Message:     fmt.Sprintf("Your order %s was cancelled and any reserved stock released.", payload.OrderID),
			Link:        stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
		})
	case enums.EventPaymentCompleted, enums.EventPaymentFailed:
		var payload payloads.PaymentStatusEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		notification := &models.Notification{
			RecipientID: payload.BuyerID,
			Type:        enums.NotificationPaymentCompleted,
			Title:       "Payment received",
			Message:     fmt.Sprintf("Your payment for order %s went through. The order is now being processed.", payload.OrderID),
			Link:        stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
		}
		if payload.Status == enums.PaymentStatusFailed {
			notification.Type = enums.NotificationPaymentFailed
			notification.Title = "Payment failed"
			notification.Message = fmt.Sprintf("Your payment for order %s failed. You can retry from the order page.", payload.OrderID)
			if payload.FailureReason != "" {
				notification.Message = fmt.Sprintf("Your payment for order %s failed: %s. You can retry from the order page.", payload.OrderID, payload.FailureReason)
			}
		}
		return c.notify(ctx, logCtx, notification)
	case enums.EventPaymentRefunded:
		var payload payloads.PaymentRefundedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.notify(ctx, logCtx, &models.Notification{
			RecipientID: payload.BuyerID,
			Type:        enums.NotificationPaymentRefunded,
			Title:       "Payment refunded",
			Message:     fmt.Sprintf("Your payment for order %s was refunded and the order cancelled.", payload.OrderID),
			Link:        stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
		})
	case enums.EventShipmentStatusChanged:
		var payload payloads.ShipmentStatusChangedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return c.handleShipment(ctx, payload, logCtx)
	case enums.EventNotificationRequested:
		var payload payloads.NotificationRequestedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		notification := &models.Notification{
			RecipientID: payload.RecipientID,
			Type:        payload.Type,
			Title:       payload.Title,
			Message:     payload.Message,
		}
		if payload.Link != "" {
			notification.Link = stringPtr(payload.Link)
		}
		return c.notify(ctx, logCtx, notification)
	default:
		c.logg.Info(logCtx, "event not handled")
		return nil
	}
}

func (c *Consumer) handleShipment(ctx context.Context, payload payloads.ShipmentStatusChangedEvent, logCtx context.Context) error {
	var message string
	switch payload.Status {
	case enums.ShipmentStatusPacked:
		message = fmt.Sprintf("A vendor packed part of your order %s.", payload.OrderID)
	case enums.ShipmentStatusInTransit:
		message = fmt.Sprintf("Part of your order %s is on its way.", payload.OrderID)
	case enums.ShipmentStatusDelivered:
		message = fmt.Sprintf("Part of your order %s was delivered.", payload.OrderID)
	default:
		c.logg.Info(logCtx, "shipment status not notified")
		return nil
	}

	// Shipment events carry no buyer id; the vendor is notified of
	// their own progress and the buyer learns via the order page.
	return c.notify(ctx, logCtx, &models.Notification{
		RecipientID: payload.VendorID,
		Type:        enums.NotificationShipmentUpdated,
		Title:       "Shipment updated",
		Message:     message,
		Link:        stringPtr(fmt.Sprintf("/orders/%s/shipments/%s", payload.OrderID, payload.ShipmentID)),
	})
}

func (c *Consumer) notify(ctx context.Context, logCtx context.Context, notification *models.Notification) error {
	if notification.RecipientID == uuid.Nil {
		return fmt.Errorf("recipient id missing")
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "notification recorded")
	return nil
}

func stringPtr(value string) *string {
	return &value
}
