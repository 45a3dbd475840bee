package shipments

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderAdvancer moves the owning order along its lifecycle as
// shipments progress. The guard status makes racing updates lose
// cleanly.
type OrderAdvancer interface {
	Advance(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
}

type orderAdvancer struct{}

// NewOrderAdvancer exposes the default conditional-update implementation.
func NewOrderAdvancer() OrderAdvancer {
	return orderAdvancer{}
}

func (orderAdvancer) Advance(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatusInput carries a vendor's shipment progress report.
type UpdateStatusInput struct {
	ShipmentID     uuid.UUID
	VendorID       uuid.UUID
	Status         enums.ShipmentStatus
	Carrier        *string
	TrackingNumber *string
	PickupPIN      string
	ActorRole      string
}

// Service defines shipment progress operations.
type Service interface {
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Shipment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
}

type service struct {
	repo   Repository
	orders OrderAdvancer
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds a shipment service with the required dependencies.
func NewService(repo Repository, orders OrderAdvancer, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if orders == nil {
		orders = NewOrderAdvancer()
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, orders: orders, tx: tx, outbox: outboxSvc}, nil
}

// UpdateStatus advances a shipment one step along the forward-only
// flow. Delivery requires the buyer's pickup PIN and, once the last
// shipment lands, completes the order.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Shipment, error) {
	if input.ShipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid shipment status %q", input.Status))
	}

	var updated *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shipment, err := repo.FindShipment(ctx, input.ShipmentID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		if shipment.VendorID != input.VendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "shipment does not belong to vendor")
		}
		if !shipment.Status.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("shipment is %s, cannot move to %s", shipment.Status, input.Status))
		}

		updates := map[string]any{"status": input.Status}
		if input.Carrier != nil {
			updates["carrier"] = *input.Carrier
		}
		if input.TrackingNumber != nil {
			updates["tracking_number"] = *input.TrackingNumber
		}

		var deliveredAt time.Time
		if input.Status == enums.ShipmentStatusDelivered {
			if subtle.ConstantTimeCompare([]byte(input.PickupPIN), []byte(shipment.PickupPIN)) != 1 {
				return pkgerrors.New(pkgerrors.CodeForbidden, "pickup pin mismatch")
			}
			deliveredAt = time.Now()
			updates["delivered_at"] = deliveredAt
		}

		ok, err := repo.UpdateShipment(ctx, shipment.ID, shipment.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment changed concurrently, retry")
		}

		shipment.Status = input.Status
		if input.Carrier != nil {
			shipment.Carrier = input.Carrier
		}
		if input.TrackingNumber != nil {
			shipment.TrackingNumber = input.TrackingNumber
		}
		if !deliveredAt.IsZero() {
			shipment.DeliveredAt = &deliveredAt
		}
		updated = shipment

		if err := s.advanceOrder(ctx, tx, repo, shipment); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventShipmentStatusChanged,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.VendorID, Role: input.ActorRole},
			Data: payloads.ShipmentStatusChangedEvent{
				ShipmentID: shipment.ID,
				OrderID:    shipment.OrderID,
				VendorID:   shipment.VendorID,
				Status:     shipment.Status,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) advanceOrder(ctx context.Context, tx *gorm.DB, repo Repository, shipment *models.Shipment) error {
	switch shipment.Status {
	case enums.ShipmentStatusInTransit:
		// First shipment on the move marks the order shipped. The
		// guard makes later shipments a harmless no-op.
		if _, err := s.orders.Advance(ctx, tx, shipment.OrderID, enums.OrderStatusProcessing, enums.OrderStatusShipped); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
	case enums.ShipmentStatusDelivered:
		remaining, err := repo.CountUndelivered(ctx, shipment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count undelivered shipments")
		}
		if remaining == 0 {
			if _, err := s.orders.Advance(ctx, tx, shipment.OrderID, enums.OrderStatusShipped, enums.OrderStatusDelivered); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
			}
		}
	}
	return nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	shipments, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipments")
	}
	return shipments, nil
}
