package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/internal/cart"
	"github.com/tmakori/sokohub-backend/internal/orders"
	"github.com/tmakori/sokohub-backend/internal/shipments"
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

type orderCreator interface {
	CreateTx(ctx context.Context, tx *gorm.DB, input orders.CreateOrderInput) (*models.Order, error)
}

type addressChecker interface {
	Exists(ctx context.Context, id, buyerID uuid.UUID) (bool, error)
}

// VendorShippingSelection tells checkout where each vendor's shipment
// should be delivered.
type VendorShippingSelection struct {
	VendorID  uuid.UUID
	AddressID uuid.UUID
	Notes     *string
}

// CheckoutInput captures the buyer's per-vendor shipping choices.
type CheckoutInput struct {
	BuyerID    uuid.UUID
	Selections []VendorShippingSelection
	ActorRole  string
}

// CheckoutResult is the created order together with its shipments.
type CheckoutResult struct {
	Order     *models.Order     `json:"order"`
	Shipments []models.Shipment `json:"shipments"`
}

// Service converts the buyer's active cart into an order plus one
// shipment per vendor.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

type service struct {
	tx            txRunner
	cartRepo      cart.Repository
	shipmentsRepo shipments.Repository
	addresses     addressChecker
	orderSvc      orderCreator
	outbox        outboxPublisher
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	shipmentsRepo shipments.Repository,
	addresses addressChecker,
	orderSvc orderCreator,
	publisher outboxPublisher,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if shipmentsRepo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address checker required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order creator required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:            tx,
		cartRepo:      cartRepo,
		shipmentsRepo: shipmentsRepo,
		addresses:     addresses,
		orderSvc:      orderSvc,
		outbox:        publisher,
	}, nil
}

// Execute runs the whole conversion in one transaction. A failed order
// creation rolls everything back, leaving the cart active so the buyer
// can adjust quantities and retry.
func (s *service) Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *CheckoutResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		shipmentsRepo := s.shipmentsRepo.WithTx(tx)

		record, err := cartRepo.FindActiveByBuyer(ctx, input.BuyerID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		cartVendors := make(map[uuid.UUID]bool)
		for _, item := range record.Items {
			cartVendors[item.VendorID] = true
		}

		selectionsByVendor := make(map[uuid.UUID]VendorShippingSelection, len(input.Selections))
		for _, sel := range input.Selections {
			if sel.VendorID == uuid.Nil || sel.AddressID == uuid.Nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping selection requires vendor and address")
			}
			if !cartVendors[sel.VendorID] {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("shipping selection references vendor %s not present in cart", sel.VendorID))
			}
			selectionsByVendor[sel.VendorID] = sel
		}
		for vendorID := range cartVendors {
			if _, ok := selectionsByVendor[vendorID]; !ok {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("missing shipping selection for vendor %s", vendorID))
			}
		}

		for _, sel := range selectionsByVendor {
			ok, err := s.addresses.Exists(ctx, sel.AddressID, input.BuyerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify address")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("address %s not found for user", sel.AddressID))
			}
		}

		lines := make([]orders.OrderLineInput, 0, len(record.Items))
		for _, item := range record.Items {
			lines = append(lines, orders.OrderLineInput{ProductID: item.ProductID, Qty: item.Quantity})
		}
		order, err := s.orderSvc.CreateTx(ctx, tx, orders.CreateOrderInput{
			BuyerID:   input.BuyerID,
			Lines:     lines,
			ActorRole: input.ActorRole,
		})
		if err != nil {
			return err
		}

		orderShipments := make([]models.Shipment, 0, len(selectionsByVendor))
		for vendorID, sel := range selectionsByVendor {
			pin, err := shipments.GeneratePickupPIN()
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate pickup pin")
			}
			orderShipments = append(orderShipments, models.Shipment{
				ID:        uuid.New(),
				OrderID:   order.ID,
				VendorID:  vendorID,
				AddressID: sel.AddressID,
				Status:    enums.ShipmentStatusCreated,
				Notes:     sel.Notes,
				PickupPIN: pin,
			})
		}
		if err := shipmentsRepo.CreateShipments(ctx, orderShipments); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipments")
		}

		closed, err := cartRepo.MarkCheckedOut(ctx, record.ID, input.BuyerID, order.CreatedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close cart")
		}
		if !closed {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")
		}

		shipmentIDs := make([]uuid.UUID, 0, len(orderShipments))
		for _, shipment := range orderShipments {
			shipmentIDs = append(shipmentIDs, shipment.ID)
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: input.ActorRole},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				ShipmentIDs: shipmentIDs,
				TotalCents:  order.TotalCents,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		order.Shipments = orderShipments
		result = &CheckoutResult{Order: order, Shipments: orderShipments}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
