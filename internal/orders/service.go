package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/internal/inventory"
	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/outbox/payloads"
	"github.com/tmakori/sokohub-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelOrderInput) (*models.Order, error)
	Detail(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*VendorOrderList, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	stock  inventory.Ledger
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, stock inventory.Ledger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc, stock: stock}, nil
}

// stockShortage names the offending product in insufficient stock errors.
type stockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Available int       `json:"available"`
	Requested int       `json:"requested"`
}

func validateCreateInput(input CreateOrderInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Qty < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at least 1 for product %s", line.ProductID))
		}
	}
	return nil
}

// Create persists a new pending order in its own transaction and emits
// the order created event.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.CreateTx(ctx, tx, input)
		if err != nil {
			return err
		}
		created = order

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.BuyerID, input.ActorRole),
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				TotalCents: order.TotalCents,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTx runs the reservation and insert steps inside the caller's
// transaction. The caller owns the transaction boundary and any event
// emission, which lets checkout create shipments atomically alongside
// the order.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	productIDs := make([]uuid.UUID, 0, len(input.Lines))
	for _, line := range input.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := repo.FindProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	productsByID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		productsByID[product.ID] = product
	}

	var currency enums.Currency
	subtotal := 0
	items := make([]models.OrderItem, 0, len(input.Lines))
	reservations := make([]inventory.StockReservationRequest, 0, len(input.Lines))
	for _, line := range input.Lines {
		product, ok := productsByID[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is no longer available", product.Name))
		}
		if product.StockQty < line.Qty {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s: available %d, requested %d", product.Name, product.StockQty, line.Qty)).
				WithDetails(stockShortage{
					ProductID: product.ID,
					Name:      product.Name,
					Available: product.StockQty,
					Requested: line.Qty,
				})
		}
		if currency == "" {
			currency = product.Currency
		} else if currency != product.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order cannot mix currencies")
		}

		lineTotal := product.PriceCents * line.Qty
		subtotal += lineTotal
		items = append(items, models.OrderItem{
			ProductID:      product.ID,
			VendorID:       product.VendorID,
			Name:           product.Name,
			SKU:            product.SKU,
			UnitPriceCents: product.PriceCents,
			Qty:            line.Qty,
			TotalCents:     lineTotal,
		})
		reservations = append(reservations, inventory.StockReservationRequest{
			ProductID: product.ID,
			Qty:       line.Qty,
		})
	}

	results, err := s.stock.Reserve(ctx, tx, reservations)
	if err != nil {
		return nil, err
	}
	for i, result := range results {
		if result.Reserved {
			continue
		}
		// Another checkout won the race between the read above and
		// the guarded decrement. Roll back the whole order.
		product := productsByID[result.ProductID]
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
			fmt.Sprintf("insufficient stock for %s: requested %d", product.Name, reservations[i].Qty)).
			WithDetails(stockShortage{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.StockQty,
				Requested: reservations[i].Qty,
			})
	}

	order := &models.Order{
		BuyerID:       input.BuyerID,
		Status:        enums.OrderStatusPending,
		Currency:      currency,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		Notes:         input.Notes,
	}
	if _, err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := repo.CreateOrderItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
	}
	order.Items = items
	return order, nil
}

// Cancel flips a pending order to cancelled and restores the reserved
// stock in the same transaction.
func (s *service) Cancel(ctx context.Context, input CancelOrderInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}

		now := time.Now()
		updated, err := repo.MarkOrderCancelled(ctx, order.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !updated {
			// The guarded update lost to a concurrent transition or the
			// order never was pending. Report the current status.
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s, only pending orders can be cancelled", order.Status))
		}

		items, err := repo.FindOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for _, item := range items {
			if err := s.stock.Restore(ctx, tx, item.ProductID, item.Qty); err != nil {
				return err
			}
		}

		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.Items = items
		cancelled = order

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.BuyerID, input.ActorRole),
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				CancelledAt: now,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) Detail(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListBuyerOrders(ctx, buyerID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*VendorOrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	list, err := s.repo.ListVendorOrders(ctx, vendorID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor orders")
	}
	return list, nil
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: role}
}
