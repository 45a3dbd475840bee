package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	"github.com/tmakori/sokohub-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Shipments").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindProductsByIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

type buyerOrderRow struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Status        enums.OrderStatus
	Currency      enums.Currency
	TotalCents    int
	TotalItems    int
	PaymentStatus enums.PaymentStatus
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(`o.id, o.created_at, o.status, o.currency, o.total_cents,
			(SELECT COALESCE(SUM(oi.qty), 0) FROM order_items oi WHERE oi.order_id = o.id) AS total_items,
			COALESCE((SELECT p.status FROM payments p WHERE p.order_id = o.id ORDER BY p.created_at DESC LIMIT 1), 'pending') AS payment_status`).
		Where("o.buyer_id = ?", buyerID)

	if filters.Status != nil {
		query = query.Where("o.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("o.created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("o.created_at <= ?", *filters.DateTo)
	}
	if cursor != nil {
		query = query.Where("o.created_at < ? OR (o.created_at = ? AND o.id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []buyerOrderRow
	err = query.
		Order("o.created_at DESC, o.id DESC").
		Limit(limit + 1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &BuyerOrderList{Orders: make([]BuyerOrderSummary, 0, len(rows))}
	for i, row := range rows {
		if i == limit {
			list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: rows[limit-1].CreatedAt,
				ID:        rows[limit-1].ID,
			})
			break
		}
		list.Orders = append(list.Orders, BuyerOrderSummary{
			ID:            row.ID,
			CreatedAt:     row.CreatedAt,
			Status:        row.Status,
			Currency:      row.Currency,
			TotalCents:    row.TotalCents,
			TotalItems:    row.TotalItems,
			PaymentStatus: row.PaymentStatus,
		})
	}
	return list, nil
}

type vendorOrderRow struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Status         enums.OrderStatus
	Currency       enums.Currency
	VendorCents    int
	VendorItems    int
	ShipmentStatus *enums.ShipmentStatus
}

func (r *repository) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*VendorOrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Table("orders AS o").
		Select(`o.id, o.created_at, o.status, o.currency,
			SUM(oi.total_cents) AS vendor_cents,
			SUM(oi.qty) AS vendor_items,
			(SELECT s.status FROM shipments s WHERE s.order_id = o.id AND s.vendor_id = ? LIMIT 1) AS shipment_status`, vendorID).
		Joins("JOIN order_items oi ON oi.order_id = o.id").
		Where("oi.vendor_id = ?", vendorID)

	if filters.Status != nil {
		query = query.Where("o.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("o.created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("o.created_at <= ?", *filters.DateTo)
	}
	if cursor != nil {
		query = query.Where("o.created_at < ? OR (o.created_at = ? AND o.id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []vendorOrderRow
	err = query.
		Group("o.id, o.created_at, o.status, o.currency").
		Order("o.created_at DESC, o.id DESC").
		Limit(limit + 1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &VendorOrderList{Orders: make([]VendorOrderSummary, 0, len(rows))}
	for i, row := range rows {
		if i == limit {
			list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: rows[limit-1].CreatedAt,
				ID:        rows[limit-1].ID,
			})
			break
		}
		list.Orders = append(list.Orders, VendorOrderSummary{
			ID:             row.ID,
			CreatedAt:      row.CreatedAt,
			Status:         row.Status,
			Currency:       row.Currency,
			VendorCents:    row.VendorCents,
			VendorItems:    row.VendorItems,
			ShipmentStatus: row.ShipmentStatus,
		})
	}
	return list, nil
}

func (r *repository) MarkOrderCancelled(ctx context.Context, orderID uuid.UUID, cancelledAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": cancelledAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
