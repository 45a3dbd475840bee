package shipments

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
)

func setupShipmentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:shipments_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL DEFAULT 'KES',
  subtotal_cents INTEGER NOT NULL,
  shipping_fee_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  notes TEXT,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  address_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  carrier TEXT,
  tracking_number TEXT,
  notes TEXT,
  pickup_pin TEXT NOT NULL,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

type recordingPublisher struct {
	events []outbox.DomainEvent
}

func (p *recordingPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	p.events = append(p.events, event)
	return nil
}

func seedOrderWithShipments(t *testing.T, db *gorm.DB, orderStatus enums.OrderStatus, vendors int) (uuid.UUID, []models.Shipment) {
	t.Helper()

	orderID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, buyer_id, status, subtotal_cents, total_cents) VALUES (?, ?, ?, 1000, 1000)`,
		orderID, uuid.New(), orderStatus).Error)

	shipments := make([]models.Shipment, 0, vendors)
	for i := 0; i < vendors; i++ {
		shipments = append(shipments, models.Shipment{
			ID:        uuid.New(),
			OrderID:   orderID,
			VendorID:  uuid.New(),
			AddressID: uuid.New(),
			Status:    enums.ShipmentStatusCreated,
			PickupPIN: "123456",
		})
	}
	require.NoError(t, NewRepository(db).CreateShipments(context.Background(), shipments))
	return orderID, shipments
}

func newShipmentService(t *testing.T, db *gorm.DB, publisher *recordingPublisher) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), nil, dbTxRunner{db: db}, publisher)
	require.NoError(t, err)
	return svc
}

func orderStatus(t *testing.T, db *gorm.DB, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var status enums.OrderStatus
	require.NoError(t, db.Raw(`SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status).Error)
	return status
}

func TestUpdateStatusAdvancesForwardOnly(t *testing.T) {
	db := setupShipmentsTestDB(t)
	publisher := &recordingPublisher{}
	svc := newShipmentService(t, db, publisher)

	_, shipments := seedOrderWithShipments(t, db, enums.OrderStatusProcessing, 1)
	shipment := shipments[0]

	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipment.ID,
		VendorID:   shipment.VendorID,
		Status:     enums.ShipmentStatusPacked,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusPacked, updated.Status)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, enums.EventShipmentStatusChanged, publisher.events[0].EventType)

	// Skipping a step is rejected.
	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipment.ID,
		VendorID:   shipment.VendorID,
		Status:     enums.ShipmentStatusDelivered,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestUpdateStatusInTransitMarksOrderShipped(t *testing.T) {
	db := setupShipmentsTestDB(t)
	svc := newShipmentService(t, db, &recordingPublisher{})

	orderID, shipments := seedOrderWithShipments(t, db, enums.OrderStatusProcessing, 1)
	shipment := shipments[0]

	carrier := "G4S"
	tracking := "TRK-1001"
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipment.ID, VendorID: shipment.VendorID, Status: enums.ShipmentStatusPacked,
	})
	require.NoError(t, err)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID:     shipment.ID,
		VendorID:       shipment.VendorID,
		Status:         enums.ShipmentStatusInTransit,
		Carrier:        &carrier,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.TrackingNumber)
	assert.Equal(t, "TRK-1001", *updated.TrackingNumber)
	assert.Equal(t, enums.OrderStatusShipped, orderStatus(t, db, orderID))
}

func TestUpdateStatusDeliveredRequiresPIN(t *testing.T) {
	db := setupShipmentsTestDB(t)
	svc := newShipmentService(t, db, &recordingPublisher{})

	orderID, shipments := seedOrderWithShipments(t, db, enums.OrderStatusProcessing, 1)
	shipment := shipments[0]

	for _, status := range []enums.ShipmentStatus{enums.ShipmentStatusPacked, enums.ShipmentStatusInTransit} {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			ShipmentID: shipment.ID, VendorID: shipment.VendorID, Status: status,
		})
		require.NoError(t, err)
	}

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipment.ID, VendorID: shipment.VendorID, Status: enums.ShipmentStatusDelivered, PickupPIN: "000000",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	delivered, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipment.ID, VendorID: shipment.VendorID, Status: enums.ShipmentStatusDelivered, PickupPIN: "123456",
	})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, enums.OrderStatusDelivered, orderStatus(t, db, orderID))
}

func TestOrderDeliveredOnlyAfterLastShipment(t *testing.T) {
	db := setupShipmentsTestDB(t)
	svc := newShipmentService(t, db, &recordingPublisher{})

	orderID, shipments := seedOrderWithShipments(t, db, enums.OrderStatusProcessing, 2)

	deliver := func(shipment models.Shipment) {
		for _, status := range []enums.ShipmentStatus{enums.ShipmentStatusPacked, enums.ShipmentStatusInTransit, enums.ShipmentStatusDelivered} {
			_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
				ShipmentID: shipment.ID, VendorID: shipment.VendorID, Status: status, PickupPIN: "123456",
			})
			require.NoError(t, err)
		}
	}

	deliver(shipments[0])
	assert.Equal(t, enums.OrderStatusShipped, orderStatus(t, db, orderID))

	deliver(shipments[1])
	assert.Equal(t, enums.OrderStatusDelivered, orderStatus(t, db, orderID))
}

func TestUpdateStatusRejectsForeignVendor(t *testing.T) {
	db := setupShipmentsTestDB(t)
	svc := newShipmentService(t, db, &recordingPublisher{})

	_, shipments := seedOrderWithShipments(t, db, enums.OrderStatusProcessing, 1)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		ShipmentID: shipments[0].ID,
		VendorID:   uuid.New(),
		Status:     enums.ShipmentStatusPacked,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestGeneratePickupPIN(t *testing.T) {
	pin, err := GeneratePickupPIN()
	require.NoError(t, err)
	assert.Len(t, pin, 6)
}
