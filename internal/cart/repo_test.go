package cart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:cart_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  currency TEXT NOT NULL DEFAULT 'KES',
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

func newCart(t *testing.T, repo Repository, buyerID uuid.UUID) *models.CartRecord {
	t.Helper()
	record, err := repo.Create(context.Background(), &models.CartRecord{
		ID:       uuid.New(),
		BuyerID:  buyerID,
		Currency: enums.CurrencyKES,
	})
	require.NoError(t, err)
	return record
}

func TestFindActiveByBuyerLoadsItems(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	record := newCart(t, repo, buyerID)
	require.NoError(t, repo.UpsertItem(ctx, record.ID, &models.CartItem{
		ID:             uuid.New(),
		ProductID:      uuid.New(),
		VendorID:       uuid.New(),
		Quantity:       2,
		UnitPriceCents: 700,
	}))

	found, err := repo.FindActiveByBuyer(ctx, buyerID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, 2, found.Items[0].Quantity)
}

func TestFindActiveByBuyerIgnoresClosedCarts(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	record := newCart(t, repo, buyerID)
	ok, err := repo.MarkCheckedOut(ctx, record.ID, buyerID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.FindActiveByBuyer(ctx, buyerID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpsertItemReplacesQuantity(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	record := newCart(t, repo, buyerID)
	productID := uuid.New()
	vendorID := uuid.New()

	require.NoError(t, repo.UpsertItem(ctx, record.ID, &models.CartItem{
		ID: uuid.New(), ProductID: productID, VendorID: vendorID, Quantity: 1, UnitPriceCents: 500,
	}))
	require.NoError(t, repo.UpsertItem(ctx, record.ID, &models.CartItem{
		ID: uuid.New(), ProductID: productID, VendorID: vendorID, Quantity: 4, UnitPriceCents: 450,
	}))

	found, err := repo.FindActiveByBuyer(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, 4, found.Items[0].Quantity)
	assert.Equal(t, 450, found.Items[0].UnitPriceCents)
}

func TestRemoveItem(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	record := newCart(t, repo, buyerID)
	productID := uuid.New()
	require.NoError(t, repo.UpsertItem(ctx, record.ID, &models.CartItem{
		ID: uuid.New(), ProductID: productID, VendorID: uuid.New(), Quantity: 1, UnitPriceCents: 500,
	}))

	require.NoError(t, repo.RemoveItem(ctx, record.ID, productID))

	found, err := repo.FindActiveByBuyer(ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, found.Items)
}

func TestMarkCheckedOutGuardsStatus(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	buyerID := uuid.New()
	record := newCart(t, repo, buyerID)

	ok, err := repo.MarkCheckedOut(ctx, record.ID, buyerID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	// Second checkout of the same cart loses the guard.
	ok, err = repo.MarkCheckedOut(ctx, record.ID, buyerID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
