package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/ledger"
	"github.com/angelmondragon/codfulfillment-backend/internal/products"
	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
)

type captureEmitter struct {
	events []outbox.DomainEvent
}

func (c *captureEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

type failingCosts struct{}

func (failingCosts) GetMany(context.Context, *gorm.DB, []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return nil, errors.New("catalog unavailable")
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	emitter *captureEmitter
}

func newFixture(t *testing.T, costs CostSource) fixture {
	t.Helper()
	db := dbtest.Open(t)
	runner, err := uow.NewRunner(db, uow.Options{})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), runner, ledger.Accounts{
		CashInTransit: "1150", Inventory: "1300", Revenue: "4000", COGS: "5000",
	})
	require.NoError(t, err)
	require.NoError(t, ledgerSvc.EnsureAccounts(context.Background()))
	if costs == nil {
		productSvc, err := products.NewService(products.NewRepository(db))
		require.NoError(t, err)
		costs = productSvc
	}
	emitter := &captureEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(db),
		Runner:  runner,
		Ledger:  ledgerSvc,
		Costs:   costs,
		Emitter: emitter,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, emitter: emitter}
}

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, cod *int64, product models.Product, qty int) models.Order {
	t.Helper()
	total := int64(qty) * product.PriceCents
	order := models.Order{
		OrderNumber:      "ORD-" + uuid.NewString()[:8],
		CustomerID:       uuid.New(),
		Status:           status,
		PaymentStatus:    enums.PaymentStatusCollected,
		SubtotalCents:    total,
		TotalAmountCents: total,
		CODAmountCents:   cod,
		Phone:            "+14155552671",
		Address:          "1 Main St",
		OrderDate:        time.Now().UTC(),
		Items:            []models.OrderItem{{ProductID: product.ID, Quantity: qty, UnitPriceCents: product.PriceCents}},
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func cents(v int64) *int64 { return &v }

func TestSyncDeliveredOrderOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	product := dbtest.SeedProduct(t, f.db, "P", 10, 2500, 1000)
	order := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(5000), product, 2)

	result, err := f.svc.SyncOrderFinancialData(ctx, order.ID, nil)
	require.NoError(t, err)
	require.True(t, result.Synced())
	assert.Equal(t, enums.FinancialTransactionCODCollection, result.Transaction.Type)
	assert.Equal(t, enums.FinancialTransactionCollected, result.Transaction.Status)
	assert.EqualValues(t, 5000, result.Transaction.AmountCents)
	assert.Equal(t, result.JournalEntry.ID, *result.Transaction.JournalEntryID)

	var debits, credits int64
	for _, line := range result.JournalEntry.Lines {
		debits += line.DebitCents
		credits += line.CreditCents
	}
	assert.EqualValues(t, 5000+2000, debits)
	assert.Equal(t, debits, credits)

	var stored models.Order
	dbtest.Reload(t, f.db, &stored, order.ID)
	assert.True(t, stored.RevenueRecognized)

	again, err := f.svc.SyncOrderFinancialData(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.False(t, again.Synced())
	assert.Nil(t, again.Transaction)
	assert.Nil(t, again.JournalEntry)

	txns, err := f.svc.Transactions(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, enums.EventRevenueRecognized, f.emitter.events[0].EventType)
}

func TestSyncSkipsIneligibleOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	product := dbtest.SeedProduct(t, f.db, "P", 10, 2500, 1000)

	notDelivered := seedOrder(t, f.db, enums.OrderStatusOutForDelivery, cents(2500), product, 1)
	noCOD := seedOrder(t, f.db, enums.OrderStatusDelivered, nil, product, 1)
	prior := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(2500), product, 1)
	require.NoError(t, f.db.Create(&models.FinancialTransaction{
		OrderID: prior.ID, Type: enums.FinancialTransactionCODCollection,
		Status: enums.FinancialTransactionCollected, AmountCents: 2500,
	}).Error)

	for _, id := range []uuid.UUID{notDelivered.ID, noCOD.ID, prior.ID} {
		result, err := f.svc.SyncOrderFinancialData(ctx, id, nil)
		require.NoError(t, err)
		assert.False(t, result.Synced())
	}

	var prs models.Order
	dbtest.Reload(t, f.db, &prs, prior.ID)
	assert.False(t, prs.RevenueRecognized)
}

func TestSyncFailureRollsBackClaim(t *testing.T) {
	f := newFixture(t, failingCosts{})
	product := dbtest.SeedProduct(t, f.db, "P", 10, 2500, 1000)
	order := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(2500), product, 1)

	_, err := f.svc.SyncOrderFinancialData(context.Background(), order.ID, nil)
	require.Error(t, err)

	var stored models.Order
	dbtest.Reload(t, f.db, &stored, order.ID)
	assert.False(t, stored.RevenueRecognized)
	var count int64
	require.NoError(t, f.db.Model(&models.FinancialTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBatchSyncIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	product := dbtest.SeedProduct(t, f.db, "P", 10, 2500, 1000)
	a := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(2500), product, 1)
	b := seedOrder(t, f.db, enums.OrderStatusConfirmed, cents(2500), product, 1)
	missing := uuid.New()

	result := f.svc.BatchSyncOrders(ctx, []uuid.UUID{a.ID, missing, b.ID, a.ID}, nil)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, missing, result.Errors[0].OrderID)
	assert.Equal(t, pkgerrors.CodeNotFound, result.Errors[0].Error.Code)
}

func TestFindUnsyncedDeliveredOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	product := dbtest.SeedProduct(t, f.db, "P", 10, 2500, 1000)
	pending := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(2500), product, 1)
	seedOrder(t, f.db, enums.OrderStatusDelivered, nil, product, 1)
	seedOrder(t, f.db, enums.OrderStatusCancelled, cents(2500), product, 1)
	synced := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(2500), product, 1)
	_, err := f.svc.SyncOrderFinancialData(ctx, synced.ID, nil)
	require.NoError(t, err)

	ids, err := f.svc.FindUnsyncedDeliveredOrders(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pending.ID}, ids)
}

func TestZeroTotalOrderIsSkippedAndLeavesBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	free := dbtest.SeedProduct(t, f.db, "FREE", 10, 0, 0)
	order := seedOrder(t, f.db, enums.OrderStatusDelivered, cents(0), free, 1)

	result, err := f.svc.SyncOrderFinancialData(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.Synced())

	batch := f.svc.BatchSyncOrders(ctx, []uuid.UUID{order.ID}, nil)
	assert.Equal(t, 1, batch.Skipped)
	assert.Empty(t, batch.Errors)

	ids, err := f.svc.FindUnsyncedDeliveredOrders(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	var count int64
	require.NoError(t, f.db.Model(&models.FinancialTransaction{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)
	var stored models.Order
	dbtest.Reload(t, f.db, &stored, order.ID)
	assert.False(t, stored.RevenueRecognized)
}
