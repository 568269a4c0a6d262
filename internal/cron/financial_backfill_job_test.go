package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/internal/cron"
	"github.com/angelmondragon/codfulfillment-backend/internal/engine"
	"github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

func TestFinancialBackfillSyncsStrandedDeliveries(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	eng, err := engine.New(engine.Params{
		DB: db,
		Config: &config.Config{
			Tx:     config.TxConfig{MaxConcurrent: 2, MaxWait: time.Second, Timeout: 5 * time.Second},
			Ledger: config.LedgerConfig{CashInTransitCode: "1150", InventoryCode: "1300", RevenueCode: "4000", COGSCode: "5000"},
			Import: config.ImportConfig{PhoneRegion: "US"},
		},
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, eng.Bootstrap(ctx))

	product := dbtest.SeedProduct(t, db, "TEA-01", 10, 2500, 1000)
	cod := int64(5000)
	order := models.Order{
		OrderNumber:      "ORD-20240501-BACKFILL",
		CustomerID:       uuid.New(),
		Status:           enums.OrderStatusDelivered,
		PaymentStatus:    enums.PaymentStatusCollected,
		SubtotalCents:    5000,
		TotalAmountCents: 5000,
		CODAmountCents:   &cod,
		Phone:            "+14155552671",
		Address:          "1 Main St",
		OrderDate:        time.Now().UTC(),
		Items:            []models.OrderItem{{ProductID: product.ID, Quantity: 2, UnitPriceCents: 2500}},
	}
	require.NoError(t, db.Create(&order).Error)

	job, err := cron.NewFinancialBackfillJob(cron.FinancialBackfillJobParams{Logger: logger.Nop(), Finance: eng.Finance})
	require.NoError(t, err)
	assert.Equal(t, "financial-backfill", job.Name())
	require.NoError(t, job.Run(ctx))

	var reloaded models.Order
	dbtest.Reload(t, db, &reloaded, order.ID)
	assert.True(t, reloaded.RevenueRecognized)
	txns, err := eng.Finance.Transactions(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)

	// A second pass finds nothing left to do.
	require.NoError(t, job.Run(ctx))
	txns, err = eng.Finance.Transactions(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

type failingBackfill struct {
	ids    []uuid.UUID
	result finance.BatchResult
	err    error
}

func (f failingBackfill) FindUnsyncedDeliveredOrders(context.Context, int) ([]uuid.UUID, error) {
	return f.ids, f.err
}

func (f failingBackfill) BatchSyncOrders(context.Context, []uuid.UUID, *uuid.UUID) finance.BatchResult {
	return f.result
}

func TestFinancialBackfillReportsFailures(t *testing.T) {
	id := uuid.New()
	job, err := cron.NewFinancialBackfillJob(cron.FinancialBackfillJobParams{
		Logger: logger.Nop(),
		Finance: failingBackfill{
			ids: []uuid.UUID{id},
			result: finance.BatchResult{Errors: []finance.BatchError{{
				OrderID: id,
				Error:   pkgerrors.Failure{Code: pkgerrors.CodeNotFound, Message: "order not found"},
			}}},
		},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), id.String())
}

func TestFinancialBackfillPropagatesLookupError(t *testing.T) {
	job, err := cron.NewFinancialBackfillJob(cron.FinancialBackfillJobParams{
		Logger:  logger.Nop(),
		Finance: failingBackfill{err: errors.New("db down")},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}
