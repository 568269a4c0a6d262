package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, event outbox.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

type fixture struct {
	db        *gorm.DB
	svc       Service
	publisher *capturePublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	runner, err := uow.NewRunner(db, uow.Options{Logger: logger.Nop()})
	require.NoError(t, err)
	pub := &capturePublisher{}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(db),
		Runner:    runner,
		Publisher: pub,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{db: db, svc: svc, publisher: pub}
}

func (f fixture) warehouse(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	dbtest.Reload(t, f.db, &product, productID)
	return product.StockQuantity
}

func (f fixture) holding(t *testing.T, agentID, productID uuid.UUID) models.AgentStock {
	t.Helper()
	var stock models.AgentStock
	err := f.db.Where("agent_id = ? AND product_id = ?", agentID, productID).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.AgentStock{}
	}
	require.NoError(t, err)
	return stock
}

func (f fixture) transfers(t *testing.T, typ enums.TransferType) []models.InventoryTransfer {
	t.Helper()
	var rows []models.InventoryTransfer
	require.NoError(t, f.db.Where("transfer_type = ?", typ).Find(&rows).Error)
	return rows
}

func TestAllocateMovesWarehouseStockToAgent(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 10, 2500, 1000)
	agent := uuid.New()
	actor := uuid.New()

	transfer, err := f.svc.Allocate(context.Background(), AllocateInput{ProductID: product.ID, AgentID: agent, Quantity: 4, ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferTypeAllocation, transfer.TransferType)
	assert.Nil(t, transfer.FromAgentID)
	assert.Equal(t, agent, *transfer.ToAgentID)

	assert.Equal(t, 6, f.warehouse(t, product.ID))
	holding := f.holding(t, agent, product.ID)
	assert.Equal(t, 4, holding.Quantity)
	assert.Equal(t, 4, holding.TotalAllocated)
	assert.Len(t, f.transfers(t, enums.TransferTypeAllocation), 1)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, enums.EventStockMoved, f.publisher.events[0].EventType)
}

func TestAllocateInsufficientLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 3, 2500, 1000)
	agent := uuid.New()

	_, err := f.svc.Allocate(context.Background(), AllocateInput{ProductID: product.ID, AgentID: agent, Quantity: 5})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.Classify(err))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, 3, details["available"])

	assert.Equal(t, 3, f.warehouse(t, product.ID))
	assert.Zero(t, f.holding(t, agent, product.ID).Quantity)
	assert.Empty(t, f.transfers(t, enums.TransferTypeAllocation))
	assert.Empty(t, f.publisher.events)
}

func TestAllocateValidationAndMissingProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Allocate(context.Background(), AllocateInput{ProductID: uuid.New(), AgentID: uuid.New(), Quantity: 0})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))

	_, err = f.svc.Allocate(context.Background(), AllocateInput{ProductID: uuid.New(), AgentID: uuid.New(), Quantity: 1})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.Classify(err))
}

func TestTransferBetweenAgents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 0, 2500, 1000)
	from, to := uuid.New(), uuid.New()
	dbtest.SeedAgentStock(t, f.db, from, product.ID, 5)

	_, err := f.svc.Transfer(ctx, TransferInput{ProductID: product.ID, FromAgentID: from, ToAgentID: to, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, f.holding(t, from, product.ID).Quantity)
	assert.Equal(t, 2, f.holding(t, from, product.ID).TotalTransferOut)
	assert.Equal(t, 2, f.holding(t, to, product.ID).Quantity)
	assert.Equal(t, 2, f.holding(t, to, product.ID).TotalTransferIn)

	_, err = f.svc.Transfer(ctx, TransferInput{ProductID: product.ID, FromAgentID: to, ToAgentID: from, Quantity: 9})
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.Classify(err))

	_, err = f.svc.Transfer(ctx, TransferInput{ProductID: product.ID, FromAgentID: uuid.New(), ToAgentID: from, Quantity: 1})
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.Classify(err))

	_, err = f.svc.Transfer(ctx, TransferInput{ProductID: product.ID, FromAgentID: to, ToAgentID: to, Quantity: 1})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))
}

func TestReturnToWarehouse(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 1, 2500, 1000)
	agent := uuid.New()
	dbtest.SeedAgentStock(t, f.db, agent, product.ID, 4)

	transfer, err := f.svc.Return(context.Background(), ReturnInput{ProductID: product.ID, AgentID: agent, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, enums.TransferTypeReturnToWarehouse, transfer.TransferType)
	assert.Equal(t, 4, f.warehouse(t, product.ID))
	holding := f.holding(t, agent, product.ID)
	assert.Equal(t, 1, holding.Quantity)
	assert.Equal(t, 3, holding.TotalReturned)
}

func TestAdjustMovesDeltaThroughWarehouse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 10, 2500, 1000)
	agent := uuid.New()
	dbtest.SeedAgentStock(t, f.db, agent, product.ID, 4)

	_, err := f.svc.Adjust(ctx, AdjustInput{ProductID: product.ID, AgentID: agent, NewQuantity: 6})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err), "notes are mandatory")

	up, err := f.svc.Adjust(ctx, AdjustInput{ProductID: product.ID, AgentID: agent, NewQuantity: 6, Notes: "recount"})
	require.NoError(t, err)
	assert.Equal(t, 2, up.Quantity)
	assert.Equal(t, agent, *up.ToAgentID)
	assert.Equal(t, 8, f.warehouse(t, product.ID))
	assert.Equal(t, 6, f.holding(t, agent, product.ID).Quantity)

	down, err := f.svc.Adjust(ctx, AdjustInput{ProductID: product.ID, AgentID: agent, NewQuantity: 1, Notes: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, 5, down.Quantity)
	assert.Equal(t, agent, *down.FromAgentID)
	assert.Equal(t, 13, f.warehouse(t, product.ID))
	assert.Equal(t, 1, f.holding(t, agent, product.ID).Quantity)

	_, err = f.svc.Adjust(ctx, AdjustInput{ProductID: product.ID, AgentID: agent, NewQuantity: 1, Notes: "same"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))

	_, err = f.svc.Adjust(ctx, AdjustInput{ProductID: product.ID, AgentID: agent, NewQuantity: 100, Notes: "too many"})
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.Classify(err))
	assert.Len(t, f.transfers(t, enums.TransferTypeAdjustment), 2)
}

func TestTransfersFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P1", 10, 2500, 1000)
	a, b := uuid.New(), uuid.New()
	_, err := f.svc.Allocate(ctx, AllocateInput{ProductID: product.ID, AgentID: a, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.Allocate(ctx, AllocateInput{ProductID: product.ID, AgentID: b, Quantity: 2})
	require.NoError(t, err)

	rows, err := f.svc.Transfers(ctx, TransferFilter{AgentID: &a})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a, *rows[0].ToAgentID)
}

func TestAllocateReturnRoundTripRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		stock int
		held  int
		qty   int
	}{
		{name: "single unit", stock: 1, held: 0, qty: 1},
		{name: "whole warehouse", stock: 50, held: 0, qty: 50},
		{name: "partial with holding", stock: 30, held: 7, qty: 12},
		{name: "large holding", stock: 5, held: 20, qty: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			product := models.Product{SKU: uuid.NewString(), Name: "round trip", PriceCents: 100, StockQuantity: tc.stock, IsActive: true}
			require.NoError(t, f.db.Create(&product).Error)
			agent := uuid.New()
			if tc.held > 0 {
				require.NoError(t, f.db.Create(&models.AgentStock{AgentID: agent, ProductID: product.ID, Quantity: tc.held}).Error)
			}

			_, err := f.svc.Allocate(ctx, AllocateInput{ProductID: product.ID, AgentID: agent, Quantity: tc.qty})
			require.NoError(t, err)
			_, err = f.svc.Return(ctx, ReturnInput{ProductID: product.ID, AgentID: agent, Quantity: tc.qty})
			require.NoError(t, err)

			var after models.Product
			require.NoError(t, f.db.First(&after, "id = ?", product.ID).Error)
			var holding models.AgentStock
			require.NoError(t, f.db.Where("agent_id = ? AND product_id = ?", agent, product.ID).First(&holding).Error)
			assert.Equal(t, tc.stock, after.StockQuantity)
			assert.Equal(t, tc.held, holding.Quantity)
		})
	}
}

func TestConcurrentAllocationsNeverOversellWarehouse(t *testing.T) {
	const (
		stock    = 10
		workers  = 4
		quantity = 4
	)
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, "P-RACE", stock, 2500, 1000)
	actor := uuid.New()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Allocate(context.Background(), AllocateInput{
				ProductID: product.ID, AgentID: uuid.New(), Quantity: quantity, ActorID: actor,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.LessOrEqual(t, succeeded*quantity, stock)
	assert.Equal(t, stock-succeeded*quantity, f.warehouse(t, product.ID))
	assert.Len(t, f.transfers(t, enums.TransferTypeAllocation), succeeded)

	var held int64
	require.NoError(t, f.db.Model(&models.AgentStock{}).
		Where("product_id = ?", product.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&held).Error)
	assert.EqualValues(t, succeeded*quantity, held)

	remaining := stock - succeeded*quantity
	if remaining > 0 {
		_, err := f.svc.Allocate(context.Background(), AllocateInput{ProductID: product.ID, AgentID: uuid.New(), Quantity: remaining, ActorID: actor})
		require.NoError(t, err)
	}
	_, err := f.svc.Allocate(context.Background(), AllocateInput{ProductID: product.ID, AgentID: uuid.New(), Quantity: 1, ActorID: actor})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientStock))
	assert.Zero(t, f.warehouse(t, product.ID))
}
