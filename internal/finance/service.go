package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/ledger"
	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

const defaultBackfillLimit = 200

// CostSource loads products, with their COGS, inside a transaction.
type CostSource interface {
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// EventEmitter writes outbox rows through the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SyncResult carries what a sync created. Both fields are nil when the order
// did not qualify.
type SyncResult struct {
	Transaction  *models.FinancialTransaction `json:"transaction"`
	JournalEntry *models.JournalEntry         `json:"journal_entry"`
}

// Synced reports whether the sync wrote anything.
func (r *SyncResult) Synced() bool {
	return r != nil && r.Transaction != nil
}

// BatchError records one order that failed to sync.
type BatchError struct {
	OrderID uuid.UUID         `json:"order_id"`
	Error   pkgerrors.Failure `json:"error"`
}

// BatchResult summarises BatchSyncOrders.
type BatchResult struct {
	Synced  int          `json:"synced"`
	Skipped int          `json:"skipped"`
	Errors  []BatchError `json:"errors"`
}

// Service turns delivered orders into ledger and transaction records exactly once.
type Service interface {
	// SyncTx runs the sync inside tx. Every qualification check reads
	// through tx so a concurrent sync cannot slip between check and write.
	SyncTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) (*SyncResult, error)
	SyncOrderFinancialData(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID) (*SyncResult, error)
	BatchSyncOrders(ctx context.Context, orderIDs []uuid.UUID, actorID *uuid.UUID) BatchResult
	FindUnsyncedDeliveredOrders(ctx context.Context, limit int) ([]uuid.UUID, error)
	Transactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error)
}

// ServiceParams groups the collaborators of the sync engine.
type ServiceParams struct {
	Repo    *Repository
	Runner  *uow.Runner
	Ledger  ledger.Service
	Costs   CostSource
	Emitter EventEmitter
	Metrics *metrics.FulfillmentMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    *Repository
	runner  *uow.Runner
	ledger  ledger.Service
	costs   CostSource
	emitter EventEmitter
	metrics *metrics.FulfillmentMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("finance repository required")
	case params.Runner == nil:
		return nil, fmt.Errorf("unit of work runner required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Costs == nil:
		return nil, fmt.Errorf("cost source required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		runner:  params.Runner,
		ledger:  params.Ledger,
		costs:   params.Costs,
		emitter: params.Emitter,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) SyncTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) (*SyncResult, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindActiveOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusDelivered || order.CODAmountCents == nil || order.RevenueRecognized {
		return &SyncResult{}, nil
	}
	// Nothing to recognize on a zero-total order.
	if order.TotalAmountCents <= 0 {
		return &SyncResult{}, nil
	}
	collected, err := repo.HasCollection(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check collections")
	}
	if collected {
		return &SyncResult{}, nil
	}
	claimed, err := repo.ClaimRecognition(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim revenue recognition")
	}
	if claimed == 0 {
		return &SyncResult{}, nil
	}
	order.RevenueRecognized = true

	cogs, err := s.cogs(ctx, tx, order.Items)
	if err != nil {
		return nil, err
	}
	txn := &models.FinancialTransaction{
		OrderID:     order.ID,
		Type:        enums.FinancialTransactionCODCollection,
		Status:      enums.FinancialTransactionCollected,
		AmountCents: order.TotalAmountCents,
		AgentID:     order.AssignedAgentID,
		CreatedByID: actorID,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record collection")
	}
	entry, err := s.ledger.CreateRevenueRecognitionEntry(ctx, tx, order, cogs, actorID)
	if err != nil {
		return nil, err
	}
	if err := repo.LinkJournalEntry(ctx, txn.ID, entry.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link journal entry")
	}
	txn.JournalEntryID = &entry.ID

	if s.emitter != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventRevenueRecognized,
			AggregateType: enums.AggregateJournalEntry,
			AggregateID:   entry.ID,
			Data: payloads.RevenueEvent{
				OrderID:        order.ID,
				JournalEntryID: entry.ID,
				EntryNumber:    entry.EntryNumber,
				AmountCents:    order.TotalAmountCents,
			},
		}
		if actorID != nil {
			event.Actor = &outbox.ActorRef{UserID: *actorID}
		}
		if err := s.emitter.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue revenue event")
		}
	}
	return &SyncResult{Transaction: txn, JournalEntry: entry}, nil
}

func (s *service) SyncOrderFinancialData(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID) (*SyncResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var result *SyncResult
	work := uow.New("finance.sync").Step("sync_order", func(ctx context.Context, tx *gorm.DB) error {
		var err error
		result, err = s.SyncTx(ctx, tx, orderID, actorID)
		return err
	})
	if err := s.runner.Run(ctx, work); err != nil {
		s.metrics.ObserveSync("failed")
		return nil, err
	}
	if result.Synced() {
		s.metrics.ObserveSync("synced")
	} else {
		s.metrics.ObserveSync("skipped")
	}
	return result, nil
}

// BatchSyncOrders syncs each order in its own unit of work. A failure is
// recorded and the batch moves on.
func (s *service) BatchSyncOrders(ctx context.Context, orderIDs []uuid.UUID, actorID *uuid.UUID) BatchResult {
	result := BatchResult{Errors: []BatchError{}}
	var combined error
	for _, id := range orderIDs {
		synced, err := s.SyncOrderFinancialData(ctx, id, actorID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, BatchError{OrderID: id, Error: pkgerrors.Summarize(err)})
			combined = multierr.Append(combined, fmt.Errorf("order %s: %w", id, err))
		case synced.Synced():
			result.Synced++
		default:
			result.Skipped++
		}
	}
	if combined != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"synced":  result.Synced,
			"skipped": result.Skipped,
			"failed":  len(result.Errors),
		})
		s.logg.Error(logCtx, "finance.batch_sync completed with failures", combined)
	}
	return result
}

func (s *service) FindUnsyncedDeliveredOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = defaultBackfillLimit
	}
	ids, err := s.repo.FindUnsyncedDelivered(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find unsynced orders")
	}
	return ids, nil
}

func (s *service) Transactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	rows, err := s.repo.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return rows, nil
}

// cogs is Σ quantity × product COGS over the order's lines.
func (s *service) cogs(ctx context.Context, tx *gorm.DB, items []models.OrderItem) (int64, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	products, err := s.costs.GetMany(ctx, tx, ids)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * products[item.ProductID].COGSCents
	}
	return total, nil
}
