package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/audit"
	"github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/internal/inventory"
	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

// CustomerDirectory loads the customer an order belongs to.
type CustomerDirectory interface {
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Customer, error)
}

// Catalog loads products for pricing and stock.
type Catalog interface {
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// FinancialSync recognises revenue for a delivered order inside tx.
type FinancialSync interface {
	SyncTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) (*finance.SyncResult, error)
}

// RevenueReverser cancels the revenue entry of a returned order.
type RevenueReverser interface {
	LatestActiveEntry(ctx context.Context, tx *gorm.DB, sourceType enums.JournalSourceType, sourceID uuid.UUID) (*models.JournalEntry, error)
	CreateReturnReversalEntry(ctx context.Context, tx *gorm.DB, order *models.Order, original *models.JournalEntry, actorID *uuid.UUID) (*models.JournalEntry, error)
}

// Permissions decides whether an actor may act on an order. It runs before
// any transaction opens.
type Permissions interface {
	CanTransition(ctx context.Context, actorID uuid.UUID, order *models.Order, target enums.OrderStatus) error
	CanEdit(ctx context.Context, actorID uuid.UUID, order *models.Order) error
}

// AuditSink records committed changes.
type AuditSink interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Events writes outbox rows, either inside a transaction or after commit.
type Events interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	Publish(ctx context.Context, event outbox.DomainEvent)
}

// Service is the order status state machine and its supporting operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	// CreateTx writes the order inside tx and returns the hook that announces
	// it once tx has committed.
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, uow.HookFunc, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	ReplaceItems(ctx context.Context, input ReplaceItemsInput) (*models.Order, error)
	SoftDelete(ctx context.Context, orderID, actorID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
}

// ServiceParams groups the collaborators of the state machine.
type ServiceParams struct {
	Repo        *Repository
	Runner      *uow.Runner
	Customers   CustomerDirectory
	Catalog     Catalog
	Inventory   inventory.OrderLedger
	Finance     FinancialSync
	Ledger      RevenueReverser
	Permissions Permissions
	Audit       AuditSink
	Events      Events
	Metrics     *metrics.FulfillmentMetrics
	Logger      *logger.Logger
}

type service struct {
	repo        *Repository
	runner      *uow.Runner
	customers   CustomerDirectory
	catalog     Catalog
	inventory   inventory.OrderLedger
	finance     FinancialSync
	ledger      RevenueReverser
	permissions Permissions
	audit       AuditSink
	events      Events
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Runner == nil:
		return nil, fmt.Errorf("unit of work runner required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer directory required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("product catalog required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Finance == nil:
		return nil, fmt.Errorf("financial sync required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Permissions == nil:
		return nil, fmt.Errorf("permission checker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		runner:      params.Runner,
		customers:   params.Customers,
		catalog:     params.Catalog,
		inventory:   params.Inventory,
		finance:     params.Finance,
		ledger:      params.Ledger,
		permissions: params.Permissions,
		audit:       params.Audit,
		events:      params.Events,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.loadActive(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return &OrderDetail{Order: FromModel(order), History: historyFromModels(history)}, nil
}

func (s *service) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if filter.Limit <= 0 || filter.Limit > maxOrderPage {
		filter.Limit = maxOrderPage
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) SoftDelete(ctx context.Context, orderID, actorID uuid.UUID) error {
	order, err := s.loadActive(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	if err := s.permissions.CanEdit(ctx, actorID, order); err != nil {
		return err
	}
	if order.Status.Deducted() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "orders holding reserved stock cannot be deleted").
			WithDetails(map[string]any{"status": order.Status})
	}

	actor := actorID
	work := uow.New("orders.soft_delete").
		Step("mark_deleted", func(ctx context.Context, tx *gorm.DB) error {
			rows, err := s.repo.WithTx(tx).MarkDeleted(ctx, order.ID, order.Status, s.now().UTC())
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
			}
			if rows == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
			}
			return nil
		}).
		Step("history", func(ctx context.Context, tx *gorm.DB) error {
			from := order.Status
			return s.appendHistory(ctx, tx, order.ID, &from, order.Status, &actor, "order deleted")
		}).
		AfterCommit(func(ctx context.Context) {
			s.publish(ctx, outbox.DomainEvent{
				EventType:     enums.EventOrderDeleted,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: actor},
				Data:          payloads.OrderDeletedEvent{OrderID: order.ID},
			})
			s.record(ctx, &actor, "order.deleted", order.ID, map[string]any{"order_number": order.OrderNumber})
		})
	return s.runner.Run(ctx, work)
}

func (s *service) loadActive(ctx context.Context, repo *Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindActive(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) appendHistory(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from *enums.OrderStatus, to enums.OrderStatus, actorID *uuid.UUID, notes string) error {
	entry := &models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
	}
	if notes != "" {
		entry.Notes = &notes
	}
	if err := s.repo.WithTx(tx).CreateHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}
	return nil
}

func (s *service) publish(ctx context.Context, event outbox.DomainEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}

func (s *service) record(ctx context.Context, actorID *uuid.UUID, action string, orderID uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     action,
		EntityType: "order",
		EntityID:   orderID,
		Details:    details,
	})
}
