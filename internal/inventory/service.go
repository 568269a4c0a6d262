package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

// EventPublisher receives stock_moved events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, event outbox.DomainEvent)
}

// Service exposes the stand-alone stock operations. Each runs in its own
// unit of work and writes exactly one transfer row.
type Service interface {
	Allocate(ctx context.Context, input AllocateInput) (*models.InventoryTransfer, error)
	Transfer(ctx context.Context, input TransferInput) (*models.InventoryTransfer, error)
	Return(ctx context.Context, input ReturnInput) (*models.InventoryTransfer, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.InventoryTransfer, error)
	AgentStock(ctx context.Context, agentID uuid.UUID) ([]models.AgentStock, error)
	Transfers(ctx context.Context, filter TransferFilter) ([]models.InventoryTransfer, error)
	OrderLedger
}

// ServiceParams groups the collaborators of the inventory service.
type ServiceParams struct {
	Repo      *Repository
	Runner    *uow.Runner
	Publisher EventPublisher
	Metrics   *metrics.FulfillmentMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	runner    *uow.Runner
	publisher EventPublisher
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("unit of work runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		runner:    params.Runner,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) Allocate(ctx context.Context, input AllocateInput) (*models.InventoryTransfer, error) {
	if err := validateMove(input.ProductID, input.AgentID, input.Quantity); err != nil {
		return nil, err
	}
	var transfer *models.InventoryTransfer
	work := uow.New("inventory.allocate").
		Step("deduct_warehouse", func(ctx context.Context, tx *gorm.DB) error {
			return s.DeductWarehouse(ctx, tx, input.ProductID, input.Quantity)
		}).
		Step("credit_agent", func(ctx context.Context, tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.EnsureAgentStock(ctx, input.AgentID, input.ProductID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure agent stock")
			}
			return s.applyAgent(ctx, repo, input.AgentID, input.ProductID, agentDelta{
				quantity:  input.Quantity,
				allocated: input.Quantity,
			})
		}).
		Step("record_transfer", func(ctx context.Context, tx *gorm.DB) error {
			transfer = &models.InventoryTransfer{
				ProductID:    input.ProductID,
				Quantity:     input.Quantity,
				TransferType: enums.TransferTypeAllocation,
				ToAgentID:    uuidPtr(input.AgentID),
				Notes:        input.Notes,
				CreatedByID:  actorPtr(input.ActorID),
			}
			return s.record(ctx, tx, transfer)
		}).
		AfterCommit(func(ctx context.Context) { s.publishMoved(ctx, transfer, input.ActorID) })
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.InventoryTransfer, error) {
	if err := validateMove(input.ProductID, input.FromAgentID, input.Quantity); err != nil {
		return nil, err
	}
	if input.ToAgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination agent is required")
	}
	if input.FromAgentID == input.ToAgentID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination agents must differ")
	}
	var transfer *models.InventoryTransfer
	work := uow.New("inventory.transfer").
		Step("debit_source", func(ctx context.Context, tx *gorm.DB) error {
			return s.debitAgent(ctx, s.repo.WithTx(tx), input.FromAgentID, input.ProductID, input.Quantity, agentDelta{
				quantity:    -input.Quantity,
				transferOut: input.Quantity,
			})
		}).
		Step("credit_destination", func(ctx context.Context, tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.EnsureAgentStock(ctx, input.ToAgentID, input.ProductID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure agent stock")
			}
			return s.applyAgent(ctx, repo, input.ToAgentID, input.ProductID, agentDelta{
				quantity:   input.Quantity,
				transferIn: input.Quantity,
			})
		}).
		Step("record_transfer", func(ctx context.Context, tx *gorm.DB) error {
			transfer = &models.InventoryTransfer{
				ProductID:    input.ProductID,
				Quantity:     input.Quantity,
				TransferType: enums.TransferTypeAgentTransfer,
				FromAgentID:  uuidPtr(input.FromAgentID),
				ToAgentID:    uuidPtr(input.ToAgentID),
				Notes:        input.Notes,
				CreatedByID:  actorPtr(input.ActorID),
			}
			return s.record(ctx, tx, transfer)
		}).
		AfterCommit(func(ctx context.Context) { s.publishMoved(ctx, transfer, input.ActorID) })
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *service) Return(ctx context.Context, input ReturnInput) (*models.InventoryTransfer, error) {
	if err := validateMove(input.ProductID, input.AgentID, input.Quantity); err != nil {
		return nil, err
	}
	var transfer *models.InventoryTransfer
	work := uow.New("inventory.return").
		Step("debit_agent", func(ctx context.Context, tx *gorm.DB) error {
			return s.debitAgent(ctx, s.repo.WithTx(tx), input.AgentID, input.ProductID, input.Quantity, agentDelta{
				quantity: -input.Quantity,
				returned: input.Quantity,
			})
		}).
		Step("restock_warehouse", func(ctx context.Context, tx *gorm.DB) error {
			return s.RestockWarehouse(ctx, tx, input.ProductID, input.Quantity)
		}).
		Step("record_transfer", func(ctx context.Context, tx *gorm.DB) error {
			transfer = &models.InventoryTransfer{
				ProductID:    input.ProductID,
				Quantity:     input.Quantity,
				TransferType: enums.TransferTypeReturnToWarehouse,
				FromAgentID:  uuidPtr(input.AgentID),
				Notes:        input.Notes,
				CreatedByID:  actorPtr(input.ActorID),
			}
			return s.record(ctx, tx, transfer)
		}).
		AfterCommit(func(ctx context.Context) { s.publishMoved(ctx, transfer, input.ActorID) })
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return transfer, nil
}

// Adjust sets the agent's on-hand quantity to NewQuantity. The difference is
// taken from or given back to the warehouse pool.
func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.InventoryTransfer, error) {
	if input.ProductID == uuid.Nil || input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and agent are required")
	}
	if input.NewQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}
	notes := strings.TrimSpace(input.Notes)
	if notes == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment notes are required")
	}

	var transfer *models.InventoryTransfer
	work := uow.New("inventory.adjust").
		Step("reconcile", func(ctx context.Context, tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := s.loadProduct(ctx, repo, input.ProductID); err != nil {
				return err
			}
			if err := repo.EnsureAgentStock(ctx, input.AgentID, input.ProductID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure agent stock")
			}
			current, err := repo.FindAgentStock(ctx, input.AgentID, input.ProductID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent stock")
			}
			delta := input.NewQuantity - current.Quantity
			if delta == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "adjustment does not change quantity")
			}
			expected := current.Quantity

			transfer = &models.InventoryTransfer{
				ProductID:    input.ProductID,
				TransferType: enums.TransferTypeAdjustment,
				Notes:        &notes,
				CreatedByID:  actorPtr(input.ActorID),
			}
			if delta > 0 {
				if err := s.DeductWarehouse(ctx, tx, input.ProductID, delta); err != nil {
					return err
				}
				transfer.ToAgentID = uuidPtr(input.AgentID)
				transfer.Quantity = delta
			} else {
				if err := s.RestockWarehouse(ctx, tx, input.ProductID, -delta); err != nil {
					return err
				}
				transfer.FromAgentID = uuidPtr(input.AgentID)
				transfer.Quantity = -delta
			}
			rows, err := repo.ApplyAgentDelta(ctx, input.AgentID, input.ProductID, agentDelta{
				quantity:       delta,
				expectQuantity: &expected,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust agent stock")
			}
			if rows == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "agent stock changed during adjustment")
			}
			return s.record(ctx, tx, transfer)
		}).
		AfterCommit(func(ctx context.Context) { s.publishMoved(ctx, transfer, input.ActorID) })
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *service) AgentStock(ctx context.Context, agentID uuid.UUID) ([]models.AgentStock, error) {
	rows, err := s.repo.ListAgentStock(ctx, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent stock")
	}
	return rows, nil
}

func (s *service) Transfers(ctx context.Context, filter TransferFilter) ([]models.InventoryTransfer, error) {
	rows, err := s.repo.ListTransfers(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers")
	}
	return rows, nil
}

// DeductWarehouse removes qty from the pool inside tx or fails with
// INSUFFICIENT_STOCK.
func (s *service) DeductWarehouse(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.DecrementWarehouse(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct warehouse stock")
	}
	if rows > 0 {
		return nil
	}
	product, err := s.loadProduct(ctx, repo, productID)
	if err != nil {
		return err
	}
	s.metrics.ObserveShortfall("warehouse")
	return insufficient("warehouse", productID, product.StockQuantity, qty)
}

func (s *service) RestockWarehouse(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	rows, err := s.repo.WithTx(tx).IncrementWarehouse(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock warehouse")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"productId": productID})
	}
	return nil
}

// debitAgent removes qty from an agent holding, reporting a missing row as a
// shortfall against zero units.
func (s *service) debitAgent(ctx context.Context, repo *Repository, agentID, productID uuid.UUID, qty int, d agentDelta) error {
	rows, err := repo.ApplyAgentDelta(ctx, agentID, productID, d)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit agent stock")
	}
	if rows > 0 {
		return nil
	}
	if _, err := s.loadProduct(ctx, repo, productID); err != nil {
		return err
	}
	available := 0
	stock, err := repo.FindAgentStock(ctx, agentID, productID)
	switch {
	case err == nil:
		available = stock.Quantity
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent stock")
	}
	s.metrics.ObserveShortfall("agent")
	return insufficient("agent", productID, available, qty)
}

func (s *service) applyAgent(ctx context.Context, repo *Repository, agentID, productID uuid.UUID, d agentDelta) error {
	rows, err := repo.ApplyAgentDelta(ctx, agentID, productID, d)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent stock")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "agent stock counters out of range")
	}
	return nil
}

func (s *service) loadProduct(ctx context.Context, repo *Repository, productID uuid.UUID) (*models.Product, error) {
	product, err := repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found").WithDetails(map[string]any{"productId": productID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, transfer *models.InventoryTransfer) error {
	if err := s.repo.WithTx(tx).CreateTransfer(ctx, transfer); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory transfer")
	}
	return nil
}

func (s *service) publishMoved(ctx context.Context, transfer *models.InventoryTransfer, actorID uuid.UUID) {
	if s.publisher == nil || transfer == nil {
		return
	}
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID}
	}
	s.publisher.Publish(ctx, outbox.DomainEvent{
		EventType:     enums.EventStockMoved,
		AggregateType: enums.AggregateInventory,
		AggregateID:   transfer.ProductID,
		Actor:         actor,
		Data: payloads.StockMovedEvent{
			TransferID:   transfer.ID,
			ProductID:    transfer.ProductID,
			TransferType: transfer.TransferType,
			Quantity:     transfer.Quantity,
			FromAgentID:  transfer.FromAgentID,
			ToAgentID:    transfer.ToAgentID,
		},
	})
}

func validateMove(productID, agentID uuid.UUID, qty int) error {
	if productID == uuid.Nil || agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and agent are required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func insufficient(source string, productID uuid.UUID, available, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient %s stock", source)).
		WithDetails(map[string]any{
			"productId": productID,
			"source":    source,
			"available": available,
			"requested": requested,
		})
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
