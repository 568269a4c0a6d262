// Package importer ingests externally sourced orders, dropping duplicates
// and isolating per-record failures.
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/customers"
	"github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/internal/orders"
	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox/payloads"
)

const (
	defaultBatchSize = 50
	maxRecords       = 5000
)

// Customers upserts the buyer of a record by phone.
type Customers interface {
	FindOrCreate(ctx context.Context, tx *gorm.DB, input customers.ContactInput) (*models.Customer, error)
}

// Products resolves an id, sku or name to a catalog product.
type Products interface {
	Resolve(ctx context.Context, tx *gorm.DB, ref string) (*models.Product, error)
}

// OrderCreator writes an order through the caller's transaction.
type OrderCreator interface {
	CreateTx(ctx context.Context, tx *gorm.DB, input orders.CreateOrderInput) (*models.Order, uow.HookFunc, error)
}

// Backfill syncs orders that arrived already delivered.
type Backfill interface {
	BatchSyncOrders(ctx context.Context, orderIDs []uuid.UUID, actorID *uuid.UUID) finance.BatchResult
}

// Publisher announces a finished run.
type Publisher interface {
	Publish(ctx context.Context, event outbox.DomainEvent)
}

// Request is one bulk import run.
type Request struct {
	Records []ImportRecord
	ActorID *uuid.UUID
	// RepMap and AgentMap resolve display names to user ids.
	RepMap   map[string]uuid.UUID
	AgentMap map[string]uuid.UUID
	// Silent suppresses post-commit notifications.
	Silent bool
}

// Result summarises a run. It is always returned, even when every record failed.
type Result struct {
	Success    int                  `json:"success"`
	Failed     int                  `json:"failed"`
	Duplicates int                  `json:"duplicates"`
	Errors     []RecordError        `json:"errors"`
	OrderIDs   []uuid.UUID          `json:"order_ids"`
	Sync       *finance.BatchResult `json:"sync,omitempty"`
}

type Service interface {
	BulkImportOrders(ctx context.Context, req Request) (*Result, error)
}

// Options tune batching and duplicate detection.
type Options struct {
	BatchSize int
	// DeletedGrace keeps orders soft-deleted within the window visible to
	// the duplicate check. Zero disables it.
	DeletedGrace time.Duration
}

type ServiceParams struct {
	Repo      *Repository
	Runner    *uow.Runner
	Customers Customers
	Products  Products
	Orders    OrderCreator
	Backfill  Backfill
	Publisher Publisher
	Metrics   *metrics.FulfillmentMetrics
	Logger    *logger.Logger
	Options   Options
}

type service struct {
	repo      *Repository
	runner    *uow.Runner
	customers Customers
	products  Products
	orders    OrderCreator
	backfill  Backfill
	publisher Publisher
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	opts      Options
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("importer repository required")
	case params.Runner == nil:
		return nil, fmt.Errorf("unit of work runner required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer directory required")
	case params.Products == nil:
		return nil, fmt.Errorf("product catalog required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order creator required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	opts := params.Options
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.DeletedGrace < 0 {
		opts.DeletedGrace = 0
	}
	return &service{
		repo:      params.Repo,
		runner:    params.Runner,
		customers: params.Customers,
		products:  params.Products,
		orders:    params.Orders,
		backfill:  params.Backfill,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logg:      params.Logger,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// BulkImportOrders imports records in fixed-size batches. Records inside a
// batch run one after another so a near-duplicate always sees its twin
// committed before it runs its own check.
func (s *service) BulkImportOrders(ctx context.Context, req Request) (*Result, error) {
	if len(req.Records) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no records to import")
	}
	if len(req.Records) > maxRecords {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many records").
			WithDetails(map[string]any{"max": maxRecords, "received": len(req.Records)})
	}

	result := &Result{Errors: []RecordError{}, OrderIDs: []uuid.UUID{}}
	reps, agents := newLookup(req.RepMap), newLookup(req.AgentMap)
	now := s.now().UTC()

	seen := make(map[string]struct{}, len(req.Records))
	pending := make([]candidate, 0, len(req.Records))
	for i, record := range req.Records {
		c, err := prepare(i, record, now)
		if err != nil {
			s.fail(ctx, result, i, record, err)
			continue
		}
		if _, dup := seen[c.fingerprint]; dup {
			result.Duplicates++
			s.metrics.ObserveImport("duplicate")
			continue
		}
		seen[c.fingerprint] = struct{}{}
		pending = append(pending, c)
	}

	var delivered []uuid.UUID
	for start := 0; start < len(pending); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, c := range pending[start:end] {
			if ctx.Err() != nil {
				s.fail(ctx, result, c.index, c.record, ctx.Err())
				continue
			}
			order, err := s.importOne(ctx, c, req, reps, agents, now)
			switch {
			case err == nil:
				result.Success++
				result.OrderIDs = append(result.OrderIDs, order.ID)
				s.metrics.ObserveImport("created")
				if order.Status == enums.OrderStatusDelivered {
					delivered = append(delivered, order.ID)
				}
			case pkgerrors.Is(err, pkgerrors.CodeDuplicateOrder):
				result.Duplicates++
				s.metrics.ObserveImport("duplicate")
			default:
				s.fail(ctx, result, c.index, c.record, err)
			}
		}
	}

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Index < result.Errors[j].Index })

	if len(delivered) > 0 && s.backfill != nil {
		sync := s.backfill.BatchSyncOrders(ctx, delivered, req.ActorID)
		result.Sync = &sync
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"success":    result.Success,
		"failed":     result.Failed,
		"duplicates": result.Duplicates,
	})
	s.logg.Info(logCtx, "orders.import.completed")
	if !req.Silent && s.publisher != nil {
		s.publisher.Publish(ctx, outbox.DomainEvent{
			EventType:     enums.EventImportCompleted,
			AggregateType: enums.AggregateImport,
			AggregateID:   uuid.New(),
			Actor:         actorRef(req.ActorID),
			Data: payloads.ImportCompletedEvent{
				Success:    result.Success,
				Failed:     result.Failed,
				Duplicates: result.Duplicates,
			},
		})
	}
	return result, nil
}

// importOne persists one record in its own unit of work.
func (s *service) importOne(ctx context.Context, c candidate, req Request, reps, agents lookup, now time.Time) (*models.Order, error) {
	var (
		customer *models.Customer
		items    []orders.ItemInput
		order    *models.Order
		announce uow.HookFunc
	)
	work := uow.New("orders.import").
		Step("duplicate_check", func(ctx context.Context, tx *gorm.DB) error {
			return s.checkPersisted(ctx, tx, c, now)
		}).
		Step("customer", func(ctx context.Context, tx *gorm.DB) error {
			var err error
			customer, err = s.customers.FindOrCreate(ctx, tx, customers.ContactInput{
				Name:    c.record.CustomerName,
				Phone:   c.record.Phone,
				Address: c.record.Address,
				City:    c.record.City,
			})
			return err
		}).
		Step("products", func(ctx context.Context, tx *gorm.DB) error {
			items = make([]orders.ItemInput, 0, len(c.record.Items))
			for i, item := range c.record.Items {
				product, err := s.products.Resolve(ctx, tx, item.Product)
				if err != nil {
					return err
				}
				items = append(items, orders.ItemInput{
					ProductID:      product.ID,
					Quantity:       item.Quantity,
					UnitPriceCents: c.prices[i],
				})
			}
			return nil
		}).
		Step("order", func(ctx context.Context, tx *gorm.DB) error {
			total := c.totalCents
			orderDate := c.orderDate
			var err error
			order, announce, err = s.orders.CreateTx(ctx, tx, orders.CreateOrderInput{
				CustomerID:       customer.ID,
				Items:            items,
				TotalAmountCents: &total,
				CODAmountCents:   c.codCents,
				Status:           c.status,
				AssignedAgentID:  agents.resolve(c.record.Agent),
				AssignedRepID:    reps.resolve(c.record.Rep),
				Phone:            customer.Phone,
				Address:          c.record.Address,
				City:             c.record.City,
				Notes:            c.record.Notes,
				OrderDate:        &orderDate,
				ActorID:          req.ActorID,
				Imported:         true,
				Silent:           req.Silent,
			})
			return err
		}).
		AfterCommit(func(ctx context.Context) {
			if announce != nil {
				announce(ctx)
			}
		})
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return order, nil
}

// checkPersisted rejects a record that matches a stored order on phone, day,
// total and normalized address.
func (s *service) checkPersisted(ctx context.Context, tx *gorm.DB, c candidate, now time.Time) error {
	q := DuplicateQuery{
		Phone:       strings.TrimSpace(c.record.Phone),
		PhoneSuffix: c.phoneSuffix,
		TotalCents:  c.totalCents,
		DayStart:    dayStart(c.orderDate),
	}
	if s.opts.DeletedGrace > 0 {
		since := now.Add(-s.opts.DeletedGrace)
		q.DeletedSince = &since
	}
	matches, err := s.repo.WithTx(tx).FindDuplicateCandidates(ctx, q)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check persisted duplicates")
	}
	for _, existing := range matches {
		if NormalizeAddress(existing.Address) == c.address {
			return pkgerrors.New(pkgerrors.CodeDuplicateOrder, "order already imported").
				WithDetails(map[string]any{"orderId": existing.ID, "orderNumber": existing.OrderNumber})
		}
	}
	return nil
}

func (s *service) fail(ctx context.Context, result *Result, index int, record ImportRecord, err error) {
	result.Failed++
	failure := pkgerrors.Summarize(err)
	result.Errors = append(result.Errors, RecordError{Index: index, Record: record, Error: failure})
	s.metrics.ObserveImport("failed")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"record_index": index,
		"error_code":   failure.Code,
	})
	s.logg.Warn(logCtx, "import record failed")
}

func dayStart(at time.Time) time.Time {
	y, m, d := at.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil || *actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *actorID}
}
