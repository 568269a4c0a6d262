// Package engine assembles the fulfillment services over one database.
package engine

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/access"
	"github.com/angelmondragon/codfulfillment-backend/internal/audit"
	"github.com/angelmondragon/codfulfillment-backend/internal/customers"
	"github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/internal/importer"
	"github.com/angelmondragon/codfulfillment-backend/internal/inventory"
	"github.com/angelmondragon/codfulfillment-backend/internal/ledger"
	"github.com/angelmondragon/codfulfillment-backend/internal/orders"
	"github.com/angelmondragon/codfulfillment-backend/internal/products"
	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/internal/users"
	"github.com/angelmondragon/codfulfillment-backend/pkg/cache"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/codfulfillment-backend/pkg/outbox"
)

// Params carries the shared infrastructure. Cache defaults to an in-memory
// cache; Metrics may be nil.
type Params struct {
	DB      *gorm.DB
	Config  *config.Config
	Cache   cache.TTLCache
	Logger  *logger.Logger
	Metrics *metrics.FulfillmentMetrics
}

// Engine holds every service the binaries expose.
type Engine struct {
	Runner     *uow.Runner
	Outbox     *outbox.Service
	OutboxRepo *outbox.Repository
	Audit      *audit.Writer
	Access     *access.Checker
	Customers  customers.Service
	Products   products.Service
	Users      users.Service
	Inventory  inventory.Service
	Ledger     ledger.Service
	Finance    finance.Service
	Orders     orders.Service
	Importer   importer.Service
}

func New(p Params) (*Engine, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Cache == nil {
		p.Cache = cache.NewMemory()
	}
	cfg, db, logg := p.Config, p.DB, p.Logger

	runner, err := uow.NewRunner(db, uow.Options{
		MaxConcurrent: cfg.Tx.MaxConcurrent,
		MaxWait:       cfg.Tx.MaxWait,
		Timeout:       cfg.Tx.Timeout,
		Logger:        logg,
		Metrics:       p.Metrics,
	})
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(db)
	events := outbox.NewService(db, outboxRepo, logg)
	auditWriter, err := audit.NewWriter(db, logg)
	if err != nil {
		return nil, err
	}

	usersRepo := users.NewRepository(db)
	checker, err := access.NewChecker(usersRepo, p.Cache, cfg.Access.CacheTTL)
	if err != nil {
		return nil, err
	}
	usersSvc, err := users.NewService(usersRepo, checker, logg)
	if err != nil {
		return nil, err
	}
	customersSvc, err := customers.NewService(customers.NewRepository(db), cfg.Import.PhoneRegion)
	if err != nil {
		return nil, err
	}
	productsSvc, err := products.NewService(products.NewRepository(db))
	if err != nil {
		return nil, err
	}
	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:      inventory.NewRepository(db),
		Runner:    runner,
		Publisher: events,
		Metrics:   p.Metrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), runner, ledger.Accounts{
		CashInTransit: cfg.Ledger.CashInTransitCode,
		Inventory:     cfg.Ledger.InventoryCode,
		Revenue:       cfg.Ledger.RevenueCode,
		COGS:          cfg.Ledger.COGSCode,
	})
	if err != nil {
		return nil, err
	}
	financeSvc, err := finance.NewService(finance.ServiceParams{
		Repo:    finance.NewRepository(db),
		Runner:  runner,
		Ledger:  ledgerSvc,
		Costs:   productsSvc,
		Emitter: events,
		Metrics: p.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:        orders.NewRepository(db),
		Runner:      runner,
		Customers:   customersSvc,
		Catalog:     productsSvc,
		Inventory:   inventorySvc,
		Finance:     financeSvc,
		Ledger:      ledgerSvc,
		Permissions: checker,
		Audit:       auditWriter,
		Events:      events,
		Metrics:     p.Metrics,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}
	importerSvc, err := importer.NewService(importer.ServiceParams{
		Repo:      importer.NewRepository(db),
		Runner:    runner,
		Customers: customersSvc,
		Products:  productsSvc,
		Orders:    ordersSvc,
		Backfill:  financeSvc,
		Publisher: events,
		Metrics:   p.Metrics,
		Logger:    logg,
		Options: importer.Options{
			BatchSize:    cfg.Import.BatchSize,
			DeletedGrace: cfg.Import.DeletedGrace,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Runner:     runner,
		Outbox:     events,
		OutboxRepo: outboxRepo,
		Audit:      auditWriter,
		Access:     checker,
		Customers:  customersSvc,
		Products:   productsSvc,
		Users:      usersSvc,
		Inventory:  inventorySvc,
		Ledger:     ledgerSvc,
		Finance:    financeSvc,
		Orders:     ordersSvc,
		Importer:   importerSvc,
	}, nil
}

// Bootstrap seeds the rows the engine needs before serving traffic.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.Ledger.EnsureAccounts(ctx); err != nil {
		return fmt.Errorf("ensure ledger accounts: %w", err)
	}
	return nil
}
