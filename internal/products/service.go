package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// Service exposes catalog lookups used by order creation and import.
type Service interface {
	Create(ctx context.Context, input CreateProductInput) (*models.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// Resolve finds a product inside tx by id, sku or name, in that order.
	Resolve(ctx context.Context, tx *gorm.DB, ref string) (*models.Product, error)
	// GetMany loads products inside tx and fails NOT_FOUND when any is missing.
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	SKU           string
	Name          string
	Price         decimal.Decimal
	COGS          decimal.Decimal
	StockQuantity int
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	sku := strings.TrimSpace(input.SKU)
	name := strings.TrimSpace(input.Name)
	if sku == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku and name are required")
	}
	if input.Price.IsNegative() || input.COGS.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and cogs must be non-negative")
	}
	if input.StockQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock quantity must be non-negative")
	}
	product := &models.Product{
		SKU:           sku,
		Name:          name,
		PriceCents:    ToCents(input.Price),
		COGSCents:     ToCents(input.COGS),
		StockQuantity: input.StockQuantity,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "product not found")
	}
	return product, nil
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, ref string) (*models.Product, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product reference is required")
	}
	repo := s.repo.WithTx(tx)
	if id, err := uuid.Parse(ref); err == nil {
		product, err := repo.FindByID(ctx, id)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
	}
	product, err := repo.FindBySKU(ctx, ref)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	product, err = repo.FindByName(ctx, ref)
	if err != nil {
		return nil, mapLookupError(err, fmt.Sprintf("product %q not found", ref))
	}
	return product, nil
}

func (s *service) GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	found, err := s.repo.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"productId": id})
		}
	}
	return found, nil
}

// ToCents rounds a currency amount to whole cents.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents renders cents as a currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func mapLookupError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
