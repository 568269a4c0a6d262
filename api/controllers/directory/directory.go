// Package directory serves the staff and catalog endpoints.
package directory

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/codfulfillment-backend/api/responses"
	"github.com/angelmondragon/codfulfillment-backend/api/validators"
	"github.com/angelmondragon/codfulfillment-backend/internal/products"
	"github.com/angelmondragon/codfulfillment-backend/internal/users"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

type UserService interface {
	Create(ctx context.Context, input users.CreateUserInput) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAgents(ctx context.Context) ([]models.User, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error
}

type ProductService interface {
	Create(ctx context.Context, input products.CreateProductInput) (*models.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

type commissionRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type createProductRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	Price         decimal.Decimal `json:"price"`
	COGS          decimal.Decimal `json:"cogs"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
}

type productDTO struct {
	ID            uuid.UUID       `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	COGS          decimal.Decimal `json:"cogs"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

func productFromModel(p *models.Product) productDTO {
	return productDTO{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Price:         products.FromCents(p.PriceCents),
		COGS:          products.FromCents(p.COGSCents),
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
	}
}

func CreateUser(svc UserService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		var body users.CreateUserInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, users.FromModel(user))
	}
}

func GetUser(svc UserService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}

// ListAgents returns active delivery agents.
func ListAgents(svc UserService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		rows, err := svc.ListAgents(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*users.UserDTO, 0, len(rows))
		for i := range rows {
			out = append(out, users.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"agents": out})
	}
}

func SetAvailability(svc UserService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body availabilityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetAvailability(r.Context(), id, *body.Available); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "available": *body.Available})
	}
}

func UpdateCommission(svc UserService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body commissionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateCommissionRate(r.Context(), id, body.CommissionRate); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "commission_rate": body.CommissionRate})
	}
}

func CreateProduct(svc ProductService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.Create(r.Context(), products.CreateProductInput{
			SKU:           validators.SanitizeString(body.SKU, 64),
			Name:          validators.SanitizeString(body.Name, 200),
			Price:         body.Price,
			COGS:          body.COGS,
			StockQuantity: body.StockQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, productFromModel(product))
	}
}

func GetProduct(svc ProductService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, productFromModel(product))
	}
}
