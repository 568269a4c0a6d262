package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/api/middleware"
	"github.com/angelmondragon/codfulfillment-backend/api/responses"
	"github.com/angelmondragon/codfulfillment-backend/api/validators"
	internalinventory "github.com/angelmondragon/codfulfillment-backend/internal/inventory"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const (
	defaultTransferLimit = 50
	maxTransferLimit     = 200
	maxNotesLength       = 500
)

// Service is the stock surface exposed over HTTP.
type Service interface {
	Allocate(ctx context.Context, input internalinventory.AllocateInput) (*models.InventoryTransfer, error)
	Transfer(ctx context.Context, input internalinventory.TransferInput) (*models.InventoryTransfer, error)
	Return(ctx context.Context, input internalinventory.ReturnInput) (*models.InventoryTransfer, error)
	Adjust(ctx context.Context, input internalinventory.AdjustInput) (*models.InventoryTransfer, error)
	AgentStock(ctx context.Context, agentID uuid.UUID) ([]models.AgentStock, error)
	Transfers(ctx context.Context, filter internalinventory.TransferFilter) ([]models.InventoryTransfer, error)
}

// StockPolicy decides who may move stock.
type StockPolicy interface {
	CanManageStock(ctx context.Context, actorID uuid.UUID) error
}

// Allocate moves warehouse units to an agent.
func Allocate(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return movement(svc, policy, logg, func(ctx context.Context, r *http.Request, actorID uuid.UUID) (*models.InventoryTransfer, error) {
		var body internalinventory.AllocateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		body.ActorID = actorID
		return svc.Allocate(ctx, body)
	})
}

// Transfer moves units between two agents.
func Transfer(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return movement(svc, policy, logg, func(ctx context.Context, r *http.Request, actorID uuid.UUID) (*models.InventoryTransfer, error) {
		var body internalinventory.TransferInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		body.ActorID = actorID
		return svc.Transfer(ctx, body)
	})
}

// Return moves agent units back to the warehouse.
func Return(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return movement(svc, policy, logg, func(ctx context.Context, r *http.Request, actorID uuid.UUID) (*models.InventoryTransfer, error) {
		var body internalinventory.ReturnInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		body.ActorID = actorID
		return svc.Return(ctx, body)
	})
}

// Adjust sets an agent's counted quantity.
func Adjust(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return movement(svc, policy, logg, func(ctx context.Context, r *http.Request, actorID uuid.UUID) (*models.InventoryTransfer, error) {
		var body internalinventory.AdjustInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		body.Notes = validators.SanitizeString(body.Notes, maxNotesLength)
		body.ActorID = actorID
		return svc.Adjust(ctx, body)
	})
}

type movementFunc func(ctx context.Context, r *http.Request, actorID uuid.UUID) (*models.InventoryTransfer, error)

func movement(svc Service, policy StockPolicy, logg *logger.Logger, run movementFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || policy == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := policy.CanManageStock(r.Context(), actorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transfer, err := run(r.Context(), r, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalinventory.TransferFromModel(transfer))
	}
}

// AgentStock lists an agent's holdings. Agents may read their own stock.
func AgentStock(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || policy == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agentID, err := validators.ParseUUIDParam(r, "agentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if agentID != actorID {
			if err := policy.CanManageStock(r.Context(), actorID); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		rows, err := svc.AgentStock(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"agent_id": agentID,
			"stock":    internalinventory.AgentStockFromModels(rows),
		})
	}
}

// Transfers lists movement history, newest first.
func Transfers(svc Service, policy StockPolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || policy == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := policy.CanManageStock(r.Context(), actorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := parseTransferFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Transfers(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*internalinventory.TransferDTO, 0, len(rows))
		for i := range rows {
			out = append(out, internalinventory.TransferFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"transfers": out})
	}
}

func parseTransferFilter(r *http.Request) (internalinventory.TransferFilter, error) {
	var filter internalinventory.TransferFilter
	limit, err := validators.ParseQueryInt(r, "limit", defaultTransferLimit, 1, maxTransferLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	if filter.ProductID, err = validators.ParseQueryUUID(r, "product_id"); err != nil {
		return filter, err
	}
	if filter.AgentID, err = validators.ParseQueryUUID(r, "agent_id"); err != nil {
		return filter, err
	}
	if filter.OrderID, err = validators.ParseQueryUUID(r, "order_id"); err != nil {
		return filter, err
	}
	filter.Type, err = validators.ParseQueryEnum(r, "type", enums.TransferType.IsValid)
	return filter, err
}
