package finance

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/api/middleware"
	"github.com/angelmondragon/codfulfillment-backend/api/responses"
	"github.com/angelmondragon/codfulfillment-backend/api/validators"
	internalfinance "github.com/angelmondragon/codfulfillment-backend/internal/finance"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const maxBatchOrders = 500

// Service is the sync surface exposed over HTTP.
type Service interface {
	SyncOrderFinancialData(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID) (*internalfinance.SyncResult, error)
	BatchSyncOrders(ctx context.Context, orderIDs []uuid.UUID, actorID *uuid.UUID) internalfinance.BatchResult
	FindUnsyncedDeliveredOrders(ctx context.Context, limit int) ([]uuid.UUID, error)
	Transactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error)
}

// FinancePolicy decides who may trigger financial writes.
type FinancePolicy interface {
	CanManageFinance(ctx context.Context, actorID uuid.UUID) error
}

// BatchSyncRequest lists orders to sync. An empty list syncs up to Limit
// delivered orders that have not been recognised yet.
type BatchSyncRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"max=500"`
	Limit    int         `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

// SyncOrder recognises a single delivered order.
func SyncOrder(svc Service, policy FinancePolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := authorize(w, r, svc, policy, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID.String())

		result, err := svc.SyncOrderFinancialData(ctx, orderID, &actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalfinance.SyncResultFromModel(result))
	}
}

// BatchSync recognises many orders, one transaction each.
func BatchSync(svc Service, policy FinancePolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := authorize(w, r, svc, policy, logg)
		if !ok {
			return
		}
		var body BatchSyncRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		ids := body.OrderIDs
		if len(ids) == 0 {
			limit := body.Limit
			if limit == 0 {
				limit = maxBatchOrders
			}
			found, err := svc.FindUnsyncedDeliveredOrders(r.Context(), limit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ids = found
		}

		responses.WriteSuccess(w, svc.BatchSyncOrders(r.Context(), ids, &actorID))
	}
}

// Transactions lists the financial rows recorded for an order.
func Transactions(svc Service, policy FinancePolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authorize(w, r, svc, policy, logg); !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Transactions(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": internalfinance.TransactionsFromModels(rows)})
	}
}

func authorize(w http.ResponseWriter, r *http.Request, svc Service, policy FinancePolicy, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil || policy == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "finance service unavailable"))
		return uuid.Nil, false
	}
	actorID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	if err := policy.CanManageFinance(r.Context(), actorID); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return actorID, true
}
