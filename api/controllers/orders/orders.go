package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/api/middleware"
	"github.com/angelmondragon/codfulfillment-backend/api/responses"
	"github.com/angelmondragon/codfulfillment-backend/api/validators"
	"github.com/angelmondragon/codfulfillment-backend/internal/importer"
	internalorders "github.com/angelmondragon/codfulfillment-backend/internal/orders"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxImportBytes   = 10 << 20
	maxImportRecords = 5000
)

// Service is the slice of the order state machine the HTTP layer drives.
type Service interface {
	Create(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error)
	ReplaceItems(ctx context.Context, input internalorders.ReplaceItemsInput) (*models.Order, error)
	SoftDelete(ctx context.Context, orderID, actorID uuid.UUID) error
	Get(ctx context.Context, orderID uuid.UUID) (*internalorders.OrderDetail, error)
	List(ctx context.Context, filter internalorders.OrderFilter) ([]models.Order, error)
}

// Importer runs bulk imports.
type Importer interface {
	BulkImportOrders(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// ImportRequest is the bulk import payload.
type ImportRequest struct {
	Records  []importer.ImportRecord `json:"records" validate:"required,min=1"`
	RepMap   map[string]uuid.UUID    `json:"rep_map,omitempty"`
	AgentMap map[string]uuid.UUID    `json:"agent_map,omitempty"`
	Silent   bool                    `json:"silent,omitempty"`
}

// Create places a new pending order.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.ActorID = &actorID

		order, err := svc.Create(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.FromModel(order))
	}
}

// Detail returns an order with its items and status history.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID.String())

		detail, err := svc.Get(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// List returns active orders. Delivery agents only ever see their own.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agentID, err := validators.ParseQueryUUID(r, "agent_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.OrderStatus.IsValid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := internalorders.OrderFilter{
			Status:          status,
			AssignedAgentID: agentID,
			CustomerID:      customerID,
			Limit:           limit,
		}
		if middleware.RoleFromContext(r.Context()) == string(enums.UserRoleDeliveryAgent) {
			if actorID, ok := middleware.ActorIDFromContext(r.Context()); ok {
				filter.AssignedAgentID = &actorID
			}
		}

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]internalorders.OrderDTO, 0, len(rows))
		for i := range rows {
			out = append(out, internalorders.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"orders": out})
	}
}

// Transition moves an order to the requested status.
func Transition(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID.String())

		var body internalorders.TransitionInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body.OrderID = orderID
		body.ActorID = actorID

		order, err := svc.Transition(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.FromModel(order))
	}
}

// ReplaceItems rewrites the lines of an order.
func ReplaceItems(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID.String())

		var body internalorders.ReplaceItemsInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body.OrderID = orderID
		body.ActorID = actorID

		order, err := svc.ReplaceItems(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.FromModel(order))
	}
}

// Delete soft-deletes an order.
func Delete(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithOrderID(r.Context(), orderID.String())

		if err := svc.SoftDelete(ctx, orderID, actorID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": orderID, "deleted": true})
	}
}

// Import runs a bulk import. The run summary is returned even when every
// record failed.
func Import(svc Importer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "importer unavailable"))
			return
		}
		actorID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ImportRequest
		if err := validators.DecodeJSONBodyLimit(r, &body, maxImportBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(body.Records) > maxImportRecords {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many records").
				WithDetails(map[string]any{"max": maxImportRecords, "received": len(body.Records)}))
			return
		}

		result, err := svc.BulkImportOrders(r.Context(), importer.Request{
			Records:  body.Records,
			ActorID:  &actorID,
			RepMap:   body.RepMap,
			AgentMap: body.AgentMap,
			Silent:   body.Silent,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
