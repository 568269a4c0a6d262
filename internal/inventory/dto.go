package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

const maxTransferPage = 200

// AllocateInput moves warehouse units to an agent.
type AllocateInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	AgentID   uuid.UUID `json:"agent_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Notes     *string   `json:"notes,omitempty"`
	ActorID   uuid.UUID `json:"-"`
}

// TransferInput moves units between two agents.
type TransferInput struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	FromAgentID uuid.UUID `json:"from_agent_id" validate:"required"`
	ToAgentID   uuid.UUID `json:"to_agent_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
	Notes       *string   `json:"notes,omitempty"`
	ActorID     uuid.UUID `json:"-"`
}

// ReturnInput moves agent units back to the warehouse.
type ReturnInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	AgentID   uuid.UUID `json:"agent_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Notes     *string   `json:"notes,omitempty"`
	ActorID   uuid.UUID `json:"-"`
}

// AdjustInput reconciles an agent's on-hand quantity to a counted value.
type AdjustInput struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	AgentID     uuid.UUID `json:"agent_id" validate:"required"`
	NewQuantity int       `json:"new_quantity" validate:"gte=0"`
	Notes       string    `json:"notes" validate:"required"`
	ActorID     uuid.UUID `json:"-"`
}

// TransferFilter narrows transfer history queries.
type TransferFilter struct {
	ProductID *uuid.UUID
	AgentID   *uuid.UUID
	OrderID   *uuid.UUID
	Type      enums.TransferType
	Limit     int
}

// TransferDTO is the transport shape of one transfer row.
type TransferDTO struct {
	ID           uuid.UUID          `json:"id"`
	ProductID    uuid.UUID          `json:"product_id"`
	Quantity     int                `json:"quantity"`
	TransferType enums.TransferType `json:"transfer_type"`
	FromAgentID  *uuid.UUID         `json:"from_agent_id,omitempty"`
	ToAgentID    *uuid.UUID         `json:"to_agent_id,omitempty"`
	OrderID      *uuid.UUID         `json:"order_id,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	CreatedByID  *uuid.UUID         `json:"created_by_id,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// AgentStockDTO is one agent holding with its lifetime counters.
type AgentStockDTO struct {
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
	TotalAllocated   int       `json:"total_allocated"`
	TotalInTransit   int       `json:"total_in_transit"`
	TotalFulfilled   int       `json:"total_fulfilled"`
	TotalReturned    int       `json:"total_returned"`
	TotalTransferIn  int       `json:"total_transfer_in"`
	TotalTransferOut int       `json:"total_transfer_out"`
}

func TransferFromModel(t *models.InventoryTransfer) *TransferDTO {
	if t == nil {
		return nil
	}
	return &TransferDTO{
		ID:           t.ID,
		ProductID:    t.ProductID,
		Quantity:     t.Quantity,
		TransferType: t.TransferType,
		FromAgentID:  t.FromAgentID,
		ToAgentID:    t.ToAgentID,
		OrderID:      t.OrderID,
		Notes:        t.Notes,
		CreatedByID:  t.CreatedByID,
		CreatedAt:    t.CreatedAt,
	}
}

func AgentStockFromModels(rows []models.AgentStock) []AgentStockDTO {
	out := make([]AgentStockDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, AgentStockDTO{
			ProductID:        row.ProductID,
			Quantity:         row.Quantity,
			TotalAllocated:   row.TotalAllocated,
			TotalInTransit:   row.TotalInTransit,
			TotalFulfilled:   row.TotalFulfilled,
			TotalReturned:    row.TotalReturned,
			TotalTransferIn:  row.TotalTransferIn,
			TotalTransferOut: row.TotalTransferOut,
		})
	}
	return out
}
