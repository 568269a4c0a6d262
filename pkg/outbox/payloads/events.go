package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// OrderCreatedEvent announces a new order.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	Status           enums.OrderStatus `json:"status"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	Imported         bool              `json:"imported,omitempty"`
}

// OrderStatusChangedEvent is emitted after a committed transition.
type OrderStatusChangedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	OrderNumber     string            `json:"order_number"`
	FromStatus      enums.OrderStatus `json:"from_status"`
	ToStatus        enums.OrderStatus `json:"to_status"`
	AssignedAgentID *uuid.UUID        `json:"assigned_agent_id,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// OrderItemsReplacedEvent is emitted when an order's lines are rewritten.
type OrderItemsReplacedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	ItemCount        int       `json:"item_count"`
	TotalAmountCents int64     `json:"total_amount_cents"`
}

// OrderDeletedEvent is emitted when an order leaves the active lifecycle.
type OrderDeletedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
}

// StockMovedEvent mirrors one inventory transfer row.
type StockMovedEvent struct {
	TransferID   uuid.UUID          `json:"transfer_id"`
	ProductID    uuid.UUID          `json:"product_id"`
	TransferType enums.TransferType `json:"transfer_type"`
	Quantity     int                `json:"quantity"`
	FromAgentID  *uuid.UUID         `json:"from_agent_id,omitempty"`
	ToAgentID    *uuid.UUID         `json:"to_agent_id,omitempty"`
}

// RevenueEvent covers recognition and reversal.
type RevenueEvent struct {
	OrderID        uuid.UUID  `json:"order_id"`
	JournalEntryID uuid.UUID  `json:"journal_entry_id"`
	EntryNumber    string     `json:"entry_number"`
	AmountCents    int64      `json:"amount_cents"`
	ReversesID     *uuid.UUID `json:"reverses_id,omitempty"`
}

// ImportCompletedEvent summarises a bulk import run.
type ImportCompletedEvent struct {
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}
