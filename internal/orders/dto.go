package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

const maxOrderPage = 200

// ItemInput is one requested line. UnitPriceCents falls back to the catalog
// price when nil.
type ItemInput struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	Quantity       int       `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents *int64    `json:"unit_price_cents,omitempty" validate:"omitempty,gte=0"`
}

// CreateOrderInput carries everything needed to open an order. Phone,
// address and city default to the customer's contact details.
type CreateOrderInput struct {
	CustomerID       uuid.UUID         `json:"customer_id" validate:"required"`
	Items            []ItemInput       `json:"items" validate:"required,min=1,dive"`
	TotalAmountCents *int64            `json:"total_amount_cents,omitempty" validate:"omitempty,gte=0"`
	CODAmountCents   *int64            `json:"cod_amount_cents,omitempty" validate:"omitempty,gte=0"`
	Status           enums.OrderStatus `json:"status,omitempty" validate:"omitempty,enum"`
	AssignedAgentID  *uuid.UUID        `json:"assigned_agent_id,omitempty"`
	AssignedRepID    *uuid.UUID        `json:"assigned_rep_id,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Address          string            `json:"address,omitempty"`
	City             string            `json:"city,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	OrderDate        *time.Time        `json:"order_date,omitempty"`
	ActorID          *uuid.UUID        `json:"-"`
	// Imported marks orders that came through the bulk importer.
	Imported bool `json:"-"`
	// Silent suppresses post-commit notifications.
	Silent bool `json:"-"`
}

// TransitionInput requests a status change.
type TransitionInput struct {
	OrderID uuid.UUID         `json:"-"`
	Status  enums.OrderStatus `json:"status" validate:"required,enum"`
	ActorID uuid.UUID         `json:"-"`
	Notes   string            `json:"notes,omitempty"`
}

// ReplaceItemsInput rewrites every line of an order.
type ReplaceItemsInput struct {
	OrderID          uuid.UUID   `json:"-"`
	Items            []ItemInput `json:"items" validate:"required,min=1,dive"`
	TotalAmountCents *int64      `json:"total_amount_cents,omitempty" validate:"omitempty,gte=0"`
	ActorID          uuid.UUID   `json:"-"`
}

// OrderDetail is an order with its lines and full status history.
type OrderDetail struct {
	Order   OrderDTO     `json:"order"`
	History []HistoryDTO `json:"history"`
}

type OrderItemDTO struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

type OrderDTO struct {
	ID                uuid.UUID            `json:"id"`
	OrderNumber       string               `json:"order_number"`
	CustomerID        uuid.UUID            `json:"customer_id"`
	Status            enums.OrderStatus    `json:"status"`
	PaymentStatus     enums.PaymentStatus  `json:"payment_status"`
	SubtotalCents     int64                `json:"subtotal_cents"`
	TotalAmountCents  int64                `json:"total_amount_cents"`
	CODAmountCents    *int64               `json:"cod_amount_cents,omitempty"`
	RevenueRecognized bool                 `json:"revenue_recognized"`
	Lifecycle         enums.OrderLifecycle `json:"lifecycle"`
	DeletedAt         *time.Time           `json:"deleted_at,omitempty"`
	AssignedAgentID   *uuid.UUID           `json:"assigned_agent_id,omitempty"`
	AssignedRepID     *uuid.UUID           `json:"assigned_rep_id,omitempty"`
	Phone             string               `json:"phone"`
	Address           string               `json:"address"`
	City              string               `json:"city,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
	OrderDate         time.Time            `json:"order_date"`
	Items             []OrderItemDTO       `json:"items"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

type HistoryDTO struct {
	FromStatus *enums.OrderStatus `json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus  `json:"to_status"`
	ActorID    *uuid.UUID         `json:"actor_id,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func FromModel(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents(),
		})
	}
	return OrderDTO{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		SubtotalCents:     order.SubtotalCents,
		TotalAmountCents:  order.TotalAmountCents,
		CODAmountCents:    order.CODAmountCents,
		RevenueRecognized: order.RevenueRecognized,
		Lifecycle:         order.Lifecycle,
		DeletedAt:         order.DeletedAt,
		AssignedAgentID:   order.AssignedAgentID,
		AssignedRepID:     order.AssignedRepID,
		Phone:             order.Phone,
		Address:           order.Address,
		City:              order.City,
		Notes:             order.Notes,
		OrderDate:         order.OrderDate,
		Items:             items,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func historyFromModels(rows []models.OrderStatusHistory) []HistoryDTO {
	out := make([]HistoryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryDTO{
			FromStatus: row.FromStatus,
			ToStatus:   row.ToStatus,
			ActorID:    row.ActorID,
			Notes:      row.Notes,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}
