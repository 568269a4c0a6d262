package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Order is a cash-on-delivery order. Status only moves through the orders
// state machine.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string               `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	CustomerID        uuid.UUID            `gorm:"column:customer_id;type:uuid;not null;index"`
	Status            enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending_confirmation'"`
	PaymentStatus     enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	SubtotalCents     int64                `gorm:"column:subtotal_cents;not null"`
	TotalAmountCents  int64                `gorm:"column:total_amount_cents;not null"`
	CODAmountCents    *int64               `gorm:"column:cod_amount_cents"`
	RevenueRecognized bool                 `gorm:"column:revenue_recognized;not null;default:false"`
	Lifecycle         enums.OrderLifecycle `gorm:"column:lifecycle;type:text;not null;default:'active';index"`
	DeletedAt         *time.Time           `gorm:"column:deleted_at"`
	AssignedAgentID   *uuid.UUID           `gorm:"column:assigned_agent_id;type:uuid;index"`
	AssignedRepID     *uuid.UUID           `gorm:"column:assigned_rep_id;type:uuid;index"`
	Phone             string               `gorm:"column:phone;type:text;not null;index"`
	Address           string               `gorm:"column:address;type:text;not null"`
	City              string               `gorm:"column:city;type:text"`
	Notes             *string              `gorm:"column:notes"`
	OrderDate         time.Time            `gorm:"column:order_date;not null;index"`
	Items             []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.Lifecycle == "" {
		o.Lifecycle = enums.OrderLifecycleActive
	}
	return nil
}

// ActiveOrders scopes a query to orders in the active lifecycle.
func ActiveOrders(db *gorm.DB) *gorm.DB {
	return db.Where("orders.lifecycle = ?", enums.OrderLifecycleActive)
}

// ActiveOrDeletedSince widens ActiveOrders to orders deleted at or after since.
func ActiveOrDeletedSince(since time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(orders.lifecycle = ? OR (orders.lifecycle = ? AND orders.deleted_at >= ?))",
			enums.OrderLifecycleActive, enums.OrderLifecycleDeleted, since)
	}
}

// IsDeleted reports whether the order left the active lifecycle.
func (o *Order) IsDeleted() bool {
	return o.Lifecycle == enums.OrderLifecycleDeleted
}

// CollectibleCents is the amount the agent collects at the door, falling back
// to the order total when no explicit COD amount was captured.
func (o *Order) CollectibleCents() int64 {
	if o.CODAmountCents != nil {
		return *o.CODAmountCents
	}
	return o.TotalAmountCents
}

// OrderItem is a line on an order. Items are replaced wholesale, never edited.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// LineTotalCents returns quantity × unit price.
func (i OrderItem) LineTotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// OrderStatusHistory is an append-only record of one status change.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:text;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	Notes      *string            `gorm:"column:notes"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
