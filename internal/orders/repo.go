package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Repository persists orders, their items and status history. Reads of live
// orders go through models.ActiveOrders so deleted orders never leak into a transition.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *Repository) FindActive(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Scopes(models.ActiveOrders).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "orders.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatus moves an active order from one status to another. Zero rows
// means someone else moved it first.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, payment enums.PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?,
			payment_status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND lifecycle = ?
	`, to, payment, id, from, enums.OrderLifecycleActive)
	return res.RowsAffected, res.Error
}

func (r *Repository) SetRevenueRecognized(ctx context.Context, id uuid.UUID, recognized bool) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"revenue_recognized": recognized,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// ReplaceItems deletes every line of the order and inserts items in their place.
func (r *Repository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ID = uuid.Nil
		items[i].OrderID = orderID
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *Repository) UpdateTotals(ctx context.Context, id uuid.UUID, subtotal, total int64, cod *int64) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"subtotal_cents":     subtotal,
			"total_amount_cents": total,
			"cod_amount_cents":   cod,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// MarkDeleted moves an active order out of the active lifecycle, provided it is
// still in the status the caller checked.
func (r *Repository) MarkDeleted(ctx context.Context, id uuid.UUID, status enums.OrderStatus, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET lifecycle = ?,
			deleted_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND lifecycle = ?
	`, enums.OrderLifecycleDeleted, at, id, status, enums.OrderLifecycleActive)
	return res.RowsAffected, res.Error
}

// OrderFilter narrows List. Zero values are ignored.
type OrderFilter struct {
	Status          enums.OrderStatus
	AssignedAgentID *uuid.UUID
	CustomerID      *uuid.UUID
	Limit           int
}

func (r *Repository) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Scopes(models.ActiveOrders)
	if filter.Status != "" {
		q = q.Where("orders.status = ?", filter.Status)
	}
	if filter.AssignedAgentID != nil {
		q = q.Where("orders.assigned_agent_id = ?", *filter.AssignedAgentID)
	}
	if filter.CustomerID != nil {
		q = q.Where("orders.customer_id = ?", *filter.CustomerID)
	}
	var rows []models.Order
	err := q.Order("orders.order_date DESC").
		Order("orders.id DESC").
		Limit(filter.Limit).
		Find(&rows).Error
	return rows, err
}
