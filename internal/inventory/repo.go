package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Repository owns every write to products.stock_quantity, agent_stocks and
// inventory_transfers. Decrements are conditional updates so a concurrent
// reservation can never push a counter below zero.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// agentDelta is a signed change to one agent_stocks row. expectQuantity, when
// set, pins the on-hand quantity the caller read.
type agentDelta struct {
	quantity       int
	allocated      int
	inTransit      int
	fulfilled      int
	returned       int
	transferIn     int
	transferOut    int
	expectQuantity *int
}

// DecrementWarehouse removes qty from the pool only if at least qty remains.
func (r *Repository) DecrementWarehouse(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_quantity >= ?
	`, qty, productID, qty)
	return res.RowsAffected, res.Error
}

func (r *Repository) IncrementWarehouse(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, productID)
	return res.RowsAffected, res.Error
}

func (r *Repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) FindAgentStock(ctx context.Context, agentID, productID uuid.UUID) (*models.AgentStock, error) {
	var stock models.AgentStock
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND product_id = ?", agentID, productID).
		First(&stock).Error
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *Repository) ListAgentStock(ctx context.Context, agentID uuid.UUID) ([]models.AgentStock, error) {
	var rows []models.AgentStock
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// EnsureAgentStock creates an empty holding row when none exists yet.
func (r *Repository) EnsureAgentStock(ctx context.Context, agentID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&models.AgentStock{AgentID: agentID, ProductID: productID}).Error
}

// ApplyAgentDelta updates one holding row. The update matches nothing when it
// would drive quantity, in-transit or fulfilled below zero.
func (r *Repository) ApplyAgentDelta(ctx context.Context, agentID, productID uuid.UUID, d agentDelta) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`
		UPDATE agent_stocks
		SET quantity = quantity + ?,
			total_allocated = total_allocated + ?,
			total_in_transit = total_in_transit + ?,
			total_fulfilled = total_fulfilled + ?,
			total_returned = total_returned + ?,
			total_transfer_in = total_transfer_in + ?,
			total_transfer_out = total_transfer_out + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = ? AND product_id = ?
			AND quantity + ? >= 0
			AND total_in_transit + ? >= 0
			AND total_fulfilled + ? >= 0`)
	args := []any{
		d.quantity, d.allocated, d.inTransit, d.fulfilled, d.returned, d.transferIn, d.transferOut,
		agentID, productID,
		d.quantity, d.inTransit, d.fulfilled,
	}
	if d.expectQuantity != nil {
		sb.WriteString(` AND quantity = ?`)
		args = append(args, *d.expectQuantity)
	}
	res := r.db.WithContext(ctx).Exec(sb.String(), args...)
	return res.RowsAffected, res.Error
}

func (r *Repository) CreateTransfer(ctx context.Context, transfer *models.InventoryTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

// ListOrderTransfers returns the fulfillment and reversal rows linked to an order.
func (r *Repository) ListOrderTransfers(ctx context.Context, orderID uuid.UUID) ([]models.InventoryTransfer, error) {
	var rows []models.InventoryTransfer
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND transfer_type IN ?", orderID, []enums.TransferType{
			enums.TransferTypeOrderFulfillment,
			enums.TransferTypeAdjustment,
		}).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListTransfers(ctx context.Context, filter TransferFilter) ([]models.InventoryTransfer, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryTransfer{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.AgentID != nil {
		q = q.Where("from_agent_id = ? OR to_agent_id = ?", *filter.AgentID, *filter.AgentID)
	}
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Type != "" {
		q = q.Where("transfer_type = ?", filter.Type)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxTransferPage {
		limit = maxTransferPage
	}
	var rows []models.InventoryTransfer
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// SumAgentQuantity totals on-hand units of a product across all agents.
func (r *Repository) SumAgentQuantity(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&models.AgentStock{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}
