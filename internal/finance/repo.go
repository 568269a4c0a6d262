package finance

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Repository reads orders and writes financial transactions for the sync
// engine.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindActiveOrder loads an active order with its items.
func (r *Repository) FindActiveOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Scopes(models.ActiveOrders).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) HasCollection(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FinancialTransaction{}).
		Where("order_id = ? AND type = ?", orderID, enums.FinancialTransactionCODCollection).
		Count(&count).Error
	return count > 0, err
}

// ClaimRecognition flips revenue_recognized from false to true. Zero rows
// means another transaction got there first.
func (r *Repository) ClaimRecognition(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND revenue_recognized = ?", orderID, false).
		Update("revenue_recognized", true)
	return res.RowsAffected, res.Error
}

func (r *Repository) CreateTransaction(ctx context.Context, txn *models.FinancialTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *Repository) LinkJournalEntry(ctx context.Context, txnID, entryID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.FinancialTransaction{}).
		Where("id = ?", txnID).
		Update("journal_entry_id", entryID).Error
}

func (r *Repository) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	var rows []models.FinancialTransaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// FindUnsyncedDelivered returns delivered active orders with a positive total
// and a COD amount that were never recognized, oldest first.
func (r *Repository) FindUnsyncedDelivered(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Scopes(models.ActiveOrders).
		Where("status = ? AND revenue_recognized = ? AND cod_amount_cents IS NOT NULL AND total_amount_cents > 0",
			enums.OrderStatusDelivered, false).
		Where("NOT EXISTS (SELECT 1 FROM financial_transactions ft WHERE ft.order_id = orders.id AND ft.type = ?)",
			enums.FinancialTransactionCODCollection).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
