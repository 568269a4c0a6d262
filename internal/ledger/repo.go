package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Repository persists accounts and journal entries. Posted lines are never
// updated; only the reversal and void links on an entry change.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// UpsertAccount inserts the account or leaves an existing code untouched.
func (r *Repository) UpsertAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(account).Error
}

func (r *Repository) FindAccountsByCodes(ctx context.Context, codes []string) (map[string]models.Account, error) {
	var rows []models.Account
	if err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.Account, len(rows))
	for _, row := range rows {
		out[row.Code] = row
	}
	return out, nil
}

// CreateEntry inserts the entry together with its lines.
func (r *Repository) CreateEntry(ctx context.Context, entry *models.JournalEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) FindEntry(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := r.db.WithContext(ctx).Preload("Lines").First(&entry, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// LatestActive returns the newest entry for the source that is neither
// reversed nor voided, or nil.
func (r *Repository) LatestActive(ctx context.Context, sourceType enums.JournalSourceType, sourceID uuid.UUID) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Where("reversed_by_id IS NULL AND voided_by_id IS NULL").
		Order("posted_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListForOrder returns every entry tied to an order, including reversals.
func (r *Repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.JournalEntry, error) {
	var rows []models.JournalEntry
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("source_id = ? AND source_type IN ?", orderID, []enums.JournalSourceType{
			enums.JournalSourceOrderDelivery,
			enums.JournalSourceOrderReturn,
		}).
		Order("posted_at ASC").
		Find(&rows).Error
	return rows, err
}

// MarkReversed links the reversal to an entry that is still active.
func (r *Repository) MarkReversed(ctx context.Context, id, reversalID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.JournalEntry{}).
		Where("id = ? AND reversed_by_id IS NULL AND voided_by_id IS NULL", id).
		Update("reversed_by_id", reversalID)
	return res.RowsAffected, res.Error
}

// MarkVoided links the voiding entry to an entry that is still active.
func (r *Repository) MarkVoided(ctx context.Context, id, voidID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.JournalEntry{}).
		Where("id = ? AND reversed_by_id IS NULL AND voided_by_id IS NULL", id).
		Update("voided_by_id", voidID)
	return res.RowsAffected, res.Error
}
