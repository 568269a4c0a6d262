package importer

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
)

// Repository reads persisted orders for duplicate detection.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// DuplicateQuery describes the orders a record could collide with.
type DuplicateQuery struct {
	Phone       string
	PhoneSuffix string
	TotalCents  int64
	DayStart    time.Time
	// DeletedSince, when set, also matches orders soft-deleted at or after it.
	DeletedSince *time.Time
}

// FindDuplicateCandidates returns orders on the same day, for the same total,
// whose phone matches exactly or by trailing digits.
func (r *Repository) FindDuplicateCandidates(ctx context.Context, q DuplicateQuery) ([]models.Order, error) {
	db := r.db.WithContext(ctx).
		Where("total_amount_cents = ?", q.TotalCents).
		Where("order_date >= ? AND order_date < ?", q.DayStart, q.DayStart.Add(24*time.Hour)).
		Where("(phone = ? OR phone LIKE ?)", q.Phone, "%"+q.PhoneSuffix)
	if q.DeletedSince != nil {
		db = db.Scopes(models.ActiveOrDeletedSince(*q.DeletedSince))
	} else {
		db = db.Scopes(models.ActiveOrders)
	}
	var rows []models.Order
	err := db.Order("created_at ASC").Find(&rows).Error
	return rows, err
}
