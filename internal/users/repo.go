package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// Repository manages staff persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ActiveRole returns the role of an active user, mapped to typed errors.
func (r *Repository) ActiveRole(ctx context.Context, id uuid.UUID) (enums.UserRole, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !user.IsActive {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "user is inactive")
	}
	return user.Role, nil
}

// ListByRole returns active users with the role, available first.
func (r *Repository) ListByRole(ctx context.Context, role enums.UserRole) ([]models.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true).
		Order("is_available DESC, name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	return res.RowsAffected, res.Error
}

func (r *Repository) UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_available", available)
	return res.RowsAffected, res.Error
}

func (r *Repository) UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("commission_rate", rate)
	return res.RowsAffected, res.Error
}
