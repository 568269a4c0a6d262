package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

// Invalidator is notified whenever a user's permission-relevant fields change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Service is the agent/user directory.
type Service interface {
	Create(ctx context.Context, input CreateUserInput) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	// Role returns the role of an active user.
	Role(ctx context.Context, id uuid.UUID) (enums.UserRole, error)
	ListAgents(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error
}

type service struct {
	repo        *Repository
	invalidator Invalidator
	logg        *logger.Logger
}

var maxCommissionRate = decimal.NewFromInt(1)

// NewService wires the directory. A nil invalidator disables cache eviction.
func NewService(repo *Repository, invalidator Invalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, invalidator: invalidator, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and email are required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", input.Role))
	}
	if err := validateCommission(input.CommissionRate); err != nil {
		return nil, err
	}
	user := &models.User{
		Name:           name,
		Email:          email,
		Phone:          input.Phone,
		Role:           input.Role,
		IsActive:       true,
		IsAvailable:    true,
		CommissionRate: input.CommissionRate,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return user, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) Role(ctx context.Context, id uuid.UUID) (enums.UserRole, error) {
	return s.repo.ActiveRole(ctx, id)
}

func (s *service) ListAgents(ctx context.Context) ([]models.User, error) {
	rows, err := s.repo.ListByRole(ctx, enums.UserRoleDeliveryAgent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
	}
	return rows, nil
}

func (s *service) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role))
	}
	rows, err := s.repo.UpdateRole(ctx, id, role)
	if err := s.afterUpdate(ctx, id, rows, err, "update role"); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	rows, err := s.repo.UpdateAvailability(ctx, id, available)
	if err := s.afterUpdate(ctx, id, rows, err, "update availability"); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *service) UpdateCommissionRate(ctx context.Context, id uuid.UUID, rate decimal.Decimal) error {
	if err := validateCommission(rate); err != nil {
		return err
	}
	rows, err := s.repo.UpdateCommissionRate(ctx, id, rate)
	return s.afterUpdate(ctx, id, rows, err, "update commission rate")
}

func (s *service) afterUpdate(ctx context.Context, id uuid.UUID, rows int64, err error, op string) error {
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return nil
}

func (s *service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, id); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", id.String()), "permission cache invalidation failed: "+err.Error())
	}
}

func validateCommission(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxCommissionRate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 1")
	}
	return nil
}
