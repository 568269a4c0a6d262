package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// UserDTO is the transport shape for staff members.
type UserDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          *string         `json:"phone,omitempty"`
	Role           enums.UserRole  `json:"role"`
	IsActive       bool            `json:"is_active"`
	IsAvailable    bool            `json:"is_available"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	// Deprecated: read alias of CommissionRate kept for older clients.
	Commission decimal.Decimal `json:"commission"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CreateUserInput holds the data required to persist a new staff member.
type CreateUserInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Email          string          `json:"email" validate:"required,email"`
	Phone          *string         `json:"phone,omitempty"`
	Role           enums.UserRole  `json:"role" validate:"required,enum"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		Role:           u.Role,
		IsActive:       u.IsActive,
		IsAvailable:    u.IsAvailable,
		CommissionRate: u.CommissionRate,
		Commission:     u.CommissionRate,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
