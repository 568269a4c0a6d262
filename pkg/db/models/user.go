package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// User is a staff member: admin, manager, sales rep, delivery agent or accountant.
type User struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name           string          `gorm:"column:name;type:text;not null"`
	Email          string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	Phone          *string         `gorm:"column:phone"`
	Role           enums.UserRole  `gorm:"column:role;type:text;not null"`
	IsActive       bool            `gorm:"column:is_active;not null"`
	IsAvailable    bool            `gorm:"column:is_available;not null"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4);not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
