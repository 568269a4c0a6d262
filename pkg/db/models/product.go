package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product carries the warehouse pool counter; StockQuantity never drops below zero.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU           string    `gorm:"column:sku;type:text;not null;uniqueIndex"`
	Name          string    `gorm:"column:name;type:text;not null;index"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	COGSCents     int64     `gorm:"column:cogs_cents;not null;default:0"`
	StockQuantity int       `gorm:"column:stock_quantity;not null;default:0;check:stock_quantity >= 0"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
