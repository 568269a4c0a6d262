package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// InventoryTransfer is an immutable stock movement. A nil agent on either
// side means the warehouse pool.
type InventoryTransfer struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity     int                `gorm:"column:quantity;not null"`
	TransferType enums.TransferType `gorm:"column:transfer_type;type:text;not null"`
	FromAgentID  *uuid.UUID         `gorm:"column:from_agent_id;type:uuid"`
	ToAgentID    *uuid.UUID         `gorm:"column:to_agent_id;type:uuid"`
	OrderID      *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`
	Notes        *string            `gorm:"column:notes"`
	CreatedByID  *uuid.UUID         `gorm:"column:created_by_id;type:uuid"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryTransfer) TableName() string { return "inventory_transfers" }

func (t *InventoryTransfer) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// BeforeUpdate keeps the transfer log append-only.
func (t *InventoryTransfer) BeforeUpdate(*gorm.DB) error {
	return gorm.ErrNotImplemented
}

// BeforeDelete keeps the transfer log append-only.
func (t *InventoryTransfer) BeforeDelete(*gorm.DB) error {
	return gorm.ErrNotImplemented
}
