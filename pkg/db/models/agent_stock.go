package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentStock holds one agent's units of one product. Quantity is on hand;
// the Total* counters only ever grow, except where an order reversal undoes
// its own in-transit or fulfilled contribution.
type AgentStock struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AgentID          uuid.UUID `gorm:"column:agent_id;type:uuid;not null;uniqueIndex:ux_agent_stock_agent_product"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_agent_stock_agent_product"`
	Quantity         int       `gorm:"column:quantity;not null;default:0;check:quantity >= 0"`
	TotalAllocated   int       `gorm:"column:total_allocated;not null;default:0"`
	TotalInTransit   int       `gorm:"column:total_in_transit;not null;default:0"`
	TotalFulfilled   int       `gorm:"column:total_fulfilled;not null;default:0"`
	TotalReturned    int       `gorm:"column:total_returned;not null;default:0"`
	TotalTransferIn  int       `gorm:"column:total_transfer_in;not null;default:0"`
	TotalTransferOut int       `gorm:"column:total_transfer_out;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AgentStock) TableName() string { return "agent_stocks" }

func (s *AgentStock) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
