package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// FinancialTransaction records money collected or refunded for an order.
type FinancialTransaction struct {
	ID             uuid.UUID                        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID                        `gorm:"column:order_id;type:uuid;not null;index"`
	Type           enums.FinancialTransactionType   `gorm:"column:type;type:text;not null"`
	Status         enums.FinancialTransactionStatus `gorm:"column:status;type:text;not null"`
	AmountCents    int64                            `gorm:"column:amount_cents;not null"`
	AgentID        *uuid.UUID                       `gorm:"column:agent_id;type:uuid"`
	JournalEntryID *uuid.UUID                       `gorm:"column:journal_entry_id;type:uuid"`
	CreatedByID    *uuid.UUID                       `gorm:"column:created_by_id;type:uuid"`
	CreatedAt      time.Time                        `gorm:"column:created_at;autoCreateTime"`
}

func (FinancialTransaction) TableName() string { return "financial_transactions" }

func (t *FinancialTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
