package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

// Account is a chart-of-accounts row referenced by journal lines.
type Account struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Code      string            `gorm:"column:code;type:text;not null;uniqueIndex"`
	Name      string            `gorm:"column:name;type:text;not null"`
	Type      enums.AccountType `gorm:"column:type;type:text;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// JournalEntry is a posted, balanced double-entry record. Once written only
// the ReversedByID and VoidedByID links may change.
type JournalEntry struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	EntryNumber  string                  `gorm:"column:entry_number;type:text;not null;uniqueIndex"`
	SourceType   enums.JournalSourceType `gorm:"column:source_type;type:text;not null;index:ix_journal_source"`
	SourceID     uuid.UUID               `gorm:"column:source_id;type:uuid;not null;index:ix_journal_source"`
	Description  string                  `gorm:"column:description;type:text;not null"`
	ReversesID   *uuid.UUID              `gorm:"column:reverses_id;type:uuid"`
	ReversedByID *uuid.UUID              `gorm:"column:reversed_by_id;type:uuid"`
	VoidedByID   *uuid.UUID              `gorm:"column:voided_by_id;type:uuid"`
	CreatedByID  *uuid.UUID              `gorm:"column:created_by_id;type:uuid"`
	Lines        []JournalLine           `gorm:"foreignKey:JournalEntryID;constraint:OnDelete:RESTRICT"`
	PostedAt     time.Time               `gorm:"column:posted_at;not null"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

func (e *JournalEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// Active reports whether the entry still carries financial effect.
func (e *JournalEntry) Active() bool {
	return e.ReversedByID == nil && e.VoidedByID == nil
}

// JournalLine is one debit or credit leg of an entry.
type JournalLine struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	JournalEntryID uuid.UUID `gorm:"column:journal_entry_id;type:uuid;not null;index"`
	AccountID      uuid.UUID `gorm:"column:account_id;type:uuid;not null"`
	DebitCents     int64     `gorm:"column:debit_cents;not null;default:0"`
	CreditCents    int64     `gorm:"column:credit_cents;not null;default:0"`
	Memo           string    `gorm:"column:memo;type:text"`
}

func (JournalLine) TableName() string { return "journal_lines" }

func (l *JournalLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
