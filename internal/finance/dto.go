package finance

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
)

type TransactionDTO struct {
	ID             uuid.UUID                        `json:"id"`
	OrderID        uuid.UUID                        `json:"order_id"`
	Type           enums.FinancialTransactionType   `json:"type"`
	Status         enums.FinancialTransactionStatus `json:"status"`
	AmountCents    int64                            `json:"amount_cents"`
	AgentID        *uuid.UUID                       `json:"agent_id,omitempty"`
	JournalEntryID *uuid.UUID                       `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time                        `json:"created_at"`
}

type JournalLineDTO struct {
	AccountID   uuid.UUID `json:"account_id"`
	DebitCents  int64     `json:"debit_cents"`
	CreditCents int64     `json:"credit_cents"`
	Memo        string    `json:"memo,omitempty"`
}

type JournalEntryDTO struct {
	ID          uuid.UUID               `json:"id"`
	EntryNumber string                  `json:"entry_number"`
	SourceType  enums.JournalSourceType `json:"source_type"`
	SourceID    uuid.UUID               `json:"source_id"`
	Description string                  `json:"description"`
	Lines       []JournalLineDTO        `json:"lines"`
	PostedAt    time.Time               `json:"posted_at"`
}

// SyncResultDTO is the transport shape of a single-order sync.
type SyncResultDTO struct {
	Synced       bool             `json:"synced"`
	Transaction  *TransactionDTO  `json:"transaction,omitempty"`
	JournalEntry *JournalEntryDTO `json:"journal_entry,omitempty"`
}

func TransactionFromModel(t *models.FinancialTransaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	return &TransactionDTO{
		ID:             t.ID,
		OrderID:        t.OrderID,
		Type:           t.Type,
		Status:         t.Status,
		AmountCents:    t.AmountCents,
		AgentID:        t.AgentID,
		JournalEntryID: t.JournalEntryID,
		CreatedAt:      t.CreatedAt,
	}
}

func TransactionsFromModels(rows []models.FinancialTransaction) []*TransactionDTO {
	out := make([]*TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, TransactionFromModel(&rows[i]))
	}
	return out
}

func JournalEntryFromModel(e *models.JournalEntry) *JournalEntryDTO {
	if e == nil {
		return nil
	}
	lines := make([]JournalLineDTO, 0, len(e.Lines))
	for _, line := range e.Lines {
		lines = append(lines, JournalLineDTO{
			AccountID:   line.AccountID,
			DebitCents:  line.DebitCents,
			CreditCents: line.CreditCents,
			Memo:        line.Memo,
		})
	}
	return &JournalEntryDTO{
		ID:          e.ID,
		EntryNumber: e.EntryNumber,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		Description: e.Description,
		Lines:       lines,
		PostedAt:    e.PostedAt,
	}
}

func SyncResultFromModel(r *SyncResult) SyncResultDTO {
	if r == nil {
		return SyncResultDTO{}
	}
	return SyncResultDTO{
		Synced:       r.Synced(),
		Transaction:  TransactionFromModel(r.Transaction),
		JournalEntry: JournalEntryFromModel(r.JournalEntry),
	}
}
