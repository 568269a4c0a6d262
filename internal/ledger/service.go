package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// Accounts maps each posting role to a chart-of-accounts code.
type Accounts struct {
	CashInTransit string
	Inventory     string
	Revenue       string
	COGS          string
}

func (a Accounts) codes() []string {
	return []string{a.CashInTransit, a.Inventory, a.Revenue, a.COGS}
}

func (a Accounts) validate() error {
	for _, code := range a.codes() {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("all ledger account codes are required")
		}
	}
	return nil
}

// Service posts balanced journal entries. The Create* methods write through
// the caller's transaction.
type Service interface {
	EnsureAccounts(ctx context.Context) error
	CreateRevenueRecognitionEntry(ctx context.Context, tx *gorm.DB, order *models.Order, cogsCents int64, actorID *uuid.UUID) (*models.JournalEntry, error)
	// CreateReturnReversalEntry posts the mirror of original and links it
	// through original.reversed_by_id. original is not otherwise modified.
	CreateReturnReversalEntry(ctx context.Context, tx *gorm.DB, order *models.Order, original *models.JournalEntry, actorID *uuid.UUID) (*models.JournalEntry, error)
	LatestActiveEntry(ctx context.Context, tx *gorm.DB, sourceType enums.JournalSourceType, sourceID uuid.UUID) (*models.JournalEntry, error)
	// VoidEntry cancels an active entry in its own unit of work.
	VoidEntry(ctx context.Context, entryID uuid.UUID, actorID *uuid.UUID, reason string) (*models.JournalEntry, error)
	EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.JournalEntry, error)
}

type service struct {
	repo     *Repository
	runner   *uow.Runner
	accounts Accounts
	now      func() time.Time
}

func NewService(repo *Repository, runner *uow.Runner, accounts Accounts) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("unit of work runner required")
	}
	if err := accounts.validate(); err != nil {
		return nil, err
	}
	return &service{repo: repo, runner: runner, accounts: accounts, now: time.Now}, nil
}

func (s *service) EnsureAccounts(ctx context.Context) error {
	seed := []models.Account{
		{Code: s.accounts.CashInTransit, Name: "Cash in Transit", Type: enums.AccountTypeAsset},
		{Code: s.accounts.Inventory, Name: "Inventory", Type: enums.AccountTypeAsset},
		{Code: s.accounts.Revenue, Name: "Sales Revenue", Type: enums.AccountTypeRevenue},
		{Code: s.accounts.COGS, Name: "Cost of Goods Sold", Type: enums.AccountTypeExpense},
	}
	for i := range seed {
		if err := s.repo.UpsertAccount(ctx, &seed[i]); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed ledger accounts")
		}
	}
	return nil
}

func (s *service) CreateRevenueRecognitionEntry(ctx context.Context, tx *gorm.DB, order *models.Order, cogsCents int64, actorID *uuid.UUID) (*models.JournalEntry, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.TotalAmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}
	if cogsCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cogs must be non-negative")
	}
	repo := s.repo.WithTx(tx)
	accounts, err := s.resolve(ctx, repo)
	if err != nil {
		return nil, err
	}

	lines := []models.JournalLine{
		{AccountID: accounts[s.accounts.CashInTransit].ID, DebitCents: order.TotalAmountCents, Memo: "COD receivable"},
		{AccountID: accounts[s.accounts.Revenue].ID, CreditCents: order.TotalAmountCents, Memo: "sales revenue"},
	}
	if cogsCents > 0 {
		lines = append(lines,
			models.JournalLine{AccountID: accounts[s.accounts.COGS].ID, DebitCents: cogsCents, Memo: "cost of goods sold"},
			models.JournalLine{AccountID: accounts[s.accounts.Inventory].ID, CreditCents: cogsCents, Memo: "inventory relieved"},
		)
	}
	entry := &models.JournalEntry{
		SourceType:  enums.JournalSourceOrderDelivery,
		SourceID:    order.ID,
		Description: fmt.Sprintf("Revenue recognition for %s", order.OrderNumber),
		CreatedByID: actorID,
		Lines:       lines,
	}
	if err := s.post(ctx, repo, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CreateReturnReversalEntry(ctx context.Context, tx *gorm.DB, order *models.Order, original *models.JournalEntry, actorID *uuid.UUID) (*models.JournalEntry, error) {
	if order == nil || original == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and original entry required")
	}
	if !original.Active() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "entry is already reversed or voided")
	}
	repo := s.repo.WithTx(tx)
	lines, err := s.mirrorLines(ctx, repo, original)
	if err != nil {
		return nil, err
	}
	originalID := original.ID
	entry := &models.JournalEntry{
		SourceType:  enums.JournalSourceOrderReturn,
		SourceID:    order.ID,
		Description: fmt.Sprintf("Return reversal of %s for %s", original.EntryNumber, order.OrderNumber),
		ReversesID:  &originalID,
		CreatedByID: actorID,
		Lines:       lines,
	}
	if err := s.post(ctx, repo, entry); err != nil {
		return nil, err
	}
	rows, err := repo.MarkReversed(ctx, original.ID, entry.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link reversal")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "entry is already reversed or voided")
	}
	return entry, nil
}

func (s *service) LatestActiveEntry(ctx context.Context, tx *gorm.DB, sourceType enums.JournalSourceType, sourceID uuid.UUID) (*models.JournalEntry, error) {
	entry, err := s.repo.WithTx(tx).LatestActive(ctx, sourceType, sourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load journal entry")
	}
	return entry, nil
}

func (s *service) VoidEntry(ctx context.Context, entryID uuid.UUID, actorID *uuid.UUID, reason string) (*models.JournalEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "void reason is required")
	}
	var voiding *models.JournalEntry
	work := uow.New("ledger.void").Step("void_entry", func(ctx context.Context, tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		original, err := repo.FindEntry(ctx, entryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "journal entry not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load journal entry")
		}
		if !original.Active() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "entry is already reversed or voided")
		}
		lines, err := s.mirrorLines(ctx, repo, original)
		if err != nil {
			return err
		}
		voiding = &models.JournalEntry{
			SourceType:  enums.JournalSourceVoid,
			SourceID:    original.ID,
			Description: fmt.Sprintf("Void of %s: %s", original.EntryNumber, reason),
			CreatedByID: actorID,
			Lines:       lines,
		}
		if err := s.post(ctx, repo, voiding); err != nil {
			return err
		}
		rows, err := repo.MarkVoided(ctx, original.ID, voiding.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link void")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "entry is already reversed or voided")
		}
		return nil
	})
	if err := s.runner.Run(ctx, work); err != nil {
		return nil, err
	}
	return voiding, nil
}

func (s *service) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.JournalEntry, error) {
	rows, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list journal entries")
	}
	return rows, nil
}

func (s *service) resolve(ctx context.Context, repo *Repository) (map[string]models.Account, error) {
	accounts, err := repo.FindAccountsByCodes(ctx, s.accounts.codes())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger accounts")
	}
	for _, code := range s.accounts.codes() {
		if _, ok := accounts[code]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("ledger account %s is not configured", code))
		}
	}
	return accounts, nil
}

// mirrorLines swaps debit and credit on every line of original.
func (s *service) mirrorLines(ctx context.Context, repo *Repository, original *models.JournalEntry) ([]models.JournalLine, error) {
	source := original.Lines
	if len(source) == 0 {
		loaded, err := repo.FindEntry(ctx, original.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load journal lines")
		}
		source = loaded.Lines
	}
	lines := make([]models.JournalLine, 0, len(source))
	for _, line := range source {
		lines = append(lines, models.JournalLine{
			AccountID:   line.AccountID,
			DebitCents:  line.CreditCents,
			CreditCents: line.DebitCents,
			Memo:        line.Memo,
		})
	}
	return lines, nil
}

func (s *service) post(ctx context.Context, repo *Repository, entry *models.JournalEntry) error {
	if err := Balanced(entry.Lines); err != nil {
		return err
	}
	entry.ID = uuid.New()
	entry.EntryNumber = EntryNumber(s.now(), entry.ID)
	entry.PostedAt = s.now().UTC()
	for i := range entry.Lines {
		entry.Lines[i].ID = uuid.Nil
		entry.Lines[i].JournalEntryID = entry.ID
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "post journal entry")
	}
	return nil
}

// Balanced rejects entries whose debits and credits differ, or lines that
// carry both or neither side.
func Balanced(lines []models.JournalLine) error {
	if len(lines) < 2 {
		return pkgerrors.New(pkgerrors.CodeValidation, "journal entry needs at least two lines")
	}
	var debits, credits int64
	for _, line := range lines {
		if line.DebitCents < 0 || line.CreditCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "journal amounts must be non-negative")
		}
		if (line.DebitCents == 0) == (line.CreditCents == 0) {
			return pkgerrors.New(pkgerrors.CodeValidation, "each journal line must be a debit or a credit")
		}
		debits += line.DebitCents
		credits += line.CreditCents
	}
	if debits != credits {
		return pkgerrors.New(pkgerrors.CodeValidation, "journal entry is not balanced").
			WithDetails(map[string]any{"debits": debits, "credits": credits})
	}
	return nil
}

// EntryNumber renders JE-YYYYMMDD-XXXXXXXX from the posting date and id.
func EntryNumber(at time.Time, id uuid.UUID) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("JE-%s-%s", at.UTC().Format("20060102"), hex[:8])
}
