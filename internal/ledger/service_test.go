package ledger

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/internal/uow"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

var testAccounts = Accounts{CashInTransit: "1150", Inventory: "1300", Revenue: "4000", COGS: "5000"}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	runner, err := uow.NewRunner(db, uow.Options{})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(db), runner, testAccounts)
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAccounts(context.Background()))
	return svc, db
}

func sumLines(lines []models.JournalLine) (int64, int64) {
	var d, c int64
	for _, l := range lines {
		d += l.DebitCents
		c += l.CreditCents
	}
	return d, c
}

func TestEnsureAccountsIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, svc.EnsureAccounts(context.Background()))
	var count int64
	require.NoError(t, db.Model(&models.Account{}).Count(&count).Error)
	assert.EqualValues(t, 4, count)
}

func TestRevenueRecognitionIsBalanced(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-20260101-AAAA0001", TotalAmountCents: 5000}

	entry, err := svc.CreateRevenueRecognitionEntry(ctx, db, order, 2000, nil)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^JE-\d{8}-[0-9A-F]{8}$`), entry.EntryNumber)
	assert.Equal(t, enums.JournalSourceOrderDelivery, entry.SourceType)
	require.Len(t, entry.Lines, 4)
	d, c := sumLines(entry.Lines)
	assert.EqualValues(t, 7000, d)
	assert.Equal(t, d, c)

	noCOGS, err := svc.CreateRevenueRecognitionEntry(ctx, db, &models.Order{ID: uuid.New(), TotalAmountCents: 100}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, noCOGS.Lines, 2)
}

func TestReturnReversalMirrorsOriginal(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-1", TotalAmountCents: 5000}
	original, err := svc.CreateRevenueRecognitionEntry(ctx, db, order, 2000, nil)
	require.NoError(t, err)

	latest, err := svc.LatestActiveEntry(ctx, db, enums.JournalSourceOrderDelivery, order.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, original.ID, latest.ID)

	reversal, err := svc.CreateReturnReversalEntry(ctx, db, order, latest, nil)
	require.NoError(t, err)
	assert.Equal(t, original.ID, *reversal.ReversesID)
	assert.Equal(t, enums.JournalSourceOrderReturn, reversal.SourceType)

	byAccount := map[uuid.UUID]int64{}
	for _, l := range original.Lines {
		byAccount[l.AccountID] += l.DebitCents - l.CreditCents
	}
	for _, l := range reversal.Lines {
		byAccount[l.AccountID] += l.DebitCents - l.CreditCents
	}
	for account, net := range byAccount {
		assert.Zero(t, net, "account %s nets to zero", account)
	}

	var stored models.JournalEntry
	require.NoError(t, db.Preload("Lines").First(&stored, "id = ?", original.ID).Error)
	assert.Equal(t, reversal.ID, *stored.ReversedByID)
	assert.Nil(t, stored.VoidedByID)
	assert.Len(t, stored.Lines, 4)

	latest, err = svc.LatestActiveEntry(ctx, db, enums.JournalSourceOrderDelivery, order.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = svc.CreateReturnReversalEntry(ctx, db, order, &stored, nil)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.Classify(err))
}

func TestReversalRaceLosesOnConditionalLink(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-2", TotalAmountCents: 900}
	original, err := svc.CreateRevenueRecognitionEntry(ctx, db, order, 0, nil)
	require.NoError(t, err)

	stale := *original
	_, err = svc.CreateReturnReversalEntry(ctx, db, order, original, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreateReturnReversalEntry(ctx, tx, order, &stale, nil)
		return err
	})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.Classify(err))

	var count int64
	require.NoError(t, db.Model(&models.JournalEntry{}).Where("source_type = ?", enums.JournalSourceOrderReturn).Count(&count).Error)
	assert.EqualValues(t, 1, count, "losing reversal rolled back")
}

func TestVoidEntry(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t)
	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-3", TotalAmountCents: 1200}
	original, err := svc.CreateRevenueRecognitionEntry(ctx, db, order, 300, nil)
	require.NoError(t, err)

	_, err = svc.VoidEntry(ctx, original.ID, nil, " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))

	voiding, err := svc.VoidEntry(ctx, original.ID, nil, "posted twice")
	require.NoError(t, err)
	assert.Equal(t, enums.JournalSourceVoid, voiding.SourceType)
	d, c := sumLines(voiding.Lines)
	assert.Equal(t, d, c)

	_, err = svc.VoidEntry(ctx, original.ID, nil, "again")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.Classify(err))

	_, err = svc.VoidEntry(ctx, uuid.New(), nil, "missing")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.Classify(err))

	entries, err := svc.EntriesForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, voiding.ID, *entries[0].VoidedByID)
}

func TestBalanced(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cases := []struct {
		name  string
		lines []models.JournalLine
		ok    bool
	}{
		{"balanced", []models.JournalLine{{AccountID: a, DebitCents: 10}, {AccountID: b, CreditCents: 10}}, true},
		{"unbalanced", []models.JournalLine{{AccountID: a, DebitCents: 10}, {AccountID: b, CreditCents: 9}}, false},
		{"single line", []models.JournalLine{{AccountID: a, DebitCents: 10}}, false},
		{"both sides", []models.JournalLine{{AccountID: a, DebitCents: 10, CreditCents: 10}, {AccountID: b, CreditCents: 0}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Balanced(tc.lines)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.Classify(err))
		})
	}
}

func TestEntryNumberFormat(t *testing.T) {
	id := uuid.MustParse("0a1b2c3d-0000-4000-8000-000000000000")
	at := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "JE-20260309-0A1B2C3D", EntryNumber(at, id))
}

func TestNewServiceRequiresAccounts(t *testing.T) {
	db := dbtest.Open(t)
	runner, err := uow.NewRunner(db, uow.Options{})
	require.NoError(t, err)
	_, err = NewService(NewRepository(db), runner, Accounts{Revenue: "4000"})
	assert.Error(t, err)
}
