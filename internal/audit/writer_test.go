package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

func TestRecordPersistsEntry(t *testing.T) {
	db := dbtest.Open(t)
	w, err := NewWriter(db, logger.Nop())
	require.NoError(t, err)

	actor := uuid.New()
	orderID := uuid.New()
	w.Record(context.Background(), Entry{
		ActorID:    &actor,
		Action:     "order.status_changed",
		EntityType: "order",
		EntityID:   orderID,
		Details:    map[string]any{"to": "delivered"},
	})

	var rows []models.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].EntityID)
	assert.JSONEq(t, `{"to":"delivered"}`, rows[0].Details)
}

func TestRecordSwallowsInvalidEntry(t *testing.T) {
	db := dbtest.Open(t)
	w, err := NewWriter(db, logger.Nop())
	require.NoError(t, err)

	w.Record(context.Background(), Entry{EntityID: uuid.New()})

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}
