// Package audit appends who-did-what rows once a change has committed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

// Entry describes one audited action.
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Details    map[string]any
}

// Writer persists audit entries outside the caller's transaction.
type Writer struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewWriter(db *gorm.DB, logg *logger.Logger) (*Writer, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Writer{db: db, logg: logg}, nil
}

// Record writes the entry and logs failures instead of returning them.
func (w *Writer) Record(ctx context.Context, entry Entry) {
	if w == nil {
		return
	}
	if err := w.write(ctx, entry); err != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"audit_action": entry.Action,
			"entity_type":  entry.EntityType,
			"entity_id":    entry.EntityID.String(),
		})
		w.logg.Error(logCtx, "audit write failed", err)
	}
}

func (w *Writer) write(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.EntityType == "" {
		return fmt.Errorf("audit action and entity type required")
	}
	details := ""
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(raw)
	}
	return w.db.WithContext(ctx).Create(&models.AuditLog{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    details,
	}).Error
}
