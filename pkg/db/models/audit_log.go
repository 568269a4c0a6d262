package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only note of who did what to which entity.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ActorID    *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	Action     string     `gorm:"column:action;type:text;not null"`
	EntityType string     `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID  `gorm:"column:entity_id;type:uuid;not null;index"`
	Details    string     `gorm:"column:details;type:text"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
