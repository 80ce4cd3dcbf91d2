package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OperationLog is the persisted form of a lifecycle operation's audit trail.
type OperationLog struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	Operation   string            `gorm:"type:varchar(64);not null;index" json:"operation"`
	HackathonID *uuid.UUID        `gorm:"type:uuid;index" json:"hackathon_id,omitempty"`
	Trigger     string            `gorm:"type:varchar(20);not null" json:"trigger"`
	Success     bool              `gorm:"not null;index" json:"success"`
	Params      datatypes.JSONMap `json:"params,omitempty"`
	Steps       datatypes.JSON    `json:"steps"`
	Result      datatypes.JSON    `json:"result,omitempty"`
	Error       datatypes.JSON    `json:"error,omitempty"`
	StartedAt   time.Time         `gorm:"not null" json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

func (o *OperationLog) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
