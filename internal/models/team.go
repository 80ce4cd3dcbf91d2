package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TeamStatus string

const (
	TeamStatusActive    TeamStatus = "active"
	TeamStatusCompleted TeamStatus = "completed"
)

type SubmissionStatus string

const (
	SubmissionNotSubmitted SubmissionStatus = "not_submitted"
	SubmissionSubmitted    SubmissionStatus = "submitted"
)

type Team struct {
	ID               uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	HackathonID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"hackathon_id"`
	Name             string           `gorm:"not null" json:"name"`
	ProblemStatement string           `gorm:"type:text;not null" json:"problem_statement"`
	TeamSize         int              `gorm:"not null" json:"team_size"`
	SubmissionStatus SubmissionStatus `gorm:"type:varchar(20);not null;default:'not_submitted'" json:"submission_status"`
	Status           TeamStatus       `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	// Relations
	Members []TeamMember `gorm:"foreignKey:TeamID" json:"team_member,omitempty"`
}

func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type MemberRole string

const (
	MemberRoleLeader    MemberRole = "leader"
	MemberRoleDeveloper MemberRole = "developer"
)

type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusLeft    MemberStatus = "left"
	MemberStatusRemoved MemberStatus = "removed"
)

type TeamMember struct {
	ID        uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	TeamID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_team_user" json:"team_id"`
	UserID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_team_user;index" json:"user_id"`
	Role      MemberRole   `gorm:"type:varchar(20);not null" json:"role"`
	Status    MemberStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Position  int          `gorm:"not null" json:"position"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (t *TeamMember) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
