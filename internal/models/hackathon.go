package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type HackathonStatus string

const (
	StatusRegistrationOpen   HackathonStatus = "registration_open"
	StatusRegistrationClosed HackathonStatus = "registration_closed"
	StatusOngoing            HackathonStatus = "ongoing"
	StatusWinnerToAnnounce   HackathonStatus = "winner_to_announced"
	StatusCompleted          HackathonStatus = "completed"
	StatusCancelled          HackathonStatus = "cancelled"
)

// lifecycle is the forward chain; cancelled sits outside it.
var lifecycle = []HackathonStatus{
	StatusRegistrationOpen,
	StatusRegistrationClosed,
	StatusOngoing,
	StatusWinnerToAnnounce,
	StatusCompleted,
}

// TerminalStatuses can never be left.
var TerminalStatuses = []HackathonStatus{StatusCompleted, StatusCancelled}

// NonTerminalStatuses may still be cancelled or completed.
var NonTerminalStatuses = lifecycle[:len(lifecycle)-1]

func (s HackathonStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s HackathonStatus) IsValid() bool {
	return s == StatusCancelled || s.position() >= 0
}

func (s HackathonStatus) position() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the following status on the forward chain.
func (s HackathonStatus) Next() (HackathonStatus, bool) {
	p := s.position()
	if p < 0 || p == len(lifecycle)-1 {
		return "", false
	}
	return lifecycle[p+1], true
}

// CanTransitionTo reports whether moving from s to target is legal: any
// non-terminal status may be cancelled, otherwise only forward moves along
// the chain are allowed.
func (s HackathonStatus) CanTransitionTo(target HackathonStatus) bool {
	if s.IsTerminal() || !s.IsValid() {
		return false
	}
	if target == StatusCancelled {
		return true
	}
	from, to := s.position(), target.position()
	return to > from
}

type Hackathon struct {
	ID                        uuid.UUID                   `gorm:"type:uuid;primary_key" json:"id"`
	Name                      string                      `gorm:"not null" json:"name" validate:"required"`
	Description               string                      `gorm:"type:text" json:"description"`
	Status                    HackathonStatus             `gorm:"type:varchar(32);not null;default:'registration_open';index" json:"status"`
	IsActive                  bool                        `gorm:"not null;default:true" json:"is_active"`
	RegistrationDeadline      time.Time                   `gorm:"not null;index" json:"registration_deadline" validate:"required"`
	StartDate                 time.Time                   `gorm:"not null" json:"start_date" validate:"required,gtfield=RegistrationDeadline"`
	EndDate                   time.Time                   `gorm:"not null;index" json:"end_date" validate:"required,gtfield=StartDate"`
	WinnerAnnouncementDate    time.Time                   `gorm:"not null" json:"winner_announcement_date" validate:"required,gtfield=EndDate"`
	ProblemStatements         datatypes.JSONSlice[string] `json:"problem_statements"`
	MaxTeamSize               int                         `gorm:"not null;default:4" json:"max_team_size" validate:"min=1"`
	MinParticipantsToFormTeam int                         `gorm:"not null;default:0" json:"min_participants_to_form_team" validate:"min=0"`
	TotalMembersJoined        int                         `gorm:"not null;default:0" json:"total_members_joined"`
	Reason                    string                      `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt                 time.Time                   `json:"created_at"`
	UpdatedAt                 time.Time                   `json:"updated_at"`
	DeletedAt                 gorm.DeletedAt              `gorm:"index" json:"-"`

	// Relations
	Teams []Team `gorm:"foreignKey:HackathonID" json:"teams,omitempty"`
}

func (h *Hackathon) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Status == "" {
		h.Status = StatusRegistrationOpen
	}
	return nil
}

// HackathonParticipant records one registered user.
type HackathonParticipant struct {
	HackathonID uuid.UUID `gorm:"type:uuid;primaryKey" json:"hackathon_id"`
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}

func (p *HackathonParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	return nil
}
