package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleParticipant UserRole = "participant"
	RoleOrganizer   UserRole = "organizer"
	RoleAdmin       UserRole = "admin"
)

type User struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email              string         `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Role               UserRole       `gorm:"type:varchar(20);not null;default:'participant'" json:"role"`
	FirstName          string         `gorm:"not null" json:"first_name" validate:"required"`
	LastName           string         `gorm:"not null" json:"last_name"`
	CurrentHackathonID *uuid.UUID     `gorm:"type:uuid;index" json:"current_hackathon_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserResponse is a safe representation for API responses
type UserResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	Role               UserRole   `json:"role"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	CurrentHackathonID *uuid.UUID `json:"current_hackathon_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		CurrentHackathonID: u.CurrentHackathonID,
		CreatedAt:          u.CreatedAt,
	}
}
