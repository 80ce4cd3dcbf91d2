package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.validate.Struct(u); err != nil {
		return err
	}
	return s.conn(ctx).Create(u).Error
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &u, nil
}

// GetUsers loads the given users. Unknown ids are silently absent.
func (s *Store) GetUsers(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := s.conn(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// SetCurrentHackathon points every listed user at hackathonID.
func (s *Store) SetCurrentHackathon(ctx context.Context, ids []uuid.UUID, hackathonID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.conn(ctx).Model(&models.User{}).
		Where("id IN ?", ids).
		Update("current_hackathon_id", hackathonID)
	if res.Error != nil {
		return 0, fmt.Errorf("set current hackathon: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClearCurrentHackathon resets the pointer for listed users that still
// reference hackathonID. Users already moved on are left alone.
func (s *Store) ClearCurrentHackathon(ctx context.Context, ids []uuid.UUID, hackathonID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.conn(ctx).Model(&models.User{}).
		Where("id IN ? AND current_hackathon_id = ?", ids, hackathonID).
		Update("current_hackathon_id", nil)
	if res.Error != nil {
		return 0, fmt.Errorf("clear current hackathon: %w", res.Error)
	}
	return res.RowsAffected, nil
}
