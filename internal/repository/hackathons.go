package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/models"
)

// DueColumn names a hackathon timestamp the status sync compares against.
type DueColumn string

const (
	DueStartDate          DueColumn = "start_date"
	DueEndDate            DueColumn = "end_date"
	DueWinnerAnnouncement DueColumn = "winner_announcement_date"
)

// CreateHackathon validates and inserts h.
func (s *Store) CreateHackathon(ctx context.Context, h *models.Hackathon) error {
	if err := s.validate.Struct(h); err != nil {
		return err
	}
	return s.conn(ctx).Create(h).Error
}

func (s *Store) GetHackathon(ctx context.Context, id uuid.UUID) (*models.Hackathon, error) {
	var h models.Hackathon
	if err := s.conn(ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("hackathon %s: %w", id, err)
	}
	return &h, nil
}

// ParticipantIDs returns registered users in registration order.
func (s *Store) ParticipantIDs(ctx context.Context, hackathonID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.conn(ctx).Model(&models.HackathonParticipant{}).
		Where("hackathon_id = ?", hackathonID).
		Order("joined_at ASC").Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("participants of %s: %w", hackathonID, err)
	}
	return ids, nil
}

// ErrRegistrationClosed is returned by AddParticipant when the hackathon is
// no longer accepting registrations at the time of the write.
var ErrRegistrationClosed = errors.New("registration is closed")

// AddParticipant registers userID and bumps total_members_joined in the
// same unit so the counter always equals the participant count. The counter
// update carries the registration rules, so a registration racing team
// formation either lands before registration closes or not at all.
func (s *Store) AddParticipant(ctx context.Context, hackathonID, userID uuid.UUID, now time.Time) error {
	return s.Transaction(ctx, func(tx *Store) error {
		res := tx.conn(ctx).Model(&models.Hackathon{}).
			Where("id = ? AND status = ? AND is_active = ? AND registration_deadline > ?",
				hackathonID, models.StatusRegistrationOpen, true, now).
			UpdateColumn("total_members_joined", gorm.Expr("total_members_joined + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("hackathon %s: %w", hackathonID, ErrRegistrationClosed)
		}
		p := models.HackathonParticipant{HackathonID: hackathonID, UserID: userID}
		return tx.conn(ctx).Create(&p).Error
	})
}

// TransitionStatus applies updates only while the hackathon is active and
// still in one of the from statuses. It returns the number of rows changed,
// so zero means another writer got there first.
func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.HackathonStatus, updates map[string]any) (int64, error) {
	res := s.conn(ctx).Model(&models.Hackathon{}).
		Where("id = ? AND status IN ? AND is_active = ?", id, from, true).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("transition hackathon %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// FindFormationCandidates returns open, active hackathons with participants
// whose registration deadline passed within the trailing window.
func (s *Store) FindFormationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]models.Hackathon, error) {
	var out []models.Hackathon
	err := s.conn(ctx).
		Where("status = ? AND is_active = ?", models.StatusRegistrationOpen, true).
		Where("registration_deadline <= ? AND registration_deadline > ?", now, now.Add(-window)).
		Where("total_members_joined > 0").
		Order("registration_deadline ASC").
		Find(&out).Error
	return out, err
}

// FindCompletionCandidates returns active, non-terminal hackathons whose end
// date passed within the lookback horizon.
func (s *Store) FindCompletionCandidates(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Hackathon, error) {
	var out []models.Hackathon
	err := s.conn(ctx).
		Where("status NOT IN ? AND is_active = ?", models.TerminalStatuses, true).
		Where("end_date <= ? AND end_date > ?", now, now.Add(-horizon)).
		Order("end_date ASC").
		Find(&out).Error
	return out, err
}

// DueHackathonIDs lists the active hackathons in from whose due column has
// passed, the rows AdvanceStatuses would move.
func (s *Store) DueHackathonIDs(ctx context.Context, from models.HackathonStatus, due DueColumn, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.conn(ctx).Model(&models.Hackathon{}).
		Where("status = ? AND is_active = ?", from, true).
		Where(string(due)+" <= ?", now).
		Order(string(due)+" ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("due %s hackathons: %w", from, err)
	}
	return ids, nil
}

// AdvanceStatuses moves every active hackathon in from whose due column has
// passed to the to status. It reports how many matched and how many rows
// were written.
func (s *Store) AdvanceStatuses(ctx context.Context, from, to models.HackathonStatus, due DueColumn, now time.Time) (matched, updated int64, err error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.Hackathon{}).
			Where("status = ? AND is_active = ?", from, true).
			Where(string(due)+" <= ?", now)
	}

	err = s.Transaction(ctx, func(tx *Store) error {
		if err := scope(tx.conn(ctx)).Count(&matched).Error; err != nil {
			return err
		}
		if matched == 0 {
			return nil
		}
		updates := map[string]any{"status": to}
		if to.IsTerminal() {
			updates["is_active"] = false
		}
		res := scope(tx.conn(ctx)).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("advance %s -> %s: %w", from, to, err)
	}
	return matched, updated, nil
}
