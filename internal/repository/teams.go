package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/models"
)

// CreateTeam inserts the team and then its members in one statement each.
func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	members := team.Members
	if err := s.conn(ctx).Omit("Members").Create(team).Error; err != nil {
		return fmt.Errorf("create team %q: %w", team.Name, err)
	}
	if len(members) == 0 {
		return nil
	}
	for i := range members {
		members[i].TeamID = team.ID
	}
	if err := s.conn(ctx).Create(&members).Error; err != nil {
		return fmt.Errorf("create members of team %q: %w", team.Name, err)
	}
	team.Members = members
	return nil
}

// TeamsByHackathon returns teams with members in their assigned order.
func (s *Store) TeamsByHackathon(ctx context.Context, hackathonID uuid.UUID) ([]models.Team, error) {
	var teams []models.Team
	err := s.conn(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("hackathon_id = ?", hackathonID).
		Order("created_at ASC").Order("name ASC").
		Find(&teams).Error
	return teams, err
}

func (s *Store) CountTeams(ctx context.Context, hackathonID uuid.UUID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Team{}).Where("hackathon_id = ?", hackathonID).Count(&n).Error
	return n, err
}

func (s *Store) CountTeamMembers(ctx context.Context, hackathonID uuid.UUID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.TeamMember{}).
		Where("team_id IN (?)", s.teamIDs(ctx, hackathonID)).
		Count(&n).Error
	return n, err
}

// DeleteTeamsByHackathon removes every member row and then every team.
func (s *Store) DeleteTeamsByHackathon(ctx context.Context, hackathonID uuid.UUID) (teams, members int64, err error) {
	res := s.conn(ctx).Where("team_id IN (?)", s.teamIDs(ctx, hackathonID)).Delete(&models.TeamMember{})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("delete team members: %w", res.Error)
	}
	members = res.RowsAffected

	res = s.conn(ctx).Where("hackathon_id = ?", hackathonID).Delete(&models.Team{})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("delete teams: %w", res.Error)
	}
	return res.RowsAffected, members, nil
}

// CompleteTeams marks every team of the hackathon completed.
func (s *Store) CompleteTeams(ctx context.Context, hackathonID uuid.UUID) (int64, error) {
	res := s.conn(ctx).Model(&models.Team{}).
		Where("hackathon_id = ?", hackathonID).
		Update("status", models.TeamStatusCompleted)
	if res.Error != nil {
		return 0, fmt.Errorf("complete teams: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) teamIDs(ctx context.Context, hackathonID uuid.UUID) *gorm.DB {
	return s.conn(ctx).Model(&models.Team{}).Select("id").Where("hackathon_id = ?", hackathonID)
}
