package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/models"
)

// OperationFilter narrows ListOperationLogs. Zero values match everything.
type OperationFilter struct {
	HackathonID *uuid.UUID
	Operation   string
	Success     *bool
	Limit       int
}

func (s *Store) SaveOperationLog(ctx context.Context, log *models.OperationLog) error {
	if err := s.conn(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("save operation log: %w", err)
	}
	return nil
}

func (s *Store) GetOperationLog(ctx context.Context, id uuid.UUID) (*models.OperationLog, error) {
	var log models.OperationLog
	if err := s.conn(ctx).First(&log, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("operation %s: %w", id, err)
	}
	return &log, nil
}

// ListOperationLogs returns the newest logs first.
func (s *Store) ListOperationLogs(ctx context.Context, f OperationFilter) ([]models.OperationLog, error) {
	q := s.conn(ctx).Model(&models.OperationLog{})
	if f.HackathonID != nil {
		q = q.Where("hackathon_id = ?", *f.HackathonID)
	}
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.OperationLog
	err := q.Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
