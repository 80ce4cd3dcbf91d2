// Package tracker records the ordered steps of a lifecycle operation, logs
// them as they happen and persists the finished record as an operation log.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/models"
)

type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepWarning   StepStatus = "warning"
)

// Trigger says what started an operation.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerRetry     Trigger = "retry"
)

type Step struct {
	Name      string         `json:"step"`
	Status    StepStatus     `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Record is the audit trail of one operation.
type Record struct {
	ID          uuid.UUID        `json:"id"`
	Operation   string           `json:"operation"`
	HackathonID *uuid.UUID       `json:"hackathon_id,omitempty"`
	Trigger     Trigger          `json:"trigger"`
	Params      map[string]any   `json:"params,omitempty"`
	Steps       []Step           `json:"steps"`
	Success     bool             `json:"success"`
	Result      any              `json:"result,omitempty"`
	Error       *apperrors.Error `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Sink persists finished records.
type Sink interface {
	SaveOperationLog(ctx context.Context, log *models.OperationLog) error
}

type Tracker struct {
	logger *slog.Logger
	sink   Sink
	now    func() time.Time
}

// New returns a Tracker. A nil sink keeps records in memory only; a nil now
// uses the wall clock.
func New(logger *slog.Logger, sink Sink, now func() time.Time) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{logger: logger.With("component", "tracker"), sink: sink, now: now}
}

// Begin opens a new operation record.
func (t *Tracker) Begin(operation string, hackathonID *uuid.UUID, trigger Trigger, params map[string]any) *Operation {
	rec := Record{
		ID:          uuid.New(),
		Operation:   operation,
		HackathonID: hackathonID,
		Trigger:     trigger,
		Params:      params,
		Steps:       []Step{},
		StartedAt:   t.now(),
	}
	logger := t.logger.With("operation", operation, "operation_id", rec.ID, "trigger", trigger)
	if hackathonID != nil {
		logger = logger.With("hackathon_id", *hackathonID)
	}
	logger.Info("operation_started")
	return &Operation{tracker: t, logger: logger, rec: rec}
}

// Operation is an open record. Its step methods are safe for concurrent use.
type Operation struct {
	tracker *Tracker
	logger  *slog.Logger

	mu       sync.Mutex
	rec      Record
	finished bool
}

func (o *Operation) ID() uuid.UUID { return o.rec.ID }

// Logger returns a logger carrying the operation's attributes.
func (o *Operation) Logger() *slog.Logger { return o.logger }

func (o *Operation) Started(step string, details map[string]any) {
	o.add(step, StepStarted, details)
}

func (o *Operation) Completed(step string, details map[string]any) {
	o.add(step, StepCompleted, details)
}

func (o *Operation) Skipped(step string, details map[string]any) {
	o.add(step, StepSkipped, details)
}

func (o *Operation) Warning(step string, details map[string]any) {
	o.add(step, StepWarning, details)
}

// Failed records a failed step with the classified error in its details.
func (o *Operation) Failed(step string, err error) {
	ce := apperrors.Classify(err, step)
	details := map[string]any{"kind": ce.Kind, "code": ce.Code, "message": ce.Message}
	if len(ce.Details) > 0 {
		details["fields"] = ce.Details
	}
	o.add(step, StepFailed, details)
}

// Steps returns a copy of the steps recorded so far.
func (o *Operation) Steps() []Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Step(nil), o.rec.Steps...)
}

func (o *Operation) add(step string, status StepStatus, details map[string]any) {
	s := Step{Name: step, Status: status, Timestamp: o.tracker.now(), Details: details}

	o.mu.Lock()
	o.rec.Steps = append(o.rec.Steps, s)
	o.mu.Unlock()

	switch status {
	case StepFailed, StepWarning:
		o.logger.Warn("operation_step", "step", step, "status", status, "details", details)
	default:
		o.logger.Debug("operation_step", "step", step, "status", status)
	}
}

// Finish closes the record as a success when err is nil and as a failure
// otherwise, then persists it. Finishing twice returns the first record.
func (o *Operation) Finish(ctx context.Context, result any, err error) *Record {
	o.mu.Lock()
	if o.finished {
		rec := o.rec
		o.mu.Unlock()
		return &rec
	}
	o.finished = true
	o.rec.FinishedAt = o.tracker.now()
	o.rec.Result = result
	o.rec.Success = err == nil
	if err != nil {
		o.rec.Error = apperrors.Classify(err, "")
	}
	rec := o.rec
	rec.Steps = append([]Step(nil), o.rec.Steps...)
	o.mu.Unlock()

	duration := rec.FinishedAt.Sub(rec.StartedAt)
	if rec.Success {
		o.logger.Info("operation_finished", "duration", duration, "steps", len(rec.Steps))
	} else {
		o.logger.Error("operation_failed", "duration", duration, "error", rec.Error)
	}

	if o.tracker.sink != nil {
		log, encErr := rec.toLog()
		if encErr != nil {
			o.logger.Error("operation_log_encode_failed", "error", encErr)
			return &rec
		}
		// The audit trail is saved even when the caller's context is done.
		if saveErr := o.tracker.sink.SaveOperationLog(context.WithoutCancel(ctx), log); saveErr != nil {
			o.logger.Error("operation_log_save_failed", "error", saveErr)
		}
	}
	return &rec
}

func (r *Record) toLog() (*models.OperationLog, error) {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return nil, err
	}
	log := &models.OperationLog{
		ID:          r.ID,
		Operation:   r.Operation,
		HackathonID: r.HackathonID,
		Trigger:     string(r.Trigger),
		Success:     r.Success,
		Params:      datatypes.JSONMap(r.Params),
		Steps:       datatypes.JSON(steps),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	if r.Result != nil {
		if log.Result, err = json.Marshal(r.Result); err != nil {
			return nil, err
		}
	}
	if r.Error != nil {
		if log.Error, err = json.Marshal(r.Error); err != nil {
			return nil, err
		}
	}
	return log, nil
}
