// Package scheduler drives the lifecycle engine on fixed intervals: a team
// formation sweep, a completion sweep and a status sync.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/metrics"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

// Sweep names used in logs, reports and metrics.
const (
	SweepFormation  = "team_formation"
	SweepCompletion = "completion"
	SweepStatusSync = "status_sync"
)

// Engine is the subset of the lifecycle service the sweeps call.
type Engine interface {
	FormTeams(ctx context.Context, hackathonID uuid.UUID, trigger tracker.Trigger) (*tracker.Record, error)
	CompleteHackathon(ctx context.Context, hackathonID uuid.UUID, trigger tracker.Trigger) (*tracker.Record, error)
	SyncStatuses(ctx context.Context, trigger tracker.Trigger) (*tracker.Record, error)
}

// Finder selects the hackathons a sweep should visit.
type Finder interface {
	FindFormationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]models.Hackathon, error)
	FindCompletionCandidates(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Hackathon, error)
}

type Config struct {
	FormationInterval  time.Duration
	CompletionInterval time.Duration
	StatusSyncInterval time.Duration

	// FormationWindow is how far back a passed registration deadline still
	// makes a hackathon a formation candidate.
	FormationWindow time.Duration
	// CompletionHorizon is the same lookback for end dates.
	CompletionHorizon time.Duration
}

// Outcome is what happened to one hackathon, or to the sync pass, in a sweep.
type Outcome struct {
	HackathonID *uuid.UUID       `json:"hackathon_id,omitempty"`
	Name        string           `json:"name,omitempty"`
	OperationID uuid.UUID        `json:"operation_id"`
	Success     bool             `json:"success"`
	Error       *apperrors.Error `json:"error,omitempty"`
}

type SweepReport struct {
	Sweep     string    `json:"sweep"`
	StartedAt time.Time `json:"started_at"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

func (r *SweepReport) add(o Outcome) {
	r.Processed++
	if o.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

type Scheduler struct {
	engine  Engine
	finder  Finder
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(engine Engine, finder Finder, cfg Config, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		engine:  engine,
		finder:  finder,
		cfg:     cfg,
		logger:  logger.With("component", "scheduler"),
		metrics: m,
		now:     now,
	}
}

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context) (*SweepReport, error)
}

// Start launches one goroutine per job. Jobs with a non-positive interval
// are not started. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	jobs := []job{
		{SweepFormation, s.cfg.FormationInterval, s.RunFormationSweep},
		{SweepCompletion, s.cfg.CompletionInterval, s.RunCompletionSweep},
		{SweepStatusSync, s.cfg.StatusSyncInterval, s.RunStatusSync},
	}
	for _, j := range jobs {
		if j.interval <= 0 {
			s.logger.Warn("sweep_disabled", "sweep", j.name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info("scheduler_started",
		"formation_interval", s.cfg.FormationInterval,
		"completion_interval", s.cfg.CompletionInterval,
		"status_sync_interval", s.cfg.StatusSyncInterval)
}

// Stop ends the loops and waits for any sweep in flight to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler_stopped")
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A sweep that has begun runs to completion even if Stop is called.
			if _, err := j.run(context.WithoutCancel(ctx)); err != nil {
				s.logger.Error("sweep_failed", "sweep", j.name, "error", err)
			}
		}
	}
}

// RunFormationSweep forms teams for every hackathon whose registration
// deadline passed within the formation window. One failure does not stop
// the rest.
func (s *Scheduler) RunFormationSweep(ctx context.Context) (*SweepReport, error) {
	return s.sweepEach(ctx, SweepFormation, func(ctx context.Context, now time.Time) ([]models.Hackathon, error) {
		return s.finder.FindFormationCandidates(ctx, now, s.cfg.FormationWindow)
	}, s.engine.FormTeams)
}

// RunCompletionSweep completes every hackathon whose end date passed within
// the completion horizon.
func (s *Scheduler) RunCompletionSweep(ctx context.Context) (*SweepReport, error) {
	return s.sweepEach(ctx, SweepCompletion, func(ctx context.Context, now time.Time) ([]models.Hackathon, error) {
		return s.finder.FindCompletionCandidates(ctx, now, s.cfg.CompletionHorizon)
	}, s.engine.CompleteHackathon)
}

func (s *Scheduler) RunStatusSync(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Sweep: SweepStatusSync, StartedAt: s.now(), Outcomes: []Outcome{}}
	rec, err := s.engine.SyncStatuses(ctx, tracker.TriggerScheduled)
	report.add(outcome(nil, "", rec, err))
	s.finishSweep(report)
	return report, nil
}

type findFunc func(ctx context.Context, now time.Time) ([]models.Hackathon, error)

type actFunc func(ctx context.Context, hackathonID uuid.UUID, trigger tracker.Trigger) (*tracker.Record, error)

func (s *Scheduler) sweepEach(ctx context.Context, name string, find findFunc, act actFunc) (*SweepReport, error) {
	now := s.now()
	report := &SweepReport{Sweep: name, StartedAt: now, Outcomes: []Outcome{}}

	candidates, err := find(ctx, now)
	if err != nil {
		ce := apperrors.Classify(err, "find_candidates")
		s.metrics.ObserveSweep(name, 1)
		return report, ce
	}

	for _, h := range candidates {
		o := s.runItem(ctx, name, h, act)
		if !o.Success {
			s.logger.Warn("sweep_item_failed", "sweep", name, "hackathon_id", h.ID, "error", o.Error)
		}
		report.add(o)
	}
	s.finishSweep(report)
	return report, nil
}

// runItem turns a panic in act into a fatal outcome for that hackathon so
// the sweep moves on to the next one.
func (s *Scheduler) runItem(ctx context.Context, name string, h models.Hackathon, act actFunc) (o Outcome) {
	id := h.ID
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep_item_panicked",
				"sweep", name,
				"hackathon_id", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			o = Outcome{
				HackathonID: &id,
				Name:        h.Name,
				Error:       apperrors.Fatal(fmt.Sprintf("panic: %v", r), nil).WithStep(name),
			}
		}
	}()
	rec, err := act(ctx, id, tracker.TriggerScheduled)
	return outcome(&id, h.Name, rec, err)
}

func (s *Scheduler) finishSweep(r *SweepReport) {
	s.metrics.ObserveSweep(r.Sweep, r.Failed)
	if r.Processed == 0 {
		s.logger.Debug("sweep_finished", "sweep", r.Sweep, "processed", 0)
		return
	}
	s.logger.Info("sweep_finished",
		"sweep", r.Sweep,
		"processed", r.Processed,
		"succeeded", r.Succeeded,
		"failed", r.Failed)
}

func outcome(id *uuid.UUID, name string, rec *tracker.Record, err error) Outcome {
	o := Outcome{HackathonID: id, Name: name, Success: err == nil, Error: apperrors.Classify(err, "")}
	if rec != nil {
		o.OperationID = rec.ID
	}
	return o
}
