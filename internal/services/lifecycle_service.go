package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/formation"
	"github.com/hackcrew/hackathon-platform/internal/metrics"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/retry"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

// Operation names as they appear in records, metrics and the retry endpoint.
const (
	OpFormTeams         = "form_teams"
	OpCompleteHackathon = "complete_hackathon"
	OpCancelHackathon   = "cancel_hackathon"
	OpSyncStatuses      = "sync_statuses"
)

// Notifier sends one templated email.
type Notifier interface {
	Send(ctx context.Context, to, template string, data any) error
}

// EventPublisher announces domain events to whoever listens.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// LifecycleDeps wires a LifecycleService. Notifier, Events and Metrics are
// optional.
type LifecycleDeps struct {
	Store    *repository.Store
	Notifier Notifier
	Events   EventPublisher
	Tracker  *tracker.Tracker
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
	Rand     *rand.Rand

	// TxPolicy retries the atomic units; EmailPolicy retries each send.
	TxPolicy     retry.Policy
	EmailPolicy  retry.Policy
	EmailWorkers int
}

// LifecycleService is the state transition engine. The scheduler, the admin
// endpoints and the retry endpoint all go through it.
type LifecycleService struct {
	store    *repository.Store
	notifier Notifier
	events   EventPublisher
	tracker  *tracker.Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	txPolicy     retry.Policy
	emailPolicy  retry.Policy
	emailWorkers int
}

func NewLifecycleService(d LifecycleDeps) *LifecycleService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Rand == nil {
		d.Rand = formation.NewRand(0)
	}
	if d.Tracker == nil {
		d.Tracker = tracker.New(d.Logger, d.Store, d.Now)
	}
	if d.EmailWorkers < 1 {
		d.EmailWorkers = 1
	}
	return &LifecycleService{
		store:        d.Store,
		notifier:     d.Notifier,
		events:       d.Events,
		tracker:      d.Tracker,
		metrics:      d.Metrics,
		logger:       d.Logger.With("component", "lifecycle"),
		now:          d.Now,
		rng:          d.Rand,
		txPolicy:     d.TxPolicy,
		emailPolicy:  d.EmailPolicy,
		emailWorkers: d.EmailWorkers,
	}
}

// TeamSummary describes one created team.
type TeamSummary struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	ProblemStatement string      `json:"problem_statement"`
	Members          []uuid.UUID `json:"members"`
}

// FormationResult is the result of FormTeams. When Compensated is set the
// formation itself was abandoned and the hackathon cancelled instead.
type FormationResult struct {
	HackathonID     uuid.UUID     `json:"hackathon_id"`
	TeamsCreated    int           `json:"teams_created"`
	MembersAssigned int           `json:"members_assigned"`
	TeamSizes       []int         `json:"team_sizes,omitempty"`
	Teams           []TeamSummary `json:"teams,omitempty"`
	Attempts        int           `json:"attempts"`
	Emails          EmailSummary  `json:"emails"`

	Compensated       bool                `json:"compensated"`
	OriginalErrorCode string              `json:"original_error_code,omitempty"`
	Cancellation      *CancellationResult `json:"cancellation,omitempty"`
}

// FormTeams splits the participants of a registration_open hackathon into
// teams, closes registration and notifies everyone. A business-rule failure
// after the registration deadline and before the start cancels the hackathon
// instead and is reported as a compensated success.
func (s *LifecycleService) FormTeams(ctx context.Context, hackathonID uuid.UUID, trigger tracker.Trigger) (*tracker.Record, error) {
	op := s.tracker.Begin(OpFormTeams, &hackathonID, trigger, nil)
	start := time.Now()
	res, err := s.formTeams(ctx, op, hackathonID)
	if res == nil {
		return s.finish(ctx, op, OpFormTeams, start, nil, err)
	}
	return s.finish(ctx, op, OpFormTeams, start, res, err)
}

func (s *LifecycleService) formTeams(ctx context.Context, op *tracker.Operation, id uuid.UUID) (*FormationResult, error) {
	h, err := s.loadHackathon(ctx, op, id)
	if err != nil {
		return nil, err
	}

	op.Started("load_participants", nil)
	participants, err := s.store.ParticipantIDs(ctx, id)
	if err != nil {
		return nil, failStep(op, "load_participants", err)
	}
	op.Completed("load_participants", map[string]any{"count": len(participants)})

	op.Started("validate_preconditions", nil)
	now := s.now()
	if verr := formationPrecondition(h, len(participants), now); verr != nil {
		ce := failStep(op, "validate_preconditions", verr)
		return s.compensateOrFail(ctx, op, h, ce)
	}
	op.Completed("validate_preconditions", nil)

	op.Started("commit_teams", nil)
	policy := s.txPolicy
	policy.Step = "commit_teams"
	formed, report, err := retry.Do(ctx, policy, func(ctx context.Context) (*formedTeams, error) {
		return s.commitFormation(ctx, h)
	})
	if err != nil {
		ce := failStep(op, "commit_teams", err)
		op.Logger().Error("team_formation_failed", "attempts", report.Attempts, "error", ce)
		return s.compensateOrFail(ctx, op, h, ce)
	}
	teams, members := formed.teams, formed.participants
	details := map[string]any{"teams": len(teams), "sizes": formed.sizes, "attempts": report.Attempts}
	if late := len(members) - len(participants); late != 0 {
		details["late_registrations"] = late
	}
	op.Completed("commit_teams", details)
	op.Logger().Info("team_formation_committed", "teams", len(teams), "participants", len(members))

	res := &FormationResult{
		HackathonID:     id,
		TeamsCreated:    len(teams),
		MembersAssigned: len(members),
		TeamSizes:       formed.sizes,
		Attempts:        report.Attempts,
	}
	for _, t := range teams {
		ids := make([]uuid.UUID, len(t.Members))
		for i, m := range t.Members {
			ids[i] = m.UserID
		}
		res.Teams = append(res.Teams, TeamSummary{ID: t.ID, Name: t.Name, ProblemStatement: t.ProblemStatement, Members: ids})
	}

	res.Emails = s.notifyTeams(ctx, op, h, teams, members)
	return res, nil
}

// formationPrecondition checks every rule that must hold before teams are
// formed, most fundamental first.
func formationPrecondition(h *models.Hackathon, participants int, now time.Time) *apperrors.Error {
	switch {
	case !h.IsActive:
		return apperrors.Business(apperrors.CodeInactive, "hackathon is not active")
	case h.Status != models.StatusRegistrationOpen:
		return apperrors.Business(apperrors.CodeInvalidStatus, "invalid status "+string(h.Status)+": teams form only while registration is open")
	case !now.Before(h.StartDate):
		return apperrors.Business(apperrors.CodeStarted, "hackathon has already started")
	case participants == 0:
		return apperrors.Business(apperrors.CodeNoParticipants, "hackathon has no participants")
	case len(h.ProblemStatements) == 0:
		return apperrors.Business(apperrors.CodeNoProblems, "hackathon has no problem statements")
	case participants < h.MinParticipantsToFormTeam:
		return apperrors.Business(apperrors.CodeInsufficient,
			fmt.Sprintf("not enough participants: %d registered, %d required", participants, h.MinParticipantsToFormTeam))
	case h.MaxTeamSize < 1:
		return apperrors.Business(apperrors.CodeInvalidTeamSize, "max team size must be at least 1")
	}
	return nil
}

type formedTeams struct {
	teams        []models.Team
	participants []uuid.UUID
	sizes        []int
}

// commitFormation is the atomic unit: close registration, partition the
// participants as they stand once registration is closed, create every team
// with its members and point each participant at the hackathon.
func (s *LifecycleService) commitFormation(ctx context.Context, h *models.Hackathon) (*formedTeams, error) {
	var out *formedTeams
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		n, err := tx.TransitionStatus(ctx, h.ID,
			[]models.HackathonStatus{models.StatusRegistrationOpen},
			map[string]any{"status": models.StatusRegistrationClosed})
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.Business(apperrors.CodeStatusChanged, "hackathon is no longer open for team formation")
		}

		// Registrations are guarded on registration_open, so nothing can
		// join after the transition above.
		participants, err := tx.ParticipantIDs(ctx, h.ID)
		if err != nil {
			return err
		}
		s.rngMu.Lock()
		groups, err := formation.Partition(participants, h.ProblemStatements, h.MaxTeamSize, s.rng)
		s.rngMu.Unlock()
		if err != nil {
			return apperrors.Business(apperrors.CodeInvalidTeamSize, err.Error())
		}

		out = &formedTeams{
			teams:        make([]models.Team, 0, len(groups)),
			participants: participants,
			sizes:        make([]int, len(groups)),
		}
		for gi, g := range groups {
			out.sizes[gi] = len(g.Members)
			team := models.Team{
				HackathonID:      h.ID,
				Name:             g.Name,
				ProblemStatement: g.ProblemStatement,
				TeamSize:         len(g.Members),
				SubmissionStatus: models.SubmissionNotSubmitted,
				Status:           models.TeamStatusActive,
				Members:          make([]models.TeamMember, len(g.Members)),
			}
			for i, userID := range g.Members {
				role := models.MemberRoleDeveloper
				if i == 0 {
					role = models.MemberRoleLeader
				}
				team.Members[i] = models.TeamMember{UserID: userID, Role: role, Status: models.MemberStatusActive, Position: i}
			}
			if err := tx.CreateTeam(ctx, &team); err != nil {
				return err
			}
			out.teams = append(out.teams, team)
		}

		_, err = tx.SetCurrentHackathon(ctx, participants, h.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// compensateOrFail cancels the hackathon when ce is a business failure that
// makes formation permanently impossible before the start. Otherwise, or
// when the cancellation itself fails, ce is returned unchanged.
func (s *LifecycleService) compensateOrFail(ctx context.Context, op *tracker.Operation, h *models.Hackathon, ce *apperrors.Error) (*FormationResult, error) {
	if !compensable(ce, h, s.now()) {
		return nil, ce
	}

	reason := "automatic cancellation: " + ce.Message
	op.Started("compensate", map[string]any{"reason": reason, "code": ce.Code})
	cancellation, err := s.cancel(ctx, op, h, reason, true)
	if err != nil {
		op.Failed("compensate", err)
		op.Logger().Error("compensation_failed", "original_error", ce, "error", err)
		return nil, ce
	}
	op.Completed("compensate", nil)
	op.Logger().Warn("formation_compensated", "code", ce.Code, "reason", reason)

	return &FormationResult{
		HackathonID:       h.ID,
		Compensated:       true,
		OriginalErrorCode: ce.Code,
		Cancellation:      cancellation,
		Emails:            cancellation.Emails,
	}, nil
}

func compensable(ce *apperrors.Error, h *models.Hackathon, now time.Time) bool {
	if ce == nil || ce.Kind != apperrors.KindBusiness {
		return false
	}
	switch ce.Code {
	case apperrors.CodeStarted, apperrors.CodeInvalidStatus, apperrors.CodeStatusChanged,
		apperrors.CodeInactive, apperrors.CodeNotFound:
		return false
	}
	// Before the deadline more people can still register, so the failure
	// is not final yet.
	return !now.Before(h.RegistrationDeadline) && now.Before(h.StartDate)
}

func (s *LifecycleService) loadHackathon(ctx context.Context, op *tracker.Operation, id uuid.UUID) (*models.Hackathon, error) {
	op.Started("load_hackathon", nil)
	h, err := s.store.GetHackathon(ctx, id)
	if err != nil {
		return nil, failStep(op, "load_hackathon", err)
	}
	op.Completed("load_hackathon", map[string]any{"status": h.Status})
	return h, nil
}

// finish closes the record, observes metrics and returns the classified
// error, or a nil interface on success.
func (s *LifecycleService) finish(ctx context.Context, op *tracker.Operation, name string, start time.Time, result any, err error) (*tracker.Record, error) {
	rec := op.Finish(ctx, result, err)
	ce := apperrors.Classify(err, "")

	outcome := "success"
	switch {
	case ce == nil:
		if fr, ok := result.(*FormationResult); ok && fr != nil && fr.Compensated {
			outcome = "compensated"
		}
	case ce.Kind == apperrors.KindBusiness || ce.Kind == apperrors.KindValidation:
		outcome = "rejected"
	default:
		outcome = "failed"
	}
	s.metrics.ObserveOperation(name, outcome, time.Since(start))

	if ce == nil {
		return rec, nil
	}
	return rec, ce
}

func failStep(op *tracker.Operation, step string, err error) *apperrors.Error {
	ce := apperrors.Classify(err, step)
	op.Failed(step, ce)
	return ce
}
