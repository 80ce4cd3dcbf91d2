package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/eventbus"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/retry"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

type CancellationResult struct {
	HackathonID    uuid.UUID    `json:"hackathon_id"`
	Reason         string       `json:"reason"`
	Compensating   bool         `json:"compensating"`
	TeamsDeleted   int64        `json:"teams_deleted"`
	MembersDeleted int64        `json:"members_deleted"`
	UsersCleared   int64        `json:"users_cleared"`
	Emails         EmailSummary `json:"emails"`
}

type CompletionResult struct {
	HackathonID    uuid.UUID    `json:"hackathon_id"`
	TeamsCompleted int64        `json:"teams_completed"`
	UsersCleared   int64        `json:"users_cleared"`
	Emails         EmailSummary `json:"emails"`
}

// BucketCount reports one status-sync bucket.
type BucketCount struct {
	Matched int64 `json:"matched"`
	Updated int64 `json:"updated"`
}

type SyncResult struct {
	Ongoing   BucketCount `json:"ongoing"`
	Winner    BucketCount `json:"winner"`
	Completed BucketCount `json:"completed"`
}

// StatusReport says which transitions are currently possible.
type StatusReport struct {
	HackathonID          uuid.UUID              `json:"hackathon_id"`
	Status               models.HackathonStatus `json:"status"`
	IsActive             bool                   `json:"is_active"`
	Participants         int                    `json:"participants"`
	Teams                int64                  `json:"teams"`
	RegistrationDeadline bool                   `json:"registration_deadline_passed"`
	Started              bool                   `json:"started"`
	Ended                bool                   `json:"ended"`
	WinnerAnnouncement   bool                   `json:"winner_announcement_passed"`
	CanFormTeams         bool                   `json:"can_form_teams"`
	CanComplete          bool                   `json:"can_complete"`
	CanCancel            bool                   `json:"can_cancel"`
	CheckedAt            time.Time              `json:"checked_at"`
}

// CancelHackathon moves a non-terminal hackathon to cancelled, dissolves its
// teams and releases its participants.
func (s *LifecycleService) CancelHackathon(ctx context.Context, hackathonID uuid.UUID, reason string, trigger tracker.Trigger) (*tracker.Record, error) {
	reason = strings.TrimSpace(reason)
	op := s.tracker.Begin(OpCancelHackathon, &hackathonID, trigger, map[string]any{"reason": reason})
	start := time.Now()

	res, err := s.cancelHackathon(ctx, op, hackathonID, reason)
	if res == nil {
		return s.finish(ctx, op, OpCancelHackathon, start, nil, err)
	}
	return s.finish(ctx, op, OpCancelHackathon, start, res, err)
}

func (s *LifecycleService) cancelHackathon(ctx context.Context, op *tracker.Operation, id uuid.UUID, reason string) (*CancellationResult, error) {
	if reason == "" {
		return nil, failStep(op, "validate_preconditions",
			apperrors.Validation(apperrors.CodeValidation, "a cancellation reason is required", map[string]string{"reason": "is required"}))
	}
	h, err := s.loadHackathon(ctx, op, id)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, op, h, reason, false)
}

// cancel is shared by the manual path and formation compensation.
func (s *LifecycleService) cancel(ctx context.Context, op *tracker.Operation, h *models.Hackathon, reason string, compensating bool) (*CancellationResult, error) {
	op.Started("validate_cancellation", nil)
	if verr := closurePrecondition(h, models.StatusCancelled); verr != nil {
		return nil, failStep(op, "validate_cancellation", verr)
	}
	op.Completed("validate_cancellation", nil)

	participants, err := s.store.ParticipantIDs(ctx, h.ID)
	if err != nil {
		return nil, failStep(op, "load_participants", err)
	}

	op.Started("commit_cancellation", nil)
	res := &CancellationResult{HackathonID: h.ID, Reason: reason, Compensating: compensating}
	policy := s.txPolicy
	policy.Step = "commit_cancellation"
	report, err := retry.Run(ctx, policy, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(tx *repository.Store) error {
			n, err := tx.TransitionStatus(ctx, h.ID, models.NonTerminalStatuses, map[string]any{
				"status":    models.StatusCancelled,
				"is_active": false,
				"reason":    reason,
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.Business(apperrors.CodeStatusChanged, "hackathon was completed or cancelled concurrently")
			}
			if res.TeamsDeleted, res.MembersDeleted, err = tx.DeleteTeamsByHackathon(ctx, h.ID); err != nil {
				return err
			}
			res.UsersCleared, err = tx.ClearCurrentHackathon(ctx, participants, h.ID)
			return err
		})
	})
	if err != nil {
		return nil, failStep(op, "commit_cancellation", err)
	}
	op.Completed("commit_cancellation", map[string]any{
		"teams_deleted":   res.TeamsDeleted,
		"members_deleted": res.MembersDeleted,
		"users_cleared":   res.UsersCleared,
		"attempts":        report.Attempts,
	})
	op.Logger().Info("hackathon_cancelled", "reason", reason, "compensating", compensating, "teams_deleted", res.TeamsDeleted)

	s.publish(ctx, op, eventbus.TopicHackathonCancelled, eventbus.HackathonCancelled{
		HackathonID:  h.ID,
		Name:         h.Name,
		Reason:       reason,
		CancelledAt:  s.now(),
		Compensating: compensating,
	})

	res.Emails = s.notifyClosure(ctx, op, h, participants, TemplateHackathonCancelled, func(u models.User) any {
		return HackathonCancelledData{RecipientName: u.FirstName, HackathonName: h.Name, Reason: reason}
	})
	return res, nil
}

// CompleteHackathon finishes a hackathon whose end date has passed. Teams
// are kept and marked completed.
func (s *LifecycleService) CompleteHackathon(ctx context.Context, hackathonID uuid.UUID, trigger tracker.Trigger) (*tracker.Record, error) {
	op := s.tracker.Begin(OpCompleteHackathon, &hackathonID, trigger, nil)
	start := time.Now()

	res, err := s.completeHackathon(ctx, op, hackathonID)
	if res == nil {
		return s.finish(ctx, op, OpCompleteHackathon, start, nil, err)
	}
	return s.finish(ctx, op, OpCompleteHackathon, start, res, err)
}

func (s *LifecycleService) completeHackathon(ctx context.Context, op *tracker.Operation, id uuid.UUID) (*CompletionResult, error) {
	h, err := s.loadHackathon(ctx, op, id)
	if err != nil {
		return nil, err
	}

	op.Started("validate_completion", nil)
	if verr := closurePrecondition(h, models.StatusCompleted); verr != nil {
		return nil, failStep(op, "validate_completion", verr)
	}
	if s.now().Before(h.EndDate) {
		return nil, failStep(op, "validate_completion",
			apperrors.Business(apperrors.CodeNotEnded, "hackathon has not ended yet"))
	}
	op.Completed("validate_completion", nil)

	participants, err := s.store.ParticipantIDs(ctx, h.ID)
	if err != nil {
		return nil, failStep(op, "load_participants", err)
	}

	op.Started("commit_completion", nil)
	res := &CompletionResult{HackathonID: h.ID}
	policy := s.txPolicy
	policy.Step = "commit_completion"
	report, err := retry.Run(ctx, policy, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(tx *repository.Store) error {
			n, err := tx.TransitionStatus(ctx, h.ID, models.NonTerminalStatuses, map[string]any{
				"status":    models.StatusCompleted,
				"is_active": false,
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.Business(apperrors.CodeStatusChanged, "hackathon was completed or cancelled concurrently")
			}
			if res.TeamsCompleted, err = tx.CompleteTeams(ctx, h.ID); err != nil {
				return err
			}
			res.UsersCleared, err = tx.ClearCurrentHackathon(ctx, participants, h.ID)
			return err
		})
	})
	if err != nil {
		return nil, failStep(op, "commit_completion", err)
	}
	op.Completed("commit_completion", map[string]any{
		"teams_completed": res.TeamsCompleted,
		"users_cleared":   res.UsersCleared,
		"attempts":        report.Attempts,
	})
	op.Logger().Info("hackathon_completed", "teams", res.TeamsCompleted)

	s.publish(ctx, op, eventbus.TopicHackathonCompleted, eventbus.HackathonCompleted{
		HackathonID: h.ID,
		Name:        h.Name,
		Teams:       res.TeamsCompleted,
		CompletedAt: s.now(),
	})

	teamOf := map[uuid.UUID]string{}
	if teams, err := s.store.TeamsByHackathon(ctx, h.ID); err != nil {
		op.Warning("load_teams", map[string]any{"error": err.Error()})
	} else {
		for _, t := range teams {
			for _, m := range t.Members {
				teamOf[m.UserID] = t.Name
			}
		}
	}
	res.Emails = s.notifyClosure(ctx, op, h, participants, TemplateHackathonCompleted, func(u models.User) any {
		return HackathonCompletedData{RecipientName: u.FirstName, HackathonName: h.Name, TeamName: teamOf[u.ID]}
	})
	return res, nil
}

// closurePrecondition guards cancellation and completion: the hackathon
// must be active and the move must be legal from its current status.
func closurePrecondition(h *models.Hackathon, target models.HackathonStatus) *apperrors.Error {
	if h.Status.IsTerminal() {
		return apperrors.Business(apperrors.CodeInvalidStatus, "invalid status: hackathon is already "+string(h.Status))
	}
	if !h.IsActive {
		return apperrors.Business(apperrors.CodeInactive, "hackathon is not active")
	}
	if !h.Status.CanTransitionTo(target) {
		return apperrors.Business(apperrors.CodeInvalidStatus, "invalid status: cannot move from "+string(h.Status)+" to "+string(target))
	}
	return nil
}

type syncBucket struct {
	name     string
	from, to models.HackathonStatus
	due      repository.DueColumn
	count    *BucketCount
}

// SyncStatuses advances hackathons whose schedule has moved them on purely
// by the passage of time. It has no formation or completion side effects.
// A failing bucket does not stop the others.
func (s *LifecycleService) SyncStatuses(ctx context.Context, trigger tracker.Trigger) (*tracker.Record, error) {
	op := s.tracker.Begin(OpSyncStatuses, nil, trigger, nil)
	start := time.Now()
	now := s.now()

	res := &SyncResult{}
	buckets := []syncBucket{
		{"ongoing", models.StatusRegistrationClosed, models.StatusOngoing, repository.DueStartDate, &res.Ongoing},
		{"winner", models.StatusOngoing, models.StatusWinnerToAnnounce, repository.DueEndDate, &res.Winner},
		{"completed", models.StatusWinnerToAnnounce, models.StatusCompleted, repository.DueWinnerAnnouncement, &res.Completed},
	}

	var firstErr error
	for _, b := range buckets {
		step := "advance_" + b.name
		op.Started(step, nil)
		var closing []uuid.UUID
		if b.to.IsTerminal() {
			// These skip CompleteHackathon: their teams stay active and
			// their participants keep the pointer until an admin completes
			// them. Listed up front for the warning below.
			ids, err := s.store.DueHackathonIDs(ctx, b.from, b.due, now)
			if err != nil {
				op.Logger().Warn("sync_due_lookup_failed", "step", step, "error", err)
			}
			closing = ids
		}
		matched, updated, err := s.store.AdvanceStatuses(ctx, b.from, b.to, b.due, now)
		if err != nil {
			ce := failStep(op, step, err)
			if firstErr == nil {
				firstErr = ce
			}
			continue
		}
		*b.count = BucketCount{Matched: matched, Updated: updated}
		details := map[string]any{"matched": matched, "updated": updated}
		if updated > 0 && len(closing) > 0 {
			details["closed_without_completion"] = closing
			op.Logger().Warn("sync_closed_without_completion", "status", b.to, "hackathon_ids", closing)
		}
		op.Completed(step, details)
	}
	return s.finish(ctx, op, OpSyncStatuses, start, res, firstErr)
}

// GetStatus reports eligibility flags derived from the stored state and the
// current time. It records nothing.
func (s *LifecycleService) GetStatus(ctx context.Context, hackathonID uuid.UUID) (*StatusReport, error) {
	h, err := s.store.GetHackathon(ctx, hackathonID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_hackathon")
	}
	participants, err := s.store.ParticipantIDs(ctx, hackathonID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_participants")
	}
	teams, err := s.store.CountTeams(ctx, hackathonID)
	if err != nil {
		return nil, apperrors.Classify(err, "count_teams")
	}

	now := s.now()
	r := &StatusReport{
		HackathonID:          h.ID,
		Status:               h.Status,
		IsActive:             h.IsActive,
		Participants:         len(participants),
		Teams:                teams,
		RegistrationDeadline: !now.Before(h.RegistrationDeadline),
		Started:              !now.Before(h.StartDate),
		Ended:                !now.Before(h.EndDate),
		WinnerAnnouncement:   !now.Before(h.WinnerAnnouncementDate),
		CheckedAt:            now,
	}
	r.CanFormTeams = formationPrecondition(h, len(participants), now) == nil
	r.CanCancel = closurePrecondition(h, models.StatusCancelled) == nil
	r.CanComplete = closurePrecondition(h, models.StatusCompleted) == nil && r.Ended
	return r, nil
}

// RetryOperation re-runs the operation type recorded by a failed operation
// log against the same hackathon.
func (s *LifecycleService) RetryOperation(ctx context.Context, logID uuid.UUID) (*tracker.Record, error) {
	log, err := s.store.GetOperationLog(ctx, logID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_operation")
	}
	if log.Success {
		return nil, apperrors.Business(apperrors.CodeNotRetryable, "operation already succeeded").WithStep("load_operation")
	}
	if log.Operation == OpSyncStatuses {
		return s.SyncStatuses(ctx, tracker.TriggerRetry)
	}
	if log.HackathonID == nil {
		return nil, apperrors.Business(apperrors.CodeNotRetryable, "operation has no hackathon").WithStep("load_operation")
	}

	switch log.Operation {
	case OpFormTeams:
		return s.FormTeams(ctx, *log.HackathonID, tracker.TriggerRetry)
	case OpCompleteHackathon:
		return s.CompleteHackathon(ctx, *log.HackathonID, tracker.TriggerRetry)
	case OpCancelHackathon:
		reason, _ := log.Params["reason"].(string)
		return s.CancelHackathon(ctx, *log.HackathonID, reason, tracker.TriggerRetry)
	default:
		return nil, apperrors.Business(apperrors.CodeUnknownOperation, "unknown operation "+log.Operation).WithStep("load_operation")
	}
}

func (s *LifecycleService) publish(ctx context.Context, op *tracker.Operation, topic string, payload any) {
	if s.events == nil {
		op.Skipped("publish_event", map[string]any{"topic": topic})
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
		op.Warning("publish_event", map[string]any{"topic": topic, "error": err.Error()})
		return
	}
	op.Completed("publish_event", map[string]any{"topic": topic})
}
