package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/retry"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

// EmailSummary aggregates a notification fan-out.
type EmailSummary struct {
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Failures   []EmailFailure `json:"failures,omitempty"`
}

type EmailFailure struct {
	UserID   uuid.UUID        `json:"user_id"`
	Email    string           `json:"email,omitempty"`
	Attempts int              `json:"attempts"`
	Error    *apperrors.Error `json:"error"`
}

type notification struct {
	userID uuid.UUID
	email  string
	data   any
}

// notifyTeams sends each member one team_assignment email naming them
// first, then their teammates in team order.
func (s *LifecycleService) notifyTeams(ctx context.Context, op *tracker.Operation, h *models.Hackathon, teams []models.Team, participants []uuid.UUID) EmailSummary {
	users, missing := s.loadRecipients(ctx, op, participants)

	var batch []notification
	for _, t := range teams {
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			if u, ok := users[m.UserID]; ok {
				names[i] = u.FullName()
			}
		}
		for i, m := range t.Members {
			u, ok := users[m.UserID]
			if !ok {
				continue
			}
			members := make([]string, 0, len(names))
			members = append(members, names[i])
			for j, name := range names {
				if j != i && name != "" {
					members = append(members, name)
				}
			}
			batch = append(batch, notification{
				userID: u.ID,
				email:  u.Email,
				data: TeamAssignmentData{
					RecipientName:    u.FirstName,
					HackathonName:    h.Name,
					TeamName:         t.Name,
					ProblemStatement: t.ProblemStatement,
					Members:          members,
				},
			})
		}
	}
	return s.dispatch(ctx, op, TemplateTeamAssignment, batch, missing)
}

// notifyClosure sends one email per participant built by data.
func (s *LifecycleService) notifyClosure(ctx context.Context, op *tracker.Operation, h *models.Hackathon, participants []uuid.UUID, template string, data func(models.User) any) EmailSummary {
	users, missing := s.loadRecipients(ctx, op, participants)

	batch := make([]notification, 0, len(users))
	for _, id := range participants {
		u, ok := users[id]
		if !ok {
			continue
		}
		batch = append(batch, notification{userID: u.ID, email: u.Email, data: data(u)})
	}
	return s.dispatch(ctx, op, template, batch, missing)
}

// loadRecipients returns the participants that still exist, plus a failure
// entry for every one that does not.
func (s *LifecycleService) loadRecipients(ctx context.Context, op *tracker.Operation, ids []uuid.UUID) (map[uuid.UUID]models.User, []EmailFailure) {
	users := make(map[uuid.UUID]models.User, len(ids))
	list, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		ce := apperrors.Classify(err, "load_recipients")
		op.Warning("load_recipients", map[string]any{"error": ce.Message})
		failures := make([]EmailFailure, len(ids))
		for i, id := range ids {
			failures[i] = EmailFailure{UserID: id, Error: ce}
		}
		return users, failures
	}
	for _, u := range list {
		users[u.ID] = u
	}

	var missing []EmailFailure
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			missing = append(missing, EmailFailure{
				UserID: id,
				Error:  apperrors.Business(apperrors.CodeNotFound, "recipient not found").WithStep("load_recipients"),
			})
		}
	}
	return users, missing
}

// dispatch sends the batch outside any transaction. Each send is retried on
// its own; failures are recorded as warnings and never fail the operation.
func (s *LifecycleService) dispatch(ctx context.Context, op *tracker.Operation, template string, batch []notification, missing []EmailFailure) EmailSummary {
	summary := EmailSummary{Failed: len(missing), Failures: missing}
	if s.notifier == nil {
		op.Skipped("notify_participants", map[string]any{"template": template, "reason": "no notifier configured"})
		return summary
	}
	if len(batch) == 0 && len(missing) == 0 {
		op.Skipped("notify_participants", map[string]any{"template": template, "reason": "no recipients"})
		return summary
	}

	op.Started("notify_participants", map[string]any{"template": template, "recipients": len(batch)})

	// Delivery continues even if the caller goes away after the commit.
	ctx = context.WithoutCancel(ctx)
	policy := s.emailPolicy
	policy.Step = "send_email"

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.emailWorkers)
	for _, n := range batch {
		g.Go(func() error {
			report, err := retry.Run(ctx, policy, func(ctx context.Context) error {
				return s.notifier.Send(ctx, n.email, template, n.data)
			})
			s.metrics.ObserveEmail(template, err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				summary.Successful++
				return nil
			}
			ce := apperrors.Classify(err, "send_email")
			summary.Failed++
			summary.Failures = append(summary.Failures, EmailFailure{UserID: n.userID, Email: n.email, Attempts: report.Attempts, Error: ce})
			op.Warning("send_email", map[string]any{
				"user_id":  n.userID,
				"email":    n.email,
				"code":     ce.Code,
				"attempts": report.Attempts,
			})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].UserID.String() < summary.Failures[j].UserID.String()
	})
	op.Completed("notify_participants", map[string]any{
		"template":   template,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})
	return summary
}
