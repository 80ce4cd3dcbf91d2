package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/eventbus"
	"github.com/hackcrew/hackathon-platform/internal/formation"
	"github.com/hackcrew/hackathon-platform/internal/metrics"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/retry"
	"github.com/hackcrew/hackathon-platform/internal/testutil"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

var deadline = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type harness struct {
	svc      *LifecycleService
	store    *repository.Store
	fx       *testutil.Fixtures
	clock    *testutil.Clock
	notifier *testutil.FakeNotifier
	events   *testutil.FakePublisher
	metrics  *metrics.Metrics
}

// newHarness starts the clock one hour past deadline, inside the window
// where teams may be formed.
func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewStore(t)
	h := &harness{
		store:    store,
		fx:       testutil.NewFixtures(t, store, 7),
		clock:    testutil.NewClock(deadline.Add(time.Hour)),
		notifier: testutil.NewFakeNotifier(),
		events:   &testutil.FakePublisher{},
		metrics:  metrics.New(),
	}
	h.svc = NewLifecycleService(LifecycleDeps{
		Store:        store,
		Notifier:     h.notifier,
		Events:       h.events,
		Metrics:      h.metrics,
		Logger:       quietLogger(),
		Now:          h.clock.Now,
		Rand:         formation.NewRand(1),
		TxPolicy:     retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		EmailPolicy:  retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		EmailWorkers: 4,
	})
	return h
}

// openWith creates an open hackathon with count registered participants.
func (h *harness) openWith(count int, opts ...func(*models.Hackathon)) (*models.Hackathon, []models.User) {
	hack := h.fx.HackathonAt(deadline, opts...)
	users := h.fx.Users(count)
	h.fx.Register(hack, users)
	return hack, users
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Hackathon {
	t.Helper()
	got, err := h.store.GetHackathon(context.Background(), id)
	require.NoError(t, err)
	return got
}

func (h *harness) counts(t *testing.T, id uuid.UUID) (teams, members int64) {
	t.Helper()
	ctx := context.Background()
	teams, err := h.store.CountTeams(ctx, id)
	require.NoError(t, err)
	members, err = h.store.CountTeamMembers(ctx, id)
	require.NoError(t, err)
	return teams, members
}

func (h *harness) currentHackathons(t *testing.T, users []models.User) []*uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	fresh, err := h.store.GetUsers(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, fresh, len(users))
	out := make([]*uuid.UUID, len(fresh))
	for i, u := range fresh {
		out[i] = u.CurrentHackathonID
	}
	return out
}

func requireCode(t *testing.T, err error, kind apperrors.Kind, code string) *apperrors.Error {
	t.Helper()
	require.Error(t, err)
	var ce *apperrors.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, kind, ce.Kind, ce.Message)
	assert.Equal(t, code, ce.Code, ce.Message)
	return ce
}

func stepsNamed(rec *tracker.Record, name string, status tracker.StepStatus) int {
	n := 0
	for _, s := range rec.Steps {
		if s.Name == name && s.Status == status {
			n++
		}
	}
	return n
}

func TestFormTeamsSplitsParticipants(t *testing.T) {
	tests := []struct {
		participants int
		sizes        []int
	}{
		{participants: 7, sizes: []int{3, 2, 2}},
		{participants: 9, sizes: []int{3, 3, 3}},
		{participants: 1, sizes: []int{1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d participants", tt.participants), func(t *testing.T) {
			h := newHarness(t)
			hack, users := h.openWith(tt.participants)

			rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
			require.NoError(t, err)
			require.True(t, rec.Success)

			res, ok := rec.Result.(*FormationResult)
			require.True(t, ok)
			assert.False(t, res.Compensated)
			assert.Equal(t, tt.sizes, res.TeamSizes)
			assert.Equal(t, len(tt.sizes), res.TeamsCreated)
			assert.Equal(t, tt.participants, res.MembersAssigned)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, tt.participants, res.Emails.Successful)
			assert.Zero(t, res.Emails.Failed)

			teams, members := h.counts(t, hack.ID)
			assert.EqualValues(t, len(tt.sizes), teams)
			assert.EqualValues(t, tt.participants, members)

			got := h.reload(t, hack.ID)
			assert.Equal(t, models.StatusRegistrationClosed, got.Status)
			assert.True(t, got.IsActive)

			for _, cur := range h.currentHackathons(t, users) {
				require.NotNil(t, cur)
				assert.Equal(t, hack.ID, *cur)
			}

			stored, err := h.store.TeamsByHackathon(context.Background(), hack.ID)
			require.NoError(t, err)
			seen := map[uuid.UUID]int{}
			for _, team := range stored {
				assert.Contains(t, []string(hack.ProblemStatements), team.ProblemStatement)
				assert.Equal(t, len(team.Members), team.TeamSize)
				for i, m := range team.Members {
					seen[m.UserID]++
					if i == 0 {
						assert.Equal(t, models.MemberRoleLeader, m.Role)
					} else {
						assert.Equal(t, models.MemberRoleDeveloper, m.Role)
					}
				}
			}
			assert.Len(t, seen, tt.participants)
			for id, n := range seen {
				assert.Equal(t, 1, n, "user %s placed more than once", id)
			}

			assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Transitions.WithLabelValues(OpFormTeams, "success")))
		})
	}
}

func TestFormTeamsEmailListsRecipientFirst(t *testing.T) {
	h := newHarness(t)
	hack, users := h.openWith(5)

	_, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
	require.NoError(t, err)

	byEmail := map[string]models.User{}
	for _, u := range users {
		byEmail[u.Email] = u
	}
	teams, err := h.store.TeamsByHackathon(context.Background(), hack.ID)
	require.NoError(t, err)
	sizeOf := map[string]int{}
	for _, team := range teams {
		sizeOf[team.Name] = len(team.Members)
	}

	sent := h.notifier.Sent()
	require.Len(t, sent, len(users))
	for _, e := range sent {
		assert.Equal(t, TemplateTeamAssignment, e.Template)
		data, ok := e.Data.(TeamAssignmentData)
		require.True(t, ok)
		u := byEmail[e.To]
		require.NotEmpty(t, data.Members)
		assert.Equal(t, u.FullName(), data.Members[0])
		assert.Equal(t, u.FirstName, data.RecipientName)
		assert.Equal(t, hack.Name, data.HackathonName)
		assert.Len(t, data.Members, sizeOf[data.TeamName])
	}
}

func TestFormTeamsIsAtomic(t *testing.T) {
	h := newHarness(t)
	hack, users := h.openWith(7)

	var created int
	err := h.store.DB().Callback().Create().After("gorm:create").Register("test:fail_second_team", func(tx *gorm.DB) {
		if tx.Statement.Table != "teams" {
			return
		}
		created++
		if created == 2 {
			_ = tx.AddError(errors.New("injected failure"))
		}
	})
	require.NoError(t, err)

	rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
	requireCode(t, err, apperrors.KindFatal, apperrors.CodeInternal)
	assert.False(t, rec.Success)
	assert.Equal(t, 2, created, "fatal errors are not retried")

	teams, members := h.counts(t, hack.ID)
	assert.Zero(t, teams)
	assert.Zero(t, members)

	got := h.reload(t, hack.ID)
	assert.Equal(t, models.StatusRegistrationOpen, got.Status)
	assert.True(t, got.IsActive)
	for _, cur := range h.currentHackathons(t, users) {
		assert.Nil(t, cur)
	}
	assert.Empty(t, h.notifier.Sent())
	assert.Empty(t, h.events.Events())
	assert.Equal(t, 1, stepsNamed(rec, "commit_teams", tracker.StepFailed))
}

func TestFormTeamsIncludesRegistrationBeforeCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hack, users := h.openWith(6)
	late := h.fx.Users(1)[0]

	// A registration that passed its checks before the deadline lands
	// between the participant load and the commit.
	var fired bool
	var lateErr error
	err := h.store.DB().Callback().Query().After("gorm:query").Register("test:late_registration", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "hackathon_participants" {
			return
		}
		fired = true
		lateErr = h.store.AddParticipant(ctx, hack.ID, late.ID, deadline.Add(-time.Second))
	})
	require.NoError(t, err)

	rec, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerManual)
	require.NoError(t, err)
	require.True(t, fired)
	require.NoError(t, lateErr)

	res := rec.Result.(*FormationResult)
	assert.Equal(t, len(users)+1, res.MembersAssigned)

	got := h.reload(t, hack.ID)
	_, members := h.counts(t, hack.ID)
	assert.EqualValues(t, got.TotalMembersJoined, members)
	for _, cur := range h.currentHackathons(t, append(users, late)) {
		require.NotNil(t, cur)
		assert.Equal(t, hack.ID, *cur)
	}

	// Once registration is closed nothing else can join.
	err = h.store.AddParticipant(ctx, hack.ID, h.fx.Users(1)[0].ID, deadline.Add(-time.Second))
	assert.ErrorIs(t, err, repository.ErrRegistrationClosed)
	got = h.reload(t, hack.ID)
	assert.Equal(t, len(users)+1, got.TotalMembersJoined)
}
func TestFormTeamsRejectionsLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name         string
		participants int
		now          time.Time
		opts         []func(*models.Hackathon)
		code         string
	}{
		{
			name: "no participants before deadline",
			now:  deadline.Add(-time.Hour),
			code: apperrors.CodeNoParticipants,
		},
		{
			name:         "insufficient before deadline",
			participants: 3,
			now:          deadline.Add(-time.Hour),
			opts:         []func(*models.Hackathon){func(h *models.Hackathon) { h.MinParticipantsToFormTeam = 5 }},
			code:         apperrors.CodeInsufficient,
		},
		{
			name:         "already started",
			participants: 3,
			now:          deadline.Add(25 * time.Hour),
			code:         apperrors.CodeStarted,
		},
		{
			name:         "started with too few participants",
			participants: 3,
			now:          deadline.Add(25 * time.Hour),
			opts:         []func(*models.Hackathon){func(h *models.Hackathon) { h.MinParticipantsToFormTeam = 5 }},
			code:         apperrors.CodeStarted,
		},
		{
			name:         "inactive",
			participants: 3,
			now:          deadline.Add(time.Hour),
			opts:         []func(*models.Hackathon){func(h *models.Hackathon) { h.IsActive = false }},
			code:         apperrors.CodeInactive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.clock.Set(tt.now)
			hack, _ := h.openWith(tt.participants, tt.opts...)
			before := h.reload(t, hack.ID)

			rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerScheduled)
			requireCode(t, err, apperrors.KindBusiness, tt.code)
			assert.False(t, rec.Success)
			assert.Zero(t, stepsNamed(rec, "compensate", tracker.StepStarted))

			got := h.reload(t, hack.ID)
			assert.Equal(t, before.Status, got.Status)
			assert.Equal(t, before.IsActive, got.IsActive)
			assert.Empty(t, got.Reason)
			teams, _ := h.counts(t, hack.ID)
			assert.Zero(t, teams)
			assert.Empty(t, h.events.Events())
			assert.Empty(t, h.notifier.Sent())
			assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Transitions.WithLabelValues(OpFormTeams, "rejected")))
		})
	}
}

func TestFormTeamsCompensatesAfterDeadline(t *testing.T) {
	tests := []struct {
		name         string
		participants int
		opts         []func(*models.Hackathon)
		code         string
	}{
		{
			name:         "insufficient participants",
			participants: 3,
			opts:         []func(*models.Hackathon){func(h *models.Hackathon) { h.MinParticipantsToFormTeam = 5 }},
			code:         apperrors.CodeInsufficient,
		},
		{
			name: "no participants",
			code: apperrors.CodeNoParticipants,
		},
		{
			name:         "no problem statements",
			participants: 2,
			opts:         []func(*models.Hackathon){func(h *models.Hackathon) { h.ProblemStatements = nil }},
			code:         apperrors.CodeNoProblems,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			hack, users := h.openWith(tt.participants, tt.opts...)

			rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerScheduled)
			require.NoError(t, err)
			require.True(t, rec.Success)

			res, ok := rec.Result.(*FormationResult)
			require.True(t, ok)
			assert.True(t, res.Compensated)
			assert.Equal(t, tt.code, res.OriginalErrorCode)
			require.NotNil(t, res.Cancellation)
			assert.True(t, res.Cancellation.Compensating)
			assert.Equal(t, tt.participants, res.Emails.Successful)

			got := h.reload(t, hack.ID)
			assert.Equal(t, models.StatusCancelled, got.Status)
			assert.False(t, got.IsActive)
			assert.True(t, strings.HasPrefix(got.Reason, "automatic cancellation: "), got.Reason)

			teams, members := h.counts(t, hack.ID)
			assert.Zero(t, teams)
			assert.Zero(t, members)
			for _, cur := range h.currentHackathons(t, users) {
				assert.Nil(t, cur)
			}

			events := h.events.Events()
			require.Len(t, events, 1)
			assert.Equal(t, eventbus.TopicHackathonCancelled, events[0].Topic)
			payload, ok := events[0].Payload.(eventbus.HackathonCancelled)
			require.True(t, ok)
			assert.True(t, payload.Compensating)
			assert.Equal(t, hack.ID, payload.HackathonID)

			for _, e := range h.notifier.Sent() {
				assert.Equal(t, TemplateHackathonCancelled, e.Template)
			}
			assert.Equal(t, 1, stepsNamed(rec, "validate_preconditions", tracker.StepFailed))
			assert.Equal(t, 1, stepsNamed(rec, "compensate", tracker.StepCompleted))
			assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Transitions.WithLabelValues(OpFormTeams, "compensated")))
		})
	}
}

func TestFormTeamsTwiceIsRejected(t *testing.T) {
	h := newHarness(t)
	hack, _ := h.openWith(4)
	ctx := context.Background()

	_, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerManual)
	require.NoError(t, err)
	teams, members := h.counts(t, hack.ID)

	rec, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerManual)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeInvalidStatus)
	assert.False(t, rec.Success)

	teamsAfter, membersAfter := h.counts(t, hack.ID)
	assert.Equal(t, teams, teamsAfter)
	assert.Equal(t, members, membersAfter)
	assert.Equal(t, models.StatusRegistrationClosed, h.reload(t, hack.ID).Status)
}

func TestFormTeamsConcurrentCallsFormOnce(t *testing.T) {
	h := newHarness(t)
	hack, _ := h.openWith(6)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		ce, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Contains(t, []string{apperrors.CodeInvalidStatus, apperrors.CodeStatusChanged}, ce.Code)
	}
	assert.Equal(t, 1, succeeded)

	teams, members := h.counts(t, hack.ID)
	assert.EqualValues(t, 2, teams)
	assert.EqualValues(t, 6, members)
}

func TestFormTeamsEmailFailuresDoNotFailOperation(t *testing.T) {
	h := newHarness(t)
	hack, users := h.openWith(5)
	h.notifier.FailFor(users[0].Email, users[3].Email)

	rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
	require.NoError(t, err)
	require.True(t, rec.Success)

	res := rec.Result.(*FormationResult)
	assert.Equal(t, 3, res.Emails.Successful)
	assert.Equal(t, 2, res.Emails.Failed)
	require.Len(t, res.Emails.Failures, 2)
	for _, f := range res.Emails.Failures {
		assert.Equal(t, 2, f.Attempts)
		assert.Equal(t, apperrors.KindEmail, f.Error.Kind)
		assert.Contains(t, []uuid.UUID{users[0].ID, users[3].ID}, f.UserID)
	}
	assert.Equal(t, 2, h.notifier.Attempts(users[0].Email))
	assert.Equal(t, 1, h.notifier.Attempts(users[1].Email))
	assert.Equal(t, 2, stepsNamed(rec, "send_email", tracker.StepWarning))

	assert.Equal(t, models.StatusRegistrationClosed, h.reload(t, hack.ID).Status)
	teams, members := h.counts(t, hack.ID)
	assert.EqualValues(t, 2, teams)
	assert.EqualValues(t, 5, members)

	assert.Equal(t, 3.0, promtest.ToFloat64(h.metrics.Emails.WithLabelValues(TemplateTeamAssignment, "sent")))
	assert.Equal(t, 2.0, promtest.ToFloat64(h.metrics.Emails.WithLabelValues(TemplateTeamAssignment, "failed")))
}

func TestFormTeamsWithoutNotifier(t *testing.T) {
	h := newHarness(t)
	h.svc.notifier = nil
	hack, _ := h.openWith(3)

	rec, err := h.svc.FormTeams(context.Background(), hack.ID, tracker.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, stepsNamed(rec, "notify_participants", tracker.StepSkipped))
}

func TestCancelAfterFormation(t *testing.T) {
	h := newHarness(t)
	hack, users := h.openWith(7)
	ctx := context.Background()

	_, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerManual)
	require.NoError(t, err)

	rec, err := h.svc.CancelHackathon(ctx, hack.ID, "  venue lost  ", tracker.TriggerManual)
	require.NoError(t, err)
	res := rec.Result.(*CancellationResult)
	assert.Equal(t, "venue lost", res.Reason)
	assert.False(t, res.Compensating)
	assert.EqualValues(t, 3, res.TeamsDeleted)
	assert.EqualValues(t, 7, res.MembersDeleted)
	assert.EqualValues(t, 7, res.UsersCleared)
	assert.Equal(t, 7, res.Emails.Successful)

	got := h.reload(t, hack.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.False(t, got.IsActive)
	assert.Equal(t, "venue lost", got.Reason)
	teams, members := h.counts(t, hack.ID)
	assert.Zero(t, teams)
	assert.Zero(t, members)
	for _, cur := range h.currentHackathons(t, users) {
		assert.Nil(t, cur)
	}

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TopicHackathonCancelled, events[0].Topic)

	rec, err = h.svc.CancelHackathon(ctx, hack.ID, "again", tracker.TriggerManual)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeInvalidStatus)
	assert.False(t, rec.Success)
	assert.Len(t, h.events.Events(), 1)
}

func TestCancelRequiresReason(t *testing.T) {
	h := newHarness(t)
	hack, _ := h.openWith(2)

	_, err := h.svc.CancelHackathon(context.Background(), hack.ID, "   ", tracker.TriggerManual)
	requireCode(t, err, apperrors.KindValidation, apperrors.CodeValidation)
	assert.Equal(t, models.StatusRegistrationOpen, h.reload(t, hack.ID).Status)
}

func TestCancelPublishFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	h.events.Err = errors.New("nats: no servers available")
	hack, _ := h.openWith(2)

	rec, err := h.svc.CancelHackathon(context.Background(), hack.ID, "sponsor withdrew", tracker.TriggerManual)
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, 1, stepsNamed(rec, "publish_event", tracker.StepWarning))
	assert.Equal(t, models.StatusCancelled, h.reload(t, hack.ID).Status)
}

func TestCancelUnknownHackathon(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CancelHackathon(context.Background(), uuid.New(), "gone", tracker.TriggerManual)
	ce := requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatus(ce))
}

func TestCompleteHackathon(t *testing.T) {
	h := newHarness(t)
	hack, users := h.openWith(5)
	ctx := context.Background()

	_, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerManual)
	require.NoError(t, err)

	_, err = h.svc.CompleteHackathon(ctx, hack.ID, tracker.TriggerManual)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNotEnded)

	h.clock.Set(hack.EndDate.Add(time.Hour))
	rec, err := h.svc.CompleteHackathon(ctx, hack.ID, tracker.TriggerManual)
	require.NoError(t, err)
	res := rec.Result.(*CompletionResult)
	assert.EqualValues(t, 2, res.TeamsCompleted)
	assert.EqualValues(t, 5, res.UsersCleared)
	assert.Equal(t, 5, res.Emails.Successful)

	got := h.reload(t, hack.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.False(t, got.IsActive)

	teams, err := h.store.TeamsByHackathon(ctx, hack.ID)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	for _, team := range teams {
		assert.Equal(t, models.TeamStatusCompleted, team.Status)
	}
	for _, cur := range h.currentHackathons(t, users) {
		assert.Nil(t, cur)
	}

	var completed int
	for _, e := range h.notifier.Sent() {
		if e.Template != TemplateHackathonCompleted {
			continue
		}
		completed++
		data := e.Data.(HackathonCompletedData)
		assert.NotEmpty(t, data.TeamName)
	}
	assert.Equal(t, 5, completed)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TopicHackathonCompleted, events[0].Topic)

	_, err = h.svc.CompleteHackathon(ctx, hack.ID, tracker.TriggerManual)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeInvalidStatus)
}

func TestSyncStatusesAdvancesForward(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	closed := func(x *models.Hackathon) { x.Status = models.StatusRegistrationClosed }
	started := h.fx.HackathonAt(now.Add(-48*time.Hour), closed)
	overdue := h.fx.HackathonAt(now.Add(-100*time.Hour), closed)
	open := h.fx.HackathonAt(now.Add(-48 * time.Hour))

	rec, err := h.svc.SyncStatuses(context.Background(), tracker.TriggerScheduled)
	require.NoError(t, err)
	res := rec.Result.(*SyncResult)
	assert.Equal(t, BucketCount{Matched: 2, Updated: 2}, res.Ongoing)
	assert.Equal(t, BucketCount{Matched: 1, Updated: 1}, res.Winner)
	assert.Equal(t, BucketCount{Matched: 1, Updated: 1}, res.Completed)

	assert.Equal(t, models.StatusOngoing, h.reload(t, started.ID).Status)
	assert.Equal(t, models.StatusCompleted, h.reload(t, overdue.ID).Status)
	assert.Equal(t, models.StatusRegistrationOpen, h.reload(t, open.ID).Status)

	var closing any
	for _, st := range rec.Steps {
		if st.Name == "advance_completed" && st.Status == tracker.StepCompleted {
			closing = st.Details["closed_without_completion"]
		}
	}
	assert.Equal(t, []uuid.UUID{overdue.ID}, closing)

	rec, err = h.svc.SyncStatuses(context.Background(), tracker.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{}, rec.Result)
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	hack, _ := h.openWith(3)
	ctx := context.Background()

	r, err := h.svc.GetStatus(ctx, hack.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistrationOpen, r.Status)
	assert.Equal(t, 3, r.Participants)
	assert.True(t, r.RegistrationDeadline)
	assert.False(t, r.Started)
	assert.True(t, r.CanFormTeams)
	assert.True(t, r.CanCancel)
	assert.False(t, r.CanComplete)

	h.clock.Set(hack.EndDate)
	r, err = h.svc.GetStatus(ctx, hack.ID)
	require.NoError(t, err)
	assert.True(t, r.Started)
	assert.True(t, r.Ended)
	assert.False(t, r.WinnerAnnouncement)
	assert.False(t, r.CanFormTeams)
	assert.True(t, r.CanComplete)

	_, err = h.svc.GetStatus(ctx, uuid.New())
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNotFound)
}

func TestRetryOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(deadline.Add(-time.Hour))
	hack := h.fx.HackathonAt(deadline)

	failed, err := h.svc.FormTeams(ctx, hack.ID, tracker.TriggerScheduled)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNoParticipants)

	h.fx.Register(hack, h.fx.Users(4))
	h.clock.Set(deadline.Add(time.Hour))

	rec, err := h.svc.RetryOperation(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.TriggerRetry, rec.Trigger)
	assert.Equal(t, OpFormTeams, rec.Operation)
	assert.Equal(t, models.StatusRegistrationClosed, h.reload(t, hack.ID).Status)

	_, err = h.svc.RetryOperation(ctx, rec.ID)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNotRetryable)

	_, err = h.svc.RetryOperation(ctx, uuid.New())
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeNotFound)

	unknown := &models.OperationLog{Operation: "rename_hackathon", HackathonID: &hack.ID, Trigger: "manual", StartedAt: h.clock.Now()}
	require.NoError(t, h.store.SaveOperationLog(ctx, unknown))
	_, err = h.svc.RetryOperation(ctx, unknown.ID)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeUnknownOperation)
}

func TestRetryCancellationKeepsReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hack, _ := h.openWith(2)

	require.NoError(t, h.store.DB().Model(hack).Update("is_active", false).Error)
	failed, err := h.svc.CancelHackathon(ctx, hack.ID, "storm warning", tracker.TriggerManual)
	requireCode(t, err, apperrors.KindBusiness, apperrors.CodeInactive)

	require.NoError(t, h.store.DB().Model(hack).Update("is_active", true).Error)
	rec, err := h.svc.RetryOperation(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "storm warning", rec.Result.(*CancellationResult).Reason)
	assert.Equal(t, "storm warning", h.reload(t, hack.ID).Reason)
}
