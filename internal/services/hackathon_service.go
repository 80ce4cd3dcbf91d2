package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/repository"
)

// HackathonService covers the CRUD around the lifecycle: creating
// hackathons and users and registering participants.
type HackathonService struct {
	store  *repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewHackathonService(store *repository.Store, logger *slog.Logger, now func() time.Time) *HackathonService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &HackathonService{store: store, logger: logger.With("component", "hackathons"), now: now}
}

type CreateHackathonInput struct {
	Name                      string    `json:"name"`
	Description               string    `json:"description"`
	RegistrationDeadline      time.Time `json:"registration_deadline"`
	StartDate                 time.Time `json:"start_date"`
	EndDate                   time.Time `json:"end_date"`
	WinnerAnnouncementDate    time.Time `json:"winner_announcement_date"`
	ProblemStatements         []string  `json:"problem_statements"`
	MaxTeamSize               int       `json:"max_team_size"`
	MinParticipantsToFormTeam int       `json:"min_participants_to_form_team"`
}

// Create validates and stores a new hackathon in registration_open.
func (s *HackathonService) Create(ctx context.Context, in CreateHackathonInput) (*models.Hackathon, error) {
	problems := make([]string, 0, len(in.ProblemStatements))
	for _, p := range in.ProblemStatements {
		if p = strings.TrimSpace(p); p != "" {
			problems = append(problems, p)
		}
	}
	h := &models.Hackathon{
		Name:                      strings.TrimSpace(in.Name),
		Description:               in.Description,
		Status:                    models.StatusRegistrationOpen,
		IsActive:                  true,
		RegistrationDeadline:      in.RegistrationDeadline.UTC(),
		StartDate:                 in.StartDate.UTC(),
		EndDate:                   in.EndDate.UTC(),
		WinnerAnnouncementDate:    in.WinnerAnnouncementDate.UTC(),
		ProblemStatements:         problems,
		MaxTeamSize:               in.MaxTeamSize,
		MinParticipantsToFormTeam: in.MinParticipantsToFormTeam,
	}
	if err := s.store.CreateHackathon(ctx, h); err != nil {
		return nil, apperrors.Classify(err, "create_hackathon")
	}
	s.logger.Info("hackathon_created", "hackathon_id", h.ID, "name", h.Name)
	return h, nil
}

type CreateUserInput struct {
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      models.UserRole `json:"role"`
}

func (s *HackathonService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	role := in.Role
	if role == "" {
		role = models.RoleParticipant
	}
	u := &models.User{
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      role,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, apperrors.Classify(err, "create_user")
	}
	return u, nil
}

// RegisterParticipant adds a user to an open hackathon before its deadline.
// A user already placed in another hackathon's team cannot join.
func (s *HackathonService) RegisterParticipant(ctx context.Context, hackathonID, userID uuid.UUID) (*models.Hackathon, error) {
	h, err := s.store.GetHackathon(ctx, hackathonID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_hackathon")
	}
	switch {
	case !h.IsActive:
		return nil, apperrors.Business(apperrors.CodeInactive, "hackathon is not active").WithStep("register")
	case h.Status != models.StatusRegistrationOpen:
		return nil, apperrors.Business(apperrors.CodeRegistration, "registration is closed").WithStep("register")
	case !s.now().Before(h.RegistrationDeadline):
		return nil, apperrors.Business(apperrors.CodeRegistration, "registration deadline has passed").WithStep("register")
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_user")
	}
	if u.CurrentHackathonID != nil && *u.CurrentHackathonID != hackathonID {
		busy, err := s.placedElsewhere(ctx, *u.CurrentHackathonID)
		if err != nil {
			return nil, apperrors.Classify(err, "load_current_hackathon")
		}
		if busy {
			return nil, apperrors.Business(apperrors.CodeUserBusy, "user is already placed in another hackathon").WithStep("register")
		}
	}

	if err := s.store.AddParticipant(ctx, hackathonID, userID, s.now()); err != nil {
		if errors.Is(err, repository.ErrRegistrationClosed) {
			return nil, apperrors.Business(apperrors.CodeRegistration, "registration closed before the registration was stored").WithStep("register")
		}
		return nil, apperrors.Classify(err, "register")
	}
	s.logger.Info("participant_registered", "hackathon_id", hackathonID, "user_id", userID)

	h, err = s.store.GetHackathon(ctx, hackathonID)
	if err != nil {
		return nil, apperrors.Classify(err, "load_hackathon")
	}
	return h, nil
}

// placedElsewhere reports whether the hackathon a user points at still
// holds them. A pointer left on a completed or cancelled hackathon, which the
// status sync can produce, does not.
func (s *HackathonService) placedElsewhere(ctx context.Context, id uuid.UUID) (bool, error) {
	other, err := s.store.GetHackathon(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if other.Status.IsTerminal() {
		s.logger.Warn("stale_current_hackathon", "hackathon_id", id, "status", other.Status)
		return false, nil
	}
	return true, nil
}

func (s *HackathonService) Get(ctx context.Context, id uuid.UUID) (*models.Hackathon, error) {
	h, err := s.store.GetHackathon(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(err, "load_hackathon")
	}
	return h, nil
}

func (s *HackathonService) Teams(ctx context.Context, id uuid.UUID) ([]models.Team, error) {
	teams, err := s.store.TeamsByHackathon(ctx, id)
	if err != nil {
		return nil, apperrors.Classify(err, "load_teams")
	}
	return teams, nil
}
