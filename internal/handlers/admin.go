package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/services"
	"github.com/hackcrew/hackathon-platform/internal/tracker"
)

type AdminHandler struct {
	hackathons *services.HackathonService
	lifecycle  *services.LifecycleService
}

func NewAdminHandler(hackathons *services.HackathonService, lifecycle *services.LifecycleService) *AdminHandler {
	return &AdminHandler{
		hackathons: hackathons,
		lifecycle:  lifecycle,
	}
}

// CreateHackathonRequest represents hackathon creation input
type CreateHackathonRequest struct {
	Name                      string    `json:"name" binding:"required"`
	Description               string    `json:"description"`
	RegistrationDeadline      time.Time `json:"registration_deadline" binding:"required"`
	StartDate                 time.Time `json:"start_date" binding:"required"`
	EndDate                   time.Time `json:"end_date" binding:"required"`
	WinnerAnnouncementDate    time.Time `json:"winner_announcement_date" binding:"required"`
	ProblemStatements         []string  `json:"problem_statements"`
	MaxTeamSize               int       `json:"max_team_size" binding:"required"`
	MinParticipantsToFormTeam int       `json:"min_participants_to_form_team"`
}

// CreateHackathon creates a hackathon open for registration
func (h *AdminHandler) CreateHackathon(c *gin.Context) {
	var req CreateHackathonRequest
	if !bindJSON(c, &req) {
		return
	}

	hackathon, err := h.hackathons.Create(c.Request.Context(), services.CreateHackathonInput(req))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"hackathon": hackathon})
}

// GetHackathon returns one hackathon with its teams
func (h *AdminHandler) GetHackathon(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	hackathon, err := h.hackathons.Get(ctx, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	teams, err := h.hackathons.Teams(ctx, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hackathon": hackathon, "teams": teams})
}

// CreateUserRequest represents user creation input
type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" binding:"omitempty,oneof=participant organizer admin"`
}

// CreateUser creates a participant, organizer or admin account
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.hackathons.CreateUser(c.Request.Context(), services.CreateUserInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      models.UserRole(req.Role),
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToResponse()})
}

// RegisterParticipantRequest represents participant registration input
type RegisterParticipantRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// RegisterParticipant adds a user to an open hackathon
func (h *AdminHandler) RegisterParticipant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RegisterParticipantRequest
	if !bindJSON(c, &req) {
		return
	}

	hackathon, err := h.hackathons.RegisterParticipant(c.Request.Context(), id, req.UserID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Participant registered",
		"hackathon": hackathon,
	})
}

// FormTeams runs team formation now
func (h *AdminHandler) FormTeams(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.lifecycle.FormTeams(c.Request.Context(), id, tracker.TriggerManual)
	respondOperation(c, rec, err)
}

// CompleteHackathon completes a hackathon whose end date has passed
func (h *AdminHandler) CompleteHackathon(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.lifecycle.CompleteHackathon(c.Request.Context(), id, tracker.TriggerManual)
	respondOperation(c, rec, err)
}

// CancelHackathonRequest represents cancellation input
type CancelHackathonRequest struct {
	Reason string `json:"reason"`
}

// CancelHackathon cancels a hackathon and dissolves its teams
func (h *AdminHandler) CancelHackathon(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CancelHackathonRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.lifecycle.CancelHackathon(c.Request.Context(), id, req.Reason, tracker.TriggerManual)
	respondOperation(c, rec, err)
}

// GetStatus reports which transitions are currently possible
func (h *AdminHandler) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.lifecycle.GetStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": report})
}

// SyncStatuses runs the status sync pass now
func (h *AdminHandler) SyncStatuses(c *gin.Context) {
	rec, err := h.lifecycle.SyncStatuses(c.Request.Context(), tracker.TriggerManual)
	respondOperation(c, rec, err)
}

func respondOperation(c *gin.Context, rec *tracker.Record, err error) {
	if err != nil {
		respondError(c, err, rec)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"result":    rec.Result,
		"operation": rec,
	})
}

// respondError writes a classified error. The operation record is included
// when there is one so the failed step is visible to the caller.
func respondError(c *gin.Context, err error, rec *tracker.Record) {
	ce := apperrors.Classify(err, "")
	body := gin.H{
		"error": ce.Message,
		"code":  ce.Code,
		"kind":  ce.Kind,
	}
	if ce.Step != "" {
		body["step"] = ce.Step
	}
	if len(ce.Details) > 0 {
		body["details"] = ce.Details
	}
	if rec != nil {
		body["operation"] = rec
	}
	c.JSON(apperrors.HTTPStatus(ce), body)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperrors.Validation(apperrors.CodeInvalidFormat, "invalid "+name, map[string]string{name: "must be a UUID"}), nil)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = apperrors.Validation(apperrors.CodeValidation, "request body is required", nil)
		}
		respondError(c, err, nil)
		return false
	}
	return true
}
