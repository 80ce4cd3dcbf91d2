package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/services"
)

// OperationHandler exposes the persisted audit trail and the retry entry
// point.
type OperationHandler struct {
	store     *repository.Store
	lifecycle *services.LifecycleService
}

func NewOperationHandler(store *repository.Store, lifecycle *services.LifecycleService) *OperationHandler {
	return &OperationHandler{store: store, lifecycle: lifecycle}
}

// ListOperations returns operation logs, newest first
func (h *OperationHandler) ListOperations(c *gin.Context) {
	var filter repository.OperationFilter

	if raw := c.Query("hackathon_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperrors.Validation(apperrors.CodeInvalidFormat, "invalid hackathon_id",
				map[string]string{"hackathon_id": "must be a UUID"}), nil)
			return
		}
		filter.HackathonID = &id
	}
	filter.Operation = c.Query("operation")
	if raw := c.Query("success"); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		filter.Success = &ok
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		filter.Limit = n
	}

	logs, err := h.store.ListOperationLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"operations": logs})
}

// GetOperation returns one operation log
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	log, err := h.store.GetOperationLog(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.Classify(err, "load_operation"), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": log})
}

// RetryOperation re-runs a failed operation
func (h *OperationHandler) RetryOperation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.lifecycle.RetryOperation(c.Request.Context(), id)
	respondOperation(c, rec, err)
}
