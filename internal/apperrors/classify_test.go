package apperrors

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sampleInput struct {
	Name        string `validate:"required"`
	MaxTeamSize int    `validate:"min=1"`
}

func TestClassify(t *testing.T) {
	_, uuidErr := uuid.Parse("not-a-uuid")
	_, numErr := strconv.Atoi("abc")
	var jsonTarget struct{ N int }
	jsonErr := json.Unmarshal([]byte(`{"N":"x"}`), &jsonTarget)
	_, timeErr := time.Parse(time.RFC3339, "yesterday")
	validationErr := validator.New().Struct(sampleInput{})

	tests := []struct {
		name          string
		err           error
		wantKind      Kind
		wantCode      string
		wantRetryable bool
	}{
		{"gorm duplicate", gorm.ErrDuplicatedKey, KindValidation, CodeDuplicateKey, false},
		{"postgres unique", &pgconn.PgError{Code: "23505", Message: "duplicate"}, KindValidation, CodeDuplicateKey, false},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), KindValidation, CodeDuplicateKey, false},
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, KindTransient, CodeWriteConflict, true},
		{"deadlock", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, KindTransient, CodeWriteConflict, true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), KindTransient, CodeWriteConflict, true},
		{"bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), KindTransient, CodeConnection, true},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, KindTransient, CodeConnection, true},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), KindTransient, CodeConnection, true},
		{"validator", validationErr, KindValidation, CodeValidation, false},
		{"gorm invalid data", gorm.ErrInvalidData, KindValidation, CodeValidation, false},
		{"uuid", uuidErr, KindValidation, CodeInvalidFormat, false},
		{"strconv", numErr, KindValidation, CodeInvalidFormat, false},
		{"json type", jsonErr, KindValidation, CodeInvalidFormat, false},
		{"time parse", timeErr, KindValidation, CodeInvalidFormat, false},
		{"record not found", gorm.ErrRecordNotFound, KindBusiness, CodeNotFound, false},
		{"no participants", errors.New("hackathon has no participants"), KindBusiness, CodeBusinessRule, false},
		{"already started", errors.New("hackathon already started"), KindBusiness, CodeBusinessRule, false},
		{"smtp", errors.New("smtp: 421 service not available"), KindEmail, CodeEmail, true},
		{"send", errors.New("failed to send message"), KindEmail, CodeEmail, true},
		{"context cancelled", context.Canceled, KindFatal, CodeCancelled, false},
		{"deadline", context.DeadlineExceeded, KindFatal, CodeCancelled, false},
		{"unknown", errors.New("something odd"), KindFatal, CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "step_x")
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantRetryable, got.Retryable)
			assert.Equal(t, "step_x", got.Step)
			assert.False(t, got.Timestamp.IsZero())

			again := Classify(tt.err, "step_x")
			assert.Equal(t, got.Kind, again.Kind, "classification must be deterministic")
			assert.Equal(t, got.Code, again.Code)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "anything"))
}

func TestClassifyValidationDetails(t *testing.T) {
	err := validator.New().Struct(sampleInput{})

	got := Classify(err, "")

	require.NotNil(t, got)
	assert.Equal(t, "is required", got.Details["Name"])
	assert.Equal(t, "must be at least 1", got.Details["MaxTeamSize"])
}

func TestClassifyKeepsExistingClassification(t *testing.T) {
	original := Business(CodeNoParticipants, "hackathon has no participants").WithStep("validate")
	wrapped := fmt.Errorf("form teams: %w", original)

	got := Classify(wrapped, "other_step")

	assert.Equal(t, KindBusiness, got.Kind)
	assert.Equal(t, CodeNoParticipants, got.Code)
	assert.Equal(t, "validate", got.Step)
	assert.ErrorIs(t, wrapped, Business(CodeNoParticipants, ""))
}

func TestClassifyAddsStepToUnlabelledClassification(t *testing.T) {
	original := Business(CodeStarted, "hackathon already started")

	got := Classify(original, "validate_preconditions")

	assert.Equal(t, "validate_preconditions", got.Step)
	assert.Empty(t, original.Step, "classification must not mutate its input")
}

func TestUnwrapReachesCause(t *testing.T) {
	got := Classify(fmt.Errorf("query: %w", driver.ErrBadConn), "")

	assert.ErrorIs(t, got, driver.ErrBadConn)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Business(CodeInsufficient, "x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(Business(CodeNotFound, "x")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Business(CodeUnauthorized, "x")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Business(CodeForbidden, "x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation(CodeValidation, "x", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Transient(CodeWriteConflict, "x", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Fatal("x", nil)))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(errors.New("smtp down"), KindEmail))
	assert.False(t, IsKind(nil, KindFatal))
}
