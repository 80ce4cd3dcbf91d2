package apperrors

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	duplicatePhrases = []string{"duplicate key", "unique constraint failed", "violates unique constraint", "duplicated key"}
	conflictPhrases  = []string{"write conflict", "database is locked", "database table is locked", "deadlock", "could not serialize", "serialization failure"}
	connPhrases      = []string{"connection refused", "connection reset", "broken pipe", "no such host", "i/o timeout", "server closed the connection", "failed to connect"}
	formatPhrases    = []string{"invalid uuid", "invalid syntax", "cannot unmarshal", "parsing time"}
	businessPhrases  = []string{
		"no participants",
		"not enough participants",
		"insufficient participants",
		"already started",
		"no problem statements",
		"not ended",
		"already completed",
		"already cancelled",
		"not active",
		"invalid status",
	}
	emailPhrases = []string{"email", "smtp", "send"}
)

// Classify maps any error into the taxonomy. It never performs I/O and
// returns nil only for a nil error. The step label is attached when the
// error does not already carry one.
func Classify(err error, step string) *Error {
	if err == nil {
		return nil
	}
	ce := classify(err)
	if ce.Step == "" && step != "" {
		ce = ce.WithStep(step)
	}
	return ce
}

func classify(err error) *Error {
	if ae, ok := As(err); ok {
		return ae
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	var pgErr *pgconn.PgError
	isPg := errors.As(err, &pgErr)

	// 1. uniqueness
	if errors.Is(err, gorm.ErrDuplicatedKey) || (isPg && pgErr.Code == "23505") || containsAny(lower, duplicatePhrases) {
		return newError(KindValidation, CodeDuplicateKey, msg, false, err)
	}

	// 2. write conflicts
	if (isPg && (pgErr.Code == "40001" || pgErr.Code == "40P01")) || containsAny(lower, conflictPhrases) {
		return newError(KindTransient, CodeWriteConflict, msg, true, err)
	}

	// context.DeadlineExceeded satisfies net.Error, so it is settled first.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindFatal, CodeCancelled, msg, false, err)
	}

	// 3. connectivity
	if isConnectivity(err) || containsAny(lower, connPhrases) {
		return newError(KindTransient, CodeConnection, msg, true, err)
	}

	// 4. schema validation
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fieldMessage(fe)
		}
		ce := newError(KindValidation, CodeValidation, "validation failed", false, err)
		ce.Details = details
		return ce
	}
	if errors.Is(err, gorm.ErrInvalidField) || errors.Is(err, gorm.ErrInvalidData) || errors.Is(err, gorm.ErrInvalidValue) {
		return newError(KindValidation, CodeValidation, msg, false, err)
	}

	// 5. coercion
	if isCoercion(err) || containsAny(lower, formatPhrases) {
		return newError(KindValidation, CodeInvalidFormat, msg, false, err)
	}

	// 6. business phrases
	if errors.Is(err, gorm.ErrRecordNotFound) || strings.Contains(lower, "not found") {
		return newError(KindBusiness, CodeNotFound, msg, false, err)
	}
	if containsAny(lower, businessPhrases) {
		return newError(KindBusiness, CodeBusinessRule, msg, false, err)
	}

	// 7. delivery
	if containsAny(lower, emailPhrases) {
		return newError(KindEmail, CodeEmail, msg, true, err)
	}

	return newError(KindFatal, CodeInternal, msg, false, err)
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isCoercion(err error) bool {
	var numErr *strconv.NumError
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var timeErr *time.ParseError
	return errors.As(err, &numErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &timeErr)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gtfield":
		return "must be after " + fe.Param()
	case "email":
		return "must be a valid email"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
