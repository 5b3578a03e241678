// Package apperr defines the error taxonomy shared by the services and the
// single place where it is translated into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrTransient = errors.New("internal error")
)

// ValidationError reports a rejected field of an inbound request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Transient wraps a store or dependency failure. The cause is kept for logs
// and errors.Is, but only ErrTransient is ever shown to a caller.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &transientError{op: op, err: err}
}

type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string { return e.op + ": " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Status returns the HTTP status code an error maps to.
func Status(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes the caller-safe envelope for err.
func Respond(c *gin.Context, err error) {
	var verr *ValidationError
	status := Status(err)
	switch {
	case errors.As(err, &verr):
		c.JSON(status, gin.H{"error": verr.Message, "field": verr.Field, "code": "validation"})
	case status == http.StatusForbidden:
		c.JSON(status, gin.H{"error": "forbidden", "code": "forbidden"})
	case status == http.StatusNotFound:
		c.JSON(status, gin.H{"error": "not found", "code": "not_found"})
	case status == http.StatusConflict:
		c.JSON(status, gin.H{"error": "request already in progress", "code": "conflict"})
	default:
		log.Error().Err(err).
			Str("route", c.FullPath()).
			Str("request_id", c.GetString("request_id")).
			Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error", "code": "transient"})
	}
}
