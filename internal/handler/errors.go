package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"paie/internal/attendance"
	"paie/internal/auth"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: typed errors unwrap to more than one sentinel.
var errorMappings = []errorMapping{
	{attendance.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{attendance.ErrNotFound, http.StatusNotFound, "not_found"},
	{attendance.ErrSessionConflict, http.StatusConflict, "session_conflict"},
	{attendance.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{attendance.ErrNoActiveSession, http.StatusBadRequest, "no_active_session"},
	{attendance.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{attendance.ErrNotRequested, http.StatusBadRequest, "not_requested"},
	{attendance.ErrExpired, http.StatusBadRequest, "expired"},
	{attendance.ErrAttemptsExceeded, http.StatusTooManyRequests, "attempts_exceeded"},
	{attendance.ErrMismatch, http.StatusBadRequest, "mismatch"},
	{attendance.ErrDuplicateAttendance, http.StatusConflict, "duplicate_attendance"},
	{attendance.ErrDuplicateMember, http.StatusConflict, "duplicate_member"},
	{attendance.ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrTokenRevoked, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrStaffNotFound, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrStaffExists, http.StatusConflict, "staff_exists"},
	{auth.ErrInvalidRole, http.StatusBadRequest, "invalid_input"},
}

// respondError writes the JSON error body for err. Unknown and storage
// errors are logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := gin.H{"error": m.code, "message": messageFor(m, err)}
		if left, ok := attendance.RemainingAttempts(err); ok {
			body["remaining_attempts"] = left
		}
		c.JSON(m.status, body)
		return
	}
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal server error"})
}

func messageFor(m errorMapping, err error) string {
	switch {
	case errors.Is(err, attendance.ErrDeliveryFailed):
		// The cause may carry transport details.
		return m.target.Error()
	case errors.Is(err, auth.ErrStaffNotFound):
		return auth.ErrTokenRevoked.Error()
	}
	return err.Error()
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": msg})
}
