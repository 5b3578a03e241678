package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatline/internal/apperr"
	"chatline/internal/middleware"
	"chatline/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int {
	if val, ok := c.Get(middleware.UserIDKey); ok {
		if userID, ok := val.(int); ok && userID != 0 {
			return &userID
		}
	}
	return nil
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		apperr.Respond(c, apperr.Invalid(name, "invalid "+name))
		return 0, false
	}
	return id, true
}

// fail audits forbidden and failed operations, then writes the error envelope.
func fail(c *gin.Context, audit *telemetry.AuditEmitter, chatID int, action string, err error) {
	switch apperr.Status(err) {
	case http.StatusForbidden:
		emitAudit(c, audit, telemetry.LevelWarn, action+": forbidden", chatID)
	case http.StatusInternalServerError:
		emitAudit(c, audit, telemetry.LevelError, action+": internal error", chatID)
	}
	apperr.Respond(c, err)
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string, chatID int) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c), chatID)
}
