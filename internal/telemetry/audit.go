// Package telemetry emits audit events for rejected and failed operations.
package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"chatline/internal/broker"
)

// Audit levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

type AuditEmitter struct {
	publisher   broker.Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int         `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	ChatID int    `json:"chat_id,omitempty"`
}

func NewAuditEmitter(publisher broker.Publisher, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  broker.RoutingAudit,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. Publish failures are logged only.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *int, chatID int) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Info().
		Str("level", level).
		Str("request_id", requestID).
		Int("chat_id", chatID).
		Str("text", text).
		Msg("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   text,
			ChatID: chatID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope, broker.BuildHeaders(requestID, "")); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("audit publish failed")
	}
}
