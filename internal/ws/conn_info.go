package ws

import (
	"time"

	"github.com/rs/zerolog"
)

// ConnInfo identifies one live socket for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// MarshalZerologObject lets a connection be logged with Object("conn", info).
func (i ConnInfo) MarshalZerologObject(e *zerolog.Event) {
	e.Str("conn_id", i.ConnID).
		Int("user_id", i.UserID).
		Str("ip", i.IP)
	if i.RequestID != "" {
		e.Str("request_id", i.RequestID)
	}
	if !i.ConnectedAt.IsZero() {
		e.Dur("age", time.Since(i.ConnectedAt))
	}
}
