package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"chatline/internal/apperr"
	"chatline/internal/auth"
	"chatline/internal/models"
	"chatline/internal/observability"
)

// MembershipChecker authorizes a user for a chat.
type MembershipChecker interface {
	RequireMember(ctx context.Context, chatID, userID int) (models.Member, error)
}

// ChatWebSocketHandler handles chat websocket connections.
type ChatWebSocketHandler struct {
	hub     *Hub
	members MembershipChecker
	tokens  auth.TokenValidator
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, members MembershipChecker, tokens auth.TokenValidator) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, members: members, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle authenticates, authorizes and upgrades the connection, then
// registers it with the hub until the peer goes away.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil || chatID <= 0 {
		apperr.Respond(c, apperr.Invalid("chat_id", "invalid chat id"))
		return
	}

	ctx, span := otel.Tracer("chatline/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.tokens.ValidateToken(ctx, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.members.RequireMember(ctx, chatID, userID); err != nil {
		apperr.Respond(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Int("chat_id", chatID).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(chatID, conn, ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	})
	h.hub.Register(client)
	observability.IncWSActive()

	// the handshake context ends with this handler
	bg := context.WithoutCancel(ctx)
	h.hub.publishLifecycle(bg, client, "ws_connect", "")
	log.Info().Int("chat_id", chatID).Object("conn", client.info).Msg("websocket connected")

	go client.writeLoop()
	go func() {
		err := client.readLoop()
		h.hub.Unregister(client)
		observability.DecWSActive()

		reason := ""
		if err != nil {
			reason = err.Error()
		}
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
			h.hub.publishLifecycle(bg, client, "ws_error", reason)
		}
		h.hub.publishLifecycle(bg, client, "ws_disconnect", reason)
	}()
}

// bearerToken reads the token from the Authorization header or, for browsers
// that cannot set headers on a websocket, the token query parameter.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}
