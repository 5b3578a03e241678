package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatline/internal/apperr"
	"chatline/internal/middleware"
	"chatline/internal/models"
	"chatline/internal/services"
	"chatline/internal/telemetry"
)

// ChatService is the chat aggregate as used by the HTTP layer.
type ChatService interface {
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
	CreateDirectChat(ctx context.Context, userID, friendID int) (models.ChatSummary, bool, error)
	GetChat(ctx context.Context, viewerID, chatID int) (models.ChatSummary, error)
	AvailableMembers(ctx context.Context, actorID, chatID int) ([]models.User, error)
	CreateGroupChat(ctx context.Context, actorID, fromChatID int, name string) (models.ChatSummary, error)
	AddMembers(ctx context.Context, actorID, chatID int, userIDs []int) (models.ChatSummary, error)
	LeaveChat(ctx context.Context, actorID, chatID int) error
	UpdateMemberOverride(ctx context.Context, actorID, chatID, targetUserID int, o services.Override) (*models.MessageView, error)
	EditMessage(ctx context.Context, actorID, chatID, messageID int, content string) (models.MessageView, error)
	DeleteMessage(ctx context.Context, actorID, chatID, messageID int) error
	MarkReceipt(ctx context.Context, actorID, chatID, upToID int, kind models.ReceiptKind) (models.Receipt, error)
}

// ChatHandler manages chat and membership endpoints.
type ChatHandler struct {
	chats ChatService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chats: chats, audit: audit}
}

// ListChats handles GET /chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	chats, err := h.chats.ListChats(c.Request.Context(), userID)
	if err != nil {
		fail(c, h.audit, 0, "list chats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartDirectChat handles POST /chats/direct.
func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		apperr.Respond(c, apperr.Invalid("user_id", "user_id is required"))
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, created, err := h.chats.CreateDirectChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		fail(c, h.audit, 0, "start direct chat", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat})
}

// GetChat handles GET /chats/:chat_id.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID)
	if err != nil {
		fail(c, h.audit, chatID, "get chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// AvailableMembers handles GET /chats/:chat_id/available-members.
func (h *ChatHandler) AvailableMembers(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	users, err := h.chats.AvailableMembers(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID)
	if err != nil {
		fail(c, h.audit, chatID, "available members", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// CreateGroupChat handles POST /chats/:chat_id/group.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("body", "malformed request body"))
			return
		}
	}

	chat, err := h.chats.CreateGroupChat(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, req.Name)
	if err != nil {
		fail(c, h.audit, chatID, "create group chat", err)
		return
	}
	emitAudit(c, h.audit, telemetry.LevelInfo, "group chat created", chat.ID)
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// AddMembers handles POST /chats/:chat_id/members.
func (h *ChatHandler) AddMembers(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		UserIDs []int `json:"user_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("user_ids", "user_ids must be a list of user ids"))
		return
	}

	chat, err := h.chats.AddMembers(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, req.UserIDs)
	if err != nil {
		fail(c, h.audit, chatID, "add members", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// LeaveChat handles DELETE /chats/:chat_id/members/me.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	if err := h.chats.LeaveChat(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID); err != nil {
		fail(c, h.audit, chatID, "leave chat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateMember handles PUT /chats/:chat_id/members/:user_id. The body sets
// exactly one of nickname or bubble_color.
func (h *ChatHandler) UpdateMember(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req struct {
		Nickname    *string `json:"nickname"`
		BubbleColor *string `json:"bubble_color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("body", "malformed request body"))
		return
	}

	view, err := h.chats.UpdateMemberOverride(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, targetID, services.Override{
		Nickname:    req.Nickname,
		BubbleColor: req.BubbleColor,
	})
	if err != nil {
		fail(c, h.audit, chatID, "update member", err)
		return
	}
	if view == nil {
		c.JSON(http.StatusOK, gin.H{"status": "unchanged"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "message": view})
}
