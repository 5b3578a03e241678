package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatline/internal/apperr"
	"chatline/internal/middleware"
	"chatline/internal/models"
	"chatline/internal/services"
	"chatline/internal/telemetry"
)

// MessageComposer appends new messages.
type MessageComposer interface {
	Compose(ctx context.Context, req services.SendRequest) (models.MessageView, error)
}

// MessagePager serves catch-up pages.
type MessagePager interface {
	LoadPage(ctx context.Context, chatID, viewerID int, lastKnown *int) (models.Page, error)
}

// MessageHandler serves the message endpoints of a chat.
type MessageHandler struct {
	composer MessageComposer
	pager    MessagePager
	chats    ChatService
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(composer MessageComposer, pager MessagePager, chats ChatService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{composer: composer, pager: pager, chats: chats, audit: audit}
}

type imageRequest struct {
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
}

type sendMessageRequest struct {
	Content string        `json:"content"`
	TempID  string        `json:"tempId"`
	Image   *imageRequest `json:"image"`
}

// ListMessages handles GET /chats/:chat_id/messages?last_message_id=N.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var lastKnown *int
	if raw := c.Query("last_message_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			apperr.Respond(c, apperr.Invalid("last_message_id", "invalid last_message_id"))
			return
		}
		lastKnown = &id
	}

	page, err := h.pager.LoadPage(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey), lastKnown)
	if err != nil {
		fail(c, h.audit, chatID, "list messages", err)
		return
	}
	if page.Empty() {
		c.JSON(http.StatusOK, gin.H{"messages": []models.MessageView{}, "last_message_id": nil, "status": "no more messages"})
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage handles POST /chats/:chat_id/messages.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("body", "malformed request body"))
		return
	}

	payload := services.ContentPayload{Content: req.Content}
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			apperr.Respond(c, apperr.Invalid("image", "image data must be base64"))
			return
		}
		payload.Image = &services.ImageUpload{ContentType: req.Image.ContentType, Data: data}
	}

	view, err := h.composer.Compose(c.Request.Context(), services.SendRequest{
		ChatID:       chatID,
		AuthorID:     c.GetInt(middleware.UserIDKey),
		Payload:      payload,
		ClientTempID: req.TempID,
	})
	if err != nil {
		fail(c, h.audit, chatID, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// EditMessage handles PATCH /chats/:chat_id/messages/:message_id.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("body", "malformed request body"))
		return
	}

	view, err := h.chats.EditMessage(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, messageID, req.Content)
	if err != nil {
		fail(c, h.audit, chatID, "edit message", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteMessage handles DELETE /chats/:chat_id/messages/:message_id.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.chats.DeleteMessage(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, messageID); err != nil {
		fail(c, h.audit, chatID, "delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkReceipt handles POST /chats/:chat_id/receipts.
func (h *MessageHandler) MarkReceipt(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Kind   models.ReceiptKind `json:"kind"`
		UpToID int               `json:"up_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("body", "malformed request body"))
		return
	}

	receipt, err := h.chats.MarkReceipt(c.Request.Context(), c.GetInt(middleware.UserIDKey), chatID, req.UpToID, req.Kind)
	if err != nil {
		fail(c, h.audit, chatID, "mark receipt", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
