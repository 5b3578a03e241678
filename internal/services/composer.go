package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatline/internal/apperr"
	"chatline/internal/idempotency"
	"chatline/internal/media"
	"chatline/internal/models"
	"chatline/internal/observability"
	"chatline/internal/repositories"
)

// MaxContentLength is the longest accepted message content, in characters.
const MaxContentLength = 1000

// Payload is the body of a send: either ContentPayload or StatusPayload.
type Payload interface {
	kind() models.MessageKind
}

// ImageUpload is a decoded image attachment.
type ImageUpload struct {
	ContentType string
	Data        []byte
}

// ContentPayload is a user-authored message.
type ContentPayload struct {
	Content string
	Image   *ImageUpload
}

func (ContentPayload) kind() models.MessageKind { return models.KindContent }

// StatusPayload is a synthesized state-change message.
type StatusPayload struct {
	StatusType models.StatusType
	Content    string
}

func (StatusPayload) kind() models.MessageKind { return models.KindStatus }

// SendRequest asks the composer to append one message.
type SendRequest struct {
	ChatID       int
	AuthorID     int
	Payload      Payload
	ClientTempID string
}

// Composer validates, persists and broadcasts new messages.
type Composer struct {
	messages repositories.MessageRepository
	chats    repositories.ChatRepository
	media    media.Storage
	idem     idempotency.Store
	notifier Notifier
	views    viewBuilder
	tracer   trace.Tracer
}

// NewComposer wires a Composer. idem may be nil, in which case client temp ids
// are echoed but not used for deduplication.
func NewComposer(messages repositories.MessageRepository, chats repositories.ChatRepository, store media.Storage, idem idempotency.Store, notifier Notifier) *Composer {
	return &Composer{
		messages: messages,
		chats:    chats,
		media:    store,
		idem:     idem,
		notifier: notifier,
		views:    viewBuilder{media: store},
		tracer:   otel.Tracer("chatline/services"),
	}
}

// Compose appends a message and broadcasts it to the chat's active members.
func (c *Composer) Compose(ctx context.Context, req SendRequest) (view models.MessageView, err error) {
	ctx, span := c.tracer.Start(ctx, "composer.compose", trace.WithAttributes(
		attribute.Int("chat.id", req.ChatID),
		attribute.Int("author.id", req.AuthorID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.IncComposeRejected(rejectReason(err))
		}
		span.End()
	}()

	msg, image, err := c.validate(req)
	if err != nil {
		return models.MessageView{}, err
	}

	key := ""
	if c.idem != nil && req.ClientTempID != "" {
		key = idempotency.Key(req.ChatID, req.AuthorID, req.ClientTempID)
		replay, done, err := c.claim(ctx, key, req)
		if err != nil || done {
			return replay, err
		}
	}
	release := func() {
		if key == "" {
			return
		}
		if err := c.idem.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("release idempotency key failed")
		}
	}

	if image != nil {
		objectKey, err := c.media.Put(ctx, req.ChatID, image.ContentType, image.Data)
		if errors.Is(err, media.ErrDisabled) {
			release()
			return models.MessageView{}, apperr.Invalid("image", "image attachments are not enabled")
		}
		if err != nil {
			release()
			return models.MessageView{}, apperr.Transient("upload attachment", err)
		}
		msg.AttachmentKey = &objectKey
	}

	stored, err := c.messages.Append(ctx, msg)
	if err != nil {
		release()
		return models.MessageView{}, storeErr("append message", err)
	}
	span.SetAttributes(attribute.Int("message.id", stored.ID))

	if key != "" {
		if err := c.idem.Complete(ctx, key, stored.ID); err != nil {
			// a pending key would answer every retry with a conflict until it expires
			log.Warn().Err(err).Str("key", key).Int("message_id", stored.ID).Msg("complete idempotency key failed")
			release()
		}
	}

	return c.Publish(ctx, stored, req.ClientTempID), nil
}

// PrepareStatus validates a status payload into the message a repository
// transaction can append alongside the state change it describes.
func (c *Composer) PrepareStatus(chatID, authorID int, p StatusPayload) (models.NewMessage, error) {
	msg, _, err := c.validate(SendRequest{ChatID: chatID, AuthorID: authorID, Payload: p})
	if err != nil {
		observability.IncComposeRejected(rejectReason(err))
	}
	return msg, err
}

// Publish loads a committed message with its author and broadcasts it to the
// chat's active members.
func (c *Composer) Publish(ctx context.Context, stored models.Message, tempID string) models.MessageView {
	view := c.load(ctx, stored)
	observability.IncMessageComposed(string(stored.Kind))
	log.Debug().Int("chat_id", stored.ChatID).Int("message_id", stored.ID).Str("kind", string(stored.Kind)).Msg("message composed")

	// the author's other connections reconcile their placeholder by temp id
	view.TempID = tempID
	c.broadcast(ctx, view)
	return view
}

func (c *Composer) validate(req SendRequest) (models.NewMessage, *ImageUpload, error) {
	msg := models.NewMessage{ChatID: req.ChatID, UserID: &req.AuthorID}

	switch p := req.Payload.(type) {
	case ContentPayload:
		content := strings.TrimSpace(p.Content)
		if content == "" && p.Image == nil {
			return msg, nil, apperr.Invalid("content", "content is required")
		}
		if utf8.RuneCountInString(content) > MaxContentLength {
			return msg, nil, apperr.Invalid("content", fmt.Sprintf("content may not be greater than %d characters", MaxContentLength))
		}
		if p.Image != nil {
			if !media.AllowedType(p.Image.ContentType) {
				return msg, nil, apperr.Invalid("image", "image must be png, jpeg, gif or webp")
			}
			if len(p.Image.Data) == 0 {
				return msg, nil, apperr.Invalid("image", "image is empty")
			}
			if len(p.Image.Data) > media.MaxImageBytes {
				return msg, nil, apperr.Invalid("image", "image may not be greater than 5 MiB")
			}
		}
		msg.Kind = models.KindContent
		msg.Content = content
		return msg, p.Image, nil

	case StatusPayload:
		if !p.StatusType.Valid() {
			return msg, nil, apperr.Invalid("status_type", "unknown status type")
		}
		content := strings.TrimSpace(p.Content)
		if content == "" {
			return msg, nil, apperr.Invalid("content", "content is required")
		}
		if utf8.RuneCountInString(content) > MaxContentLength {
			return msg, nil, apperr.Invalid("content", fmt.Sprintf("content may not be greater than %d characters", MaxContentLength))
		}
		statusType := p.StatusType
		msg.Kind = models.KindStatus
		msg.StatusType = &statusType
		msg.Content = content
		return msg, nil, nil
	}
	return msg, nil, apperr.Invalid("payload", "unsupported message payload")
}

// claim resolves the idempotency key. done is true when the request was
// answered without appending.
func (c *Composer) claim(ctx context.Context, key string, req SendRequest) (models.MessageView, bool, error) {
	state, messageID, err := c.idem.Claim(ctx, key)
	if err != nil {
		// the key store is an optimization; sends keep working without it
		log.Warn().Err(err).Str("key", key).Msg("idempotency claim failed")
		return models.MessageView{}, false, nil
	}

	switch state {
	case idempotency.InFlight:
		return models.MessageView{}, true, fmt.Errorf("send %s is %w", req.ClientTempID, apperr.ErrConflict)
	case idempotency.Completed:
		am, err := c.messages.FindByID(ctx, messageID)
		if err != nil {
			return models.MessageView{}, true, storeErr("find replayed message", err)
		}
		observability.IncIdempotentReplay()
		view := c.views.build(ctx, am)
		view.TempID = req.ClientTempID
		return view, true, nil
	}
	return models.MessageView{}, false, nil
}

// load re-reads the stored message with its author. The row is already
// committed, so a failed read degrades to the bare message.
func (c *Composer) load(ctx context.Context, stored models.Message) models.MessageView {
	am, err := c.messages.FindByID(ctx, stored.ID)
	if err != nil {
		log.Warn().Err(err).Int("message_id", stored.ID).Msg("reload composed message failed")
		am = models.AuthoredMessage{Message: stored}
	}
	return c.views.build(ctx, am)
}

func (c *Composer) broadcast(ctx context.Context, view models.MessageView) {
	if c.notifier == nil {
		return
	}
	memberIDs, err := c.chats.ActiveMemberIDs(ctx, view.ChatID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", view.ChatID).Int("message_id", view.ID).Msg("load members for broadcast failed")
		return
	}
	c.notifier.Notify(ctx, models.ChatEvent{Type: EventMessage, ChatID: view.ChatID, Message: &view}, memberIDs)
}

func rejectReason(err error) string {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "transient"
	}
}
