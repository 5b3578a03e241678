// Package services holds the chat aggregate, the message composer and the
// catch-up pager. Repository failures leave this package either as one of the
// apperr kinds or wrapped with apperr.Transient.
package services

import (
	"context"
	"errors"

	"chatline/internal/apperr"
	"chatline/internal/models"
	"chatline/internal/repositories"
)

// Event types pushed to live connections.
const (
	EventMessage        = "message"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
	EventReceipt        = "receipt"
)

// Notifier delivers chat events to the connected members of a chat. It is
// best-effort and never fails the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event models.ChatEvent, memberIDs []int)
}

// storeErr passes taxonomy errors through and wraps anything else as transient.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrForbidden) ||
		errors.Is(err, apperr.ErrConflict) ||
		errors.Is(err, apperr.ErrTransient) {
		return err
	}
	return apperr.Transient(op, err)
}

// requireMember checks the chat exists and userID is an active member of it.
func requireMember(ctx context.Context, chats repositories.ChatRepository, chatID, userID int) (models.Member, error) {
	if _, err := chats.GetChat(ctx, chatID); err != nil {
		return models.Member{}, storeErr("get chat", err)
	}
	member, err := chats.GetMember(ctx, chatID, userID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return models.Member{}, repositories.ErrNotActiveMember
	}
	if err != nil {
		return models.Member{}, storeErr("get member", err)
	}
	if !member.Active() {
		return models.Member{}, repositories.ErrNotActiveMember
	}
	return member, nil
}
