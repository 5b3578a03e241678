package services

import (
	"context"
	"math"

	"chatline/internal/media"
	"chatline/internal/models"
	"chatline/internal/observability"
	"chatline/internal/repositories"
)

// PageSize is the number of messages in one catch-up page.
const PageSize = 25

// Pager walks a chat's history backwards by message id.
type Pager struct {
	messages repositories.MessageRepository
	chats    repositories.ChatRepository
	views    viewBuilder
}

func NewPager(messages repositories.MessageRepository, chats repositories.ChatRepository, store media.Storage) *Pager {
	return &Pager{messages: messages, chats: chats, views: viewBuilder{media: store}}
}

// LoadPage returns up to PageSize messages older than lastKnown, newest
// first. A nil lastKnown starts from the newest message. Pages never reach
// below the chat's own oldest message; past that the empty page is returned.
func (p *Pager) LoadPage(ctx context.Context, chatID, viewerID int, lastKnown *int) (models.Page, error) {
	if _, err := requireMember(ctx, p.chats, chatID, viewerID); err != nil {
		return models.Page{}, err
	}

	floor, ok, err := p.messages.OldestIDForChat(ctx, chatID)
	if err != nil {
		return models.Page{}, storeErr("oldest message", err)
	}
	if !ok {
		return emptyPage(), nil
	}

	before := math.MaxInt64
	if lastKnown != nil {
		before = *lastKnown
	}
	if before <= floor {
		return emptyPage(), nil
	}

	msgs, err := p.messages.PageBefore(ctx, chatID, before, floor, PageSize)
	if err != nil {
		return models.Page{}, storeErr("page messages", err)
	}
	if len(msgs) == 0 {
		return emptyPage(), nil
	}

	oldest := msgs[len(msgs)-1].ID
	observability.IncPageServed(false)
	return models.Page{
		Messages:      p.views.buildAll(ctx, msgs),
		LastMessageID: &oldest,
	}, nil
}

func emptyPage() models.Page {
	observability.IncPageServed(true)
	return models.Page{Messages: []models.MessageView{}}
}
