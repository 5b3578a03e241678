package services

import (
	"context"
	"html/template"

	"github.com/rs/zerolog/log"

	"chatline/internal/media"
	"chatline/internal/models"
	"chatline/internal/statusmsg"
)

// viewBuilder turns stored messages into the wire shape shared by every surface.
type viewBuilder struct {
	media media.Storage
}

func (b viewBuilder) build(ctx context.Context, am models.AuthoredMessage) models.MessageView {
	view := models.MessageView{
		Message: am.Message,
		Status:  am.Status(),
	}

	if am.UserID != nil {
		author := &models.Author{ID: *am.UserID, Nickname: am.AuthorNickname}
		if am.AuthorName != nil {
			author.Name = *am.AuthorName
		}
		view.User = author
	}

	view.Content = am.Body()
	view.EditedContent = nil
	if am.DeletedAt != nil {
		view.Content = ""
		view.AttachmentKey = nil
		return view
	}

	if am.Kind == models.KindStatus {
		actor := ""
		if view.User != nil {
			actor = view.User.Name
		}
		var html template.HTML
		view.Rendered, html = statusmsg.ForMessage(am.Message, actor)
		view.RenderedHTML = string(html)
	}

	if am.AttachmentKey != nil && b.media != nil {
		url, err := b.media.PresignGet(ctx, *am.AttachmentKey)
		if err != nil {
			log.Warn().Err(err).Int("message_id", am.ID).Msg("presign attachment failed")
		} else {
			view.AttachmentURL = url
		}
	}
	return view
}

func (b viewBuilder) buildAll(ctx context.Context, msgs []models.AuthoredMessage) []models.MessageView {
	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, b.build(ctx, m))
	}
	return views
}
