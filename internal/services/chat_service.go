package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"chatline/internal/apperr"
	"chatline/internal/media"
	"chatline/internal/models"
	"chatline/internal/repositories"
	"chatline/internal/statusmsg"
)

const (
	// ChatListLimit caps the chat list.
	ChatListLimit = 25
	// MaxNicknameLength is the longest per-chat nickname, in characters.
	MaxNicknameLength = 25
	// MaxGroupNameLength is the longest group chat name, in characters.
	MaxGroupNameLength = 100
)

// Override changes exactly one per-member display attribute.
type Override struct {
	Nickname    *string
	BubbleColor *string
}

// ChatService is the chat aggregate: membership, per-member overrides and
// the status messages they produce.
type ChatService struct {
	chats    repositories.ChatRepository
	users    repositories.UserRepository
	messages repositories.MessageRepository
	composer *Composer
	notifier Notifier
	views    viewBuilder
}

func NewChatService(chats repositories.ChatRepository, users repositories.UserRepository, messages repositories.MessageRepository, composer *Composer, notifier Notifier, store media.Storage) *ChatService {
	return &ChatService{
		chats:    chats,
		users:    users,
		messages: messages,
		composer: composer,
		notifier: notifier,
		views:    viewBuilder{media: store},
	}
}

// RequireMember returns the caller's membership, or Forbidden when the caller
// is not an active member and NotFound when the chat does not exist.
func (s *ChatService) RequireMember(ctx context.Context, chatID, userID int) (models.Member, error) {
	return requireMember(ctx, s.chats, chatID, userID)
}

// CreateDirectChat returns the direct chat between two friends, creating it
// on first use. Repeated calls return the same chat.
func (s *ChatService) CreateDirectChat(ctx context.Context, userID, friendID int) (models.ChatSummary, bool, error) {
	if userID == friendID {
		return models.ChatSummary{}, false, apperr.Invalid("user_id", "cannot start a chat with yourself")
	}
	if _, err := s.users.GetUser(ctx, friendID); err != nil {
		return models.ChatSummary{}, false, storeErr("get user", err)
	}
	ok, err := s.users.AreFriends(ctx, userID, friendID)
	if err != nil {
		return models.ChatSummary{}, false, storeErr("check friendship", err)
	}
	if !ok {
		return models.ChatSummary{}, false, fmt.Errorf("users are not friends: %w", apperr.ErrForbidden)
	}

	chat, created, err := s.chats.FindOrCreateDirectChat(ctx, userID, friendID)
	if err != nil {
		return models.ChatSummary{}, false, storeErr("find or create direct chat", err)
	}
	if created {
		log.Info().Int("chat_id", chat.ID).Int("user_id", userID).Int("friend_id", friendID).Msg("direct chat created")
	}
	summary, err := s.summary(ctx, chat, userID)
	return summary, created, err
}

// CreateGroupChat starts a group chat seeded with every active member of
// fromChatID. The actor becomes its admin.
func (s *ChatService) CreateGroupChat(ctx context.Context, actorID, fromChatID int, name string) (models.ChatSummary, error) {
	if _, err := s.RequireMember(ctx, fromChatID, actorID); err != nil {
		return models.ChatSummary{}, err
	}

	var groupName *string
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		if utf8.RuneCountInString(trimmed) > MaxGroupNameLength {
			return models.ChatSummary{}, apperr.Invalid("name", fmt.Sprintf("name may not be greater than %d characters", MaxGroupNameLength))
		}
		groupName = &trimmed
	}

	memberIDs, err := s.chats.ActiveMemberIDs(ctx, fromChatID)
	if err != nil {
		return models.ChatSummary{}, storeErr("list members", err)
	}
	chat, err := s.chats.CreateGroupChat(ctx, groupName, actorID, memberIDs)
	if err != nil {
		return models.ChatSummary{}, storeErr("create group chat", err)
	}
	log.Info().Int("chat_id", chat.ID).Int("from_chat_id", fromChatID).Int("user_id", actorID).Msg("group chat created")
	return s.summary(ctx, chat, actorID)
}

// AddMembers joins the actor's friends to a group chat and posts one
// members_added status message naming the users who actually joined.
func (s *ChatService) AddMembers(ctx context.Context, actorID, chatID int, userIDs []int) (models.ChatSummary, error) {
	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return models.ChatSummary{}, err
	}
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatSummary{}, storeErr("get chat", err)
	}
	if !chat.IsGroup {
		return models.ChatSummary{}, apperr.Invalid("chat_id", "members can only be added to group chats")
	}
	if len(userIDs) == 0 {
		return models.ChatSummary{}, apperr.Invalid("user_ids", "at least one user is required")
	}

	users, err := s.users.BulkUsers(ctx, userIDs)
	if err != nil {
		return models.ChatSummary{}, storeErr("load users", err)
	}
	byID := make(map[int]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range userIDs {
		if _, ok := byID[id]; !ok {
			return models.ChatSummary{}, apperr.Invalid("user_ids", fmt.Sprintf("user %d does not exist", id))
		}
		if id == actorID {
			continue
		}
		friends, err := s.users.AreFriends(ctx, actorID, id)
		if err != nil {
			return models.ChatSummary{}, storeErr("check friendship", err)
		}
		if !friends {
			return models.ChatSummary{}, fmt.Errorf("user %d is not a friend: %w", id, apperr.ErrForbidden)
		}
	}

	joined, stored, err := s.messages.JoinMembers(ctx, chatID, userIDs, func(joined []int) (models.NewMessage, error) {
		names := make([]string, 0, len(joined))
		for _, id := range joined {
			names = append(names, byID[id].Name)
		}
		return s.composer.PrepareStatus(chatID, actorID, StatusPayload{
			StatusType: models.StatusMembersAdded,
			Content:    statusmsg.JoinNames(names),
		})
	})
	if err != nil {
		return models.ChatSummary{}, storeErr("add members", err)
	}
	if stored != nil {
		log.Info().Int("chat_id", chatID).Int("user_id", actorID).Ints("joined", joined).Msg("members added")
		s.composer.Publish(ctx, *stored, "")
	}
	return s.summary(ctx, chat, actorID)
}

// LeaveChat removes the actor from a group chat.
func (s *ChatService) LeaveChat(ctx context.Context, actorID, chatID int) error {
	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return err
	}
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return storeErr("get chat", err)
	}
	if !chat.IsGroup {
		return apperr.Invalid("chat_id", "direct chats cannot be left")
	}
	if err := s.chats.LeaveChat(ctx, chatID, actorID); err != nil {
		return storeErr("leave chat", err)
	}
	log.Info().Int("chat_id", chatID).Int("user_id", actorID).Msg("member left chat")
	return nil
}

// UpdateMemberOverride sets the target member's nickname or bubble color and
// posts the matching status message authored by the target. Setting the
// nickname it already has is a no-op and returns a nil view.
func (s *ChatService) UpdateMemberOverride(ctx context.Context, actorID, chatID, targetUserID int, o Override) (*models.MessageView, error) {
	if (o.Nickname == nil) == (o.BubbleColor == nil) {
		return nil, apperr.Invalid("override", "exactly one of nickname or bubble_color is required")
	}

	var statusType models.StatusType
	var value string
	if o.Nickname != nil {
		value = strings.TrimSpace(*o.Nickname)
		if value == "" {
			return nil, apperr.Invalid("nickname", "nickname is required")
		}
		if utf8.RuneCountInString(value) > MaxNicknameLength {
			return nil, apperr.Invalid("nickname", fmt.Sprintf("nickname may not be greater than %d characters", MaxNicknameLength))
		}
		statusType = models.StatusNickname
	} else {
		value = *o.BubbleColor
		if !statusmsg.ValidColor(value) {
			return nil, apperr.Invalid("bubble_color", "bubble_color must be a #RRGGBB color")
		}
		statusType = models.StatusBubbleColor
	}

	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	target, err := s.chats.GetMember(ctx, chatID, targetUserID)
	if err != nil {
		return nil, storeErr("get member", err)
	}
	if !target.Active() {
		return nil, repositories.ErrMemberNotFound
	}

	field := models.OverrideBubbleColor
	if statusType == models.StatusNickname {
		if target.Nickname != nil && *target.Nickname == value {
			return nil, nil
		}
		field = models.OverrideNickname
	}

	status, err := s.composer.PrepareStatus(chatID, targetUserID, StatusPayload{StatusType: statusType, Content: value})
	if err != nil {
		return nil, err
	}
	stored, err := s.messages.ApplyOverride(ctx, models.MemberOverride{
		ChatID: chatID,
		UserID: targetUserID,
		Field:  field,
		Value:  value,
	}, status)
	if err != nil {
		return nil, storeErr("update member", err)
	}

	view := s.composer.Publish(ctx, stored, "")
	return &view, nil
}

// ListChats returns the user's chats ordered by latest activity.
func (s *ChatService) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListChatsForUser(ctx, userID, ChatListLimit)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary, err := s.summary(ctx, chat, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].SortTime().After(summaries[j].SortTime())
	})
	return summaries, nil
}

// GetChat returns one chat as seen by the viewer.
func (s *ChatService) GetChat(ctx context.Context, viewerID, chatID int) (models.ChatSummary, error) {
	if _, err := s.RequireMember(ctx, chatID, viewerID); err != nil {
		return models.ChatSummary{}, err
	}
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatSummary{}, storeErr("get chat", err)
	}
	return s.summary(ctx, chat, viewerID)
}

// LatestMessage returns the newest message of the chat, or nil when empty.
func (s *ChatService) LatestMessage(ctx context.Context, chatID int) (*models.MessageView, error) {
	am, ok, err := s.messages.LatestForChat(ctx, chatID)
	if err != nil {
		return nil, storeErr("latest message", err)
	}
	if !ok {
		return nil, nil
	}
	view := s.views.build(ctx, am)
	return &view, nil
}

// AvailableMembers lists the actor's friends who are not active members of the chat.
func (s *ChatService) AvailableMembers(ctx context.Context, actorID, chatID int) ([]models.User, error) {
	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	friends, err := s.users.ListFriends(ctx, actorID)
	if err != nil {
		return nil, storeErr("list friends", err)
	}
	active, err := s.chats.ActiveMemberIDs(ctx, chatID)
	if err != nil {
		return nil, storeErr("list members", err)
	}
	inChat := make(map[int]struct{}, len(active))
	for _, id := range active {
		inChat[id] = struct{}{}
	}
	available := make([]models.User, 0, len(friends))
	for _, f := range friends {
		if _, ok := inChat[f.ID]; !ok {
			available = append(available, f)
		}
	}
	return available, nil
}

// EditMessage revises the actor's own message. The content as sent is kept;
// views show the latest revision.
func (s *ChatService) EditMessage(ctx context.Context, actorID, chatID, messageID int, content string) (models.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.MessageView{}, apperr.Invalid("content", "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.MessageView{}, apperr.Invalid("content", fmt.Sprintf("content may not be greater than %d characters", MaxContentLength))
	}
	if _, err := s.ownMessage(ctx, actorID, chatID, messageID); err != nil {
		return models.MessageView{}, err
	}

	if _, err := s.messages.Edit(ctx, messageID, actorID, content); err != nil {
		return models.MessageView{}, storeErr("edit message", err)
	}
	view, err := s.reload(ctx, messageID)
	if err != nil {
		return models.MessageView{}, err
	}
	s.notify(ctx, models.ChatEvent{Type: EventMessageUpdated, ChatID: chatID, Message: &view, MessageID: messageID})
	return view, nil
}

// DeleteMessage soft-deletes the actor's own message. The slot stays in the
// history with its content blanked.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID, chatID, messageID int) error {
	if _, err := s.ownMessage(ctx, actorID, chatID, messageID); err != nil {
		return err
	}
	if _, err := s.messages.SoftDelete(ctx, messageID, actorID); err != nil {
		return storeErr("delete message", err)
	}
	s.notify(ctx, models.ChatEvent{Type: EventMessageDeleted, ChatID: chatID, MessageID: messageID})
	return nil
}

// MarkReceipt records that the actor has received or read messages up to upToID.
func (s *ChatService) MarkReceipt(ctx context.Context, actorID, chatID, upToID int, kind models.ReceiptKind) (models.Receipt, error) {
	if kind != models.ReceiptDelivered && kind != models.ReceiptRead {
		return models.Receipt{}, apperr.Invalid("kind", "kind must be delivered or read")
	}
	if upToID <= 0 {
		return models.Receipt{}, apperr.Invalid("up_to", "up_to must be a message id")
	}
	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return models.Receipt{}, err
	}

	count, err := s.messages.MarkReceipt(ctx, chatID, actorID, upToID, kind)
	if err != nil {
		return models.Receipt{}, storeErr("mark receipt", err)
	}
	receipt := models.Receipt{Kind: kind, UserID: actorID, UpToID: upToID, Count: count}
	if count > 0 {
		s.notify(ctx, models.ChatEvent{Type: EventReceipt, ChatID: chatID, Receipt: &receipt})
	}
	return receipt, nil
}

func (s *ChatService) ownMessage(ctx context.Context, actorID, chatID, messageID int) (models.AuthoredMessage, error) {
	if _, err := s.RequireMember(ctx, chatID, actorID); err != nil {
		return models.AuthoredMessage{}, err
	}
	am, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.AuthoredMessage{}, storeErr("find message", err)
	}
	if am.ChatID != chatID || am.DeletedAt != nil {
		return models.AuthoredMessage{}, repositories.ErrMessageNotFound
	}
	if am.Kind != models.KindContent {
		return models.AuthoredMessage{}, apperr.Invalid("message_id", "status messages cannot be changed")
	}
	if am.UserID == nil || *am.UserID != actorID {
		return models.AuthoredMessage{}, fmt.Errorf("message %d belongs to another member: %w", messageID, apperr.ErrForbidden)
	}
	return am, nil
}

func (s *ChatService) reload(ctx context.Context, messageID int) (models.MessageView, error) {
	am, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.MessageView{}, storeErr("find message", err)
	}
	return s.views.build(ctx, am), nil
}

func (s *ChatService) notify(ctx context.Context, event models.ChatEvent) {
	if s.notifier == nil {
		return
	}
	memberIDs, err := s.chats.ActiveMemberIDs(ctx, event.ChatID)
	if err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Str("event", event.Type).Msg("load members for broadcast failed")
		return
	}
	s.notifier.Notify(ctx, event, memberIDs)
}

// summary builds the viewer's view of a chat with its active members and
// latest message.
func (s *ChatService) summary(ctx context.Context, chat models.Chat, viewerID int) (models.ChatSummary, error) {
	members, err := s.chats.ListMembers(ctx, chat.ID)
	if err != nil {
		return models.ChatSummary{}, storeErr("list members", err)
	}
	active := make([]models.Member, 0, len(members))
	for _, m := range members {
		if m.Active() {
			active = append(active, m)
		}
	}
	latest, err := s.LatestMessage(ctx, chat.ID)
	if err != nil {
		return models.ChatSummary{}, err
	}
	return models.ChatSummary{
		Chat:          chat,
		DisplayName:   models.ChatName(chat, active, viewerID),
		Members:       active,
		LatestMessage: latest,
	}, nil
}
