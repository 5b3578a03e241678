package models

import "time"

// Chat is a direct (two-member) or group conversation.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	Name      *string   `db:"name" json:"name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Member is a user's participation in a chat with per-chat display overrides.
type Member struct {
	ID          int        `db:"id" json:"id"`
	ChatID      int        `db:"chat_id" json:"chat_id"`
	UserID      int        `db:"user_id" json:"user_id"`
	Name        string     `db:"name" json:"name"`
	IsAdmin     bool       `db:"is_admin" json:"is_admin"`
	Nickname    *string    `db:"nickname" json:"nickname,omitempty"`
	BubbleColor *string    `db:"bubble_color" json:"bubble_color,omitempty"`
	JoinedAt    time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt      *time.Time `db:"left_at" json:"left_at,omitempty"`
}

// Active reports whether the member has not left the chat.
func (m Member) Active() bool {
	return m.LeftAt == nil
}

// DisplayName is the nickname when set, otherwise the user's name.
func (m Member) DisplayName() string {
	if m.Nickname != nil && *m.Nickname != "" {
		return *m.Nickname
	}
	return m.Name
}

// OverrideField is a per-member display attribute a member can change.
type OverrideField string

const (
	OverrideNickname    OverrideField = "nickname"
	OverrideBubbleColor OverrideField = "bubble_color"
)

// MemberOverride sets one display attribute of an active member.
type MemberOverride struct {
	ChatID int
	UserID int
	Field  OverrideField
	Value  string
}

// ChatSummary is the chat-list and chat-header view of a chat for one viewer.
type ChatSummary struct {
	Chat
	DisplayName   string       `json:"display_name"`
	Members       []Member     `json:"members"`
	LatestMessage *MessageView `json:"latest_message,omitempty"`
}

// SortTime is the chat-list ordering key: the latest message's send time,
// or the chat's creation time when it has no messages.
func (s ChatSummary) SortTime() time.Time {
	if s.LatestMessage != nil {
		return s.LatestMessage.SentAt
	}
	return s.CreatedAt
}

// ChatName resolves the title shown to viewerID.
func ChatName(chat Chat, members []Member, viewerID int) string {
	if chat.IsGroup {
		if chat.Name != nil {
			return *chat.Name
		}
		return ""
	}
	for _, m := range members {
		if m.UserID != viewerID {
			return m.DisplayName()
		}
	}
	return ""
}
