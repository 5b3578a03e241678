package models

import "time"

// MessageKind separates user-authored content from synthesized status events.
type MessageKind string

const (
	KindContent MessageKind = "content"
	KindStatus  MessageKind = "status"
)

// StatusType names the state change a status message describes.
type StatusType string

const (
	StatusBubbleColor  StatusType = "bubble_color"
	StatusNickname     StatusType = "nickname"
	StatusMembersAdded StatusType = "members_added"
)

// Valid reports whether t is a known status type.
func (t StatusType) Valid() bool {
	switch t {
	case StatusBubbleColor, StatusNickname, StatusMembersAdded:
		return true
	}
	return false
}

// Message is a persisted chat message.
type Message struct {
	ID            int         `db:"id" json:"id"`
	ChatID        int         `db:"chat_id" json:"chat_id"`
	UserID        *int        `db:"user_id" json:"user_id"`
	Kind          MessageKind `db:"kind" json:"type"`
	StatusType    *StatusType `db:"status_type" json:"status_type,omitempty"`
	Content       string      `db:"content" json:"content"`
	EditedContent *string     `db:"edited_content" json:"-"`
	AttachmentKey *string     `db:"attachment_key" json:"-"`
	SentAt        time.Time   `db:"sent_at" json:"sent_at"`
	DeliveredAt   *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt        *time.Time  `db:"read_at" json:"read_at,omitempty"`
	EditedAt      *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt     *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Body is the text shown for the message: the latest edit when there is one,
// otherwise the content as sent. Content itself is never rewritten.
func (m Message) Body() string {
	if m.EditedContent != nil {
		return *m.EditedContent
	}
	return m.Content
}

// Status is "read" once the message has a read receipt, otherwise "sent".
func (m Message) Status() string {
	if m.ReadAt != nil {
		return "read"
	}
	return "sent"
}

// NewMessage is the input to the message store.
type NewMessage struct {
	ChatID        int
	UserID        *int
	Kind          MessageKind
	StatusType    *StatusType
	Content       string
	AttachmentKey *string
}

// AuthoredMessage is a stored message joined with its author.
type AuthoredMessage struct {
	Message
	AuthorName     *string `db:"author_name"`
	AuthorNickname *string `db:"author_nickname"`
}

// Author is the author summary carried on a message view.
type Author struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Nickname *string `json:"nickname,omitempty"`
}

// MessageView is the wire shape of a message for every surface.
type MessageView struct {
	Message
	Status        string  `json:"status"`
	User          *Author `json:"user,omitempty"`
	Rendered      string  `json:"rendered,omitempty"`
	RenderedHTML  string  `json:"rendered_html,omitempty"`
	AttachmentURL string  `json:"attachment_url,omitempty"`
	TempID        string  `json:"tempId,omitempty"`
}

// Page is one backward step of catch-up paging.
type Page struct {
	Messages      []MessageView `json:"messages"`
	LastMessageID *int          `json:"last_message_id"`
}

// Empty reports whether the page is the "no more messages" sentinel.
func (p Page) Empty() bool {
	return len(p.Messages) == 0
}

// ChatEvent is pushed to live connections.
type ChatEvent struct {
	Type      string       `json:"type"`
	ChatID    int          `json:"chat_id"`
	Message   *MessageView `json:"message,omitempty"`
	MessageID int          `json:"message_id,omitempty"`
	Receipt   *Receipt     `json:"receipt,omitempty"`
}

// ReceiptKind distinguishes delivery from read receipts.
type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// Receipt acknowledges messages up to and including UpToID.
type Receipt struct {
	Kind   ReceiptKind `json:"kind"`
	UserID int         `json:"user_id"`
	UpToID int         `json:"up_to"`
	Count  int64       `json:"count"`
}
