package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestMessageStatus(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "sent", Message{}.Status())
	assert.Equal(t, "read", Message{ReadAt: &now}.Status())
}

func TestChatName(t *testing.T) {
	members := []Member{
		{UserID: 1, Name: "Alice"},
		{UserID: 2, Name: "Bob", Nickname: strPtr("Bobby")},
	}

	assert.Equal(t, "Bobby", ChatName(Chat{}, members, 1))
	assert.Equal(t, "Alice", ChatName(Chat{}, members, 2))
	assert.Equal(t, "Crew", ChatName(Chat{IsGroup: true, Name: strPtr("Crew")}, members, 1))
}

func TestSummarySortTime(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sent := created.Add(time.Hour)

	empty := ChatSummary{Chat: Chat{CreatedAt: created}}
	assert.Equal(t, created, empty.SortTime())

	withMsg := ChatSummary{Chat: Chat{CreatedAt: created}, LatestMessage: &MessageView{Message: Message{SentAt: sent}}}
	assert.Equal(t, sent, withMsg.SortTime())
}

func TestStatusTypeValid(t *testing.T) {
	assert.True(t, StatusNickname.Valid())
	assert.False(t, StatusType("typing").Valid())
}

func TestMessageBodyPrefersEdit(t *testing.T) {
	m := Message{Content: "draft"}
	assert.Equal(t, "draft", m.Body())

	edit := "final"
	m.EditedContent = &edit
	assert.Equal(t, "final", m.Body())
	assert.Equal(t, "draft", m.Content)
}
