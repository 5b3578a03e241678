package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/idempotency"
	"chatline/internal/media"
	"chatline/internal/models"
	"chatline/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) FindOrCreateDirectChat(ctx context.Context, userA, userB int) (models.Chat, bool, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, name *string, adminID int, memberIDs []int) (models.Chat, error) {
	args := m.Called(ctx, name, adminID, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int, limit int) ([]models.Chat, error) {
	args := m.Called(ctx, userID, limit)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

func (m *ChatRepositoryMock) ListMembers(ctx context.Context, chatID int) ([]models.Member, error) {
	args := m.Called(ctx, chatID)
	var members []models.Member
	if val := args.Get(0); val != nil {
		members = val.([]models.Member)
	}
	return members, args.Error(1)
}

func (m *ChatRepositoryMock) GetMember(ctx context.Context, chatID int, userID int) (models.Member, error) {
	args := m.Called(ctx, chatID, userID)
	var member models.Member
	if val := args.Get(0); val != nil {
		member = val.(models.Member)
	}
	return member, args.Error(1)
}

func (m *ChatRepositoryMock) ActiveMemberIDs(ctx context.Context, chatID int) ([]int, error) {
	args := m.Called(ctx, chatID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) LeaveChat(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ApplyOverride(ctx context.Context, o models.MemberOverride, status models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, o, status)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) JoinMembers(ctx context.Context, chatID int, userIDs []int, status repositories.StatusFunc) ([]int, *models.Message, error) {
	args := m.Called(ctx, chatID, userIDs, status)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	var out *models.Message
	if val := args.Get(1); val != nil {
		out = val.(*models.Message)
	}
	return ids, out, args.Error(2)
}

func (m *MessageRepositoryMock) FindByID(ctx context.Context, messageID int) (models.AuthoredMessage, error) {
	args := m.Called(ctx, messageID)
	var out models.AuthoredMessage
	if val := args.Get(0); val != nil {
		out = val.(models.AuthoredMessage)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) LatestForChat(ctx context.Context, chatID int) (models.AuthoredMessage, bool, error) {
	args := m.Called(ctx, chatID)
	var out models.AuthoredMessage
	if val := args.Get(0); val != nil {
		out = val.(models.AuthoredMessage)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) OldestIDForChat(ctx context.Context, chatID int) (int, bool, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) PageBefore(ctx context.Context, chatID int, before int, floor int, limit int) ([]models.AuthoredMessage, error) {
	args := m.Called(ctx, chatID, before, floor, limit)
	var out []models.AuthoredMessage
	if val := args.Get(0); val != nil {
		out = val.([]models.AuthoredMessage)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) MarkReceipt(ctx context.Context, chatID int, readerID int, upToID int, kind models.ReceiptKind) (int64, error) {
	args := m.Called(ctx, chatID, readerID, upToID, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID int, authorID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, authorID, content)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int, authorID int) (models.Message, error) {
	args := m.Called(ctx, messageID, authorID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) AreFriends(ctx context.Context, userID, friendID int) (bool, error) {
	args := m.Called(ctx, userID, friendID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) ListFriends(ctx context.Context, userID int) ([]models.User, error) {
	args := m.Called(ctx, userID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, event models.ChatEvent, memberIDs []int) {
	m.Called(ctx, event, memberIDs)
}

type StorageMock struct {
	mock.Mock
}

func (m *StorageMock) Put(ctx context.Context, chatID int, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, chatID, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) PresignGet(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type IdempotencyStoreMock struct {
	mock.Mock
}

func (m *IdempotencyStoreMock) Claim(ctx context.Context, key string) (idempotency.State, int, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(idempotency.State), args.Int(1), args.Error(2)
}

func (m *IdempotencyStoreMock) Complete(ctx context.Context, key string, messageID int) error {
	args := m.Called(ctx, key, messageID)
	return args.Error(0)
}

func (m *IdempotencyStoreMock) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ media.Storage = (*StorageMock)(nil)
var _ idempotency.Store = (*IdempotencyStoreMock)(nil)
