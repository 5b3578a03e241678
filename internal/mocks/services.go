package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/models"
	"chatline/internal/services"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var chats []models.ChatSummary
	if val := args.Get(0); val != nil {
		chats = val.([]models.ChatSummary)
	}
	return chats, args.Error(1)
}

func (m *ChatServiceMock) CreateDirectChat(ctx context.Context, userID, friendID int) (models.ChatSummary, bool, error) {
	args := m.Called(ctx, userID, friendID)
	var chat models.ChatSummary
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatSummary)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatServiceMock) GetChat(ctx context.Context, viewerID, chatID int) (models.ChatSummary, error) {
	args := m.Called(ctx, viewerID, chatID)
	var chat models.ChatSummary
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatSummary)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) AvailableMembers(ctx context.Context, actorID, chatID int) ([]models.User, error) {
	args := m.Called(ctx, actorID, chatID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *ChatServiceMock) CreateGroupChat(ctx context.Context, actorID, fromChatID int, name string) (models.ChatSummary, error) {
	args := m.Called(ctx, actorID, fromChatID, name)
	var chat models.ChatSummary
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatSummary)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) AddMembers(ctx context.Context, actorID, chatID int, userIDs []int) (models.ChatSummary, error) {
	args := m.Called(ctx, actorID, chatID, userIDs)
	var chat models.ChatSummary
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatSummary)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) LeaveChat(ctx context.Context, actorID, chatID int) error {
	args := m.Called(ctx, actorID, chatID)
	return args.Error(0)
}

func (m *ChatServiceMock) UpdateMemberOverride(ctx context.Context, actorID, chatID, targetUserID int, o services.Override) (*models.MessageView, error) {
	args := m.Called(ctx, actorID, chatID, targetUserID, o)
	var view *models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(*models.MessageView)
	}
	return view, args.Error(1)
}

func (m *ChatServiceMock) EditMessage(ctx context.Context, actorID, chatID, messageID int, content string) (models.MessageView, error) {
	args := m.Called(ctx, actorID, chatID, messageID, content)
	var view models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(models.MessageView)
	}
	return view, args.Error(1)
}

func (m *ChatServiceMock) DeleteMessage(ctx context.Context, actorID, chatID, messageID int) error {
	args := m.Called(ctx, actorID, chatID, messageID)
	return args.Error(0)
}

func (m *ChatServiceMock) MarkReceipt(ctx context.Context, actorID, chatID, upToID int, kind models.ReceiptKind) (models.Receipt, error) {
	args := m.Called(ctx, actorID, chatID, upToID, kind)
	var receipt models.Receipt
	if val := args.Get(0); val != nil {
		receipt = val.(models.Receipt)
	}
	return receipt, args.Error(1)
}

type ComposerMock struct {
	mock.Mock
}

func (m *ComposerMock) Compose(ctx context.Context, req services.SendRequest) (models.MessageView, error) {
	args := m.Called(ctx, req)
	var view models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(models.MessageView)
	}
	return view, args.Error(1)
}

type PagerMock struct {
	mock.Mock
}

func (m *PagerMock) LoadPage(ctx context.Context, chatID, viewerID int, lastKnown *int) (models.Page, error) {
	args := m.Called(ctx, chatID, viewerID, lastKnown)
	var page models.Page
	if val := args.Get(0); val != nil {
		page = val.(models.Page)
	}
	return page, args.Error(1)
}
