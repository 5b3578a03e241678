package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/broker"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ broker.Publisher = (*PublisherMock)(nil)
