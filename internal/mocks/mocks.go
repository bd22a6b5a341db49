package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/directory"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, senderID, receiverID int64, content string, correlationID *string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, correlationID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Conversation(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Partners(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	var partners []int64
	if val := args.Get(0); val != nil {
		partners = val.([]int64)
	}
	return partners, args.Error(1)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, readerID, otherID int64) error {
	args := m.Called(ctx, readerID, otherID)
	return args.Error(0)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) Usernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	args := m.Called(ctx, ids)
	var names map[int64]string
	if val := args.Get(0); val != nil {
		names = val.(map[int64]string)
	}
	return names, args.Error(1)
}

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) Send(ctx context.Context, senderID, receiverID int64, content, correlationID string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, correlationID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type ConversationListerMock struct {
	mock.Mock
}

func (m *ConversationListerMock) List(ctx context.Context, userID int64) ([]directory.Partner, error) {
	args := m.Called(ctx, userID)
	var partners []directory.Partner
	if val := args.Get(0); val != nil {
		partners = val.([]directory.Partner)
	}
	return partners, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ directory.UserDirectory = (*UserDirectoryMock)(nil)
