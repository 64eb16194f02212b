package api

import (
	"github.com/stretchr/testify/mock"

	"github.com/avolkov/converse/internal/token"
	"github.com/avolkov/converse/internal/types"
)

type mockTokenService struct {
	mock.Mock
}

func (m *mockTokenService) Issue(userId int, role string, verified bool) (token.Pair, error) {
	args := m.Called(userId, role, verified)
	return args.Get(0).(token.Pair), args.Error(1)
}

func (m *mockTokenService) Rotate(oldRefreshToken string) (token.Pair, error) {
	args := m.Called(oldRefreshToken)
	return args.Get(0).(token.Pair), args.Error(1)
}

func (m *mockTokenService) VerifyAccess(tokenString string) (types.Identity, error) {
	args := m.Called(tokenString)
	return args.Get(0).(types.Identity), args.Error(1)
}

func (m *mockTokenService) Revoke(tokenString string) error {
	args := m.Called(tokenString)
	return args.Error(0)
}

func (m *mockTokenService) RevokeAll(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}

type mockChatService struct {
	mock.Mock
}

func (m *mockChatService) CreatePrivate(identity types.Identity, otherUserId int) (types.Chat, error) {
	args := m.Called(identity, otherUserId)
	return args.Get(0).(types.Chat), args.Error(1)
}

func (m *mockChatService) CreateGroup(identity types.Identity, title, description string, memberIds []int) (types.Chat, error) {
	args := m.Called(identity, title, description, memberIds)
	return args.Get(0).(types.Chat), args.Error(1)
}

func (m *mockChatService) Get(identity types.Identity, chatId int) (types.Chat, error) {
	args := m.Called(identity, chatId)
	return args.Get(0).(types.Chat), args.Error(1)
}

func (m *mockChatService) Update(identity types.Identity, chatId int, title, description string) (types.Chat, error) {
	args := m.Called(identity, chatId, title, description)
	return args.Get(0).(types.Chat), args.Error(1)
}

func (m *mockChatService) Delete(identity types.Identity, chatId int) error {
	args := m.Called(identity, chatId)
	return args.Error(0)
}

func (m *mockChatService) Participants(identity types.Identity, chatId int) ([]types.User, error) {
	args := m.Called(identity, chatId)
	return args.Get(0).([]types.User), args.Error(1)
}

func (m *mockChatService) AddParticipant(identity types.Identity, chatId, userId int) error {
	args := m.Called(identity, chatId, userId)
	return args.Error(0)
}

func (m *mockChatService) RemoveParticipant(identity types.Identity, chatId, userId int) error {
	args := m.Called(identity, chatId, userId)
	return args.Error(0)
}

func (m *mockChatService) UpdateOwner(identity types.Identity, chatId, newOwnerId int) (types.Chat, error) {
	args := m.Called(identity, chatId, newOwnerId)
	return args.Get(0).(types.Chat), args.Error(1)
}

type mockMessageService struct {
	mock.Mock
}

func (m *mockMessageService) Create(identity types.Identity, chatId int, content string, fileIds []string) (types.Message, error) {
	args := m.Called(identity, chatId, content, fileIds)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessageService) Get(identity types.Identity, messageId int) (types.Message, error) {
	args := m.Called(identity, messageId)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessageService) Update(identity types.Identity, messageId int, content string, fileIds []string) (types.Message, error) {
	args := m.Called(identity, messageId, content, fileIds)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessageService) Delete(identity types.Identity, messageId int) (types.Message, error) {
	args := m.Called(identity, messageId)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessageService) AddReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error) {
	args := m.Called(identity, messageId, reaction)
	return args.Get(0).(types.Reaction), args.Error(1)
}

func (m *mockMessageService) UpdateReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error) {
	args := m.Called(identity, messageId, reaction)
	return args.Get(0).(types.Reaction), args.Error(1)
}

func (m *mockMessageService) RemoveReaction(identity types.Identity, messageId int) error {
	args := m.Called(identity, messageId)
	return args.Error(0)
}

func (m *mockMessageService) ListPage(identity types.Identity, chatId, cursor, limit int) (types.MessagePage, error) {
	args := m.Called(identity, chatId, cursor, limit)
	return args.Get(0).(types.MessagePage), args.Error(1)
}

type mockFileStore struct {
	mock.Mock
}

func (m *mockFileStore) Create(uploads [][]byte) ([]string, error) {
	args := m.Called(uploads)
	return args.Get(0).([]string), args.Error(1)
}
