package server

import (
	"github.com/stretchr/testify/mock"

	"github.com/avolkov/converse/internal/types"
)

type mockTokenVerifier struct {
	mock.Mock
}

func (m *mockTokenVerifier) VerifyAccess(tokenString string) (types.Identity, error) {
	args := m.Called(tokenString)
	return args.Get(0).(types.Identity), args.Error(1)
}

type mockMemberships struct {
	mock.Mock
}

func (m *mockMemberships) AssertParticipant(identity types.Identity, chatId int) error {
	args := m.Called(identity, chatId)
	return args.Error(0)
}

type mockMessages struct {
	mock.Mock
}

func (m *mockMessages) Get(identity types.Identity, messageId int) (types.Message, error) {
	args := m.Called(identity, messageId)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessages) Create(identity types.Identity, chatId int, content string, fileIds []string) (types.Message, error) {
	args := m.Called(identity, chatId, content, fileIds)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessages) Update(identity types.Identity, messageId int, content string, fileIds []string) (types.Message, error) {
	args := m.Called(identity, messageId, content, fileIds)
	return args.Get(0).(types.Message), args.Error(1)
}

func (m *mockMessages) Delete(identity types.Identity, messageId int) (types.Message, error) {
	args := m.Called(identity, messageId)
	return args.Get(0).(types.Message), args.Error(1)
}
