package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) VerifyAccount(code string) (User, error) {
	args := m.Called(code)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreatePrivateChat(userId, otherUserId int) (Chat, error) {
	args := m.Called(userId, otherUserId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) CreateGroupChat(params CreateGroupChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) GetChat(id int) (Chat, error) {
	args := m.Called(id)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) UpdateChat(params UpdateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) UpdateChatOwner(chatId, ownerId int) (Chat, error) {
	args := m.Called(chatId, ownerId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) DeleteChat(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) AddParticipant(chatId, userId int) error {
	args := m.Called(chatId, userId)
	return args.Error(0)
}
func (m *MockRepository) RemoveParticipant(chatId, userId int) error {
	args := m.Called(chatId, userId)
	return args.Error(0)
}
func (m *MockRepository) IsParticipant(chatId, userId int) (bool, error) {
	args := m.Called(chatId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) ListParticipants(chatId int) ([]User, error) {
	args := m.Called(chatId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) FindNextOwner(chatId, excludeUserId int) (int, error) {
	args := m.Called(chatId, excludeUserId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) TransferOwnerAndRemove(chatId, newOwnerId, departingUserId int) error {
	args := m.Called(chatId, newOwnerId, departingUserId)
	return args.Error(0)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(id int) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) UpdateMessage(params UpdateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) DeleteMessage(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) ListMessages(chatId, cursor, limit int) ([]Message, error) {
	args := m.Called(chatId, cursor, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) AddReaction(messageId, userId int, reaction string) (Reaction, error) {
	args := m.Called(messageId, userId, reaction)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockRepository) UpdateReaction(messageId, userId int, reaction string) (Reaction, error) {
	args := m.Called(messageId, userId, reaction)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockRepository) RemoveReaction(messageId, userId int) error {
	args := m.Called(messageId, userId)
	return args.Error(0)
}
func (m *MockRepository) CreateToken(token string, userId int, expiresAt time.Time) error {
	args := m.Called(token, userId, expiresAt)
	return args.Error(0)
}
func (m *MockRepository) ReplaceToken(oldToken, newToken string, expiresAt time.Time) error {
	args := m.Called(oldToken, newToken, expiresAt)
	return args.Error(0)
}
func (m *MockRepository) DeleteToken(token string) error {
	args := m.Called(token)
	return args.Error(0)
}
func (m *MockRepository) DeleteTokensForUser(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockRepository) DeleteExpiredTokens(now time.Time) (int64, error) {
	args := m.Called(now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) BlockUser(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockRepository) UnblockUser(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockRepository) IsBlockedEither(userId, otherUserId int) (bool, error) {
	args := m.Called(userId, otherUserId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) ListBlockedUsers(blockerId int) ([]User, error) {
	args := m.Called(blockerId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) CreateFile(id, path string) (File, error) {
	args := m.Called(id, path)
	return args.Get(0).(File), args.Error(1)
}
