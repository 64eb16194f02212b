package database

import "time"

type Repository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(id int) (User, error)
	GetAccountByEmail(email string) (User, error)
	VerifyAccount(code string) (User, error)

	CreatePrivateChat(userId, otherUserId int) (Chat, error)
	CreateGroupChat(params CreateGroupChatParams) (Chat, error)
	GetChat(id int) (Chat, error)
	UpdateChat(params UpdateChatParams) (Chat, error)
	UpdateChatOwner(chatId, ownerId int) (Chat, error)
	DeleteChat(id int) error

	AddParticipant(chatId, userId int) error
	RemoveParticipant(chatId, userId int) error
	IsParticipant(chatId, userId int) (bool, error)
	ListParticipants(chatId int) ([]User, error)
	FindNextOwner(chatId, excludeUserId int) (int, error)
	TransferOwnerAndRemove(chatId, newOwnerId, departingUserId int) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id int) (Message, error)
	UpdateMessage(params UpdateMessageParams) (Message, error)
	DeleteMessage(id int) error
	ListMessages(chatId, cursor, limit int) ([]Message, error)

	AddReaction(messageId, userId int, reaction string) (Reaction, error)
	UpdateReaction(messageId, userId int, reaction string) (Reaction, error)
	RemoveReaction(messageId, userId int) error

	CreateToken(token string, userId int, expiresAt time.Time) error
	ReplaceToken(oldToken, newToken string, expiresAt time.Time) error
	DeleteToken(token string) error
	DeleteTokensForUser(userId int) error
	DeleteExpiredTokens(now time.Time) (int64, error)

	BlockUser(blockerId, blockedId int) error
	UnblockUser(blockerId, blockedId int) error
	IsBlockedEither(userId, otherUserId int) (bool, error)
	ListBlockedUsers(blockerId int) ([]User, error)

	CreateFile(id, path string) (File, error)
}
