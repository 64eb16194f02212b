package database

import "time"

type User struct {
	Id               int
	Username         string
	EmailAddress     string
	PasswordHash     string
	Role             string
	IsVerified       bool
	VerificationCode string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Chat struct {
	Id          int
	ChatType    string
	Title       string
	Description string
	// OwnerId is zero for private chats; group chats always reference a
	// current participant.
	OwnerId   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id        int
	ChatId    int
	AuthorId  int
	Content   string
	FileIds   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reaction is one user's reaction to a message; the pair is unique, so
// reacting again replaces rather than stacks.
type Reaction struct {
	MessageId int
	UserId    int
	Reaction  string
	CreatedAt time.Time
}

type Token struct {
	Id        int
	Token     string
	UserId    int
	ExpiresAt time.Time
}

type File struct {
	Id        string
	MessageId int
	Path      string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username         string
	EmailAddress     string
	PasswordHash     string
	Role             string
	VerificationCode string
}

type CreateGroupChatParams struct {
	Title       string
	Description string
	OwnerId     int
	MemberIds   []int
}

type UpdateChatParams struct {
	ChatId      int
	Title       string
	Description string
}

type CreateMessageParams struct {
	ChatId   int
	AuthorId int
	Content  string
	FileIds  []string
}

type UpdateMessageParams struct {
	MessageId int
	Content   string
	FileIds   []string
}
