package types

import (
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	ChatPrivate = "PRIVATE"
	ChatGroup   = "GROUP"
)

// Identity is the authenticated caller as derived from an access token.
// Both the REST middleware and the realtime gateway produce it; nothing
// else carries per-request auth state.
type Identity struct {
	Id       int    `json:"id"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Role         string    `json:"role,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Chat struct {
	Id          int       `json:"id"`
	ChatType    string    `json:"chat_type"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	OwnerId     int       `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	ChatId    int       `json:"chat_id"`
	AuthorId  int       `json:"author_id"`
	Content   string    `json:"content"`
	FileIds   []string  `json:"file_ids,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Reaction struct {
	MessageId int       `json:"message_id"`
	UserId    int       `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// MessagePage is one page of a chat's history, newest first. NextCursor
// is the id to pass back to fetch the page before this one; nil when the
// page came up short.
type MessagePage struct {
	Items      []Message `json:"items"`
	NextCursor *int      `json:"next_cursor"`
	Limit      int       `json:"limit"`
	HasMore    bool      `json:"has_more"`
}
