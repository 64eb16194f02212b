package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged union of everything a connection can send.
// Exactly one of the event fields is set.
type ClientMessage struct {
	BaseMessage
	Join   *JoinRoom   `json:"joinRoom,omitempty"`
	Leave  *LeaveRoom  `json:"leaveRoom,omitempty"`
	Create *CreateMsg  `json:"createMessage,omitempty"`
	Update *UpdateMsg  `json:"updateMessage,omitempty"`
	Delete *DeleteMsg  `json:"deleteMessage,omitempty"`

	identity types.Identity `json:"-"`
	client   *Client        `json:"-"`
	// targetChatId routes update/delete events, whose payloads carry
	// only a message id, to the right room
	targetChatId int `json:"-"`
}

type JoinRoom struct {
	ChatId int `json:"chat_id"`
}

type LeaveRoom struct {
	ChatId int `json:"chat_id"`
}

type CreateMsg struct {
	ChatId  int      `json:"chat_id"`
	Text    string   `json:"text"`
	FileIds []string `json:"file_ids,omitempty"`
}

type UpdateMsg struct {
	MessageId int      `json:"message_id"`
	Text      string   `json:"text,omitempty"`
	FileIds   []string `json:"file_ids,omitempty"`
}

type DeleteMsg struct {
	MessageId int `json:"message_id"`
}

// ServerMessage is the outbound union. The mutation broadcasts use the
// event names clients subscribe to as their JSON keys.
type ServerMessage struct {
	BaseMessage
	Response       *Response      `json:"response,omitempty"`
	CreatedMessage *types.Message `json:"chatCreatedMessage,omitempty"`
	UpdatedMessage *types.Message `json:"chatUpdatedMessage,omitempty"`
	DeletedMessage *types.Message `json:"chatDeletedMessage,omitempty"`
	Notification   *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	ChatDeleted *ChatDeleted `json:"chat_deleted,omitempty"`
	Evicted     *Evicted     `json:"evicted,omitempty"`
}

type ChatDeleted struct {
	ChatId int `json:"chat_id"`
}

// Evicted tells a connection it was removed from a room out-of-band,
// e.g. after a REST mutation deleted its participant edge.
type Evicted struct {
	ChatId int `json:"chat_id"`
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrNotJoined(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "not joined to room",
		},
	}
}

// ErrResponse translates a taxonomy error into a connection-scoped
// error event. Only the category is exposed, never the cause.
func ErrResponse(id int, err error) *ServerMessage {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		code = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, apperr.ErrBadRequest):
		code = http.StatusBadRequest
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        strings.ToLower(http.StatusText(code)),
		},
	}
}
