package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/types"
)

func authedRequest(method, target string, body *bytes.Buffer, identity types.Identity) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	return req.WithContext(WithIdentity(req.Context(), identity))
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	body, err := json.Marshal(v)
	assert.NoError(t, err, "failed to marshal request body")
	return bytes.NewBuffer(body)
}

func Test_healthz(t *testing.T) {
	tcases := []struct {
		name         string
		pingErr      error
		expectedCode int
	}{
		{
			name:         "healthy",
			pingErr:      nil,
			expectedCode: http.StatusOK,
		},
		{
			name:         "database unreachable",
			pingErr:      errors.New("connection refused"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			db.On("Ping").Return(tc.pingErr).Once()
			defer db.AssertExpectations(t)

			app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthz(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code %d", tc.expectedCode)
		})
	}
}

func Test_createPrivateChat(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("creates the chat", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("CreatePrivate", identity, 2).
			Return(types.Chat{Id: 10, ChatType: types.ChatPrivate}, nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/private",
			jsonBody(t, CreatePrivateChatRequest{UserId: 2}), identity)
		app.createPrivateChat(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		var chat types.Chat
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chat), "failed to decode response")
		assert.Equal(t, 10, chat.Id, "expected chat id to match")
		assert.Equal(t, types.ChatPrivate, chat.ChatType, "expected private chat type")
	})

	t.Run("self chat fails with 400", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("CreatePrivate", identity, 1).
			Return(types.Chat{}, fmt.Errorf("cannot create a private chat with yourself: %w", apperr.ErrBadRequest)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/private",
			jsonBody(t, CreatePrivateChatRequest{UserId: 1}), identity)
		app.createPrivateChat(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})

	t.Run("unknown user fails with 404", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("CreatePrivate", identity, 99).
			Return(types.Chat{}, fmt.Errorf("user 99: %w", apperr.ErrNotFound)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/private",
			jsonBody(t, CreatePrivateChatRequest{UserId: 99}), identity)
		app.createPrivateChat(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})
}

func Test_createGroupChat(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("creates the chat", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("CreateGroup", identity, "team", "daily chatter", []int{2, 3}).
			Return(types.Chat{Id: 11, ChatType: types.ChatGroup, Title: "team", OwnerId: 1}, nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/group",
			jsonBody(t, CreateGroupChatRequest{Title: "team", Description: "daily chatter", MemberIds: []int{2, 3}}), identity)
		app.createGroupChat(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		var chat types.Chat
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chat), "failed to decode response")
		assert.Equal(t, 1, chat.OwnerId, "expected creator to own the chat")
	})

	t.Run("missing title fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, &mockChatService{}, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/group",
			jsonBody(t, CreateGroupChatRequest{Description: "no title"}), identity)
		app.createGroupChat(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_getChat(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("returns the chat", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("Get", identity, 1).Return(types.Chat{Id: 1, ChatType: types.ChatGroup}, nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/1", nil, identity)
		req.SetPathValue("id", "1")
		app.getChat(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
	})

	t.Run("non-participant fails with 403", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("Get", identity, 2).
			Return(types.Chat{}, fmt.Errorf("not a participant: %w", apperr.ErrForbidden)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/2", nil, identity)
		req.SetPathValue("id", "2")
		app.getChat(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})

	t.Run("bad id fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, &mockChatService{}, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/abc", nil, identity)
		req.SetPathValue("id", "abc")
		app.getChat(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_updateChat(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	chats := &mockChatService{}
	chats.On("Update", identity, 1, "new title", "new description").
		Return(types.Chat{Id: 1, Title: "new title"}, nil).Once()
	defer chats.AssertExpectations(t)

	app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/chats/1",
		jsonBody(t, UpdateChatRequest{Title: "new title", Description: "new description"}), identity)
	req.SetPathValue("id", "1")
	app.updateChat(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
}

func Test_deleteChat(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("owner deletes the chat", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("Delete", identity, 1).Return(nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/chats/1", nil, identity)
		req.SetPathValue("id", "1")
		app.deleteChat(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("non-owner fails with 403", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("Delete", identity, 1).
			Return(fmt.Errorf("not the owner: %w", apperr.ErrForbidden)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/chats/1", nil, identity)
		req.SetPathValue("id", "1")
		app.deleteChat(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})
}

func Test_listParticipants(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	chats := &mockChatService{}
	chats.On("Participants", identity, 1).Return([]types.User{
		{Id: 1, Username: "alice"},
		{Id: 2, Username: "bob"},
	}, nil).Once()
	defer chats.AssertExpectations(t)

	app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/chats/1/participants", nil, identity)
	req.SetPathValue("id", "1")
	app.listParticipants(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

	var users []types.User
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&users), "failed to decode response")
	assert.Len(t, users, 2, "expected 2 participants")
}

func Test_addParticipant(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("adds the participant", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("AddParticipant", identity, 1, 3).Return(nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/1/participants/3", nil, identity)
		req.SetPathValue("id", "1")
		req.SetPathValue("userId", "3")
		app.addParticipant(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("duplicate participant fails with 400", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("AddParticipant", identity, 1, 3).
			Return(fmt.Errorf("already a participant: %w", apperr.ErrBadRequest)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/1/participants/3", nil, identity)
		req.SetPathValue("id", "1")
		req.SetPathValue("userId", "3")
		app.addParticipant(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_removeParticipant(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("removes the participant", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("RemoveParticipant", identity, 1, 3).Return(nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/chats/1/participants/3", nil, identity)
		req.SetPathValue("id", "1")
		req.SetPathValue("userId", "3")
		app.removeParticipant(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("bystander fails with 403", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("RemoveParticipant", identity, 1, 3).
			Return(fmt.Errorf("may not remove: %w", apperr.ErrForbidden)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/chats/1/participants/3", nil, identity)
		req.SetPathValue("id", "1")
		req.SetPathValue("userId", "3")
		app.removeParticipant(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})
}

func Test_updateOwner(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("transfers ownership", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("UpdateOwner", identity, 1, 2).
			Return(types.Chat{Id: 1, OwnerId: 2}, nil).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/chats/1/owner",
			jsonBody(t, UpdateOwnerRequest{OwnerId: 2}), identity)
		req.SetPathValue("id", "1")
		app.updateOwner(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

		var chat types.Chat
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chat), "failed to decode response")
		assert.Equal(t, 2, chat.OwnerId, "expected new owner id")
	})

	t.Run("non-participant owner fails with 400", func(t *testing.T) {
		chats := &mockChatService{}
		chats.On("UpdateOwner", identity, 1, 9).
			Return(types.Chat{}, fmt.Errorf("new owner is not a participant: %w", apperr.ErrBadRequest)).Once()
		defer chats.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, chats, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/chats/1/owner",
			jsonBody(t, UpdateOwnerRequest{OwnerId: 9}), identity)
		req.SetPathValue("id", "1")
		app.updateOwner(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_listMessages(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("passes cursor and limit through", func(t *testing.T) {
		next := 80
		messages := &mockMessageService{}
		messages.On("ListPage", identity, 1, 100, 20).Return(types.MessagePage{
			Items:      []types.Message{{Id: 99, ChatId: 1, Content: "hi"}},
			NextCursor: &next,
			Limit:      20,
			HasMore:    true,
		}, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/1/messages?cursor=100&limit=20", nil, identity)
		req.SetPathValue("id", "1")
		app.listMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

		var page types.MessagePage
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&page), "failed to decode response")
		assert.Len(t, page.Items, 1, "expected 1 message")
		assert.True(t, page.HasMore, "expected more pages")
		assert.NotNil(t, page.NextCursor, "expected next cursor")
		assert.Equal(t, 80, *page.NextCursor, "expected next cursor value")
	})

	t.Run("defaults apply without query params", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("ListPage", identity, 1, 0, 0).Return(types.MessagePage{
			Items: []types.Message{},
			Limit: 20,
		}, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/1/messages", nil, identity)
		req.SetPathValue("id", "1")
		app.listMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
	})

	t.Run("bad cursor fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, &mockMessageService{}, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodGet, "/api/chats/1/messages?cursor=abc", nil, identity)
		req.SetPathValue("id", "1")
		app.listMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_createMessage(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("creates the message", func(t *testing.T) {
		created := types.Message{Id: 5, ChatId: 1, AuthorId: 1, Content: "hello"}

		messages := &mockMessageService{}
		messages.On("Create", identity, 1, "hello", []string(nil)).Return(created, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/1/messages",
			jsonBody(t, CreateMessageRequest{Content: "hello"}), identity)
		req.SetPathValue("id", "1")
		app.createMessage(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		var msg types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msg), "failed to decode response")
		assert.Equal(t, created.Id, msg.Id, "expected message id to match")
	})

	t.Run("unverified account fails with 403", func(t *testing.T) {
		unverified := types.Identity{Id: 1, Role: types.RoleUser, Verified: false}

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, &mockMessageService{}, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/1/messages",
			jsonBody(t, CreateMessageRequest{Content: "hello"}), unverified)
		req.SetPathValue("id", "1")
		app.createMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})

	t.Run("blocked pair fails with 403", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("Create", identity, 1, "hello", []string(nil)).
			Return(types.Message{}, fmt.Errorf("blocked: %w", apperr.ErrForbidden)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/chats/1/messages",
			jsonBody(t, CreateMessageRequest{Content: "hello"}), identity)
		req.SetPathValue("id", "1")
		app.createMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})
}

func Test_updateMessage(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("updates the message", func(t *testing.T) {
		updated := types.Message{Id: 5, ChatId: 1, AuthorId: 1, Content: "edited"}

		messages := &mockMessageService{}
		messages.On("Update", identity, 5, "edited", []string(nil)).Return(updated, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/messages/5",
			jsonBody(t, UpdateMessageRequest{Content: "edited"}), identity)
		req.SetPathValue("id", "5")
		app.updateMessage(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
	})

	t.Run("non-author fails with 403", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("Update", identity, 5, "edited", []string(nil)).
			Return(types.Message{}, fmt.Errorf("not the author: %w", apperr.ErrForbidden)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/messages/5",
			jsonBody(t, UpdateMessageRequest{Content: "edited"}), identity)
		req.SetPathValue("id", "5")
		app.updateMessage(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})
}

func Test_deleteMessage(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("deletes the message", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("Delete", identity, 5).
			Return(types.Message{Id: 5, ChatId: 1, AuthorId: 1}, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/messages/5", nil, identity)
		req.SetPathValue("id", "5")
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("missing message fails with 404", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("Delete", identity, 5).
			Return(types.Message{}, fmt.Errorf("message 5: %w", apperr.ErrNotFound)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/messages/5", nil, identity)
		req.SetPathValue("id", "5")
		app.deleteMessage(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})
}

func Test_addReaction(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("adds the reaction", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("AddReaction", identity, 5, "LIKE").
			Return(types.Reaction{MessageId: 5, UserId: 1, Reaction: "LIKE"}, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/messages/5/reactions",
			jsonBody(t, ReactionRequest{Reaction: "LIKE"}), identity)
		req.SetPathValue("id", "5")
		app.addReaction(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		var reaction types.Reaction
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&reaction), "failed to decode response")
		assert.Equal(t, "LIKE", reaction.Reaction, "expected the reaction back")
	})

	t.Run("unverified account fails with 403", func(t *testing.T) {
		unverified := types.Identity{Id: 1, Role: types.RoleUser, Verified: false}

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, &mockMessageService{}, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/messages/5/reactions",
			jsonBody(t, ReactionRequest{Reaction: "LIKE"}), unverified)
		req.SetPathValue("id", "5")
		app.addReaction(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code 403")
	})

	t.Run("unknown reaction fails with 400", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("AddReaction", identity, 5, "SHRUG").
			Return(types.Reaction{}, fmt.Errorf("unknown reaction: %w", apperr.ErrBadRequest)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/messages/5/reactions",
			jsonBody(t, ReactionRequest{Reaction: "SHRUG"}), identity)
		req.SetPathValue("id", "5")
		app.addReaction(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_updateReaction(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("swaps the reaction", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("UpdateReaction", identity, 5, "LOVE").
			Return(types.Reaction{MessageId: 5, UserId: 1, Reaction: "LOVE"}, nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/messages/5/reactions",
			jsonBody(t, ReactionRequest{Reaction: "LOVE"}), identity)
		req.SetPathValue("id", "5")
		app.updateReaction(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")
	})

	t.Run("no existing reaction fails with 404", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("UpdateReaction", identity, 5, "LOVE").
			Return(types.Reaction{}, fmt.Errorf("no reaction: %w", apperr.ErrNotFound)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPut, "/api/messages/5/reactions",
			jsonBody(t, ReactionRequest{Reaction: "LOVE"}), identity)
		req.SetPathValue("id", "5")
		app.updateReaction(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})
}

func Test_removeReaction(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("removes the reaction", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("RemoveReaction", identity, 5).Return(nil).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/messages/5/reactions", nil, identity)
		req.SetPathValue("id", "5")
		app.removeReaction(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("no existing reaction fails with 404", func(t *testing.T) {
		messages := &mockMessageService{}
		messages.On("RemoveReaction", identity, 5).
			Return(fmt.Errorf("no reaction: %w", apperr.ErrNotFound)).Once()
		defer messages.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, messages, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/messages/5/reactions", nil, identity)
		req.SetPathValue("id", "5")
		app.removeReaction(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})
}

func Test_uploadFiles(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("stores the uploads", func(t *testing.T) {
		fileStore := &mockFileStore{}
		fileStore.On("Create", [][]byte{[]byte("first"), []byte("second")}).
			Return([]string{"id1", "id2"}, nil).Once()
		defer fileStore.AssertExpectations(t)

		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, nil, fileStore)

		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		for i, content := range []string{"first", "second"} {
			part, err := mw.CreateFormFile("files", fmt.Sprintf("file%d.txt", i))
			assert.NoError(t, err, "failed to create form file")
			_, err = part.Write([]byte(content))
			assert.NoError(t, err, "failed to write form file")
		}
		assert.NoError(t, mw.Close(), "failed to close multipart writer")

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/files", body, identity)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		app.uploadFiles(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code 201")

		var resp UploadFilesResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "failed to decode response")
		assert.Equal(t, []string{"id1", "id2"}, resp.FileIds, "expected file ids to match")
	})

	t.Run("no files fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, nil, &mockFileStore{})

		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		assert.NoError(t, mw.Close(), "failed to close multipart writer")

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/files", body, identity)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		app.uploadFiles(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})

	t.Run("non-multipart body fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, nil, &mockFileStore{})

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/files",
			bytes.NewBuffer([]byte(strings.Repeat("x", 16))), identity)
		app.uploadFiles(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_blockUser(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("blocks the user", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("BlockUser", 1, 2).Return(nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/blocks/2", nil, identity)
		req.SetPathValue("userId", "2")
		app.blockUser(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("blocking twice is a no-op", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("BlockUser", 1, 2).Return(database.ErrDuplicate).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/blocks/2", nil, identity)
		req.SetPathValue("userId", "2")
		app.blockUser(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("unknown user fails with 404", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("BlockUser", 1, 99).Return(database.ErrForeignKey).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/blocks/99", nil, identity)
		req.SetPathValue("userId", "99")
		app.blockUser(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code 404")
	})

	t.Run("self block fails with 400", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/blocks/1", nil, identity)
		req.SetPathValue("userId", "1")
		app.blockUser(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code 400")
	})
}

func Test_unblockUser(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	t.Run("unblocks the user", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("UnblockUser", 1, 2).Return(nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/blocks/2", nil, identity)
		req.SetPathValue("userId", "2")
		app.unblockUser(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})

	t.Run("unblocking a user who was never blocked is a no-op", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("UnblockUser", 1, 2).Return(database.ErrNotFound).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodDelete, "/api/blocks/2", nil, identity)
		req.SetPathValue("userId", "2")
		app.unblockUser(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code 204")
	})
}

func Test_listBlocks(t *testing.T) {
	identity := types.Identity{Id: 1, Role: types.RoleUser, Verified: true}

	db := &database.MockRepository{}
	db.On("ListBlockedUsers", 1).Return([]database.User{
		{Id: 2, Username: "blockedone"},
	}, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db, &mockTokenService{}, nil, nil, nil)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/blocks", nil, identity)
	app.listBlocks(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

	var users []types.User
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&users), "failed to decode response")
	assert.Len(t, users, 1, "expected 1 blocked user")
	assert.Equal(t, 2, users[0].Id, "expected blocked user id")
}
