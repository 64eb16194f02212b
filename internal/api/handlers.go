package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/server"
	"github.com/avolkov/converse/internal/types"
)

const maxUploadBytes = 32 << 20

type CreatePrivateChatRequest struct {
	UserId int `json:"user_id"`
}

type CreateGroupChatRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MemberIds   []int  `json:"member_ids"`
}

type UpdateChatRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type UpdateOwnerRequest struct {
	OwnerId int `json:"owner_id"`
}

type CreateMessageRequest struct {
	Content string   `json:"content"`
	FileIds []string `json:"file_ids,omitempty"`
}

type UpdateMessageRequest struct {
	Content string   `json:"content"`
	FileIds []string `json:"file_ids,omitempty"`
}

type ReactionRequest struct {
	Reaction string `json:"reaction"`
}

type UploadFilesResponse struct {
	FileIds []string `json:"file_ids"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *App) writeError(w http.ResponseWriter, err error) {
	errResp := FromError(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func pathInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.PathValue(key))
}

func (s *App) createPrivateChat(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req CreatePrivateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat, err := s.chats.CreatePrivate(identity, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, chat)
}

func (s *App) createGroupChat(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req CreateGroupChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Title == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat, err := s.chats.CreateGroup(identity, req.Title, req.Description, req.MemberIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, chat)
}

func (s *App) getChat(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat, err := s.chats.Get(identity, chatId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat)
}

func (s *App) updateChat(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat, err := s.chats.Update(identity, chatId, req.Title, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat)
}

func (s *App) deleteChat(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chats.Delete(identity, chatId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) listParticipants(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants, err := s.chats.Participants(identity, chatId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, participants)
}

func (s *App) addParticipant(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, err := pathInt(r, "userId")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chats.AddParticipant(identity, chatId, userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) removeParticipant(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, err := pathInt(r, "userId")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chats.RemoveParticipant(identity, chatId, userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) updateOwner(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chat, err := s.chats.UpdateOwner(identity, chatId, req.OwnerId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat)
}

func (s *App) listMessages(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var cursor, limit int
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		cursor, err = strconv.Atoi(cursorStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	page, err := s.messages.ListPage(identity, chatId, cursor, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, page)
}

func (s *App) createMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chatId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.messages.Create(identity, chatId, req.Content, req.FileIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastCreated(msg)
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *App) updateMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.messages.Update(identity, messageId, req.Content, req.FileIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastUpdated(msg)
	s.writeJson(w, http.StatusOK, msg)
}

func (s *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.messages.Delete(identity, messageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.cs.BroadcastDeleted(msg)
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) addReaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	reaction, err := s.messages.AddReaction(identity, messageId, req.Reaction)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, reaction)
}

func (s *App) updateReaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	reaction, err := s.messages.UpdateReaction(identity, messageId, req.Reaction)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, reaction)
}

func (s *App) removeReaction(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Verified {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, err := pathInt(r, "id")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.messages.RemoveReaction(identity, messageId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) uploadFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	uploads := make([][]byte, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		uploads = append(uploads, data)
	}

	ids, err := s.files.Create(uploads)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, UploadFilesResponse{FileIds: ids})
}

func (s *App) blockUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	userId, err := pathInt(r, "userId")
	if err != nil || userId == identity.Id {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.BlockUser(identity.Id, userId); err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrDuplicate):
			// blocking twice is a no-op
			w.WriteHeader(http.StatusNoContent)
			return
		case errors.Is(err, database.ErrForeignKey):
			errResp = NewNotFoundError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) unblockUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	userId, err := pathInt(r, "userId")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UnblockUser(identity.Id, userId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// unblocking a user who was never blocked is a no-op
			w.WriteHeader(http.StatusNoContent)
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *App) listBlocks(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	blocked, err := s.db.ListBlockedUsers(identity.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(blocked))
	for _, u := range blocked {
		users = append(users, toUser(u))
	}

	s.writeJson(w, http.StatusOK, users)
}

// serveWs performs the handshake auth itself instead of relying on the
// middleware: the connection needs the raw token for per-event
// re-verification, and an unverified account is rejected outright.
func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenCookie, err := r.Cookie(accessTokenCookie)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	identity, err := s.auth.VerifyAccess(tokenCookie.Value)
	if err != nil {
		s.log.Debug().Err(err).Msg("ws handshake rejected")
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !identity.Verified {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(identity, tokenCookie.Value, conn, s.cs, s.log)

	s.cs.RegisterChan <- client
	go client.Write()
	go client.Read()
}

func (s *App) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
