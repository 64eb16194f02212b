// Package api is the REST surface. Handlers translate HTTP into calls
// on the token authority, membership service and message pipeline; all
// business rules live behind those interfaces.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/config"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/files"
	"github.com/avolkov/converse/internal/server"
	"github.com/avolkov/converse/internal/token"
	"github.com/avolkov/converse/internal/types"
)

// TokenService is the token authority as the REST layer consumes it.
type TokenService interface {
	Issue(userId int, role string, verified bool) (token.Pair, error)
	Rotate(oldRefreshToken string) (token.Pair, error)
	VerifyAccess(tokenString string) (types.Identity, error)
	Revoke(tokenString string) error
	RevokeAll(userId int) error
}

type ChatService interface {
	CreatePrivate(identity types.Identity, otherUserId int) (types.Chat, error)
	CreateGroup(identity types.Identity, title, description string, memberIds []int) (types.Chat, error)
	Get(identity types.Identity, chatId int) (types.Chat, error)
	Update(identity types.Identity, chatId int, title, description string) (types.Chat, error)
	Delete(identity types.Identity, chatId int) error
	Participants(identity types.Identity, chatId int) ([]types.User, error)
	AddParticipant(identity types.Identity, chatId, userId int) error
	RemoveParticipant(identity types.Identity, chatId, userId int) error
	UpdateOwner(identity types.Identity, chatId, newOwnerId int) (types.Chat, error)
}

type MessageService interface {
	Create(identity types.Identity, chatId int, content string, fileIds []string) (types.Message, error)
	Get(identity types.Identity, messageId int) (types.Message, error)
	Update(identity types.Identity, messageId int, content string, fileIds []string) (types.Message, error)
	Delete(identity types.Identity, messageId int) (types.Message, error)
	ListPage(identity types.Identity, chatId, cursor, limit int) (types.MessagePage, error)
	AddReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error)
	UpdateReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error)
	RemoveReaction(identity types.Identity, messageId int) error
}

type App struct {
	log            zerolog.Logger
	db             database.Repository
	auth           TokenService
	chats          ChatService
	messages       MessageService
	files          files.Store
	cs             *server.ChatServer
	mux            *http.Server
	accessTTL      time.Duration
	refreshTTL     time.Duration
	allowedOrigins []string
}

func NewApp(logger zerolog.Logger, cfg *config.Config, db database.Repository, auth TokenService,
	chats ChatService, messages MessageService, fileStore files.Store, cs *server.ChatServer,
	metricsHandler http.Handler) *App {
	s := &App{
		log:            logger,
		db:             db,
		auth:           auth,
		chats:          chats,
		messages:       messages,
		files:          fileStore,
		cs:             cs,
		accessTTL:      cfg.AccessTokenTTL,
		refreshTTL:     cfg.RefreshTokenTTL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/refresh", s.refresh)
	mux.HandleFunc("POST /api/auth/verify/{code}", s.verify)
	mux.HandleFunc("POST /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/auth/logout-all", s.authMiddleware(s.logoutAll))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/chats/private", s.authMiddleware(s.createPrivateChat))
	mux.HandleFunc("POST /api/chats/group", s.authMiddleware(s.createGroupChat))
	mux.HandleFunc("GET /api/chats/{id}", s.authMiddleware(s.getChat))
	mux.HandleFunc("PUT /api/chats/{id}", s.authMiddleware(s.updateChat))
	mux.HandleFunc("DELETE /api/chats/{id}", s.authMiddleware(s.deleteChat))
	mux.HandleFunc("GET /api/chats/{id}/participants", s.authMiddleware(s.listParticipants))
	mux.HandleFunc("POST /api/chats/{id}/participants/{userId}", s.authMiddleware(s.addParticipant))
	mux.HandleFunc("DELETE /api/chats/{id}/participants/{userId}", s.authMiddleware(s.removeParticipant))
	mux.HandleFunc("PUT /api/chats/{id}/owner", s.authMiddleware(s.updateOwner))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.authMiddleware(s.listMessages))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.authMiddleware(s.createMessage))
	mux.HandleFunc("PUT /api/messages/{id}", s.authMiddleware(s.updateMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/messages/{id}/reactions", s.authMiddleware(s.addReaction))
	mux.HandleFunc("PUT /api/messages/{id}/reactions", s.authMiddleware(s.updateReaction))
	mux.HandleFunc("DELETE /api/messages/{id}/reactions", s.authMiddleware(s.removeReaction))
	mux.HandleFunc("POST /api/files", s.authMiddleware(s.uploadFiles))
	mux.HandleFunc("POST /api/blocks/{userId}", s.authMiddleware(s.blockUser))
	mux.HandleFunc("DELETE /api/blocks/{userId}", s.authMiddleware(s.unblockUser))
	mux.HandleFunc("GET /api/blocks", s.authMiddleware(s.listBlocks))
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
