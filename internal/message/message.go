// Package message is the mutation pipeline shared by the REST handlers
// and the realtime gateway, so both transports apply identical
// invariants: participation, blocked-pair suppression and author-only
// edits.
package message

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/types"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Validator is the slice of the membership service the pipeline needs.
type Validator interface {
	AssertParticipant(identity types.Identity, chatId int) error
}

type Service struct {
	log       zerolog.Logger
	db        database.Repository
	validator Validator
}

func NewService(logger zerolog.Logger, db database.Repository, validator Validator) *Service {
	return &Service{
		log:       logger,
		db:        db,
		validator: validator,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		ChatId:    m.ChatId,
		AuthorId:  m.AuthorId,
		Content:   m.Content,
		FileIds:   m.FileIds,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Create persists a message after the entitlement checks pass. In a
// private chat a block in either direction suppresses delivery before
// anything is written.
func (s *Service) Create(identity types.Identity, chatId int, content string, fileIds []string) (types.Message, error) {
	if err := s.validator.AssertParticipant(identity, chatId); err != nil {
		return types.Message{}, err
	}

	chat, err := s.db.GetChat(chatId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("chat %d: %w", chatId, apperr.ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("get chat: %w", err)
	}

	if chat.ChatType == types.ChatPrivate {
		if err := s.assertNotBlocked(identity.Id, chatId); err != nil {
			return types.Message{}, err
		}
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ChatId:   chatId,
		AuthorId: identity.Id,
		Content:  content,
		FileIds:  fileIds,
	})
	if err != nil {
		if errors.Is(err, database.ErrForeignKey) {
			return types.Message{}, fmt.Errorf("chat %d: %w", chatId, apperr.ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	s.log.Info().Int("message_id", msg.Id).Int("chat_id", chatId).
		Int("author_id", identity.Id).Msg("message created")

	return toMessage(msg), nil
}

func (s *Service) assertNotBlocked(authorId, chatId int) error {
	participants, err := s.db.ListParticipants(chatId)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	for _, p := range participants {
		if p.Id == authorId {
			continue
		}

		blocked, err := s.db.IsBlockedEither(authorId, p.Id)
		if err != nil {
			return fmt.Errorf("check blocked pair: %w", err)
		}
		if blocked {
			s.log.Warn().Int("author_id", authorId).Int("other_id", p.Id).
				Int("chat_id", chatId).Msg("message suppressed, blocked pair")
			return fmt.Errorf("blocked: %w", apperr.ErrForbidden)
		}
	}

	return nil
}

// Get returns a single message, visible to any participant of its chat.
func (s *Service) Get(identity types.Identity, messageId int) (types.Message, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("message %d: %w", messageId, apperr.ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("get message: %w", err)
	}

	if err := s.validator.AssertParticipant(identity, msg.ChatId); err != nil {
		return types.Message{}, err
	}

	return toMessage(msg), nil
}

func (s *Service) getOwned(identity types.Identity, messageId int) (database.Message, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Message{}, fmt.Errorf("message %d: %w", messageId, apperr.ErrNotFound)
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}

	if msg.AuthorId != identity.Id && !identity.IsAdmin() {
		return database.Message{}, fmt.Errorf("user %d is not the author of message %d: %w",
			identity.Id, messageId, apperr.ErrForbidden)
	}

	return msg, nil
}

func (s *Service) Update(identity types.Identity, messageId int, content string, fileIds []string) (types.Message, error) {
	if _, err := s.getOwned(identity, messageId); err != nil {
		return types.Message{}, err
	}

	msg, err := s.db.UpdateMessage(database.UpdateMessageParams{
		MessageId: messageId,
		Content:   content,
		FileIds:   fileIds,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("message %d: %w", messageId, apperr.ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	s.log.Info().Int("message_id", messageId).Msg("message updated")

	return toMessage(msg), nil
}

// Delete removes a message and returns it so the gateway can tell the
// room what disappeared.
func (s *Service) Delete(identity types.Identity, messageId int) (types.Message, error) {
	msg, err := s.getOwned(identity, messageId)
	if err != nil {
		return types.Message{}, err
	}

	if err := s.db.DeleteMessage(messageId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Message{}, fmt.Errorf("message %d: %w", messageId, apperr.ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("delete message: %w", err)
	}

	s.log.Info().Int("message_id", messageId).Msg("message deleted")

	return toMessage(msg), nil
}

// The reaction vocabulary is closed; anything else is rejected before
// the store is touched.
var validReactions = map[string]bool{
	"LIKE":  true,
	"LOVE":  true,
	"LAUGH": true,
	"SAD":   true,
	"ANGRY": true,
}

func toReaction(r database.Reaction) types.Reaction {
	return types.Reaction{
		MessageId: r.MessageId,
		UserId:    r.UserId,
		Reaction:  r.Reaction,
		CreatedAt: r.CreatedAt,
	}
}

// AddReaction records the caller's reaction to a message. One reaction
// per user per message; reacting twice is a bad request, UpdateReaction
// is the way to change it.
func (s *Service) AddReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error) {
	if !validReactions[reaction] {
		return types.Reaction{}, fmt.Errorf("unknown reaction %q: %w", reaction, apperr.ErrBadRequest)
	}

	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Reaction{}, fmt.Errorf("message %d: %w", messageId, apperr.ErrNotFound)
		}
		return types.Reaction{}, fmt.Errorf("get message: %w", err)
	}

	if err := s.validator.AssertParticipant(identity, msg.ChatId); err != nil {
		return types.Reaction{}, err
	}

	r, err := s.db.AddReaction(messageId, identity.Id, reaction)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Reaction{}, fmt.Errorf("user %d already reacted to message %d: %w",
				identity.Id, messageId, apperr.ErrBadRequest)
		}
		return types.Reaction{}, fmt.Errorf("add reaction: %w", err)
	}

	s.log.Info().Int("message_id", messageId).Int("user_id", identity.Id).
		Str("reaction", reaction).Msg("reaction added")

	return toReaction(r), nil
}

// UpdateReaction swaps the caller's existing reaction. The row is keyed
// by (message, user), so only the caller's own reaction is reachable.
func (s *Service) UpdateReaction(identity types.Identity, messageId int, reaction string) (types.Reaction, error) {
	if !validReactions[reaction] {
		return types.Reaction{}, fmt.Errorf("unknown reaction %q: %w", reaction, apperr.ErrBadRequest)
	}

	r, err := s.db.UpdateReaction(messageId, identity.Id, reaction)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Reaction{}, fmt.Errorf("user %d has no reaction on message %d: %w",
				identity.Id, messageId, apperr.ErrNotFound)
		}
		return types.Reaction{}, fmt.Errorf("update reaction: %w", err)
	}

	s.log.Info().Int("message_id", messageId).Int("user_id", identity.Id).
		Str("reaction", reaction).Msg("reaction updated")

	return toReaction(r), nil
}

func (s *Service) RemoveReaction(identity types.Identity, messageId int) error {
	if err := s.db.RemoveReaction(messageId, identity.Id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %d has no reaction on message %d: %w",
				identity.Id, messageId, apperr.ErrNotFound)
		}
		return fmt.Errorf("remove reaction: %w", err)
	}

	s.log.Info().Int("message_id", messageId).Int("user_id", identity.Id).Msg("reaction removed")

	return nil
}

// ListPage returns one page of history, newest first. The cursor is the
// last id the caller has seen; rows at or after it are skipped.
func (s *Service) ListPage(identity types.Identity, chatId, cursor, limit int) (types.MessagePage, error) {
	if err := s.validator.AssertParticipant(identity, chatId); err != nil {
		return types.MessagePage{}, err
	}

	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	msgs, err := s.db.ListMessages(chatId, cursor, limit)
	if err != nil {
		return types.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}

	page := types.MessagePage{
		Items:   make([]types.Message, len(msgs)),
		Limit:   limit,
		HasMore: len(msgs) == limit,
	}
	for i, m := range msgs {
		page.Items[i] = toMessage(m)
	}

	if page.HasMore {
		last := msgs[len(msgs)-1].Id
		page.NextCursor = &last
	}

	return page, nil
}
