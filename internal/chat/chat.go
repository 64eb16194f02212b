// Package chat decides who may do what in a chat and runs the
// membership lifecycle, including ownership transfer when a group
// chat's owner departs. Both the REST layer and the realtime gateway
// go through the same assertions here.
package chat

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/database"
	"github.com/avolkov/converse/internal/types"
)

// Notifier is the out-of-band seam into the realtime gateway: when a
// REST mutation changes membership, the gateway must drop the affected
// sockets from the room or the two would silently diverge.
type Notifier interface {
	EvictUser(chatId, userId int)
	ChatDeleted(chatId int)
}

type Service struct {
	log      zerolog.Logger
	db       database.Repository
	notifier Notifier
}

func NewService(logger zerolog.Logger, db database.Repository) *Service {
	return &Service{
		log: logger,
		db:  db,
	}
}

// SetNotifier wires the gateway in after construction; the gateway
// itself depends on this service for join checks.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func toChat(c database.Chat) types.Chat {
	return types.Chat{
		Id:          c.Id,
		ChatType:    c.ChatType,
		Title:       c.Title,
		Description: c.Description,
		OwnerId:     c.OwnerId,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (s *Service) getChat(chatId int) (database.Chat, error) {
	chat, err := s.db.GetChat(chatId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Chat{}, fmt.Errorf("chat %d: %w", chatId, apperr.ErrNotFound)
		}
		return database.Chat{}, fmt.Errorf("get chat %d: %w", chatId, err)
	}

	return chat, nil
}

// AssertParticipant fails with NotFound when the chat is absent and
// Forbidden when the identity has no participant edge. Admins bypass
// the edge check.
func (s *Service) AssertParticipant(identity types.Identity, chatId int) error {
	if _, err := s.getChat(chatId); err != nil {
		return err
	}

	if identity.IsAdmin() {
		return nil
	}

	ok, err := s.db.IsParticipant(chatId, identity.Id)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		s.log.Warn().Int("user_id", identity.Id).Int("chat_id", chatId).
			Msg("user is not a participant of the chat")
		return fmt.Errorf("user %d is not a participant of chat %d: %w",
			identity.Id, chatId, apperr.ErrForbidden)
	}

	return nil
}

func (s *Service) AssertOwner(identity types.Identity, chatId int) error {
	chat, err := s.getChat(chatId)
	if err != nil {
		return err
	}

	if identity.IsAdmin() {
		return nil
	}

	if chat.OwnerId != identity.Id {
		s.log.Warn().Int("user_id", identity.Id).Int("chat_id", chatId).
			Msg("user is not the owner of the chat")
		return fmt.Errorf("user %d is not the owner of chat %d: %w",
			identity.Id, chatId, apperr.ErrForbidden)
	}

	return nil
}

// AssertType guards operations that only make sense on one chat type,
// like adding members to a group chat.
func (s *Service) AssertType(chatId int, expected string) error {
	chat, err := s.getChat(chatId)
	if err != nil {
		return err
	}

	if chat.ChatType != expected {
		return fmt.Errorf("chat %d is not of type %s: %w", chatId, expected, apperr.ErrBadRequest)
	}

	return nil
}

func (s *Service) CreatePrivate(identity types.Identity, otherUserId int) (types.Chat, error) {
	if identity.Id == otherUserId {
		return types.Chat{}, fmt.Errorf("cannot create a private chat with yourself: %w", apperr.ErrBadRequest)
	}

	chat, err := s.db.CreatePrivateChat(identity.Id, otherUserId)
	if err != nil {
		if errors.Is(err, database.ErrForeignKey) {
			return types.Chat{}, fmt.Errorf("user %d: %w", otherUserId, apperr.ErrNotFound)
		}
		return types.Chat{}, fmt.Errorf("create private chat: %w", err)
	}

	s.log.Info().Int("chat_id", chat.Id).Int("user_id", identity.Id).
		Int("other_user_id", otherUserId).Msg("private chat created")

	return toChat(chat), nil
}

func (s *Service) CreateGroup(identity types.Identity, title, description string, memberIds []int) (types.Chat, error) {
	chat, err := s.db.CreateGroupChat(database.CreateGroupChatParams{
		Title:       title,
		Description: description,
		OwnerId:     identity.Id,
		MemberIds:   memberIds,
	})
	if err != nil {
		if errors.Is(err, database.ErrForeignKey) {
			return types.Chat{}, fmt.Errorf("member: %w", apperr.ErrNotFound)
		}
		return types.Chat{}, fmt.Errorf("create group chat: %w", err)
	}

	s.log.Info().Int("chat_id", chat.Id).Int("owner_id", identity.Id).Msg("group chat created")

	return toChat(chat), nil
}

func (s *Service) Get(identity types.Identity, chatId int) (types.Chat, error) {
	if err := s.AssertParticipant(identity, chatId); err != nil {
		return types.Chat{}, err
	}

	chat, err := s.getChat(chatId)
	if err != nil {
		return types.Chat{}, err
	}

	return toChat(chat), nil
}

func (s *Service) Update(identity types.Identity, chatId int, title, description string) (types.Chat, error) {
	if err := s.AssertType(chatId, types.ChatGroup); err != nil {
		return types.Chat{}, err
	}
	if err := s.AssertOwner(identity, chatId); err != nil {
		return types.Chat{}, err
	}

	chat, err := s.db.UpdateChat(database.UpdateChatParams{
		ChatId:      chatId,
		Title:       title,
		Description: description,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Chat{}, fmt.Errorf("chat %d: %w", chatId, apperr.ErrNotFound)
		}
		return types.Chat{}, fmt.Errorf("update chat: %w", err)
	}

	s.log.Info().Int("chat_id", chatId).Msg("chat updated")

	return toChat(chat), nil
}

func (s *Service) Delete(identity types.Identity, chatId int) error {
	if err := s.AssertOwner(identity, chatId); err != nil {
		return err
	}

	if err := s.db.DeleteChat(chatId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("chat %d: %w", chatId, apperr.ErrNotFound)
		}
		return fmt.Errorf("delete chat: %w", err)
	}

	s.log.Info().Int("chat_id", chatId).Msg("chat deleted")
	s.notifyChatDeleted(chatId)

	return nil
}

func (s *Service) Participants(identity types.Identity, chatId int) ([]types.User, error) {
	if err := s.AssertParticipant(identity, chatId); err != nil {
		return nil, err
	}

	dbUsers, err := s.db.ListParticipants(chatId)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	users := make([]types.User, len(dbUsers))
	for i, u := range dbUsers {
		users[i] = types.User{
			Id:       u.Id,
			Username: u.Username,
			Role:     u.Role,
			Verified: u.IsVerified,
		}
	}

	return users, nil
}

func (s *Service) AddParticipant(identity types.Identity, chatId, userId int) error {
	if err := s.AssertType(chatId, types.ChatGroup); err != nil {
		return err
	}
	if err := s.AssertParticipant(identity, chatId); err != nil {
		return err
	}

	if err := s.db.AddParticipant(chatId, userId); err != nil {
		switch {
		case errors.Is(err, database.ErrDuplicate):
			return fmt.Errorf("user %d is already a participant of chat %d: %w",
				userId, chatId, apperr.ErrBadRequest)
		case errors.Is(err, database.ErrForeignKey):
			return fmt.Errorf("user %d: %w", userId, apperr.ErrNotFound)
		default:
			return fmt.Errorf("add participant: %w", err)
		}
	}

	s.log.Info().Int("chat_id", chatId).Int("user_id", userId).Msg("participant added")

	return nil
}

// RemoveParticipant deletes a membership edge and resolves the fallout:
// removal from a private chat deletes the chat, removal of a group
// chat's owner elects a new owner atomically with the delete, and the
// gateway is told to evict the user's sockets in every case.
func (s *Service) RemoveParticipant(identity types.Identity, chatId, userId int) error {
	chat, err := s.getChat(chatId)
	if err != nil {
		return err
	}

	if !identity.IsAdmin() && identity.Id != chat.OwnerId && identity.Id != userId {
		return fmt.Errorf("user %d may not remove user %d from chat %d: %w",
			identity.Id, userId, chatId, apperr.ErrForbidden)
	}

	isParticipant, err := s.db.IsParticipant(chatId, userId)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return fmt.Errorf("user %d is not a participant of chat %d: %w",
			userId, chatId, apperr.ErrForbidden)
	}

	if chat.ChatType == types.ChatPrivate {
		// a private chat cannot exist with fewer than two members
		if err := s.db.DeleteChat(chatId); err != nil {
			return fmt.Errorf("delete private chat: %w", err)
		}

		s.log.Info().Int("chat_id", chatId).Msg("private chat deleted on participant removal")
		s.notifyChatDeleted(chatId)

		return nil
	}

	if chat.OwnerId != userId {
		if err := s.db.RemoveParticipant(chatId, userId); err != nil {
			return fmt.Errorf("remove participant: %w", err)
		}

		s.log.Info().Int("chat_id", chatId).Int("user_id", userId).Msg("participant removed")
		s.notifyEvictUser(chatId, userId)

		return nil
	}

	// the departing user owns the chat: hand ownership to a remaining
	// participant, or delete the chat when none remain
	newOwnerId, err := s.db.FindNextOwner(chatId, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			if err := s.db.DeleteChat(chatId); err != nil {
				return fmt.Errorf("delete empty group chat: %w", err)
			}

			s.log.Info().Int("chat_id", chatId).Msg("group chat deleted, no participants remain")
			s.notifyChatDeleted(chatId)

			return nil
		}
		return fmt.Errorf("find next owner: %w", err)
	}

	if err := s.db.TransferOwnerAndRemove(chatId, newOwnerId, userId); err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}

	s.log.Info().Int("chat_id", chatId).Int("old_owner_id", userId).
		Int("new_owner_id", newOwnerId).Msg("chat ownership transferred")
	s.notifyEvictUser(chatId, userId)

	return nil
}

func (s *Service) UpdateOwner(identity types.Identity, chatId, newOwnerId int) (types.Chat, error) {
	if err := s.AssertType(chatId, types.ChatGroup); err != nil {
		return types.Chat{}, err
	}
	if err := s.AssertOwner(identity, chatId); err != nil {
		return types.Chat{}, err
	}

	isParticipant, err := s.db.IsParticipant(chatId, newOwnerId)
	if err != nil {
		return types.Chat{}, fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return types.Chat{}, fmt.Errorf("new owner %d is not a participant of chat %d: %w",
			newOwnerId, chatId, apperr.ErrBadRequest)
	}

	chat, err := s.db.UpdateChatOwner(chatId, newOwnerId)
	if err != nil {
		return types.Chat{}, fmt.Errorf("update owner: %w", err)
	}

	s.log.Info().Int("chat_id", chatId).Int("new_owner_id", newOwnerId).Msg("chat owner updated")

	return toChat(chat), nil
}

func (s *Service) notifyEvictUser(chatId, userId int) {
	if s.notifier != nil {
		s.notifier.EvictUser(chatId, userId)
	}
}

func (s *Service) notifyChatDeleted(chatId int) {
	if s.notifier != nil {
		s.notifier.ChatDeleted(chatId)
	}
}
