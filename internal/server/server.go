// Package server is the realtime gateway. A single ChatServer goroutine
// owns the room table; each room runs its own goroutine which serializes
// every mutation for that chat, so broadcasts leave in the order the
// pipeline completed them.
package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/metrics"
	"github.com/avolkov/converse/internal/types"
)

// TokenVerifier re-derives the caller's identity from a raw access
// token. The gateway calls it once per inbound event.
type TokenVerifier interface {
	VerifyAccess(tokenString string) (types.Identity, error)
}

// Memberships is the slice of the membership service rooms consult on
// join.
type Memberships interface {
	AssertParticipant(identity types.Identity, chatId int) error
}

// Messages is the mutation pipeline as the gateway sees it.
type Messages interface {
	Get(identity types.Identity, messageId int) (types.Message, error)
	Create(identity types.Identity, chatId int, content string, fileIds []string) (types.Message, error)
	Update(identity types.Identity, messageId int, content string, fileIds []string) (types.Message, error)
	Delete(identity types.Identity, messageId int) (types.Message, error)
}

type evictReq struct {
	chatId int
	userId int
}

type roomEvent struct {
	chatId int
	msg    *ServerMessage
}

type ChatServer struct {
	log            zerolog.Logger
	auth           TokenVerifier
	chats          Memberships
	messages       Messages
	stats          metrics.Provider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	rooms          map[int]*Room
	joinChan       chan *ClientMessage
	eventChan      chan *ClientMessage
	broadcastChan  chan roomEvent
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	evictChan      chan evictReq
	deleteChan     chan int
	unloadRoomChan chan int
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger zerolog.Logger, auth TokenVerifier, chats Memberships, messages Messages, stats metrics.Provider) *ChatServer {
	stats.RegisterMetric(metrics.ActiveConnections)
	stats.RegisterMetric(metrics.ActiveRooms)
	stats.RegisterMetric(metrics.MessagesDelivered)
	stats.RegisterMetric(metrics.EvictedUsers)

	return &ChatServer{
		log:            logger,
		auth:           auth,
		chats:          chats,
		messages:       messages,
		stats:          stats,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[int]*Room),
		joinChan:       make(chan *ClientMessage, 256),
		eventChan:      make(chan *ClientMessage, 256),
		broadcastChan:  make(chan roomEvent, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		evictChan:      make(chan evictReq, 256),
		deleteChan:     make(chan int),
		unloadRoomChan: make(chan int),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			room := cs.findOrCreateRoom(joinMsg.Join.ChatId)
			select {
			case room.joinChan <- joinMsg:
			default:
				cs.log.Warn().Int("chat_id", room.chatId).Msg("join channel full")
				joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
			}
		case msg := <-cs.eventChan:
			// mutation from a connection that never joined the room;
			// the room goroutine still runs it so ordering holds
			room := cs.findOrCreateRoom(chatIdFor(msg))
			select {
			case room.clientMsgChan <- msg:
			default:
				cs.log.Warn().Int("chat_id", room.chatId).Msg("message channel full")
				msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		case ev := <-cs.broadcastChan:
			if room, ok := cs.rooms[ev.chatId]; ok {
				select {
				case room.serverMsgChan <- ev.msg:
				default:
					cs.log.Warn().Int("chat_id", ev.chatId).Msg("broadcast channel full")
				}
			}
		case client := <-cs.RegisterChan:
			cs.log.Debug().Int("user_id", client.identity.Id).Msg("registering connection")
			cs.addClient(client)
			cs.stats.Incr(metrics.ActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.log.Debug().Int("user_id", client.identity.Id).Msg("deregistering connection")
			cs.removeClient(client)
			cs.stats.Decr(metrics.ActiveConnections)
		case ev := <-cs.evictChan:
			if room, ok := cs.rooms[ev.chatId]; ok {
				select {
				case room.evictChan <- ev.userId:
				default:
					cs.log.Warn().Int("chat_id", ev.chatId).Msg("evict channel full")
				}
			}
		case chatId := <-cs.deleteChan:
			if room, ok := cs.rooms[chatId]; ok {
				cs.unloadRoom(chatId)
				room.exit <- exitReq{deleted: true}
				<-room.done
			}
		case chatId := <-cs.unloadRoomChan:
			if room, ok := cs.rooms[chatId]; ok {
				cs.unloadRoom(chatId)
				room.exit <- exitReq{}
				<-room.done
			}
		case <-cs.stop:
			cs.log.Info().Msg("shutting down rooms")
			for _, room := range cs.rooms {
				room.exit <- exitReq{}
				<-room.done
			}

			close(cs.done)
			return
		}
	}
}

// chatIdFor resolves the room a mutation belongs to. Update and delete
// events were already resolved against the store by the client
// goroutine.
func chatIdFor(msg *ClientMessage) int {
	switch {
	case msg.Create != nil:
		return msg.Create.ChatId
	default:
		return msg.targetChatId
	}
}

func (cs *ChatServer) findOrCreateRoom(chatId int) *Room {
	if room, ok := cs.rooms[chatId]; ok {
		return room
	}

	room := &Room{
		chatId:        chatId,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		serverMsgChan: make(chan *ServerMessage, 256),
		evictChan:     make(chan int, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log.With().Int("chat_id", chatId).Logger(),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}

	cs.rooms[chatId] = room
	cs.stats.Incr(metrics.ActiveRooms)

	go room.start()

	return room
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) unloadRoom(chatId int) {
	if _, ok := cs.rooms[chatId]; ok {
		cs.log.Debug().Int("chat_id", chatId).Msg("removing room")
		delete(cs.rooms, chatId)
		cs.stats.Decr(metrics.ActiveRooms)
	}
}

// EvictUser removes every socket the user has in the chat's room. It is
// called by the membership service after a REST mutation deletes the
// participant edge, keeping room state consistent with the store.
func (cs *ChatServer) EvictUser(chatId, userId int) {
	select {
	case cs.evictChan <- evictReq{chatId: chatId, userId: userId}:
	case <-cs.stop:
	}
}

// ChatDeleted broadcasts the deletion to the room and tears it down.
func (cs *ChatServer) ChatDeleted(chatId int) {
	select {
	case cs.deleteChan <- chatId:
	case <-cs.stop:
	}
}

// BroadcastCreated pushes a message persisted outside the gateway (the
// REST handlers) to the chat's room. No-op when nobody is joined.
func (cs *ChatServer) BroadcastCreated(msg types.Message) {
	cs.broadcastToRoom(msg.ChatId, &ServerMessage{
		BaseMessage:    BaseMessage{Timestamp: Now()},
		CreatedMessage: &msg,
	})
}

func (cs *ChatServer) BroadcastUpdated(msg types.Message) {
	cs.broadcastToRoom(msg.ChatId, &ServerMessage{
		BaseMessage:    BaseMessage{Timestamp: Now()},
		UpdatedMessage: &msg,
	})
}

func (cs *ChatServer) BroadcastDeleted(msg types.Message) {
	cs.broadcastToRoom(msg.ChatId, &ServerMessage{
		BaseMessage:    BaseMessage{Timestamp: Now()},
		DeletedMessage: &msg,
	})
}

func (cs *ChatServer) broadcastToRoom(chatId int, msg *ServerMessage) {
	select {
	case cs.broadcastChan <- roomEvent{chatId: chatId, msg: msg}:
	case <-cs.stop:
	}
}

func (cs *ChatServer) Shutdown() {
	cs.log.Info().Msg("received shutdown signal")
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	<-cs.done
}
