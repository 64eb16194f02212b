package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/apperr"
	"github.com/avolkov/converse/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. It keeps only the raw access
// token presented at the handshake; identity is re-derived from it on
// every inbound event, so an expired token cuts the connection off from
// further actions without tearing it down.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	identity   types.Identity
	rawToken   string
	send       chan *ServerMessage
	rooms      map[int]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(identity types.Identity, rawToken string, conn *websocket.Conn, cs *ChatServer, logger zerolog.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        logger,
		identity:   identity,
		rawToken:   rawToken,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[int]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		identity, err := c.authenticate()
		if err != nil {
			c.log.Debug().Err(err).Msg("event rejected, authentication failed")
			c.queueMessage(ErrResponse(msg.Id, err))
			continue
		}

		msg.client = c
		msg.identity = identity
		msg.Timestamp = Now()

		switch {
		case msg.Join != nil:
			c.joinRoom(&msg)
		case msg.Leave != nil:
			c.leaveRoom(&msg)
		case msg.Create != nil:
			c.routeMutation(&msg, msg.Create.ChatId)
		case msg.Update != nil:
			c.resolveAndRoute(&msg, msg.Update.MessageId)
		case msg.Delete != nil:
			c.resolveAndRoute(&msg, msg.Delete.MessageId)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

// authenticate re-verifies the handshake token. Every event handler
// calls this first; a connection whose token has expired since the
// handshake can no longer act.
func (c *Client) authenticate() (types.Identity, error) {
	identity, err := c.chatServer.auth.VerifyAccess(c.rawToken)
	if err != nil {
		return types.Identity{}, err
	}

	if !identity.Verified {
		return types.Identity{}, fmt.Errorf("account not verified: %w", apperr.ErrForbidden)
	}

	return identity, nil
}

func (c *Client) joinRoom(msg *ClientMessage) {
	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Warn().Msg("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	r := c.getRoom(msg.Leave.ChatId)
	if r == nil {
		c.queueMessage(ErrNotJoined(msg.Id))
		return
	}

	select {
	case r.leaveChan <- msg:
	default:
		c.log.Warn().Int("chat_id", r.chatId).Msg("leaveChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// resolveAndRoute looks up which chat a message-targeted event belongs
// to before handing it to that chat's room.
func (c *Client) resolveAndRoute(msg *ClientMessage, messageId int) {
	target, err := c.chatServer.messages.Get(msg.identity, messageId)
	if err != nil {
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	msg.targetChatId = target.ChatId
	c.routeMutation(msg, target.ChatId)
}

// routeMutation delivers a mutation to the chat's room goroutine,
// loading the room through the hub when this connection isn't joined.
func (c *Client) routeMutation(msg *ClientMessage, chatId int) {
	if r := c.getRoom(chatId); r != nil {
		select {
		case r.clientMsgChan <- msg:
		default:
			c.log.Warn().Int("chat_id", r.chatId).Msg("clientMsgChan full")
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	msg.targetChatId = chatId
	select {
	case c.chatServer.eventChan <- msg:
	default:
		c.log.Warn().Msg("eventChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) cleanup() {
	select {
	case c.chatServer.deRegisterChan <- c:
	case <-c.chatServer.stop:
	}

	c.leaveAllRooms()
	c.stopClient()
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		leave := &ClientMessage{
			Leave:    &LeaveRoom{ChatId: room.chatId},
			identity: c.identity,
			client:   c,
		}
		select {
		case room.leaveChan <- leave:
		case <-room.done:
		}
	}
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.chatId] = r
}

func (c *Client) delRoom(chatId int) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, chatId)
}

func (c *Client) getRoom(chatId int) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[chatId]; ok {
		return room
	}

	return nil
}
