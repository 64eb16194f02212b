package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/converse/internal/metrics"
	"github.com/avolkov/converse/internal/types"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	deleted bool
}

// Room fans out to every socket joined to one chat. All mutations for
// the chat funnel through its goroutine, so each broadcast is a single
// emit and follows pipeline-completion order.
type Room struct {
	chatId        int
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	serverMsgChan chan *ServerMessage
	evictChan     chan int
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           zerolog.Logger
	// killTimer unloads the room once it has been empty for a while
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Debug().Msg("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			r.handleMutation(msg)
		case msg := <-r.serverMsgChan:
			r.broadcast(msg)
			r.cs.stats.Incr(metrics.MessagesDelivered)
		case userId := <-r.evictChan:
			r.handleEvict(userId)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client
	if err := r.cs.chats.AssertParticipant(join.identity, r.chatId); err != nil {
		r.log.Debug().Err(err).Int("user_id", join.identity.Id).Msg("join rejected")
		c.queueMessage(ErrResponse(join.Id, err))

		// reset timer since the join failed
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	r.addClient(c)
	c.queueMessage(NoErrOK(join.Id, map[string]any{"chat_id": r.chatId}))
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)

	if leaveMsg.Id != 0 {
		// an explicit leave request, not a disconnect cleanup
		leaveMsg.client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

// handleMutation runs one mutation through the pipeline. The result is
// broadcast to the whole room; a failure is answered to the initiating
// socket only.
func (r *Room) handleMutation(msg *ClientMessage) {
	var (
		out *ServerMessage
		err error
	)

	switch {
	case msg.Create != nil:
		var created types.Message
		created, err = r.cs.messages.Create(msg.identity, r.chatId, msg.Create.Text, msg.Create.FileIds)
		if err == nil {
			out = &ServerMessage{
				BaseMessage:    BaseMessage{Timestamp: msg.Timestamp},
				CreatedMessage: &created,
			}
		}
	case msg.Update != nil:
		var updated types.Message
		updated, err = r.cs.messages.Update(msg.identity, msg.Update.MessageId, msg.Update.Text, msg.Update.FileIds)
		if err == nil {
			out = &ServerMessage{
				BaseMessage:    BaseMessage{Timestamp: msg.Timestamp},
				UpdatedMessage: &updated,
			}
		}
	case msg.Delete != nil:
		var deleted types.Message
		deleted, err = r.cs.messages.Delete(msg.identity, msg.Delete.MessageId)
		if err == nil {
			out = &ServerMessage{
				BaseMessage:    BaseMessage{Timestamp: msg.Timestamp},
				DeletedMessage: &deleted,
			}
		}
	default:
		msg.client.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	if err != nil {
		r.log.Debug().Err(err).Int("user_id", msg.identity.Id).Msg("mutation rejected")
		msg.client.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(out)
	r.cs.stats.Incr(metrics.MessagesDelivered)
}

func (r *Room) handleEvict(userId int) {
	r.log.Info().Int("user_id", userId).Msg("evicting user from room")
	r.removeAllClientsForUser(userId)
	r.cs.stats.Incr(metrics.EvictedUsers)
}

func (r *Room) handleRoomTimeout() {
	r.log.Debug().Msg("room timed out")
	select {
	case r.cs.unloadRoomChan <- r.chatId:
	default:
		// hub is busy; the timer restarts on the next leave
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Debug().Msg("room exiting")
	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				ChatDeleted: &ChatDeleted{ChatId: r.chatId},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.chatId)
	}
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.identity.Id] == nil {
		r.userMap[c.identity.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.identity.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.chatId)

	if userClients, ok := r.userMap[c.identity.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.identity.Id)
		}
	}

	r.log.Debug().Int("user_id", c.identity.Id).Msg("removed client from room")

	if len(r.clients) == 0 {
		r.log.Debug().Msg("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// removeAllClientsForUser drops every socket the user has in the room
// and tells each one it was evicted.
func (r *Room) removeAllClientsForUser(userId int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if userClients, ok := r.userMap[userId]; ok {
		for client := range userClients {
			delete(r.clients, client)
			client.delRoom(r.chatId)
			client.queueMessage(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				Notification: &Notification{
					Evicted: &Evicted{ChatId: r.chatId},
				},
			})
		}
		delete(r.userMap, userId)
	}

	if len(r.clients) == 0 {
		r.log.Debug().Msg("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		client.queueMessage(msg)
	}
}
