package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
	lookupTimeout  = 5 * time.Second
)

// Client is one websocket session.
type Client struct {
	id         string
	conn       *websocket.Conn
	hub        *Hub
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	topics     map[string]struct{}
	topicsLock sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, h *Hub, l *log.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		hub:    h,
		log:    l,
		user:   user,
		send:   make(chan *ServerMessage, 256),
		topics: make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
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
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Subscribe != nil && msg.Subscribe.RoomId != "":
		c.subscribe(msg.Id, msg.Subscribe.RoomId)
	case msg.Unsubscribe != nil && msg.Unsubscribe.RoomId != "":
		c.hub.Unsubscribe(c, msg.Id, msg.Unsubscribe.RoomId)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) subscribe(id int, roomId string) {
	if c.hub.rooms != nil {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()

		ok, err := c.hub.rooms.RoomExists(ctx, roomId)
		if err != nil {
			c.log.Printf("room lookup %q: %v", roomId, err)
			c.queueMessage(ErrServiceUnavailable(id))
			return
		}
		if !ok {
			c.queueMessage(ErrRoomNotFound(id))
			return
		}
	}

	c.hub.Subscribe(c, id, roomId)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send channel full for session %s, dropping message", c.id)
		return false
	}

	return true
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup drops every subscription of the session. Room membership is
// untouched; a dropped connection is not a leave.
func (c *Client) cleanup() {
	c.hub.deRegister(c)
	c.stopClient()
}

func (c *Client) addTopic(id string) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()

	c.topics[id] = struct{}{}
}

func (c *Client) delTopic(id string) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()

	delete(c.topics, id)
}

func (c *Client) topicIds() []string {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()

	ids := make([]string, 0, len(c.topics))
	for id := range c.topics {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) subscribed(id string) bool {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()

	_, ok := c.topics[id]
	return ok
}
