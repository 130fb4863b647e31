package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

type eventHandler func(c *Client, msg *ClientMessage)

// eventHandlers dispatches inbound events by name.
var eventHandlers = map[string]eventHandler{
	EventJoinProject:    (*Client).handleJoin,
	EventLeaveProject:   (*Client).handleLeave,
	EventSendMessage:    (*Client).handleSendMessage,
	EventTaskUpdated:    (*Client).handleTaskUpdated,
	EventProjectUpdated: (*Client).handleProjectUpdated,
	EventTyping:         (*Client).handleTyping,
	EventUserOnline:     (*Client).handleUserOnline,
}

// Client is one live socket connection.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	limiter    *rate.Limiter
	send       chan *ServerMessage
	rooms      map[string]struct{}
	roomsLock  sync.RWMutex
	// userId is set once the connection announces a user. Only the
	// connection's read loop writes it.
	userId string

	stop           chan struct{}
	stopOnce       sync.Once
	deregisterOnce sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		limiter:    rate.NewLimiter(cs.eventRate, cs.eventBurst),
		send:       make(chan *ServerMessage, sendBufferSize),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}, nil
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for %q", c.id)
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read processes inbound events until the connection fails, then runs the
// connection's cleanup.
func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.chatServer.DeregisterClient(c)
		c.log.Printf("read exiting for %q", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.handleMessage(raw)
	}
}

// handleMessage decodes one inbound frame and dispatches it. Bad input is
// answered with an error event and never closes the connection.
func (c *Client) handleMessage(raw []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Printf("rate limit exceeded for %q", c.id)
		c.queueMessage(ErrRateLimited(""))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Println("error parsing message:", err)
		c.queueMessage(ErrInvalidMessage(""))
		return
	}

	handler, ok := eventHandlers[msg.Event]
	if !ok {
		c.log.Printf("unknown event %q from %q", msg.Event, c.id)
		c.queueMessage(ErrUnknownEvent(msg.Event))
		return
	}

	handler(c, &msg)
}

// decodePayload unmarshals msg.Data into v, answering the sender on failure.
func (c *Client) decodePayload(msg *ClientMessage, v any) bool {
	if !hasValue(msg.Data) {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return false
	}

	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.log.Printf("invalid %q payload from %q: %v", msg.Event, c.id, err)
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return false
	}

	return true
}

func (c *Client) decodeId(msg *ClientMessage) (string, bool) {
	var id ID
	if !c.decodePayload(msg, &id) {
		return "", false
	}

	if id == "" {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return "", false
	}

	return string(id), true
}

func (c *Client) handleJoin(msg *ClientMessage) {
	projectId, ok := c.decodeId(msg)
	if !ok {
		return
	}

	c.chatServer.Join(c, projectId)
}

func (c *Client) handleLeave(msg *ClientMessage) {
	projectId, ok := c.decodeId(msg)
	if !ok {
		return
	}

	c.chatServer.Leave(c, projectId)
}

func (c *Client) handleSendMessage(msg *ClientMessage) {
	var p MessagePayload
	if !c.decodePayload(msg, &p) {
		return
	}

	if p.ProjectId == "" || !hasValue(p.Message) {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return
	}

	c.chatServer.relay(string(p.ProjectId), EventNewMessage, p.Message)
}

func (c *Client) handleTaskUpdated(msg *ClientMessage) {
	var p TaskPayload
	if !c.decodePayload(msg, &p) {
		return
	}

	if p.ProjectId == "" || !hasValue(p.Task) {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return
	}

	c.chatServer.relay(string(p.ProjectId), EventTaskUpdate, p.Task)
}

func (c *Client) handleProjectUpdated(msg *ClientMessage) {
	var p ProjectPayload
	if !c.decodePayload(msg, &p) {
		return
	}

	if p.ProjectId == "" || !hasValue(p.Project) {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return
	}

	c.chatServer.relay(string(p.ProjectId), EventProjectUpdate, p.Project)
}

func (c *Client) handleTyping(msg *ClientMessage) {
	var p TypingPayload
	if !c.decodePayload(msg, &p) {
		return
	}

	if p.ProjectId == "" {
		c.queueMessage(ErrInvalidMessage(msg.Event))
		return
	}

	key := p.userKey()
	if key == "" {
		key = c.userId
	}
	if key == "" {
		key = c.id
	}

	c.chatServer.SetTyping(c, string(p.ProjectId), key, p.User, p.IsTyping)
}

func (c *Client) handleUserOnline(msg *ClientMessage) {
	userId, ok := c.decodeId(msg)
	if !ok {
		return
	}

	c.chatServer.MarkOnline(c, userId)
}

// queueMessage hands msg to the writer without blocking. It reports false
// when the connection is stopped or its buffer is full.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for %q, dropping %q", c.id, msg.Event)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
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
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) addRoom(projectId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[projectId] = struct{}{}
}

func (c *Client) delRoom(projectId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, projectId)
}

func (c *Client) getRooms() []string {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}

	return rooms
}

func (c *Client) inRoom(projectId string) bool {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	_, ok := c.rooms[projectId]
	return ok
}
