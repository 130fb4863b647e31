package server

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/project-rooms/internal/config"
	"github.com/npezzotti/project-rooms/internal/stats"
	"golang.org/x/time/rate"
)

const (
	metricActiveClients = "active_connections"
	metricActiveRooms   = "active_rooms"
	metricOnlineUsers   = "online_users"
	metricBroadcasts    = "broadcast_events"
	metricDropped       = "dropped_events"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the connection registry, the project rooms and the
// presence set. One instance is built at startup and handed to every
// connection.
type ChatServer struct {
	log   *log.Logger
	stats stats.StatsProvider

	clients map[*Client]struct{}
	// userMap holds the connections that announced each online user.
	userMap     map[string]map[*Client]struct{}
	clientsLock sync.RWMutex

	rooms     map[string]*Room
	roomsLock sync.RWMutex

	typingTimeout time.Duration
	eventRate     rate.Limit
	eventBurst    int

	stop chan stopReq
}

func NewChatServer(logger *log.Logger, su stats.StatsProvider, cfg *config.Config) (*ChatServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cs := &ChatServer{
		log:           logger,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		rooms:         make(map[string]*Room),
		typingTimeout: cfg.TypingTimeout,
		eventRate:     rate.Limit(cfg.EventRate),
		eventBurst:    cfg.EventBurst,
		stop:          make(chan stopReq),
	}

	su.RegisterMetric(metricActiveClients)
	su.RegisterMetric(metricActiveRooms)
	su.RegisterMetric(metricOnlineUsers)
	su.RegisterCounter(metricBroadcasts)
	su.RegisterCounter(metricDropped)

	return cs, nil
}

// Run blocks until Shutdown, then stops every connection.
func (cs *ChatServer) Run() {
	req := <-cs.stop

	cs.log.Println("closing client connections")
	cs.clientsLock.RLock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.RUnlock()

	close(req.done)
}

// Shutdown stops Run and signals every connection to close.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient adds a new connection to the registry with no room
// memberships and returns its id.
func (cs *ChatServer) RegisterClient(c *Client) string {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		cs.clients[c] = struct{}{}
		cs.stats.Incr(metricActiveClients)
		cs.log.Printf("registered connection %q, %d active", c.id, len(cs.clients))
	}

	return c.id
}

// DeregisterClient is the only cleanup path for a connection: it leaves
// every room, clears the connection's typing leases, releases its presence
// and stops its writer. Calls after the first are no-ops.
func (cs *ChatServer) DeregisterClient(c *Client) {
	c.deregisterOnce.Do(func() {
		for _, projectId := range c.getRooms() {
			cs.Leave(c, projectId)
		}
		cs.clearTyping(c)

		cs.clientsLock.Lock()
		if _, ok := cs.clients[c]; ok {
			delete(cs.clients, c)
			cs.stats.Decr(metricActiveClients)
		}
		if c.userId != "" {
			cs.releaseUserLocked(c, c.userId)
		}
		cs.clientsLock.Unlock()

		c.stopClient()
		cs.log.Printf("deregistered connection %q", c.id)
	})
}

// Join adds c to the room of projectId, creating the room on first join.
// Joining twice is a no-op.
func (cs *ChatServer) Join(c *Client, projectId string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[projectId]
	if !ok {
		r = newRoom(projectId, cs.typingTimeout, cs.log)
		cs.rooms[projectId] = r
		cs.stats.Incr(metricActiveRooms)
	}

	r.addClient(c)
}

// Leave removes c from the room of projectId. Leaving a room c is not in
// is a no-op. An emptied room is dropped.
func (cs *ChatServer) Leave(c *Client, projectId string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[projectId]
	if !ok {
		return
	}

	if r.removeClient(c) {
		r.clearTyping(c)
	}

	if r.empty() {
		delete(cs.rooms, projectId)
		r.close()
		cs.stats.Decr(metricActiveRooms)
	}
}

func (cs *ChatServer) getRoom(projectId string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	r, ok := cs.rooms[projectId]
	return r, ok
}

// Members returns how many connections are joined to projectId.
func (cs *ChatServer) Members(projectId string) int {
	r, ok := cs.getRoom(projectId)
	if !ok {
		return 0
	}

	return r.numClients()
}

// BroadcastToRoom queues msg to a snapshot of the current members of
// projectId and returns how many received it. Empty or unknown rooms are a
// no-op.
func (cs *ChatServer) BroadcastToRoom(projectId string, msg *ServerMessage) int {
	r, ok := cs.getRoom(projectId)
	if !ok {
		return 0
	}

	delivered, dropped := r.broadcast(msg)
	cs.countBroadcast(dropped)
	return delivered
}

func (cs *ChatServer) countBroadcast(dropped int) {
	cs.stats.Incr(metricBroadcasts)
	for range dropped {
		cs.stats.Incr(metricDropped)
	}
}

// broadcastAllLocked queues msg to every registered connection from the
// caller's goroutine, so it keeps its place among that connection's room
// events. Callers hold clientsLock.
func (cs *ChatServer) broadcastAllLocked(msg *ServerMessage) {
	dropped := 0
	for c := range cs.clients {
		if c == msg.SkipClient {
			continue
		}

		if !c.queueMessage(msg) {
			dropped++
		}
	}

	cs.countBroadcast(dropped)
}

func (cs *ChatServer) clearTyping(c *Client) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	for _, r := range cs.rooms {
		r.clearTyping(c)
	}
}

// OnlineUsers returns the sorted ids of users with at least one announcing
// connection.
func (cs *ChatServer) OnlineUsers() []string {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	users := make([]string, 0, len(cs.userMap))
	for id := range cs.userMap {
		users = append(users, id)
	}
	sort.Strings(users)

	return users
}
