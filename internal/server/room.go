package server

import (
	"log"
	"sync"
	"time"
)

// Room is the set of connections currently joined to one project. It only
// exists while it has members.
type Room struct {
	projectId string
	log       *log.Logger
	// clientLock serializes membership changes with broadcasts so every
	// broadcast sees a complete member set and members observe one order.
	clients    map[*Client]struct{}
	clientLock sync.Mutex

	typingTimeout time.Duration
	typing        map[string]*typingLease
	typingLock    sync.Mutex
}

func newRoom(projectId string, typingTimeout time.Duration, l *log.Logger) *Room {
	return &Room{
		projectId:     projectId,
		log:           l,
		clients:       make(map[*Client]struct{}),
		typingTimeout: typingTimeout,
		typing:        make(map[string]*typingLease),
	}
}

// addClient reports whether c was newly added.
func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}

	r.clients[c] = struct{}{}
	c.addRoom(r.projectId)
	r.log.Printf("client %q joined project %q, %d members", c.id, r.projectId, len(r.clients))
	return true
}

// removeClient reports whether c was a member.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.projectId)
	r.log.Printf("client %q left project %q, %d members", c.id, r.projectId, len(r.clients))
	return true
}

func (r *Room) empty() bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	return len(r.clients) == 0
}

func (r *Room) numClients() int {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	return len(r.clients)
}

// broadcast queues msg to every member except msg.SkipClient and returns
// how many members got it and how many queues were full.
func (r *Room) broadcast(msg *ServerMessage) (delivered, dropped int) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if client.queueMessage(msg) {
			delivered++
		} else {
			dropped++
		}
	}

	return delivered, dropped
}

func (r *Room) close() {
	r.typingLock.Lock()
	defer r.typingLock.Unlock()

	for key, lease := range r.typing {
		lease.timer.Stop()
		delete(r.typing, key)
	}
	r.log.Printf("closed project room %q", r.projectId)
}
