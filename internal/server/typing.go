package server

import (
	"encoding/json"
	"time"
)

type typingLease struct {
	client *Client
	user   json.RawMessage
	timer  *time.Timer
}

// SetTyping relays a typing state to the room of projectId, excluding c.
// Connections that have not joined the project are ignored.
func (cs *ChatServer) SetTyping(c *Client, projectId, userKey string, user json.RawMessage, isTyping bool) {
	if !c.inRoom(projectId) {
		cs.log.Printf("ignoring typing from %q outside project %q", c.id, projectId)
		return
	}

	r, ok := cs.getRoom(projectId)
	if !ok {
		return
	}

	_, dropped := r.setTyping(c, userKey, user, isTyping)
	cs.countBroadcast(dropped)
}

// setTyping records the typing state of userKey and relays it to the room,
// excluding the origin. A true state holds a lease that clears the
// indicator when it is not superseded within typingTimeout.
func (r *Room) setTyping(c *Client, userKey string, user json.RawMessage, isTyping bool) (delivered, dropped int) {
	r.typingLock.Lock()
	defer r.typingLock.Unlock()

	if lease, ok := r.typing[userKey]; ok {
		lease.timer.Stop()
		delete(r.typing, userKey)
	}

	if isTyping && r.typingTimeout > 0 {
		lease := &typingLease{client: c, user: user}
		lease.timer = time.AfterFunc(r.typingTimeout, func() {
			r.expireTyping(userKey, lease)
		})
		r.typing[userKey] = lease
	}

	return r.broadcast(&ServerMessage{
		Event:      EventUserTyping,
		Data:       UserTyping{User: user, IsTyping: isTyping},
		Timestamp:  Now(),
		SkipClient: c,
	})
}

func (r *Room) expireTyping(userKey string, lease *typingLease) {
	r.typingLock.Lock()
	defer r.typingLock.Unlock()

	// superseded after the timer fired
	if r.typing[userKey] != lease {
		return
	}

	delete(r.typing, userKey)
	r.log.Printf("typing lease for %q expired in project %q", userKey, r.projectId)
	r.broadcast(&ServerMessage{
		Event:      EventUserTyping,
		Data:       UserTyping{User: lease.user, IsTyping: false},
		Timestamp:  Now(),
		SkipClient: lease.client,
	})
}

// clearTyping ends every lease held by c and tells the room it stopped typing.
func (r *Room) clearTyping(c *Client) {
	r.typingLock.Lock()
	defer r.typingLock.Unlock()

	for key, lease := range r.typing {
		if lease.client != c {
			continue
		}

		lease.timer.Stop()
		delete(r.typing, key)
		r.broadcast(&ServerMessage{
			Event:      EventUserTyping,
			Data:       UserTyping{User: lease.user, IsTyping: false},
			Timestamp:  Now(),
			SkipClient: c,
		})
	}
}
