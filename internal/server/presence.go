package server

// MarkOnline binds userId to c and announces the user online to every
// connection. A user stays online until the last connection that announced
// it disconnects or announces a different user.
func (cs *ChatServer) MarkOnline(c *Client, userId string) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		cs.log.Printf("ignoring user-online from unregistered connection %q", c.id)
		return
	}

	if c.userId != "" && c.userId != userId {
		cs.releaseUserLocked(c, c.userId)
	}
	c.userId = userId

	conns, ok := cs.userMap[userId]
	if !ok {
		conns = make(map[*Client]struct{})
		cs.userMap[userId] = conns
		cs.stats.Incr(metricOnlineUsers)
		cs.log.Printf("user %q is online", userId)
	}
	conns[c] = struct{}{}

	cs.broadcastAllLocked(NewServerMessage(EventUserStatusChange, UserStatusChange{
		UserId: userId,
		Online: true,
	}))
}

// IsOnline reports whether userId has at least one announcing connection.
func (cs *ChatServer) IsOnline(userId string) bool {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	return len(cs.userMap[userId]) > 0
}

// releaseUserLocked detaches c from userId and announces the user offline
// when it was the last connection. Callers hold clientsLock.
func (cs *ChatServer) releaseUserLocked(c *Client, userId string) {
	conns, ok := cs.userMap[userId]
	if !ok {
		return
	}

	delete(conns, c)
	if len(conns) > 0 {
		return
	}

	delete(cs.userMap, userId)
	cs.stats.Decr(metricOnlineUsers)
	cs.log.Printf("user %q is offline", userId)
	cs.broadcastAllLocked(NewServerMessage(EventUserStatusChange, UserStatusChange{
		UserId: userId,
		Online: false,
	}))
}
