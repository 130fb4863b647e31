package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/project-rooms/internal/config"
	"github.com/npezzotti/project-rooms/internal/stats"
	"github.com/npezzotti/project-rooms/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestChatServer creates a ChatServer whose stats mock expects metric
// registration only.
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) *ChatServer {
	return newTestChatServerWithConfig(t, su, &config.Config{
		TypingTimeout: 0,
		EventRate:     1000,
		EventBurst:    1000,
	})
}

func newTestChatServerWithConfig(t *testing.T, su *stats.MockStatsUpdater, cfg *config.Config) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return().Times(3)
	su.On("RegisterCounter", mock.Anything).Return().Times(2)

	cs, err := NewChatServer(testutil.TestLogger(t), su, cfg)
	require.NoError(t, err, "failed to create test ChatServer")
	return cs
}

// permissiveStats accepts any metric update.
func permissiveStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	return su
}

var clientSeq int

func newTestClient(t *testing.T, cs *ChatServer) *Client {
	clientSeq++
	return &Client{
		id:         fmt.Sprintf("conn-%d", clientSeq),
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, 64),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

// newRegisteredClient creates a client and registers it, as serveWs does.
func newRegisteredClient(t *testing.T, cs *ChatServer) *Client {
	c := newTestClient(t, cs)
	cs.RegisterClient(c)
	return c
}

func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("expected a message for client %q", c.id)
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Errorf("expected no message for client %q, got %q", c.id, msg.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func roomHasClient(r *Room, c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	_, ok := r.clients[c]
	return ok
}

func roomIsTyping(r *Room, userKey string) bool {
	r.typingLock.Lock()
	defer r.typingLock.Unlock()

	_, ok := r.typing[userKey]
	return ok
}
