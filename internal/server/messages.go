package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// inbound events
const (
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventSendMessage    = "send-message"
	EventTaskUpdated    = "task-updated"
	EventProjectUpdated = "project-updated"
	EventTyping         = "typing"
	EventUserOnline     = "user-online"
)

// outbound events
const (
	EventNewMessage       = "new-message"
	EventTaskUpdate       = "task-update"
	EventProjectUpdate    = "project-update"
	EventUserTyping       = "user-typing"
	EventUserStatusChange = "user-status-change"
	EventError            = "error"
)

// ID is a project or user identifier. Clients send either JSON strings or
// numbers; both are normalized to their string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type MessagePayload struct {
	ProjectId ID              `json:"projectId"`
	Message   json.RawMessage `json:"message"`
}

type TaskPayload struct {
	ProjectId ID              `json:"projectId"`
	Task      json.RawMessage `json:"task"`
}

type ProjectPayload struct {
	ProjectId ID              `json:"projectId"`
	Project   json.RawMessage `json:"project"`
}

type TypingPayload struct {
	ProjectId ID              `json:"projectId"`
	User      json.RawMessage `json:"user"`
	IsTyping  bool            `json:"isTyping"`
}

// userKey identifies the typist of a typing payload. The user may be sent
// as an object with an id, or as a bare id.
func (p *TypingPayload) userKey() string {
	if !hasValue(p.User) {
		return ""
	}

	var obj struct {
		Id ID `json:"id"`
	}
	if err := json.Unmarshal(p.User, &obj); err == nil && obj.Id != "" {
		return string(obj.Id)
	}

	var id ID
	if err := json.Unmarshal(p.User, &id); err == nil {
		return string(id)
	}

	return ""
}

type ServerMessage struct {
	Event      string    `json:"event"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SkipClient *Client   `json:"-"`
}

type UserTyping struct {
	User     json.RawMessage `json:"user"`
	IsTyping bool            `json:"isTyping"`
}

type UserStatusChange struct {
	UserId string `json:"userId"`
	Online bool   `json:"online"`
}

type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// hasValue reports whether raw holds a JSON value other than null.
func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func NewServerMessage(event string, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func newErrorMessage(code int, msg, event string) *ServerMessage {
	return NewServerMessage(EventError, ErrorData{
		Code:    code,
		Message: msg,
		Event:   event,
	})
}

func ErrInvalidMessage(event string) *ServerMessage {
	return newErrorMessage(http.StatusBadRequest, "invalid message format", event)
}

func ErrUnknownEvent(event string) *ServerMessage {
	return newErrorMessage(http.StatusNotFound, "unknown event", event)
}

func ErrRateLimited(event string) *ServerMessage {
	return newErrorMessage(http.StatusTooManyRequests, "too many events", event)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
