package server

import (
	"encoding/json"

	"github.com/npezzotti/project-rooms/internal/types"
)

// The Publish methods are called by the API layer after a mutation has been
// written to the database. They never block on delivery and report nothing
// back to the writer.

func (cs *ChatServer) PublishChatMessage(projectId string, msg types.ChatMessage) {
	n := cs.BroadcastToRoom(projectId, NewServerMessage(EventNewMessage, msg))
	cs.log.Printf("published message %q to %d members of project %q", msg.Id, n, projectId)
}

func (cs *ChatServer) PublishTaskUpdate(projectId string, task types.Task) {
	n := cs.BroadcastToRoom(projectId, NewServerMessage(EventTaskUpdate, task))
	cs.log.Printf("published task %q to %d members of project %q", task.Id, n, projectId)
}

func (cs *ChatServer) PublishProjectUpdate(projectId string, project types.Project) {
	n := cs.BroadcastToRoom(projectId, NewServerMessage(EventProjectUpdate, project))
	cs.log.Printf("published project %q to %d members", project.Id, n)
}

// relay forwards a client-supplied entity to the room verbatim.
func (cs *ChatServer) relay(projectId, event string, data json.RawMessage) int {
	return cs.BroadcastToRoom(projectId, NewServerMessage(event, data))
}
