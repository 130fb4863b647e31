package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/project-rooms/internal/database"
	"github.com/npezzotti/project-rooms/internal/server"
	"github.com/npezzotti/project-rooms/internal/types"
)

type CreateMessageRequest struct {
	Content string `json:"content"`
}

type UpdateProjectRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (r UpdateProjectRequest) empty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil
}

type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	AssigneeId  *string `json:"assignee_id"`
}

func (r UpdateTaskRequest) empty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil &&
		r.Priority == nil && r.AssigneeId == nil
}

type PresenceResponse struct {
	Online []string `json:"online"`
}

func (s *ProjectRoomsApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ProjectRoomsApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ProjectRoomsApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, NewServiceUnavailableError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ProjectRoomsApp) getPresence(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, PresenceResponse{Online: s.publisher.OnlineUsers()})
}

func (s *ProjectRoomsApp) getMessages(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	if projectId == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	limit := database.DefaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, NewBadRequestError())
			return
		}
		limit = min(n, database.MaxMessageLimit)
	}

	if _, err := s.db.GetProject(projectId); err != nil {
		s.writeError(w, dbError(err))
		return
	}

	dbMsgs, err := s.db.ListMessages(projectId, limit)
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	msgs := make([]types.ChatMessage, 0, len(dbMsgs))
	for _, m := range dbMsgs {
		msgs = append(msgs, toChatMessage(m))
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *ProjectRoomsApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	projectId := r.PathValue("id")
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	content := strings.TrimSpace(req.Content)
	if projectId == "" || content == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbMsg, err := s.db.CreateMessage(database.CreateMessageParams{
		ProjectId: projectId,
		UserId:    userId,
		Content:   content,
	})
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	msg := toChatMessage(dbMsg)
	s.publisher.PublishChatMessage(projectId, msg)
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ProjectRoomsApp) updateProject(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	projectId := r.PathValue("id")
	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || projectId == "" || req.empty() {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbProject, err := s.db.UpdateProject(database.UpdateProjectParams{
		ProjectId:   projectId,
		OwnerId:     userId,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	project := toProject(dbProject)
	s.publisher.PublishProjectUpdate(project.Id, project)
	s.writeJson(w, http.StatusOK, project)
}

func (s *ProjectRoomsApp) updateTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	taskId := r.PathValue("id")
	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || taskId == "" || req.empty() {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbTask, err := s.db.UpdateTask(database.UpdateTaskParams{
		TaskId:      taskId,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeId:  req.AssigneeId,
	})
	if err != nil {
		s.writeError(w, dbError(err))
		return
	}

	task := toTask(dbTask)
	s.publisher.PublishTaskUpdate(task.ProjectId, task)
	s.writeJson(w, http.StatusOK, task)
}

// serveWs upgrades the request and starts the connection's pumps. The
// connection carries no identity until it announces a user.
func (s *ProjectRoomsApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client, err := server.NewClient(conn, s.cs, s.log)
	if err != nil {
		s.log.Println("error creating client:", err)
		conn.Close()
		return
	}

	s.cs.RegisterClient(client)

	go client.Write()
	go client.Read()
}

func toUser(u database.User) *types.User {
	return &types.User{
		Id:        u.Id,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func toChatMessage(m database.ChatMessage) types.ChatMessage {
	msg := types.ChatMessage{
		Id:        m.Id,
		Content:   m.Content,
		UserId:    m.UserId,
		ProjectId: m.ProjectId,
		CreatedAt: m.CreatedAt,
	}
	if m.User.Id != "" {
		msg.User = toUser(m.User)
	}

	return msg
}

func toProject(p database.Project) types.Project {
	return types.Project{
		Id:          p.Id,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		OwnerId:     p.OwnerId,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toTask(t database.Task) types.Task {
	return types.Task{
		Id:          t.Id,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		ProjectId:   t.ProjectId,
		AssigneeId:  t.AssigneeId,
		CreatedBy:   t.CreatedBy,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
