package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/project-rooms/internal/config"
	"github.com/npezzotti/project-rooms/internal/database"
	"github.com/npezzotti/project-rooms/internal/server"
	"github.com/npezzotti/project-rooms/internal/stats"
	"github.com/npezzotti/project-rooms/internal/testutil"
	"github.com/npezzotti/project-rooms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, db database.ProjectRepository, pub Publisher) *ProjectRoomsApp {
	return &ProjectRoomsApp{
		log:        testutil.TestLogger(t),
		db:         db,
		publisher:  pub,
		signingKey: testSigningKey,
	}
}

// serveAuthed routes req through a mux so path values resolve.
func serveAuthed(app *ProjectRoomsApp, pattern string, h http.HandlerFunc, req *http.Request, userId string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if userId != "" {
			r = r.WithContext(WithUserId(r.Context(), userId))
		}
		h(w, r)
	})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func strPtr(s string) *string {
	return &s
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name       string
		mockErr    error
		wantStatus int
	}{
		{"successful health check", nil, http.StatusOK},
		{"failed health check", errors.New("db error"), http.StatusServiceUnavailable},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockProjectRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, nil)
			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.mockErr == nil {
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func Test_createMessage(t *testing.T) {
	now := time.Now().UTC()
	dbMsg := database.ChatMessage{
		Id:        "m1",
		Content:   "hello",
		UserId:    "u1",
		ProjectId: "p1",
		User:      database.User{Id: "u1", Name: "Ada", Email: "ada@example.com"},
		CreatedAt: now,
	}
	wantMsg := types.ChatMessage{
		Id:        "m1",
		Content:   "hello",
		UserId:    "u1",
		ProjectId: "p1",
		User:      &types.User{Id: "u1", Name: "Ada", Email: "ada@example.com"},
		CreatedAt: now,
	}

	t.Run("publishes after the write", func(t *testing.T) {
		mockRepo := &database.MockProjectRepository{}
		pub := &MockPublisher{}
		defer mockRepo.AssertExpectations(t)
		defer pub.AssertExpectations(t)

		mockRepo.On("CreateMessage", database.CreateMessageParams{
			ProjectId: "p1",
			UserId:    "u1",
			Content:   "hello",
		}).Return(dbMsg, nil).Once()
		pub.On("PublishChatMessage", "p1", wantMsg).Return().Once()

		app := newTestApp(t, mockRepo, pub)
		req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/messages", strings.NewReader(`{"content":"  hello "}`))
		rr := serveAuthed(app, "POST /api/projects/{id}/messages", app.createMessage, req, "u1")

		assert.Equal(t, http.StatusCreated, rr.Code)
		var got types.ChatMessage
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, "m1", got.Id)
		assert.Equal(t, "Ada", got.User.Name)
	})

	errorCases := []struct {
		name       string
		body       string
		userId     string
		mockErr    error
		wantStatus int
	}{
		{"unauthenticated", `{"content":"hello"}`, "", nil, http.StatusUnauthorized},
		{"invalid json", `{`, "u1", nil, http.StatusBadRequest},
		{"empty content", `{"content":"   "}`, "u1", nil, http.StatusBadRequest},
		{"unknown project", `{"content":"hello"}`, "u1", sql.ErrNoRows, http.StatusNotFound},
		{"db error", `{"content":"hello"}`, "u1", errors.New("db error"), http.StatusInternalServerError},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockProjectRepository{}
			pub := &MockPublisher{}
			defer mockRepo.AssertExpectations(t)
			defer pub.AssertExpectations(t)

			if tc.mockErr != nil {
				mockRepo.On("CreateMessage", mock.Anything).Return(database.ChatMessage{}, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, pub)
			req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/messages", strings.NewReader(tc.body))
			rr := serveAuthed(app, "POST /api/projects/{id}/messages", app.createMessage, req, tc.userId)

			assert.Equal(t, tc.wantStatus, rr.Code)
			pub.AssertNotCalled(t, "PublishChatMessage", mock.Anything, mock.Anything)
		})
	}
}

func Test_updateTask(t *testing.T) {
	dbTask := database.Task{
		Id:        "t1",
		Title:     "Write docs",
		Status:    "done",
		Priority:  "high",
		ProjectId: "p1",
		CreatedBy: "u1",
	}

	t.Run("publishes to the task's project", func(t *testing.T) {
		mockRepo := &database.MockProjectRepository{}
		pub := &MockPublisher{}
		defer mockRepo.AssertExpectations(t)
		defer pub.AssertExpectations(t)

		mockRepo.On("UpdateTask", database.UpdateTaskParams{
			TaskId: "t1",
			Status: strPtr("done"),
		}).Return(dbTask, nil).Once()
		pub.On("PublishTaskUpdate", "p1", mock.MatchedBy(func(task types.Task) bool {
			return task.Id == "t1" && task.Status == "done"
		})).Return().Once()

		app := newTestApp(t, mockRepo, pub)
		req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", strings.NewReader(`{"status":"done"}`))
		rr := serveAuthed(app, "PATCH /api/tasks/{id}", app.updateTask, req, "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	errorCases := []struct {
		name       string
		body       string
		mockErr    error
		wantStatus int
	}{
		{"no fields", `{}`, nil, http.StatusBadRequest},
		{"task not found", `{"status":"done"}`, sql.ErrNoRows, http.StatusNotFound},
		{"db error", `{"status":"done"}`, errors.New("db error"), http.StatusInternalServerError},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockProjectRepository{}
			pub := &MockPublisher{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockErr != nil {
				mockRepo.On("UpdateTask", mock.Anything).Return(database.Task{}, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, pub)
			req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", strings.NewReader(tc.body))
			rr := serveAuthed(app, "PATCH /api/tasks/{id}", app.updateTask, req, "u1")

			assert.Equal(t, tc.wantStatus, rr.Code)
			pub.AssertNotCalled(t, "PublishTaskUpdate", mock.Anything, mock.Anything)
		})
	}
}

func Test_updateProject(t *testing.T) {
	t.Run("owner update is published", func(t *testing.T) {
		mockRepo := &database.MockProjectRepository{}
		pub := &MockPublisher{}
		defer mockRepo.AssertExpectations(t)
		defer pub.AssertExpectations(t)

		mockRepo.On("UpdateProject", database.UpdateProjectParams{
			ProjectId: "p1",
			OwnerId:   "u1",
			Title:     strPtr("Launch"),
		}).Return(database.Project{Id: "p1", Title: "Launch", OwnerId: "u1"}, nil).Once()
		pub.On("PublishProjectUpdate", "p1", mock.MatchedBy(func(p types.Project) bool {
			return p.Title == "Launch"
		})).Return().Once()

		app := newTestApp(t, mockRepo, pub)
		req := httptest.NewRequest(http.MethodPatch, "/api/projects/p1", strings.NewReader(`{"title":"Launch"}`))
		rr := serveAuthed(app, "PATCH /api/projects/{id}", app.updateProject, req, "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("non-owner is not found and nothing is published", func(t *testing.T) {
		mockRepo := &database.MockProjectRepository{}
		pub := &MockPublisher{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("UpdateProject", mock.MatchedBy(func(p database.UpdateProjectParams) bool {
			return p.OwnerId == "u2"
		})).Return(database.Project{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, pub)
		req := httptest.NewRequest(http.MethodPatch, "/api/projects/p1", strings.NewReader(`{"status":"archived"}`))
		rr := serveAuthed(app, "PATCH /api/projects/{id}", app.updateProject, req, "u2")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		pub.AssertNotCalled(t, "PublishProjectUpdate", mock.Anything, mock.Anything)
	})
}

func Test_getMessages(t *testing.T) {
	tcases := []struct {
		name       string
		query      string
		wantLimit  int
		wantStatus int
	}{
		{"default limit", "", database.DefaultMessageLimit, http.StatusOK},
		{"explicit limit", "?limit=10", 10, http.StatusOK},
		{"limit is capped", "?limit=100000", database.MaxMessageLimit, http.StatusOK},
		{"invalid limit", "?limit=abc", 0, http.StatusBadRequest},
		{"negative limit", "?limit=-1", 0, http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockProjectRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.wantStatus == http.StatusOK {
				mockRepo.On("GetProject", "p1").Return(database.Project{Id: "p1"}, nil).Once()
				mockRepo.On("ListMessages", "p1", tc.wantLimit).Return([]database.ChatMessage{
					{Id: "m1", Content: "first", ProjectId: "p1", UserId: "u1"},
					{Id: "m2", Content: "second", ProjectId: "p1", UserId: "u2"},
				}, nil).Once()
			}

			app := newTestApp(t, mockRepo, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/messages"+tc.query, nil)
			rr := serveAuthed(app, "GET /api/projects/{id}/messages", app.getMessages, req, "u1")

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				var msgs []types.ChatMessage
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&msgs))
				require.Len(t, msgs, 2)
				assert.Equal(t, "m1", msgs[0].Id)
				assert.Nil(t, msgs[0].User, "expected no author without a joined user")
			}
		})
	}
}

func Test_getMessages_UnknownProject(t *testing.T) {
	mockRepo := &database.MockProjectRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetProject", "missing").Return(database.Project{}, sql.ErrNoRows).Once()

	app := newTestApp(t, mockRepo, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/projects/missing/messages", nil)
	rr := serveAuthed(app, "GET /api/projects/{id}/messages", app.getMessages, req, "u1")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	mockRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func Test_getPresence(t *testing.T) {
	pub := &MockPublisher{}
	defer pub.AssertExpectations(t)
	pub.On("OnlineUsers").Return([]string{"u1", "u2"}).Once()

	app := newTestApp(t, nil, pub)
	rr := httptest.NewRecorder()
	app.getPresence(rr, httptest.NewRequest(http.MethodGet, "/api/presence", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"online":["u1","u2"]}`, rr.Body.String())
}

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// Test_serveWs runs a socket against a real ChatServer and checks that a
// message written through the HTTP API reaches the project room.
func Test_serveWs(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("RegisterCounter", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	cs, err := server.NewChatServer(testutil.TestLogger(t), su, &config.Config{
		EventRate:  100,
		EventBurst: 100,
	})
	require.NoError(t, err)
	go cs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	}()

	mockRepo := &database.MockProjectRepository{}
	mockRepo.On("CreateMessage", mock.Anything).Return(database.ChatMessage{
		Id:        "m1",
		Content:   "hello",
		UserId:    "u1",
		ProjectId: "p1",
	}, nil).Once()

	app := NewProjectRoomsApp(http.NewServeMux(), testutil.TestLogger(t), cs, mockRepo, &config.Config{
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://allowed.example"},
	})
	srv := httptest.NewServer(app.mux.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects foreign origins", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if conn != nil {
			conn.Close()
		}
		assert.Error(t, err)
		if assert.NotNil(t, resp) {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://allowed.example"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "join-project", "data": "p1"}))
	require.Eventually(t, func() bool { return cs.Members("p1") == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/projects/p1/messages", strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+userToken(t, "u1"))
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusCreated, httpResp.StatusCode)

	ev := readEvent(t, conn)
	assert.Equal(t, "new-message", ev.Event)
	var msg types.ChatMessage
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	assert.Equal(t, "m1", msg.Id)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "user-online", "data": "u1"}))
	ev = readEvent(t, conn)
	assert.Equal(t, "user-status-change", ev.Event)
	assert.JSONEq(t, `{"userId":"u1","online":true}`, string(ev.Data))

	conn.Close()
	require.Eventually(t, func() bool {
		return cs.Members("p1") == 0 && !cs.IsOnline("u1")
	}, 2*time.Second, 10*time.Millisecond, "expected the closed connection to leave its room and go offline")

	mockRepo.AssertExpectations(t)
}
