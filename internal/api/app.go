package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/project-rooms/internal/config"
	"github.com/npezzotti/project-rooms/internal/database"
	"github.com/npezzotti/project-rooms/internal/server"
	"github.com/npezzotti/project-rooms/internal/types"
)

// Publisher fans committed mutations out to the project rooms.
type Publisher interface {
	PublishChatMessage(projectId string, msg types.ChatMessage)
	PublishTaskUpdate(projectId string, task types.Task)
	PublishProjectUpdate(projectId string, project types.Project)
	OnlineUsers() []string
}

type ProjectRoomsApp struct {
	log            *log.Logger
	db             database.ProjectRepository
	mux            *http.Server
	cs             *server.ChatServer
	publisher      Publisher
	signingKey     []byte
	allowedOrigins []string
}

func NewProjectRoomsApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ProjectRepository, cfg *config.Config) *ProjectRoomsApp {
	s := &ProjectRoomsApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}
	if cs != nil {
		s.publisher = cs
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.Handle("GET /api/presence", s.authMiddleware(s.getPresence))
	mux.Handle("GET /api/projects/{id}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/projects/{id}/messages", s.authMiddleware(s.createMessage))
	mux.Handle("PATCH /api/projects/{id}", s.authMiddleware(s.updateProject))
	mux.Handle("PATCH /api/tasks/{id}", s.authMiddleware(s.updateTask))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *ProjectRoomsApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ProjectRoomsApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
