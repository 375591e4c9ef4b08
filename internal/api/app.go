package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/arena"
	"github.com/akshat-collab/code-battle-arena/internal/config"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/gorilla/handlers"
)

// RequestObserver records one served request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

type ArenaApp struct {
	log            *log.Logger
	arena          *arena.Manager
	hub            *hub.Hub
	db             database.ArenaRepository
	stats          RequestObserver
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewArenaApp(mux *http.ServeMux, logger *log.Logger, m *arena.Manager, h *hub.Hub, db database.ArenaRepository, su RequestObserver, cfg *config.Config) *ArenaApp {
	s := &ArenaApp{
		log:            logger,
		arena:          m,
		hub:            h,
		db:             db,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/session", s.createSession)
	mux.HandleFunc("GET /api/session", s.authMiddleware(s.session))
	mux.HandleFunc("DELETE /api/session", s.logout)
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("POST /api/rooms/{id}/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("POST /api/rooms/{id}/leave", s.authMiddleware(s.leaveRoom))
	mux.HandleFunc("POST /api/rooms/{id}/start", s.authMiddleware(s.startCompetition))
	mux.HandleFunc("POST /api/rooms/{id}/ready", s.authMiddleware(s.toggleReady))
	mux.HandleFunc("POST /api/rooms/{id}/countdown", s.authMiddleware(s.countdown))
	mux.HandleFunc("POST /api/rooms/{id}/end", s.authMiddleware(s.endCompetition))
	mux.HandleFunc("POST /api/rooms/{id}/submit", s.authMiddleware(s.submitSolution))
	mux.HandleFunc("GET /api/rooms/{id}/leaderboard", s.authMiddleware(s.getLeaderboard))
	mux.HandleFunc("POST /api/submissions", s.authMiddleware(s.submitPractice))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	handler := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	handler = s.errorHandler(handler)
	handler = s.metricsMiddleware(handler)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *ArenaApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ArenaApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *ArenaApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
