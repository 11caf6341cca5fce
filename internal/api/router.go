package api

import (
	"net/http"

	"github.com/codev612/hearnow/internal/config"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the API handlers into a chi mux
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates the API router
func NewRouter(
	sessionManager *session.Manager,
	sessionStorage *sqlite.SessionStorage,
	transcriptStorage *sqlite.TranscriptStorage,
	assistantStorage *sqlite.AssistantStorage,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Router {
	return &Router{
		handler: NewHandler(sessionManager, sessionStorage, transcriptStorage, assistantStorage, cfg, log, wsServer),
		config:  cfg,
		logger:  log.Named("api-router"),
	}
}

// Routes builds the HTTP handler tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", rt.handler.CreateSession)
			r.Get("/", rt.handler.GetSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.handler.GetSession)
				r.Delete("/", rt.handler.StopSession)
				r.Get("/transcript", rt.handler.GetTranscript)
				r.Get("/assistant", rt.handler.GetAssistantNotes)
			})
		})
	})

	r.Get("/ws", rt.handler.HandleWebSocket)

	// Everything else is the bundled UI.
	if rt.config.Server.StaticFilesDir != "" {
		static := NewStaticFileHandler(rt.config.Server.StaticFilesDir, rt.logger)
		r.NotFound(static.ServeHTTP)
	}

	return r
}

// corsMiddleware applies the configured CORS policy
func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	allowed := rt.config.Server.CORSAllowedOrigins

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, a := range allowed {
				if a == "*" || a == origin {
					w.Header().Set("Access-Control-Allow-Origin", a)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					break
				}
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
