package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/app"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/minimax"
	"github.com/rs/zerolog/log"
)

type Option func(*handlers)

// WithEngine sets the engine behind /api/best-action.
func WithEngine(e *minimax.Engine) Option {
	return func(h *handlers) {
		if e != nil {
			h.engine = e
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *handlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewServer wires routes and returns an http.Handler.
func NewServer(s *app.Service, options ...Option) http.Handler {
	h := &handlers{
		svc:       s,
		engine:    minimax.New(minimax.WithStrict(true)),
		tpl:       loadTemplates(),
		heartbeat: 15 * time.Second,
	}
	for _, option := range options {
		option(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Get("/", h.index)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/join", h.join)
		r.Post("/play", h.play)
		r.Get("/hint", h.hint)
		r.Get("/events", h.events)
		r.Get("/ws", h.ws)
	})
	r.Post("/api/best-action", h.bestAction)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
