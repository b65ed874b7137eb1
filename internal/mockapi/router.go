// Package mockapi is an in-memory controller that serves the subset of the
// API the automation uses: registration, login, and the tenant, virtual
// service and service engine collections.
package mockapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server holds shared state for all handlers.
type Server struct {
	Store *Store
	log   zerolog.Logger
}

// NewServer creates a Server backed by store.
func NewServer(store *Store, logger zerolog.Logger) *Server {
	return &Server{
		Store: store,
		log:   logger.With().Str("component", "mockapi").Logger(),
	}
}

// NewRouter builds the chi router with all controller routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/register", s.Register)
	r.Post("/login", s.Login)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)

		for _, kind := range []string{KindTenant, KindVirtualService, KindServiceEngine} {
			r.Get("/"+kind, s.listHandler(kind))
			r.Get("/"+kind+"/{uuid}", s.getHandler(kind))
		}
		r.Put("/"+KindVirtualService+"/{uuid}", s.updateHandler(KindVirtualService))
	})

	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !s.Store.ValidToken(token) {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
