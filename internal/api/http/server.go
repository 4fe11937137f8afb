package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAuth "github.com/moving-hub/moving-hub/internal/application/auth"
	appChat "github.com/moving-hub/moving-hub/internal/application/chat"
	"github.com/moving-hub/moving-hub/internal/application/negotiation"
	appUser "github.com/moving-hub/moving-hub/internal/application/user"
	domainUser "github.com/moving-hub/moving-hub/internal/domain/user"
	"github.com/moving-hub/moving-hub/internal/infrastructure/realtime"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine              *negotiation.Engine
	chatSvc             *appChat.Service
	authSvc             *appAuth.Service
	userSvc             *appUser.Service
	registry            *realtime.Registry
	sseBuffer           int
	sessionCookieName   string
	sessionCookieSecure bool
	logger              zerolog.Logger
}

func NewServer(
	engine *negotiation.Engine,
	chatSvc *appChat.Service,
	authSvc *appAuth.Service,
	userSvc *appUser.Service,
	registry *realtime.Registry,
	sseBuffer int,
	sessionCookieName string,
	sessionCookieSecure bool,
	logger zerolog.Logger,
) *Server {
	return &Server{
		engine:              engine,
		chatSvc:             chatSvc,
		authSvc:             authSvc,
		userSvc:             userSvc,
		registry:            registry,
		sseBuffer:           sseBuffer,
		sessionCookieName:   sessionCookieName,
		sessionCookieSecure: sessionCookieSecure,
		logger:              logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		// Push connections are long-lived and stay outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/stream", s.sseStream)
			r.Get("/ws", s.wsStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", s.register)
				r.Post("/login", s.login)
				r.Group(func(r chi.Router) {
					r.Use(s.requireAuth)
					r.Post("/logout", s.logout)
					r.Get("/me", s.me)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.Get("/sync", s.sync)

				r.Route("/requests", func(r chi.Router) {
					r.With(s.requireRole(string(domainUser.RoleClient))).Post("/", s.createRequest)
					r.Get("/", s.listRequests)
					r.Get("/{requestId}", s.getRequest)
					r.Post("/{requestId}/propose", s.proposePrice)
					r.Post("/{requestId}/counter", s.counterOffer)
					r.Post("/{requestId}/accept", s.acceptPrice)
					r.Post("/{requestId}/accept-counter", s.acceptCounter)
					r.Post("/{requestId}/advance", s.advanceStatus)
					r.Post("/{requestId}/cancel", s.cancelRequest)
					r.Get("/{requestId}/chat", s.getRequestChat)
				})

				r.Route("/chats", func(r chi.Router) {
					r.Get("/", s.listChats)
					r.Get("/{chatId}", s.getChat)
					r.Get("/{chatId}/messages", s.listMessages)
					r.Post("/{chatId}/messages", s.postMessage)
					r.Post("/{chatId}/read", s.markRead)
				})

				r.Route("/users", func(r chi.Router) {
					r.With(s.requireRole(string(domainUser.RoleAdmin))).Get("/", s.listUsers)
					r.Get("/{userId}", s.getUser)
					r.Patch("/{userId}", s.updateUser)
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.registry.Count(),
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeBody(r, v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
