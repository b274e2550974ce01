/*
Package handler provides the HTTP handlers and routing setup for the TempChat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"tempchat/internal/pkg/auth/jwt"
	"tempchat/internal/pkg/limiter"
	"tempchat/internal/pkg/logx"
	"tempchat/internal/pkg/resp"
)

const (
	GuestRate  = 0.05
	GuestBurst = 3
	JoinRate   = 0.2
	JoinBurst  = 5
)

// Limiters groups the per-IP limiters used by the router so that their cleanup loops can
// be run by the caller.
type Limiters struct {
	Guest *limiter.IPRateLimiter
	Join  *limiter.IPRateLimiter
}

// NewLimiters builds the default per-IP limiters.
func NewLimiters() Limiters {
	return Limiters{
		Guest: limiter.NewIPRateLimiter(rate.Limit(GuestRate), GuestBurst),
		Join:  limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst),
	}
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, and applies global and per-route middleware.
// It requires the chat service and hub for business logic and the AppConfig for settings (like allowed origins).
func Router(deps *AppDeps, limits Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":      "ok",
			"service":     "TempChat Server",
			"online":      deps.Service.PresenceCount(),
			"connections": deps.Hub.Len(),
		}
		resp.Success(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(limits.Guest.Middleware).Post("/auth/guest", HandleGuestLogin(deps))

		api.Route("/user", func(user chi.Router) {
			user.Get("/profile", HandleGetUserProfile(deps))
			user.Post("/profile", HandleUpdateUserProfile(deps))
		})

		api.Get("/images/{id}", HandleGetImage(deps))
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, limits.Join))

	return r
}
