/*
Package devserver is an in-process implementation of the accompany backend.

This file defines the main Router, applying middleware like CORS, request logging and
IP-based rate limiting before delegating to the REST handlers and the STOMP endpoint.
*/
package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"accompany/internal/pkg/auth/jwt"
	"accompany/internal/pkg/logx"
	"accompany/internal/pkg/metrics"
	"accompany/internal/pkg/resp"
)

const (
	// StompPath is the WebSocket endpoint of the broker.
	StompPath = "/ws-stomp"

	ConnectRate  = 1
	ConnectBurst = 10
)

// Router sets up the HTTP routing table of the development backend.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{"v12.stomp"},
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || deps.Config.IsDevelopment() {
				return true
			}
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "accompany devserver",
		})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))
		api.Use(jwt.RequireIdentity)

		api.Get("/members/me", HandleMe())

		api.Route("/chat/rooms/{roomId}", func(room chi.Router) {
			room.Get("/entry", HandleEntry(deps))
			room.Get("/messages", HandleHistory(deps))
			room.Get("/locations", HandleLocations(deps))
			room.Put("/locations", HandleUpdateLocation(deps))
			room.Put("/sharing", HandleSetSharing(deps))
			room.Post("/members/me", HandleJoin(deps))
			room.Delete("/members/me", HandleLeave(deps))
		})
	})

	r.With(deps.Limiter.Middleware).Get(StompPath, HandleStomp(wsUpgrader, deps))

	return r
}
