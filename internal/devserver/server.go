/*
Package devserver is an in-process implementation of the accompany backend.

This file wires the Store, the broker Hub and the connection limiter into one Server.
*/
package devserver

import (
	"net/http"

	"golang.org/x/time/rate"

	"accompany/internal/configs"
	"accompany/internal/pkg/limiter"
)

// AppDeps holds what the handlers share.
type AppDeps struct {
	Config  *configs.AppConfig
	Store   *Store
	Hub     *Hub
	Limiter *limiter.IPRateLimiter
}

// Server is a running development backend.
type Server struct {
	deps    *AppDeps
	handler http.Handler
}

// New builds a Server over store. Call Shutdown to stop the broker.
func New(cfg *configs.AppConfig, store *Store) *Server {
	deps := &AppDeps{
		Config:  cfg,
		Store:   store,
		Hub:     NewHub(),
		Limiter: limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst),
	}
	return &Server{deps: deps, handler: Router(deps)}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.deps.Store
}

// Hub returns the broker hub.
func (s *Server) Hub() *Hub {
	return s.deps.Hub
}

// Shutdown stops every broker room and the limiter's cleanup goroutine.
func (s *Server) Shutdown() {
	s.deps.Hub.Shutdown()
	s.deps.Limiter.Stop()
}
