// Package server wires HTTP handlers into a ServeMux for the GoChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/signup", s.SignupHandler)
	mux.HandleFunc("/login", s.LoginHandler)
	mux.HandleFunc("/clearcookie", s.ClearCookieHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/chat", s.ChatPageHandler)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}
