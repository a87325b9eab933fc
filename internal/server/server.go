// Package server wires the auth service, the hub and the HTTP handlers
// into one owned Server value.
package server

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/Tyrowin/gochat/internal/auth"
)

// Authenticator is the slice of the auth service the HTTP layer needs.
type Authenticator interface {
	Signup(ctx context.Context, username, password string) (auth.Session, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	CheckSession(token string) bool
	ResolveSession(token string) (string, bool)
}

// Server holds everything a request or live connection handler touches.
type Server struct {
	cfg      Config
	auth     Authenticator
	hub      *Hub
	metrics  *Metrics
	upgrader websocket.Upgrader
	log      hclog.Logger
}

// New builds a Server. metrics may be nil.
func New(cfg *Config, authn Authenticator, metrics *Metrics, logger hclog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	sanitized := SanitizeConfig(*cfg)

	origins := newOriginPolicy(sanitized.Server.AllowedOrigins, logger.Named("origin"))

	return &Server{
		cfg:     sanitized,
		auth:    authn,
		hub:     NewHub(logger.Named("hub"), metrics),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: logger,
	}
}

// Hub returns the server's hub for lifecycle coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in effect.
func (s *Server) Config() Config {
	return s.cfg
}

// StartHub runs the hub loop in its own goroutine. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Debug("hub started")
}
