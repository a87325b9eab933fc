// Package auth implements signup, login and session lookup on top of the
// credential and session tables held in a store.State.
//
// One mutex guards the tables. Signup's existence check and write, and
// Login's verify-and-rotate, each run inside a single critical section, and
// the backend write happens before the lock is released so every successful
// call is durable before its caller responds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/Tyrowin/gochat/internal/store"
)

// DefaultSessionTTL is the lifetime given to the session cookie.
const DefaultSessionTTL = 30 * time.Minute

// Session is the result of a successful signup or login.
type Session struct {
	Token    string
	Username string
	// Expires is advisory and only used for the client cookie; the server
	// record itself never expires.
	Expires time.Time
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Hasher     Hasher
	SessionTTL time.Duration
	Logger     hclog.Logger
	NewToken   func() string
	Now        func() time.Time
}

// Service owns the credential store and session table.
type Service struct {
	mu      sync.Mutex
	state   *store.State
	backend store.Backend

	hasher   Hasher
	ttl      time.Duration
	newToken func() string
	now      func() time.Time
	log      hclog.Logger
}

// New builds a Service from whatever the backend holds. A missing or
// unreadable state is logged and replaced by an empty one.
func New(ctx context.Context, backend store.Backend, opts Options) *Service {
	s := &Service{
		backend:  backend,
		hasher:   opts.Hasher,
		ttl:      opts.SessionTTL,
		newToken: opts.NewToken,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if s.hasher == nil {
		s.hasher = SHA256Hasher{}
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = hclog.NewNullLogger()
	}

	st, err := backend.Load(ctx)
	switch {
	case err == nil:
		s.log.Info("state loaded", "users", len(st.UserCreds), "sessions", len(st.Sessions))
	case errors.Is(err, store.ErrNotFound):
		s.log.Warn("no persisted state found, starting empty")
		st = store.NewState()
	default:
		s.log.Warn("error reading persisted state, starting empty", "error", err)
		st = store.NewState()
	}
	s.state = st
	return s
}

// Signup creates a credential record and a fresh session for username.
// Earlier sessions for the same name are left alone.
func (s *Service) Signup(ctx context.Context, username, password string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HasUser(username) {
		s.log.Debug("signup rejected, username taken", "username", username)
		return Session{}, ErrUsernameTaken
	}

	prev := s.state.Clone()

	salt := s.newToken()
	s.state.PutCredential(username, salt, s.hasher.Hash(password, salt))

	sess := s.issue(username)
	if err := s.persist(ctx, prev); err != nil {
		return Session{}, err
	}

	s.log.Info("user signed up", "username", username)
	return sess, nil
}

// Login verifies the password and rotates the user's session: the first
// existing session for username is deleted and a new one issued. Unknown
// users and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected, known := s.state.UserCreds[username]
	salt := s.state.Salts[username]
	if !known || !s.hasher.Verify(password, salt, expected) {
		s.log.Debug("login failed", "username", username)
		return Session{}, ErrAuthenticationFailed
	}

	prev := s.state.Clone()

	if old, ok := s.state.RemoveFirstSessionFor(username); ok {
		s.log.Trace("previous session removed", "username", username, "token", redact(old))
	}
	sess := s.issue(username)
	if err := s.persist(ctx, prev); err != nil {
		return Session{}, err
	}

	s.log.Info("user logged in", "username", username)
	return sess, nil
}

// CheckSession reports whether token maps to a session record.
func (s *Service) CheckSession(token string) bool {
	_, ok := s.ResolveSession(token)
	return ok
}

// ResolveSession returns the username a session token belongs to.
func (s *Service) ResolveSession(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionUser(token)
}

// Snapshot returns a copy of the current tables.
func (s *Service) Snapshot() *store.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Close writes the tables one last time and closes the backend.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saveErr := s.backend.Save(ctx, s.state)
	closeErr := s.backend.Close()
	if saveErr != nil {
		return fmt.Errorf("flushing state: %w", saveErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing state backend: %w", closeErr)
	}
	s.log.Info("state flushed", "users", len(s.state.UserCreds), "sessions", len(s.state.Sessions))
	return nil
}

// issue must be called with mu held.
func (s *Service) issue(username string) Session {
	token := s.newToken()
	s.state.PutSession(token, username)
	return Session{
		Token:    token,
		Username: username,
		Expires:  s.now().Add(s.ttl),
	}
}

// persist must be called with mu held. On failure the tables are restored
// to prev.
func (s *Service) persist(ctx context.Context, prev *store.State) error {
	if err := s.backend.Save(ctx, s.state); err != nil {
		s.state = prev
		s.log.Error("error persisting state", "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "****"
}
