// Package store holds the persisted credential and session tables and the
// backends that load and save them as a single blob.
package store

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned by Load when no state has been persisted yet.
var ErrNotFound = errors.New("store: no persisted state")

// State is the full persisted blob. The JSON layout matches the flat state
// file: hashes keyed by username, salts keyed by username, and session
// tokens mapped to usernames.
type State struct {
	UserCreds map[string]string `json:"userCreds"`
	Salts     map[string]string `json:"salts"`
	Sessions  map[string]string `json:"sessions"`
}

// Backend loads and saves the whole State. Implementations must make Save
// durable before returning.
type Backend interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
	Close() error
}

// NewState returns an empty State with all maps allocated.
func NewState() *State {
	return &State{
		UserCreds: make(map[string]string),
		Salts:     make(map[string]string),
		Sessions:  make(map[string]string),
	}
}

// normalize allocates any map left nil by a decoder.
func (s *State) normalize() *State {
	if s.UserCreds == nil {
		s.UserCreds = make(map[string]string)
	}
	if s.Salts == nil {
		s.Salts = make(map[string]string)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]string)
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		UserCreds: make(map[string]string, len(s.UserCreds)),
		Salts:     make(map[string]string, len(s.Salts)),
		Sessions:  make(map[string]string, len(s.Sessions)),
	}
	for k, v := range s.UserCreds {
		c.UserCreds[k] = v
	}
	for k, v := range s.Salts {
		c.Salts[k] = v
	}
	for k, v := range s.Sessions {
		c.Sessions[k] = v
	}
	return c
}

// HasUser reports whether a credential record exists for username.
func (s *State) HasUser(username string) bool {
	_, ok := s.UserCreds[username]
	return ok
}

// PutCredential stores the salt and hash for username.
func (s *State) PutCredential(username, salt, hash string) {
	s.Salts[username] = salt
	s.UserCreds[username] = hash
}

// PutSession maps token to username.
func (s *State) PutSession(token, username string) {
	s.Sessions[token] = username
}

// SessionUser returns the username a token maps to.
func (s *State) SessionUser(token string) (string, bool) {
	u, ok := s.Sessions[token]
	return u, ok
}

// SessionsFor lists the tokens mapped to username in sorted order.
func (s *State) SessionsFor(username string) []string {
	var tokens []string
	for tok, u := range s.Sessions {
		if u == username {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// RemoveFirstSessionFor deletes at most one session belonging to username,
// the lowest token in sort order, and returns it.
func (s *State) RemoveFirstSessionFor(username string) (string, bool) {
	tokens := s.SessionsFor(username)
	if len(tokens) == 0 {
		return "", false
	}
	delete(s.Sessions, tokens[0])
	return tokens[0], true
}
