package server

// Registry is the ordered list of usernames with an open live connection.
// A user with two connections appears twice. It is not safe for concurrent
// use; the hub goroutine owns it.
type Registry struct {
	users []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: []string{}}
}

// Add appends username.
func (r *Registry) Add(username string) {
	r.users = append(r.users, username)
}

// RemoveFirst deletes the first entry equal to username. It matches by
// value, so with duplicate names the removed entry may belong to another
// connection.
func (r *Registry) RemoveFirst(username string) bool {
	for i, u := range r.users {
		if u == username {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the list, never nil.
func (r *Registry) Snapshot() []string {
	out := make([]string, len(r.users))
	copy(out, r.users)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.users)
}
