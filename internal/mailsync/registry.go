package mailsync

import (
	"sort"
	"sync"
)

// Registry maps account ids to their live session. Identity checks compare
// the session pointer, since an account can be removed and added again.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session registered for an account
func (r *Registry) Get(accountID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[accountID]
}

// Replace registers s and returns the session it displaced, if any
func (r *Registry) Replace(accountID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[accountID]
	r.sessions[accountID] = s
	return prev
}

// Remove deletes the entry only if it still points at s
func (r *Registry) Remove(accountID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[accountID]; ok && cur == s {
		delete(r.sessions, accountID)
		return true
	}
	return false
}

// IsCurrent reports whether s is still the registered session
func (r *Registry) IsCurrent(accountID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s != nil && r.sessions[accountID] == s
}

// List returns the registered sessions ordered by account id
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID() < out[j].AccountID() })
	return out
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
