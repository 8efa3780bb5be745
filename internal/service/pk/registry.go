package pk

import "sync"

// Registry tracks which sessions are currently initialized, so a repeated
// init sweep cannot double-schedule the same session.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Session)}
}

// Register adds a session and reports whether it was newly added.
func (r *Registry) Register(session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[session.Title]; ok {
		return false
	}
	r.active[session.Title] = session
	return true
}

// Unregister removes a session, typically after its window ends.
func (r *Registry) Unregister(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, title)
}

// Active returns the currently registered sessions.
func (r *Registry) Active() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.active))
	for _, s := range r.active {
		sessions = append(sessions, s)
	}
	return sessions
}
