package grouped

import (
	"context"
	"sync"
	"time"
)

// Registry keeps the editing sessions of this process in memory.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
}

// NewRegistry builds a registry. Sessions untouched for longer than idle are
// dropped by Sweep; idle <= 0 keeps sessions until they are deleted.
func NewRegistry(idle time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
	}
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete discards a session. A session in the middle of a save is kept.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.isSaving() {
		return ErrSessionBusy
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle sessions that are not saving and returns how many went.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.isSaving() || s.lastTouched().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if r.idle <= 0 || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				logEvent(map[string]any{
					"event":   "grouped_sessions_expired",
					"removed": n,
				})
			}
		}
	}
}
