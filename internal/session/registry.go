package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry maps call SIDs to live sessions. A `start` event racing another
// `start` or a watcher lookup for the same SID must observe a single shared
// session, so lookup-or-insert happens under one lock.
type Registry struct {
	mu   sync.Mutex
	m    map[string]*Session
	plan []string
}

// NewRegistry creates an empty registry whose sessions follow plan.
func NewRegistry(plan []string) *Registry {
	return &Registry{m: make(map[string]*Session), plan: plan}
}

// GetOrCreate returns the session for callSID, creating it on first sight.
// The second return value reports whether this call created the session;
// callers use it to start per-call watchers exactly once.
func (r *Registry) GetOrCreate(callSID string, patient Patient) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[callSID]; ok {
		return s, false
	}
	s := newSession(callSID, patient, r.plan)
	r.m[callSID] = s
	return s, true
}

// Get returns the session for callSID if it exists.
func (r *Registry) Get(callSID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[callSID]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Sweep evicts sessions that are finalized or idle beyond maxIdle and
// returns how many were removed. Without it the registry grows for the
// process lifetime, one entry per call SID.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for sid, s := range r.m {
		if s.Finalized() || time.Since(s.idleSince()) > maxIdle {
			delete(r.m, sid)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep on interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(maxIdle); n > 0 {
					log.Printf("session registry: evicted %d stale session(s), %d remaining", n, r.Len())
				}
			}
		}
	}()
}
