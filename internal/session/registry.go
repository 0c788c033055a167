// Package session tracks live Mini App embeddings. One Session corresponds to
// one proxied iframe: it is created when the proxy serves the rewritten
// document and destroyed explicitly or by TTL. RPC bindings and Quick Auth
// tokens are owned by a session and torn down with it.
package session

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nounspace/miniapp-host/internal/miniapp"
)

// Session is one proxied embedding of a single Mini App URL.
type Session struct {
	ID           string        `json:"id"`
	TargetURL    string        `json:"targetUrl"`
	TargetOrigin string        `json:"targetOrigin"`
	ProxyRoot    string        `json:"proxyRoot"`
	User         *miniapp.User `json:"user,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

// Registry manages active sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	cleanups map[string][]func()
	ttl      time.Duration
}

// NewRegistry creates a registry whose sessions expire after ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		cleanups: make(map[string][]func()),
		ttl:      ttl,
	}
}

// TargetOrigin extracts the scheme://host[:port] origin of an absolute URL.
func TargetOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("target url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("target url has no host: %s", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// ProxyRoot derives the deterministic path prefix under which the proxy
// re-serves a target origin's resources. The origin is percent-encoded so the
// whole origin fits in a single path segment.
func ProxyRoot(targetOrigin string) string {
	return "/api/proxy/" + url.QueryEscape(targetOrigin)
}

// Create registers a new session for targetURL. The target origin and proxy
// root are derived here so every consumer sees the same values.
func (r *Registry) Create(targetURL string, user *miniapp.User) (Session, error) {
	origin, err := TargetOrigin(targetURL)
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	sess := Session{
		ID:           uuid.New().String(),
		TargetURL:    targetURL,
		TargetOrigin: origin,
		ProxyRoot:    ProxyRoot(origin),
		User:         user,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.ttl),
	}
	r.sessions[sess.ID] = sess

	// Clean up expired sessions opportunistically
	r.cleanupExpiredLocked()

	return sess, nil
}

// Get retrieves a live session by ID.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return Session{}, false
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		return Session{}, false
	}
	return sess, true
}

// OnDestroy registers fn to run when the session is destroyed. Used to tear
// down the session's RPC binding and evict its token cache entry.
func (r *Registry) OnDestroy(id string, fn func()) {
	r.mu.Lock()
	_, exists := r.sessions[id]
	if exists {
		r.cleanups[id] = append(r.cleanups[id], fn)
	}
	r.mu.Unlock()

	if !exists {
		// Session already gone: run the cleanup now rather than leaking it
		fn()
	}
}

// Destroy removes a session and runs its registered cleanups. Returns whether
// the session existed.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	_, exists := r.sessions[id]
	cleanups := r.cleanups[id]
	delete(r.sessions, id)
	delete(r.cleanups, id)
	r.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	return exists
}

// cleanupExpiredLocked removes expired sessions (caller must hold write lock).
// Cleanups for expired sessions run outside the lock on the next Destroy; here
// they are invoked synchronously after collection.
func (r *Registry) cleanupExpiredLocked() {
	now := time.Now().UTC()
	var expired []func()
	for id, sess := range r.sessions {
		if now.After(sess.ExpiresAt) {
			expired = append(expired, r.cleanups[id]...)
			delete(r.sessions, id)
			delete(r.cleanups, id)
		}
	}
	for _, fn := range expired {
		fn()
	}
}
