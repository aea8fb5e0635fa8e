// Package session tracks revoked sessions and answers whether a caller's
// session is still usable.
package session

import (
	"sync"
	"time"
)

// Registry records accounts whose sessions were invalidated. A revoked
// account may carry one exempted connection token that stays valid.
//
// Each revocation also stamps a cutoff that outlives Clear: tokens issued
// before it stay dead after the account logs in again.
type Registry struct {
	mu       sync.Mutex
	revoked  map[int64]struct{}
	exempted map[int64]string
	cutoff   map[int64]int64
	now      func() time.Time
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the time source used to stamp revocations.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		revoked:  make(map[int64]struct{}),
		exempted: make(map[int64]string),
		cutoff:   make(map[int64]int64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke invalidates every session of accountID and drops its exemption.
func (r *Registry) Revoke(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[accountID] = struct{}{}
	delete(r.exempted, accountID)
	r.cutoff[accountID] = r.now().UnixMilli()
}

// RevokedAt returns the epoch millisecond of the last revocation of accountID,
// or zero.
func (r *Registry) RevokedAt(accountID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoff[accountID]
}

// Clear forgets any revocation or exemption for accountID. The cutoff
// reported by RevokedAt is kept.
func (r *Registry) Clear(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.revoked, accountID)
	delete(r.exempted, accountID)
}

// IsRevoked reports whether accountID is in the revoked set.
func (r *Registry) IsRevoked(accountID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[accountID]
	return ok
}

// Exempt lets the connection identified by token survive a revocation of
// accountID. A later Exempt replaces the earlier token.
func (r *Registry) Exempt(accountID int64, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exempted[accountID] = token
}

// Exemption returns the exempted connection token for accountID, if any.
func (r *Registry) Exemption(accountID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.exempted[accountID]
	return token, ok
}

// Len returns the number of revoked accounts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.revoked)
}
