// Package memory is an in-process account.Store for tests and local runs.
package memory

import (
	"context"
	"sync"

	"accountd.dev/internal/account"
)

// Store keeps accounts in maps guarded by one RWMutex.
type Store struct {
	mu     sync.RWMutex
	byID   map[int64]account.Account
	byName map[string]int64
	lastID int64
}

var _ account.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:   make(map[int64]account.Account),
		byName: make(map[string]int64),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) FindByIdentity(_ context.Context, username string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Store) FindByID(_ context.Context, id int64) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) Insert(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[a.Username]; taken {
		return account.Account{}, account.ErrDuplicateIdentity
	}
	s.lastID++
	a.ID = s.lastID
	s.byID[a.ID] = a
	s.byName[a.Username] = a.ID
	return a, nil
}

func (s *Store) UpdateFields(_ context.Context, id int64, patch account.Patch) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	oldName := a.Username
	if patch.Username != nil && *patch.Username != oldName {
		if _, taken := s.byName[*patch.Username]; taken {
			return account.Account{}, account.ErrDuplicateIdentity
		}
	}
	patch.Apply(&a)
	if a.Username != oldName {
		delete(s.byName, oldName)
		s.byName[a.Username] = id
	}
	s.byID[id] = a
	return a, nil
}
