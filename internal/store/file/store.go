// Package file keeps accounts in a single JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"accountd.dev/internal/account"
)

// DefaultCacheTTL bounds how long a read may be served from memory.
const DefaultCacheTTL = 5 * time.Second

type document struct {
	Users []account.Account `json:"users"`
}

// Store implements account.Store over a JSON file. Reads are cached for the
// configured TTL; every write from this process replaces the cache.
type Store struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cache    []account.Account
	cachedAt time.Time
}

var _ account.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithCacheTTL sets the read cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open returns a store backed by path. A missing file is created empty.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("users file path is required")
	}
	s := &Store{path: path, ttl: DefaultCacheTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storageErr(err)
		}
		if err := s.save(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, storageErr(err)
	}
	return s, nil
}

func (s *Store) Ping(context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) FindByIdentity(_ context.Context, username string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.loadCached()
	if err != nil {
		return account.Account{}, err
	}
	if i := indexByName(users, username); i >= 0 {
		return users[i], nil
	}
	return account.Account{}, account.ErrNotFound
}

func (s *Store) FindByID(_ context.Context, id int64) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.loadCached()
	if err != nil {
		return account.Account{}, err
	}
	if i := indexByID(users, id); i >= 0 {
		return users[i], nil
	}
	return account.Account{}, account.ErrNotFound
}

// Insert assigns max(id)+1, so ids stay monotonic even after deletions
// made by hand in the file.
func (s *Store) Insert(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return account.Account{}, err
	}
	if indexByName(users, a.Username) >= 0 {
		return account.Account{}, account.ErrDuplicateIdentity
	}
	var maxID int64
	for _, u := range users {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	a.ID = maxID + 1
	users = append(users, a)
	if err := s.save(users); err != nil {
		return account.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateFields(_ context.Context, id int64, patch account.Patch) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.load()
	if err != nil {
		return account.Account{}, err
	}
	i := indexByID(users, id)
	if i < 0 {
		return account.Account{}, account.ErrNotFound
	}
	if patch.Username != nil && *patch.Username != users[i].Username {
		if indexByName(users, *patch.Username) >= 0 {
			return account.Account{}, account.ErrDuplicateIdentity
		}
	}
	if patch.Empty() {
		return users[i], nil
	}
	patch.Apply(&users[i])
	if err := s.save(users); err != nil {
		return account.Account{}, err
	}
	return users[i], nil
}

// loadCached must be called with mu held.
func (s *Store) loadCached() ([]account.Account, error) {
	if s.cache != nil && s.ttl > 0 && s.now().Sub(s.cachedAt) < s.ttl {
		return s.cache, nil
	}
	return s.load()
}

// load reads the file and refreshes the cache. Callers hold mu.
func (s *Store) load() ([]account.Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, storageErr(err)
	}
	var doc document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, storageErr(fmt.Errorf("decode %s: %w", s.path, err))
		}
	}
	if doc.Users == nil {
		doc.Users = []account.Account{}
	}
	s.cache = doc.Users
	s.cachedAt = s.now()
	return cloneUsers(doc.Users), nil
}

// save writes users through a temp file and rename. Callers hold mu.
func (s *Store) save(users []account.Account) error {
	if users == nil {
		users = []account.Account{}
	}
	data, err := json.MarshalIndent(document{Users: users}, "", "  ")
	if err != nil {
		return storageErr(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return storageErr(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storageErr(err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return storageErr(err)
	}
	s.cache = cloneUsers(users)
	s.cachedAt = s.now()
	return nil
}

func cloneUsers(in []account.Account) []account.Account {
	out := make([]account.Account, len(in))
	copy(out, in)
	return out
}

func indexByName(users []account.Account, username string) int {
	for i, u := range users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

func indexByID(users []account.Account, id int64) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", account.ErrStorage, err)
}
