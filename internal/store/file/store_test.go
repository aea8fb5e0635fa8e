package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountd.dev/internal/account"
)

func newStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "users.json")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	return s, path
}

func TestOpenCreatesFile(t *testing.T) {
	s, path := newStore(t)
	_, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, account.Account{Username: "alice"})
	require.NoError(t, err)
	b, err := s.Insert(ctx, account.Account{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	_, err = s.Insert(ctx, account.Account{Username: "alice"})
	assert.ErrorIs(t, err, account.ErrDuplicateIdentity)
}

func TestFindAndUpdate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	a, err := s.Insert(ctx, account.Account{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	got, err := s.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	upd, err := s.UpdateFields(ctx, a.ID, account.Patch{Username: account.Ptr("alicia"), UsernameChangedAt: account.Ptr(int64(5))})
	require.NoError(t, err)
	assert.Equal(t, "alicia", upd.Username)

	_, err = s.FindByIdentity(ctx, "alice")
	assert.ErrorIs(t, err, account.ErrNotFound)
	got, err = s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.UsernameChangedAt)

	_, err = s.UpdateFields(ctx, 99, account.Patch{IsAdmin: account.Ptr(true)})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestRenameToTakenIdentity(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	a, _ := s.Insert(ctx, account.Account{Username: "alice"})
	_, _ = s.Insert(ctx, account.Account{Username: "bob"})

	_, err := s.UpdateFields(ctx, a.ID, account.Patch{Username: account.Ptr("bob")})
	assert.ErrorIs(t, err, account.ErrDuplicateIdentity)

	_, err = s.UpdateFields(ctx, a.ID, account.Patch{Username: account.Ptr("alice")})
	assert.NoError(t, err)
}

func TestPersistsAcrossInstances(t *testing.T) {
	s, path := newStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, account.Account{Username: "alice", IsAdmin: true})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
}

func TestCacheServesStaleReadsUntilTTL(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Unix(1000, 0).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	s, path := newStore(t, WithClock(clock), WithCacheTTL(5*time.Second))
	ctx := context.Background()
	_, err := s.Insert(ctx, account.Account{Username: "alice"})
	require.NoError(t, err)

	other, err := Open(path, WithClock(clock))
	require.NoError(t, err)
	_, err = other.UpdateFields(ctx, 1, account.Patch{IsSuspended: account.Ptr(true)})
	require.NoError(t, err)

	got, err := s.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, got.IsSuspended, "cached read within TTL")

	now.Add(int64(6 * time.Second))
	got, err = s.FindByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsSuspended, "cache expired")
}

func TestOwnWritesInvalidateCache(t *testing.T) {
	s, _ := newStore(t, WithCacheTTL(time.Hour))
	ctx := context.Background()
	a, _ := s.Insert(ctx, account.Account{Username: "alice"})
	_, _ = s.FindByID(ctx, a.ID)

	_, err := s.UpdateFields(ctx, a.ID, account.Patch{IsSuspended: account.Ptr(true)})
	require.NoError(t, err)
	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSuspended)
}

func TestCorruptFileIsStorageError(t *testing.T) {
	s, path := newStore(t, WithCacheTTL(0))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := s.FindByIdentity(context.Background(), "alice")
	assert.ErrorIs(t, err, account.ErrStorage)
}

func TestConcurrentInsertsKeepIdentityUnique(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Insert(ctx, account.Account{Username: "same"}); err == nil {
				wins.Add(1)
			}
			_, _ = s.Insert(ctx, account.Account{Username: fmt.Sprintf("user_%d", i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
