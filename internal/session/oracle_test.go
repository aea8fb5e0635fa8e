package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountd.dev/internal/account"
)

type memStore struct {
	byName map[string]account.Account
	err    error
}

func (m *memStore) FindByIdentity(_ context.Context, username string) (account.Account, error) {
	if m.err != nil {
		return account.Account{}, m.err
	}
	a, ok := m.byName[username]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (m *memStore) FindByID(context.Context, int64) (account.Account, error) {
	return account.Account{}, account.ErrNotFound
}

func (m *memStore) UpdateFields(context.Context, int64, account.Patch) (account.Account, error) {
	return account.Account{}, account.ErrNotFound
}

func (m *memStore) Insert(context.Context, account.Account) (account.Account, error) {
	return account.Account{}, account.ErrStorage
}

func (m *memStore) Ping(context.Context) error { return m.err }

func newOracle(accounts ...account.Account) (*Oracle, *Registry, *memStore) {
	store := &memStore{byName: make(map[string]account.Account)}
	for _, a := range accounts {
		store.byName[a.Username] = a
	}
	reg := NewRegistry()
	return NewOracle(store, reg), reg, store
}

func TestOracleActiveAccount(t *testing.T) {
	o, _, _ := newOracle(account.Account{ID: 1, Username: "alice"})
	ctx := context.Background()

	assert.True(t, o.IsValid(ctx, "alice", ""))
	acct, err := o.Check(ctx, "alice", "conn")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.ID)
}

func TestOracleUnknownIdentity(t *testing.T) {
	o, _, _ := newOracle()
	_, err := o.Check(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, account.ErrUnauthorized)
}

func TestOracleStoreFailureIsInvalid(t *testing.T) {
	o, _, store := newOracle(account.Account{ID: 1, Username: "alice"})
	store.err = fmt.Errorf("%w: disk gone", account.ErrStorage)
	assert.False(t, o.IsValid(context.Background(), "alice", ""))
}

func TestOracleSuspendedOverridesExemption(t *testing.T) {
	o, reg, _ := newOracle(account.Account{ID: 3, Username: "carol", IsSuspended: true})
	reg.Revoke(3)
	reg.Exempt(3, "conn-1")

	assert.False(t, o.IsValid(context.Background(), "carol", "conn-1"))
}

func TestOracleRevokedHonoursExemption(t *testing.T) {
	o, reg, _ := newOracle(account.Account{ID: 4, Username: "dave"})
	ctx := context.Background()

	reg.Revoke(4)
	assert.False(t, o.IsValid(ctx, "dave", "conn-1"))
	assert.False(t, o.IsValid(ctx, "dave", ""))

	reg.Exempt(4, "conn-1")
	assert.True(t, o.IsValid(ctx, "dave", "conn-1"))
	assert.False(t, o.IsValid(ctx, "dave", "conn-2"))
	assert.False(t, o.IsValid(ctx, "dave", ""))

	reg.Clear(4)
	assert.True(t, o.IsValid(ctx, "dave", ""))
}

func TestOracleEmptyExemptionNeverMatchesEmptyToken(t *testing.T) {
	o, reg, _ := newOracle(account.Account{ID: 9, Username: "erin"})
	reg.Revoke(9)
	reg.Exempt(9, "")
	assert.False(t, o.IsValid(context.Background(), "erin", ""))
}
