package session

import (
	"context"
	"errors"
	"log/slog"

	"accountd.dev/internal/account"
	"accountd.dev/internal/obs"
)

// Rejection causes reported to metrics.
const (
	CauseUnknown   = "unknown"
	CauseSuspended = "suspended"
	CauseRevoked   = "revoked"
	CauseStorage   = "storage"
)

// Oracle decides whether an authenticated identity may keep acting.
type Oracle struct {
	store    account.Store
	registry *Registry
}

// NewOracle wires the oracle to the credential store and revocation registry.
func NewOracle(store account.Store, registry *Registry) *Oracle {
	return &Oracle{store: store, registry: registry}
}

// IsValid reports whether identity's session is still usable from the
// connection identified by connToken.
func (o *Oracle) IsValid(ctx context.Context, identity, connToken string) bool {
	_, err := o.Check(ctx, identity, connToken)
	return err == nil
}

// Check resolves identity and returns the account when its session is valid,
// or account.ErrUnauthorized otherwise.
//
// Suspension wins over everything. A revoked account is valid only from its
// exempted connection, and an empty connToken never matches.
func (o *Oracle) Check(ctx context.Context, identity, connToken string) (account.Account, error) {
	acct, err := o.store.FindByIdentity(ctx, identity)
	if err != nil {
		cause := CauseUnknown
		if !errors.Is(err, account.ErrNotFound) {
			cause = CauseStorage
			obs.Logger().ErrorContext(ctx, "session check failed",
				slog.String("username", identity), slog.Any("error", err))
		}
		obs.SessionRejected(cause)
		return account.Account{}, account.ErrUnauthorized
	}
	if acct.IsSuspended {
		obs.SessionRejected(CauseSuspended)
		return account.Account{}, account.ErrUnauthorized
	}
	if o.registry.IsRevoked(acct.ID) {
		exempt, ok := o.registry.Exemption(acct.ID)
		if !ok || connToken == "" || exempt != connToken {
			obs.SessionRejected(CauseRevoked)
			return account.Account{}, account.ErrUnauthorized
		}
	}
	return acct, nil
}
