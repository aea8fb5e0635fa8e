package auth

import (
	"context"

	"accountd.dev/internal/account"
)

type accountContextKey struct{}
type connTokenContextKey struct{}

// ContextWithAccount attaches the authenticated account to the context.
func ContextWithAccount(ctx context.Context, a account.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, &a)
}

// AccountFromContext extracts the authenticated account from the context.
func AccountFromContext(ctx context.Context) (account.Account, bool) {
	if ctx == nil {
		return account.Account{}, false
	}
	v, ok := ctx.Value(accountContextKey{}).(*account.Account)
	if !ok || v == nil {
		return account.Account{}, false
	}
	return *v, true
}

// IdentityFromContext returns the username of the authenticated account.
func IdentityFromContext(ctx context.Context) (string, bool) {
	a, ok := AccountFromContext(ctx)
	if !ok || a.Username == "" {
		return "", false
	}
	return a.Username, true
}

// ContextWithConnectionToken stores the caller's live connection token.
func ContextWithConnectionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, connTokenContextKey{}, token)
}

// ConnectionTokenFromContext returns the caller's live connection token.
func ConnectionTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(connTokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
