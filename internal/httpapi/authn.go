package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"accountd.dev/internal/auth"
	"accountd.dev/internal/lifecycle"
	"accountd.dev/internal/obs"
)

const (
	authHeader            = "Authorization"
	bearer                = "Bearer "
	connectionTokenHeader = "X-Connection-Token"

	causeInvalidToken   = "invalid_token"
	causeStaleToken     = "stale_token"
	causeForeignAccount = "account_mismatch"
)

// withSession resolves the caller's session token, asks the oracle whether
// the identity may still act and stores the account in the request context.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.sessionToken(r)
		if token == "" {
			fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		claims, err := a.issuer.Parse(token)
		if err != nil {
			obs.SessionRejected(causeInvalidToken)
			fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		connToken := strings.TrimSpace(r.Header.Get(connectionTokenHeader))
		acct, err := a.oracle.Check(r.Context(), claims.Identity(), connToken)
		if err != nil {
			handleError(w, r, err)
			return
		}
		// A name freed by a rename may now belong to someone else.
		if acct.ID != claims.AccountID {
			obs.SessionRejected(causeForeignAccount)
			fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		// Tokens minted before a password change or a revocation stay dead
		// after the account logs in again. An exempted connection keeps
		// acting while the revocation is in force.
		cutoff := acct.PasswordChangedAt
		if !a.registry.IsRevoked(acct.ID) {
			cutoff = max(cutoff, a.registry.RevokedAt(acct.ID))
		}
		if claims.IssuedBefore(cutoff) {
			obs.SessionRejected(causeStaleToken)
			fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := auth.ContextWithAccount(r.Context(), acct)
		if connToken != "" {
			ctx = auth.ContextWithConnectionToken(ctx, connToken)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run inside withSession.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, ok := auth.AccountFromContext(r.Context())
		if !ok || !acct.IsAdmin {
			fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionToken prefers the Authorization header over the session cookie.
func (a *API) sessionToken(r *http.Request) string {
	if h := r.Header.Get(authHeader); h != "" {
		token, err := extractBearerToken(h)
		if err != nil {
			return ""
		}
		return token
	}
	c, err := r.Cookie(a.cfg.CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (a *API) setSessionCookie(w http.ResponseWriter, sess lifecycle.Session) {
	maxAge := int(a.issuer.TTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
