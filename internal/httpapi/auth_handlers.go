package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"accountd.dev/internal/account"
	"accountd.dev/internal/lifecycle"
)

const multipartMemory = 8 << 20

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var (
		username, password string
		avatar             *lifecycle.Upload
	)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			fail(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		username = r.FormValue("username")
		password = r.FormValue("password")

		file, header, present, err := formFile(r, "profile_picture")
		if err != nil {
			fail(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if present {
			defer file.Close()
			if header.Filename != "" {
				avatar = &lifecycle.Upload{Filename: header.Filename, Size: header.Size, Body: file}
			}
		}
	} else {
		body, err := decodeJSON(r)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		username = stringField(body, "username")
		password = stringField(body, "password")
	}

	if username == "" || password == "" {
		fail(w, r, http.StatusBadRequest, "Username and password required")
		return
	}

	acct, sess, err := a.accounts.Register(r.Context(), username, password, avatar)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	succeed(w, "Registration successful", map[string]any{
		"user":       profileData(acct, false),
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	body, ok := requireFields(w, r, "username", "password")
	if !ok {
		return
	}
	if allowed, wait := a.logins.allow(clientIP(r, a.cfg.TrustProxy)); !allowed {
		setRetryAfter(w, wait)
		handleError(w, r, account.ErrRateLimited)
		return
	}

	acct, sess, err := a.accounts.Authenticate(r.Context(), stringField(body, "username"), stringField(body, "password"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	succeed(w, "Login successful", map[string]any{
		"user":       profileData(acct, true),
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.clearSessionCookie(w)
	succeed(w, "Logout successful", nil)
}

func (a *API) forceLogout(w http.ResponseWriter, r *http.Request) {
	body, ok := requireFields(w, r, "user_id")
	if !ok {
		return
	}
	id, err := int64Field(body, "user_id")
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.accounts.ForceLogout(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	succeed(w, "User forced to logout", nil)
}

func isMultipart(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data")
}

// formFile returns the named upload, or nil with ok=false when the field is
// absent.
func formFile(r *http.Request, name string) (multipart.File, *multipart.FileHeader, bool, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	return file, header, true, nil
}
