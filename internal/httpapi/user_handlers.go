package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"accountd.dev/internal/account"
	"accountd.dev/internal/auth"
	"accountd.dev/internal/blob"
	"accountd.dev/internal/lifecycle"
	"accountd.dev/internal/obs"
)

// profileData is the public view of an account.
func profileData(acct account.Account, includeAdmin bool) map[string]any {
	var picture any
	if acct.ProfilePicture != "" {
		picture = acct.ProfilePicture
	}
	data := map[string]any{
		"id":              acct.ID,
		"username":        acct.Username,
		"created_at":      acct.CreatedAt,
		"profile_picture": picture,
	}
	if includeAdmin {
		data["is_admin"] = acct.IsAdmin
	}
	return data
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	succeed(w, "", map[string]any{"user": profileData(acct, false)})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	succeed(w, "", map[string]any{"user": profileData(acct, true)})
}

func (a *API) updateUsername(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	body, err := decodeJSON(r)
	newUsername := stringField(body, "new_username")
	if err != nil || newUsername == "" {
		fail(w, r, http.StatusBadRequest, "New username required")
		return
	}

	renamed, sess, err := a.accounts.Rename(r.Context(), acct.ID, newUsername)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess)
	succeed(w, "Username updated successfully", map[string]any{
		"new_username": renamed.Username,
		"token":        sess.Token,
		"expires_at":   sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) updateProfilePicture(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	if !isMultipart(r) {
		fail(w, r, http.StatusBadRequest, "No profile picture provided")
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		fail(w, r, http.StatusBadRequest, "No profile picture provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, present, err := formFile(r, "profile_picture")
	if err != nil || !present {
		fail(w, r, http.StatusBadRequest, "No profile picture provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		fail(w, r, http.StatusBadRequest, "No profile picture selected")
		return
	}

	updated, err := a.accounts.UpdateProfilePicture(r.Context(), acct.ID, lifecycle.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	succeed(w, "Profile picture updated successfully", map[string]any{
		"profile_picture": updated.ProfilePicture,
	})
}

func (a *API) profilePicture(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := a.accounts.Avatar(r.Context(), r.PathValue("key"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
			fail(w, r, http.StatusNotFound, "Profile picture not found")
			return
		}
		handleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		obs.Logger().WarnContext(r.Context(), "avatar write failed", slog.Any("error", err))
	}
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())
	body, err := decodeJSON(r)
	current := stringField(body, "current_password")
	next := stringField(body, "new_password")
	if err != nil || current == "" || next == "" {
		fail(w, r, http.StatusBadRequest, "Current password and new password required")
		return
	}

	if err := a.accounts.ChangePassword(r.Context(), acct.ID, current, next); err != nil {
		if errors.Is(err, account.ErrBadCredential) {
			fail(w, r, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		handleError(w, r, err)
		return
	}
	succeed(w, "Password changed successfully. All sessions have been invalidated for security.", nil)
}
