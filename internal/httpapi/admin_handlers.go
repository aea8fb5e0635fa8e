package httpapi

import (
	"fmt"
	"net/http"
)

func suspensionVerb(suspend bool) string {
	if suspend {
		return "suspended"
	}
	return "unsuspended"
}

// suspensionByName serves /api/admin/suspend and /api/admin/unsuspend.
func (a *API) suspensionByName(suspend bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := requireFields(w, r, "username")
		if !ok {
			return
		}
		acct, err := a.accounts.SetSuspensionByIdentity(r.Context(), stringField(body, "username"), suspend)
		if err != nil {
			handleError(w, r, err)
			return
		}
		succeed(w, fmt.Sprintf("User %s has been %s", acct.Username, suspensionVerb(suspend)), nil)
	})
}

// suspensionByID serves /api/admin/ban and /api/admin/unban.
func (a *API) suspensionByID(suspend bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := requireFields(w, r, "user_id")
		if !ok {
			return
		}
		id, err := int64Field(body, "user_id")
		if err != nil {
			fail(w, r, http.StatusBadRequest, err.Error())
			return
		}
		acct, err := a.accounts.SetSuspension(r.Context(), id, suspend)
		if err != nil {
			handleError(w, r, err)
			return
		}
		succeed(w, fmt.Sprintf("User %s has been %s", acct.Username, suspensionVerb(suspend)), nil)
	})
}
