package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"accountd.dev/internal/auth"
	"accountd.dev/internal/notify"
	"accountd.dev/internal/obs"
)

const defaultHeartbeat = 25 * time.Second

var errStreamBinding = errors.New("username kept changing while binding stream")

// Events streams push notifications for the caller's identity as
// Server-Sent Events. The first event is registration_confirmed carrying the
// connection token; the stream ends after a force_logout.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	acct, _ := auth.AccountFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// The server write timeout would cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn := a.hub.Attach()
	defer a.hub.Unregister(conn.Token)
	username, err := a.bindStream(r, acct.ID, conn.Token)
	if err != nil {
		handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	_, _ = io.WriteString(w, ": stream started\n\n")
	err = writeEvent(w, notify.EventRegistrationConfirmed, notify.RegistrationConfirmed{
		Username:        username,
		Status:          "registered",
		ConnectionToken: conn.Token,
	})
	if err != nil {
		return
	}
	flusher.Flush()

	interval := a.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-conn.Messages():
			if err := writeEvent(w, msg.Event, msg.Payload); err != nil {
				obs.Logger().WarnContext(ctx, "event write failed",
					slog.String("event", msg.Event), slog.Any("error", err))
				return
			}
			flusher.Flush()
			if msg.Event == notify.EventForceLogout {
				return
			}
		}
	}
}

const bindAttempts = 3

// bindStream registers token under the account's current username. A rename
// that lands between reading the name and registering would strand the
// binding, so the name is read again once bound.
func (a *API) bindStream(r *http.Request, accountID int64, token string) (string, error) {
	current, err := a.accounts.Profile(r.Context(), accountID)
	if err != nil {
		return "", err
	}
	for range bindAttempts {
		if err := a.hub.Register(current.Username, token); err != nil {
			return "", err
		}
		again, err := a.accounts.Profile(r.Context(), accountID)
		if err != nil {
			return "", err
		}
		if again.Username == current.Username {
			return current.Username, nil
		}
		current = again
	}
	return "", errStreamBinding
}

func writeEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
