package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"accountd.dev/internal/notify"
)

type sseEvent struct {
	name string
	data string
}

func readEvent(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, api *apiClient, token string) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/api/events", nil)
	if err != nil {
		cancel()
		t.Fatalf("new request: %v", err)
	}
	resp := api.do(req, token, nil)
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("unexpected stream status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		cancel()
		t.Fatalf("unexpected content type: %s", ct)
	}
	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func expectEvent(t *testing.T, r *bufio.Reader, name string) map[string]any {
	t.Helper()
	ev, err := readEvent(r)
	if err != nil {
		t.Fatalf("read %s event: %v", name, err)
	}
	if ev.name != name {
		t.Fatalf("expected %s event, got %q", name, ev.name)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
		t.Fatalf("decode %s payload: %v", name, err)
	}
	return payload
}

func TestEventsRegistrationConfirmed(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice")

	stream, closeStream := openStream(t, api, token)
	defer closeStream()

	payload := expectEvent(t, stream, notify.EventRegistrationConfirmed)
	if payload["username"] != "alice" || payload["status"] != "registered" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	connToken, _ := payload["connection_token"].(string)
	if got, ok := api.hub.Lookup("alice"); !ok || got != connToken {
		t.Fatalf("expected hub binding %q, got %q (%v)", connToken, got, ok)
	}
}

func TestEventsForceLogoutOnSuspend(t *testing.T) {
	api := newTestAPI(t)
	adminToken := api.admin()
	token := api.register("alice")

	stream, closeStream := openStream(t, api, token)
	defer closeStream()
	expectEvent(t, stream, notify.EventRegistrationConfirmed)

	expectStatus(t, api.post("/api/admin/suspend", map[string]any{"username": "alice"}, adminToken), http.StatusOK)

	payload := expectEvent(t, stream, notify.EventForceLogout)
	if payload["reason"] != notify.ReasonSuspended || payload["user_id"] != float64(2) {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["message"] != "Your account has been suspended by an administrator" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
	if _, err := readEvent(stream); !errors.Is(err, io.EOF) {
		t.Fatalf("expected stream to end, got %v", err)
	}
}

func TestEventsFollowRename(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice")

	stream, closeStream := openStream(t, api, token)
	defer closeStream()
	confirmed := expectEvent(t, stream, notify.EventRegistrationConfirmed)

	body := expectStatus(t, api.post("/api/user/update-username", map[string]any{"new_username": "alicia"}, token), http.StatusOK)
	renamed := tokenOf(t, body)
	if got, ok := api.hub.Lookup("alicia"); !ok || got != confirmed["connection_token"] {
		t.Fatalf("connection did not follow rename: %q %v", got, ok)
	}

	api.clock.Advance(time.Second)
	expectStatus(t, api.post("/api/password/change",
		map[string]any{"current_password": "secret1", "new_password": "newpass2"}, renamed), http.StatusOK)

	payload := expectEvent(t, stream, notify.EventForceLogout)
	if payload["reason"] != notify.ReasonPasswordChanged {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestEventsRequireSession(t *testing.T) {
	api := newTestAPI(t)
	expectFailure(t, api.get("/api/events", ""), http.StatusUnauthorized, "Unauthorized")
}

func TestStreamBindsCurrentUsername(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice")

	// The session resolved "alice"; the rename lands before the stream binds.
	if _, _, err := api.accounts.Rename(context.Background(), 1, "alicia"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	conn := api.hub.Attach()
	defer api.hub.Unregister(conn.Token)

	req, _ := http.NewRequest(http.MethodGet, "/api/events", nil)
	name, err := api.server.bindStream(req, 1, conn.Token)
	if err != nil {
		t.Fatalf("bind stream: %v", err)
	}
	if name != "alicia" {
		t.Fatalf("expected current username, got %q", name)
	}
	if got, ok := api.hub.Lookup("alicia"); !ok || got != conn.Token {
		t.Fatalf("stream not bound to current username: %q %v", got, ok)
	}
	if _, ok := api.hub.Lookup("alice"); ok {
		t.Fatal("stale username still bound")
	}

	if _, err := api.accounts.SetSuspension(context.Background(), 1, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	select {
	case msg := <-conn.Messages():
		if msg.Event != notify.EventForceLogout {
			t.Fatalf("unexpected event %q", msg.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected force_logout on the bound stream")
	}
}
