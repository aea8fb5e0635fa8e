package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"accountd.dev/internal/account"
	"accountd.dev/internal/audit"
	"accountd.dev/internal/lifecycle"
	"accountd.dev/internal/obs"
)

const genericFailure = "An error occurred while processing your request"

var (
	errNoJSON       = errors.New("Request must include JSON data")
	errBodyTooLarge = errors.New("Request body too large")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes the {success, message, ...data} envelope. data keys never
// override success or message.
func respond(w http.ResponseWriter, code int, success bool, message string, data map[string]any) {
	body := make(map[string]any, len(data)+2)
	for k, v := range data {
		body[k] = v
	}
	body["success"] = success
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, code, body)
}

func succeed(w http.ResponseWriter, message string, data map[string]any) {
	respond(w, http.StatusOK, true, message, data)
}

func fail(w http.ResponseWriter, r *http.Request, code int, message string) {
	data := map[string]any{}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		data["request_id"] = rid
	}
	respond(w, code, false, message, data)
}

// handleError maps lifecycle and store errors onto the HTTP envelope.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var formatErr *account.FormatError
	var credErr *account.CredentialError
	switch {
	case errors.As(err, &formatErr):
		fail(w, r, http.StatusBadRequest, formatErr.Reason)
	case errors.Is(err, account.ErrDuplicateIdentity):
		fail(w, r, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, account.ErrSameIdentity):
		fail(w, r, http.StatusBadRequest, "New username must be different from current username")
	case errors.As(err, &credErr):
		fail(w, r, http.StatusUnauthorized, account.InvalidCredentialsMessage)
	case errors.Is(err, account.ErrSuspended):
		fail(w, r, http.StatusUnauthorized, "Account suspended")
	case errors.Is(err, account.ErrUnauthorized):
		fail(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, account.ErrNotFound):
		fail(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, account.ErrRateLimited):
		fail(w, r, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
	case errors.Is(err, lifecycle.ErrAvatarsDisabled):
		fail(w, r, http.StatusServiceUnavailable, "Profile pictures are not available")
	default:
		obs.Logger().ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", audit.RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		fail(w, r, http.StatusInternalServerError, genericFailure)
	}
}

// decodeJSON reads a single JSON object into a string-keyed map. Fields are
// kept raw so callers can accept numbers sent as strings.
func decodeJSON(r *http.Request) (map[string]json.RawMessage, error) {
	if r.Body == nil {
		return nil, errNoJSON
	}
	dec := json.NewDecoder(r.Body)
	var body map[string]json.RawMessage
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errNoJSON
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, errNoJSON
	}
	if body == nil {
		return nil, errNoJSON
	}
	return body, nil
}

// requireFields decodes the body and checks that every name is present and
// non-empty.
func requireFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]json.RawMessage, bool) {
	body, err := decodeJSON(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}
	var missing []string
	for _, name := range names {
		if isBlank(body[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		fail(w, r, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return nil, false
	}
	return body, true
}

func isBlank(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v == "" || v == "null" || v == `""`
}

// stringField returns the string value of key, or "" when absent or not a
// string.
func stringField(body map[string]json.RawMessage, key string) string {
	raw, ok := body[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// int64Field accepts both 7 and "7".
func int64Field(body map[string]json.RawMessage, key string) (int64, error) {
	raw, ok := body[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	var n json.Number
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	id, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return id, nil
}
