package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"accountd.dev/internal/ids"
	"accountd.dev/internal/obs"
)

func main() {
	httpBase := envOr("ACCOUNTD_SMOKE_HTTP", "http://localhost:8080")
	grpcAddr := envOr("ACCOUNTD_SMOKE_GRPC", "localhost:9090")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fatal("dial grpc", err)
	}
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "accountd"})
	if err != nil {
		fatal("health check", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		fatal("health check", fmt.Errorf("status %s", hc.GetStatus()))
	}

	c := &client{base: httpBase, http: &http.Client{Timeout: 5 * time.Second}}
	username := "smoke_" + ids.New()[20:]

	body := c.expect(ctx, http.StatusOK, "/api/auth/register", map[string]any{"username": username, "password": "smoke123"}, "")
	token, _ := body["token"].(string)
	if token == "" {
		fatal("register", fmt.Errorf("no token in response"))
	}
	c.expect(ctx, http.StatusOK, "/api/user/profile", nil, token)

	// Sessions minted before a password change must die.
	time.Sleep(10 * time.Millisecond)
	c.expect(ctx, http.StatusOK, "/api/password/change",
		map[string]any{"current_password": "smoke123", "new_password": "smoke456"}, token)
	c.expect(ctx, http.StatusUnauthorized, "/api/user/profile", nil, token)

	body = c.expect(ctx, http.StatusOK, "/api/auth/login", map[string]any{"username": username, "password": "smoke456"}, "")
	fresh, _ := body["token"].(string)
	c.expect(ctx, http.StatusOK, "/api/user/profile", nil, fresh)
	c.expect(ctx, http.StatusUnauthorized, "/api/user/profile", nil, token)

	fmt.Printf("accountd smoke test passed: user=%s\n", username)
}

type client struct {
	base string
	http *http.Client
}

// expect sends a POST when body is non-nil and a GET otherwise, and fails
// the run unless the response has status want.
func (c *client) expect(ctx context.Context, want int, path string, body any, token string) map[string]any {
	method := http.MethodGet
	var payload []byte
	if body != nil {
		method = http.MethodPost
		var err error
		if payload, err = json.Marshal(body); err != nil {
			fatal(path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		fatal(path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fatal(path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != want {
		fatal(path, fmt.Errorf("status %d, want %d: %v", resp.StatusCode, want, out))
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(step string, err error) {
	obs.Logger().Error("smoke test failed", slog.String("step", step), slog.Any("error", err))
	os.Exit(1)
}
