package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c := Defaults()
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 5*time.Second, c.CacheTTL)
	assert.Equal(t, 365*24*time.Hour, c.TokenTTL)
	assert.Equal(t, "access_token_cookie", c.CookieName)
	assert.Equal(t, 5, c.LoginLimit)
	assert.Equal(t, time.Minute, c.LoginWindow)
	assert.False(t, c.UsesPostgres())
	assert.False(t, c.UsesS3())
	assert.False(t, c.TrustProxy)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load(nil, envMap(nil))
	assert.ErrorContains(t, err, "auth secret is required")
}

func TestLoadPrecedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"http_addr":   ":7000",
		"grpc_addr":   ":7001",
		"auth_secret": "from-file",
		"cache_ttl":   "2s",
		"login_limit": 3,
		"s3_bucket":   "avatars",
	})
	env := envMap(map[string]string{
		"ACCOUNTD_GRPC_ADDR":    ":8001",
		"ACCOUNTD_LOGIN_WINDOW": "30s",
		"ACCOUNTD_AUTH_SECRET":  "from-env",
	})

	cfg, err := Load([]string{"-c", path, "-auth-secret", "from-flag", "-cookie-secure"}, env)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr, "file overrides default")
	assert.Equal(t, ":8001", cfg.GRPCAddr, "env overrides file")
	assert.Equal(t, "from-flag", cfg.AuthSecret, "flag overrides env")
	assert.Equal(t, 2*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.LoginLimit)
	assert.Equal(t, 30*time.Second, cfg.LoginWindow)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.UsesS3())
}

func TestLoadTrustProxy(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"auth_secret": "s", "trust_proxy": true})
	cfg, err := Load([]string{"-c", path}, envMap(nil))
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxy)

	cfg, err = Load([]string{"-c", path}, envMap(map[string]string{"ACCOUNTD_TRUST_PROXY": "false"}))
	require.NoError(t, err)
	assert.False(t, cfg.TrustProxy, "env overrides file")

	cfg, err = Load([]string{"-trust-proxy"}, envMap(map[string]string{"ACCOUNTD_AUTH_SECRET": "s"}))
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxy)

	_, err = Load(nil, envMap(map[string]string{"ACCOUNTD_AUTH_SECRET": "s", "ACCOUNTD_TRUST_PROXY": "maybe"}))
	assert.ErrorContains(t, err, "ACCOUNTD_TRUST_PROXY")
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"auth_secret": "s", "dsn_typo": "x"})
	_, err := Load(nil, envMap(map[string]string{"ACCOUNTD_CONFIG": path}))
	assert.ErrorContains(t, err, "unknown field")
}

func TestLoadBadEnv(t *testing.T) {
	_, err := Load(nil, envMap(map[string]string{
		"ACCOUNTD_AUTH_SECRET": "s",
		"ACCOUNTD_TOKEN_TTL":   "forever",
	}))
	assert.ErrorContains(t, err, "ACCOUNTD_TOKEN_TTL")
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := Load([]string{"-nope"}, envMap(map[string]string{"ACCOUNTD_AUTH_SECRET": "s"}))
	assert.Error(t, err)
}

func TestValidateAdminPair(t *testing.T) {
	c := Defaults()
	c.AuthSecret = "s"
	c.AdminUsername = "root"
	assert.ErrorContains(t, c.Validate(), "admin username and password")
	c.AdminPassword = "rootpw1"
	assert.NoError(t, c.Validate())
}

func TestConfigPath(t *testing.T) {
	cases := map[string][]string{
		"a.json": {"-c", "a.json"},
		"b.json": {"--config=b.json"},
		"c.json": {"-http-addr", ":1", "-config", "c.json"},
		"":       {"-http-addr", ":1"},
	}
	for want, args := range cases {
		assert.Equal(t, want, configPath(args), args)
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m"`), &d))
	assert.Equal(t, time.Minute, d.Duration)
	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Duration)
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration{Duration: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"3s"`, string(out))
}
