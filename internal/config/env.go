package config

import (
	"fmt"
	"strconv"
	"time"
)

const envPrefix = "ACCOUNTD_"

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("USERS_FILE", &cfg.UsersFile)
	str("DATABASE_DSN", &cfg.DatabaseDSN)
	str("AUTH_SECRET", &cfg.AuthSecret)
	str("COOKIE_NAME", &cfg.CookieName)
	str("AVATAR_DIR", &cfg.AvatarDir)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_REGION", &cfg.S3Region)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("ADMIN_USERNAME", &cfg.AdminUsername)
	str("ADMIN_PASSWORD", &cfg.AdminPassword)

	durations := map[string]*time.Duration{
		"CACHE_TTL":          &cfg.CacheTTL,
		"TOKEN_TTL":          &cfg.TokenTTL,
		"LOGIN_WINDOW":       &cfg.LoginWindow,
		"HEARTBEAT_INTERVAL": &cfg.HeartbeatInterval,
	}
	for name, dst := range durations {
		if v := getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"LOGIN_LIMIT":      &cfg.LoginLimit,
		"RATE_LIMIT_BURST": &cfg.RateLimitBurst,
	}
	for name, dst := range ints {
		if v := getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if v := getenv(envPrefix + "MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_BODY_BYTES: %w", envPrefix, err)
		}
		cfg.MaxBodyBytes = n
	}
	if v := getenv(envPrefix + "RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", envPrefix, err)
		}
		cfg.RateLimitRPS = f
	}
	bools := map[string]*bool{
		"COOKIE_SECURE": &cfg.CookieSecure,
		"TRUST_PROXY":   &cfg.TrustProxy,
	}
	for name, dst := range bools {
		if v := getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
	}
	// Bare LOG_LEVEL applies when ACCOUNTD_LOG_LEVEL is unset.
	if v := getenv("LOG_LEVEL"); v != "" && getenv(envPrefix+"LOG_LEVEL") == "" {
		cfg.LogLevel = v
	}
	return nil
}
