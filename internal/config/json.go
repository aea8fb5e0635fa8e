package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// fileConfig mirrors Config for JSON decoding. Absent keys stay nil and do
// not override earlier layers.
type fileConfig struct {
	HTTPAddr          *string   `json:"http_addr"`
	GRPCAddr          *string   `json:"grpc_addr"`
	UsersFile         *string   `json:"users_file"`
	DatabaseDSN       *string   `json:"database_dsn"`
	CacheTTL          *Duration `json:"cache_ttl"`
	AuthSecret        *string   `json:"auth_secret"`
	TokenTTL          *Duration `json:"token_ttl"`
	CookieName        *string   `json:"cookie_name"`
	CookieSecure      *bool     `json:"cookie_secure"`
	AvatarDir         *string   `json:"avatar_dir"`
	S3Bucket          *string   `json:"s3_bucket"`
	S3Region          *string   `json:"s3_region"`
	S3Endpoint        *string   `json:"s3_endpoint"`
	S3AccessKey       *string   `json:"s3_access_key"`
	S3SecretKey       *string   `json:"s3_secret_key"`
	LoginLimit        *int      `json:"login_limit"`
	LoginWindow       *Duration `json:"login_window"`
	RateLimitRPS      *float64  `json:"rate_limit_rps"`
	RateLimitBurst    *int      `json:"rate_limit_burst"`
	MaxBodyBytes      *int64    `json:"max_body_bytes"`
	TrustProxy        *bool     `json:"trust_proxy"`
	HeartbeatInterval *Duration `json:"heartbeat_interval"`
	LogLevel          *string   `json:"log_level"`
	AdminUsername     *string   `json:"admin_username"`
	AdminPassword     *string   `json:"admin_password"`
}

func applyJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	fc.apply(cfg)
	return nil
}

func (fc fileConfig) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.GRPCAddr, fc.GRPCAddr)
	setString(&cfg.UsersFile, fc.UsersFile)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.AuthSecret, fc.AuthSecret)
	setString(&cfg.CookieName, fc.CookieName)
	setString(&cfg.AvatarDir, fc.AvatarDir)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3Endpoint, fc.S3Endpoint)
	setString(&cfg.S3AccessKey, fc.S3AccessKey)
	setString(&cfg.S3SecretKey, fc.S3SecretKey)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.AdminUsername, fc.AdminUsername)
	setString(&cfg.AdminPassword, fc.AdminPassword)
	if fc.CacheTTL != nil {
		cfg.CacheTTL = fc.CacheTTL.Duration
	}
	if fc.TokenTTL != nil {
		cfg.TokenTTL = fc.TokenTTL.Duration
	}
	if fc.LoginWindow != nil {
		cfg.LoginWindow = fc.LoginWindow.Duration
	}
	if fc.HeartbeatInterval != nil {
		cfg.HeartbeatInterval = fc.HeartbeatInterval.Duration
	}
	if fc.CookieSecure != nil {
		cfg.CookieSecure = *fc.CookieSecure
	}
	if fc.TrustProxy != nil {
		cfg.TrustProxy = *fc.TrustProxy
	}
	if fc.LoginLimit != nil {
		cfg.LoginLimit = *fc.LoginLimit
	}
	if fc.RateLimitRPS != nil {
		cfg.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.RateLimitBurst
	}
	if fc.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *fc.MaxBodyBytes
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
