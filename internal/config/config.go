// Package config assembles runtime settings from built-in defaults, an
// optional JSON file, ACCOUNTD_* environment variables and command-line
// flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds runtime settings for the accountd server.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	// UsersFile is the JSON credential store, used when DatabaseDSN is empty.
	UsersFile   string
	DatabaseDSN string
	CacheTTL    time.Duration

	AuthSecret   string
	TokenTTL     time.Duration
	CookieName   string
	CookieSecure bool

	AvatarDir   string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	LoginLimit     int
	LoginWindow    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	// TrustProxy keys client limits on X-Forwarded-For instead of the
	// socket address. Enable only behind a proxy that overwrites the header.
	TrustProxy bool

	HeartbeatInterval time.Duration
	LogLevel          string

	AdminUsername string
	AdminPassword string
}

// Defaults returns development defaults. AuthSecret is left empty and must
// be supplied.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":9090",
		UsersFile:         "data/users.json",
		CacheTTL:          5 * time.Second,
		TokenTTL:          365 * 24 * time.Hour,
		CookieName:        "access_token_cookie",
		AvatarDir:         "data/profile_pictures",
		S3Region:          "us-east-1",
		LoginLimit:        5,
		LoginWindow:       time.Minute,
		RateLimitRPS:      50,
		RateLimitBurst:    100,
		MaxBodyBytes:      5 << 20,
		HeartbeatInterval: 25 * time.Second,
		LogLevel:          "info",
	}
}

// Load builds a Config for a process started with args (without the program
// name). getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	path := configPath(args)
	if path == "" {
		path = getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := applyJSONFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("auth secret is required"))
	}
	if c.DatabaseDSN == "" && c.UsersFile == "" {
		errs = append(errs, errors.New("either database dsn or users file is required"))
	}
	if c.LoginLimit <= 0 || c.LoginWindow <= 0 {
		errs = append(errs, fmt.Errorf("login limit %d per %s is invalid", c.LoginLimit, c.LoginWindow))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be positive"))
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("admin username and password must be set together"))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether accounts live in PostgreSQL.
func (c Config) UsesPostgres() bool { return c.DatabaseDSN != "" }

// UsesS3 reports whether avatars go to S3 instead of AvatarDir.
func (c Config) UsesS3() bool { return c.S3Bucket != "" }
