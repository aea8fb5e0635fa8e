package config

import (
	"flag"
	"io"
	"strings"
)

// configPath finds -c/-config in args without parsing the rest.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			if key := name[:eq]; key == "c" || key == "config" {
				return name[eq+1:]
			}
			continue
		}
		if (name == "c" || name == "config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("accountd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var path string
	fs.StringVar(&path, "c", "", "path to JSON config file")
	fs.StringVar(&path, "config", "", "path to JSON config file")

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address")
	fs.StringVar(&cfg.UsersFile, "users-file", cfg.UsersFile, "JSON users file")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "PostgreSQL DSN; overrides users file")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "users file read cache TTL")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "HS256 token secret")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "session token lifetime")
	fs.StringVar(&cfg.CookieName, "cookie-name", cfg.CookieName, "session cookie name")
	fs.BoolVar(&cfg.CookieSecure, "cookie-secure", cfg.CookieSecure, "mark session cookie Secure")
	fs.StringVar(&cfg.AvatarDir, "avatar-dir", cfg.AvatarDir, "avatar directory")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "S3 bucket for avatars; overrides avatar dir")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3 base endpoint")
	fs.StringVar(&cfg.S3AccessKey, "s3-access-key", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "s3-secret-key", cfg.S3SecretKey, "S3 secret key")
	fs.IntVar(&cfg.LoginLimit, "login-limit", cfg.LoginLimit, "login attempts per window per client")
	fs.DurationVar(&cfg.LoginWindow, "login-window", cfg.LoginWindow, "login rate limit window")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "per-client request rate; 0 disables")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", cfg.RateLimitBurst, "per-client burst")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "take client address from X-Forwarded-For")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "request body limit")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "event stream heartbeat interval")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.AdminUsername, "admin-username", cfg.AdminUsername, "bootstrap administrator")
	fs.StringVar(&cfg.AdminPassword, "admin-password", cfg.AdminPassword, "bootstrap administrator password")

	return fs.Parse(args)
}
