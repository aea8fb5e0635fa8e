package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"accountd.dev/internal/account"
	"accountd.dev/internal/auth"
	"accountd.dev/internal/blob"
	"accountd.dev/internal/config"
	"accountd.dev/internal/httpapi"
	"accountd.dev/internal/lifecycle"
	"accountd.dev/internal/migrate"
	"accountd.dev/internal/notify"
	"accountd.dev/internal/obs"
	"accountd.dev/internal/session"
	"accountd.dev/internal/store/file"
	"accountd.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Logger().Error("accountd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := obs.Logger()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret, cfg.TokenTTL, auth.WithIssuerName("accountd"))
	if err != nil {
		return err
	}
	registry := session.NewRegistry()
	hub := notify.NewHub(0)
	accounts := lifecycle.New(store, registry, hub, issuer, lifecycle.WithBlobStore(blobs))

	if cfg.AdminUsername != "" {
		admin, err := accounts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info("admin account ready", slog.String("username", admin.Username), slog.Int64("user_id", admin.ID))
	}

	probe := httpapi.ReadyProbe{Store: store}
	api := httpapi.New(httpapi.Deps{
		Accounts: accounts,
		Oracle:   session.NewOracle(store, registry),
		Registry: registry,
		Hub:      hub,
		Issuer:   issuer,
		Probe:    probe,
		Config:   cfg,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewGRPCServer(probe, version)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx, 5*time.Second)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", slog.String("addr", srv.Addr), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", slog.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
	}

	stopHealth()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.Any("error", err))
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
	return runErr
}

// openStore returns the PostgreSQL store when a DSN is configured, migrating
// it first, and the JSON file store otherwise.
func openStore(ctx context.Context, cfg config.Config) (account.Store, func(), error) {
	log := obs.Logger()
	if !cfg.UsesPostgres() {
		st, err := file.Open(cfg.UsersFile, file.WithCacheTTL(cfg.CacheTTL))
		if err != nil {
			return nil, nil, fmt.Errorf("open users file: %w", err)
		}
		log.Info("using file store", slog.String("path", cfg.UsersFile))
		return st, func() {}, nil
	}

	st, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	mgr, err := migrate.NewManager(st.DB())
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	applied, err := mgr.Up(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("using postgres store", slog.Int("migrations_applied", len(applied)))
	return st, func() { _ = st.Close() }, nil
}

func openBlobs(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if cfg.UsesS3() {
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    "profile_pictures/",
		})
		if err != nil {
			return nil, fmt.Errorf("s3 avatars: %w", err)
		}
		obs.Logger().Info("using s3 avatar store", slog.String("bucket", cfg.S3Bucket))
		return s3, nil
	}
	dir, err := blob.NewDir(cfg.AvatarDir)
	if err != nil {
		return nil, fmt.Errorf("avatar dir: %w", err)
	}
	return dir, nil
}
