package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"genaccess.org/internal/auth"
	"genaccess.org/internal/bootstrap"
	"genaccess.org/internal/config"
	"genaccess.org/internal/grpcapi"
	"genaccess.org/internal/httpapi"
	"genaccess.org/internal/migrate"
	"genaccess.org/internal/obs"
	"genaccess.org/internal/revocation"
	"genaccess.org/internal/store/memory"
	"genaccess.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type noopProbe struct{}

func (noopProbe) Ping(context.Context) error { return nil }

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !obs.SetLevel(cfg.LogLevel) {
		obs.Logger().Warn("unknown log level, keeping info", "level", cfg.LogLevel)
	}
	secret, err := cfg.Validate()
	if err != nil {
		return err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, probe, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	seed, err := bootstrap.Seed(ctx, store, bootstrap.Admin{
		Username:  cfg.Bootstrap.Username,
		Email:     cfg.Bootstrap.Email,
		Password:  cfg.Bootstrap.Password,
		FirstName: cfg.Bootstrap.FirstName,
		LastName:  cfg.Bootstrap.LastName,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("bootstrap complete", "client_id", seed.Client.ID, "permissions", seed.Permissions, "roles", seed.Roles, "admin_created", seed.AdminUser)

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	tokens, err := auth.NewTokenService(secret, ledger,
		auth.WithTokenTTL(cfg.Token.TTL),
		auth.WithIssuer(cfg.Token.Issuer),
	)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		return err
	}

	api := httpapi.New(svc,
		httpapi.WithReadyProbe(probe),
		httpapi.WithRateLimit(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithVersion(version),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := grpcapi.New(probe)
	gs := grpc.NewServer()
	health.Register(gs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("grpc listening", "addr", cfg.GRPCAddr)
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		health.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gs.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

// openStore picks Postgres when a DSN is configured and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) (auth.Store, httpapi.ReadyProbe, func(), error) {
	if cfg.PGDSN == "" {
		obs.Logger().Warn("no database configured, using in-memory store")
		return memory.New(), noopProbe{}, func() {}, nil
	}
	st, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.RunMigrations {
		applied, err := migrate.NewManager(st.DB()).Up(ctx)
		if err != nil {
			_ = st.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		obs.Logger().Info("migrations applied", "count", len(applied), "files", applied)
	}
	return st, st, func() { _ = st.Close() }, nil
}

func openLedger(ctx context.Context, cfg config.Config) (auth.RevocationLedger, func(), error) {
	if cfg.Revocation.Backend != config.RevocationRedis {
		return revocation.NewMemory(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return revocation.NewRedis(client, revocation.WithPrefix(cfg.Revocation.Prefix)), func() { _ = client.Close() }, nil
}
