package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prolearn/accounts/internal/app/migrate"
	"github.com/prolearn/accounts/internal/config"
	httpx "github.com/prolearn/accounts/internal/http"
	"github.com/prolearn/accounts/internal/logger"
	"github.com/prolearn/accounts/internal/mail"
	"github.com/prolearn/accounts/internal/repository"
	"github.com/prolearn/accounts/internal/repository/postgres"
	"github.com/prolearn/accounts/internal/service/admin"
	"github.com/prolearn/accounts/internal/service/auth"
	"github.com/prolearn/accounts/internal/service/credential"
	"github.com/prolearn/accounts/internal/service/otp"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("accounts-api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	mailer, err := mail.New(cfg, log)
	if err != nil {
		log.Error("failed to configure mailer", "error", err)
		os.Exit(1)
	}

	credentialSvc := credential.New(repo, log)
	authSvc := auth.New(credentialSvc, repo, repo, log, cfg)
	otpSvc := otp.New(repo, mailer, log)
	adminSvc := admin.New(credentialSvc, repo, log)

	if err := bootstrapAdmin(ctx, cfg, credentialSvc, log); err != nil {
		log.Error("admin bootstrap failed", "error", err)
		os.Exit(1)
	}

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, credentialSvc, authSvc, otpSvc, adminSvc, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("accounts api starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("accounts api stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// bootstrapAdmin creates the configured superuser on first boot so a fresh
// deployment has an admin to log in with.
func bootstrapAdmin(ctx context.Context, cfg config.APIConfig, credentials credential.Service, log *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := credentials.CreateSuperuser(ctx, cfg.AdminEmail, cfg.AdminFullName, cfg.AdminPassword)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil
		}
		return err
	}
	log.Info("bootstrap admin created", "email", cfg.AdminEmail)
	return nil
}
