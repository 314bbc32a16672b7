package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/config"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/control"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/httpapi"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/logbus"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/metrics"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/queue"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := config.Load()
	logger.Info("enesa-automation-hub api starting", "version", version, "port", cfg.HTTPPort)
	metrics.Register(prometheus.DefaultRegisterer)

	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.AppTimezone, err)
	}

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()

	env, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("cipher init: %w", err)
	}

	q := queue.New(rdb)
	ctrl := control.New(rdb)
	bus := logbus.New(rdb, st)
	engine := runengine.New(st, q, bus, ctrl, env, rdb, cfg.MaxIneligibleAttempts,
		time.Duration(cfg.CancelGraceSeconds)*time.Second, time.Duration(cfg.WorkerStaleSeconds)*time.Second, loc)

	router := httpapi.NewRouter(httpapi.Deps{
		Store:         st,
		Engine:        engine,
		Queue:         q,
		LogBus:        bus,
		Cipher:        env,
		Identity:      staticIdentityResolver{},
		DeployTokens:  fixedDeployToken(cfg.DeployToken),
		ArtifactsRoot: cfg.ArtifactsRoot,
		StartedAt:     time.Now().UTC(),
		Log:           logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket log streaming holds connections open indefinitely
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("api shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("api stopped")
	return nil
}

// staticIdentityResolver is a placeholder IdentityResolver: identity/RBAC
// is an external collaborator's concern (spec.md §1), so the core wires a
// trivial resolver here instead of shipping a real one.
type staticIdentityResolver struct{}

func (staticIdentityResolver) Resolve(r *http.Request) (httpapi.Identity, error) {
	return httpapi.Identity{}, nil
}

type fixedDeployToken string

func (t fixedDeployToken) Check(token string) bool {
	return len(t) > 0 && token == string(t)
}
