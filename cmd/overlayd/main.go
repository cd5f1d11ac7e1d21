// Command overlayd runs the overlay HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pwa-modeller/overlay/internal/api"
	"github.com/pwa-modeller/overlay/internal/config"
	"github.com/pwa-modeller/overlay/internal/db"
	"github.com/pwa-modeller/overlay/internal/db/migrations"
	"github.com/pwa-modeller/overlay/internal/dbpool"
	"github.com/pwa-modeller/overlay/internal/persist"
	"github.com/pwa-modeller/overlay/internal/service"
	"github.com/pwa-modeller/overlay/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("overlayd exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, cleanup, err := openKV(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	hub := ws.NewHub(log)
	saver := persist.NewSaver(log, cfg.SaveDebounce)
	session := service.NewSession(kv, saver, hub, log)
	defer session.Close()

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:          log,
		Session:      session,
		Hub:          hub,
		KV:           kv,
		CORSOrigins:  cfg.CORSOrigins,
		Version:      config.Version,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr(),
			"backend": cfg.StorageBackend,
			"version": config.Version,
		}).Info("overlayd listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openKV builds the persistence backend selected by STORAGE_BACKEND.
// The returned cleanup closes whatever the backend holds open.
func openKV(ctx context.Context, cfg *config.Config, log *logrus.Logger) (persist.KV, func(), error) {
	noop := func() {}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		return persist.NewMemoryKV(), noop, nil

	case config.BackendFile:
		kv, err := persist.NewFileKV(filepath.Join(cfg.DataDir, "overlay"))
		if err != nil {
			return nil, nil, fmt.Errorf("opening file backend: %w", err)
		}
		return kv, noop, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data dir: %w", err)
		}
		kv, err := persist.NewSQLiteKV(filepath.Join(cfg.DataDir, "overlay.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite backend: %w", err)
		}
		return kv, func() { kv.Close() }, nil

	case config.BackendPostgres:
		pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return persist.NewPostgresKV(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
