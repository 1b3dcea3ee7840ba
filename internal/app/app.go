package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/golf-scorecard/internal/backend"
	"example.com/golf-scorecard/internal/config"
	"example.com/golf-scorecard/internal/golf"
	"example.com/golf-scorecard/internal/migrate"
	"example.com/golf-scorecard/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db     *pgxpool.Pool
	pg     *backend.Postgres // nil unless the change feed is LISTEN/NOTIFY
	nc     *nats.Conn
	rdb    *redis.Client
	sqlite *session.SQLiteKV

	sync    *golf.Synchronizer
	session *session.Store

	srv *http.Server
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// --- Backend ---
	var be backend.Backend
	switch cfg.Backend.Kind {
	case "postgres":
		if cfg.Postgres.RunMigrations {
			if err := migrate.Up(cfg.Postgres.URL, log); err != nil {
				return nil, err
			}
		}
		a.db, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := a.db.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		pg := backend.NewPostgres(a.db, log)
		if cfg.Feed.Kind == "postgres" {
			a.pg = pg
		}
		be = pg
	default:
		be = backend.NewMemory()
	}

	// --- Change feed ---
	if cfg.Feed.Kind == "nats" {
		natsCfg := backend.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait

		a.nc, err = backend.ConnectNATS(natsCfg, log)
		if err != nil {
			return nil, err
		}
		be = backend.NewNATSFeed(be, a.nc, natsCfg.SubjectPrefix, log)
	}

	// --- Session KV ---
	var kv session.KV
	switch cfg.Session.Kind {
	case "redis":
		a.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}
		kv = session.NewRedisKV(a.rdb, cfg.Redis.Prefix, cfg.Redis.SessionTTL)
	case "sqlite":
		a.sqlite, err = session.OpenSQLiteKV(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		kv = a.sqlite
	default:
		kv = session.NewMemoryKV()
	}

	// --- Game ---
	a.sync = golf.NewSynchronizer(golf.Config{
		Holes:        cfg.Game.Holes,
		CodeAttempts: cfg.Game.CodeAttempts,
	}, be, log)
	a.session = session.NewStore(kv)
	gameSrv := golf.NewServer(a.sync, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	gameSrv.RegisterRoutes(mux)

	a.srv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return a, nil
}

// Run resumes a persisted session, then serves the UI and consumes the change
// feed until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.restoreSession(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.sync.Run(gctx)
	})

	if a.pg != nil {
		g.Go(func() error {
			return a.pg.Listen(gctx)
		})
	}

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

// restoreSession loads the persisted snapshot before anything is served. The
// persisting hook is installed only afterwards so the empty initial state
// cannot overwrite it.
func (a *App) restoreSession(ctx context.Context) {
	snap, ok, err := a.session.Load(ctx)
	if err != nil {
		a.log.Warn("discarding unreadable session", "err", err)
	}

	a.sync.OnChange(a.session.Observer(context.WithoutCancel(ctx), a.log))

	if !ok {
		a.log.Info("no saved session, starting at home")
		return
	}
	if err := a.sync.Resume(ctx, snap); err != nil {
		a.log.Error("resume refresh failed", "game_id", snap.Game.ID, "err", err)
	}
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.nc != nil {
		a.nc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.sqlite != nil {
		_ = a.sqlite.Close()
	}
	return nil
}
