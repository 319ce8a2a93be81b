package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wenfer/strmgate/internal/auth"
	"github.com/wenfer/strmgate/internal/config"
	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/mounts"
	"github.com/wenfer/strmgate/internal/pool"
	"github.com/wenfer/strmgate/internal/redirect"
	"github.com/wenfer/strmgate/internal/scheduler"
	"github.com/wenfer/strmgate/internal/stubstore"
	"github.com/wenfer/strmgate/internal/syncengine"
	"github.com/wenfer/strmgate/internal/tasks"
	"github.com/wenfer/strmgate/internal/upstream"
	"github.com/wenfer/strmgate/internal/watcher"
)

// upstreamBaseURLs maps a drive kind to its upstream API base URL
// (grounded on original_source/lib115/config.py's proapi.115.com
// endpoints — the only upstream kind this pack's original_source names).
var upstreamBaseURLs = map[string]string{
	"115": "https://proapi.115.com/open",
}

// App is strmgate's composition root: every package built in internal/ is
// wired here exactly once, the way the teacher's root.go builds a single
// graph.Client and hands it to every command.
type App struct {
	Cfg *config.Config

	Drives  *stubstore.DriveStore
	Records *stubstore.RecordStore
	RunLogs *stubstore.RunLogStore
	Tasks   *tasks.Registry
	Mounts  *mounts.Registry

	CredStore  *credstore.Store
	Pool       *pool.Pool
	Redirect   *redirect.Cache
	Engine     *syncengine.Engine
	Scheduler  *scheduler.Scheduler
	Watchers   *watcher.Manager
	AuthByKind map[string]*auth.Machine

	Logger *slog.Logger
}

// newApp builds every component over an already-migrated database, wired
// with cfg's limits. It does not start the scheduler tick loop or any
// watchers — callers (serve, or a one-shot CLI command) decide that.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := stubstore.Open(ctx, cfg.Data.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	driveStore := stubstore.NewDriveStore(db)
	records := stubstore.NewRecordStore(db)
	runLogs := stubstore.NewRunLogStore(db)

	driveExists := func(ctx context.Context, id ids.DriveID) (bool, error) {
		d, err := driveStore.Get(ctx, id)
		if err != nil {
			return false, err
		}

		return d != nil, nil
	}

	taskReg := tasks.New(db, driveExists)
	mountReg := mounts.New(db)

	credStore := credstore.New(cfg.Data.Dir, logger)

	clientFactory := func(kind string) (*upstream.Client, error) {
		baseURL, ok := upstreamBaseURLs[kind]
		if !ok {
			return nil, fmt.Errorf("app: no upstream base url registered for drive kind %q", kind)
		}

		upCfg := upstream.Config{
			RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
			MaxInFlight:       cfg.Upstream.MaxInFlight,
			ConnectTimeout:    cfg.Upstream.ConnectTimeout,
			ReadTimeout:       cfg.Upstream.ReadTimeout,
			MaxRetries:        cfg.Upstream.MaxRetries,
		}

		httpClient := &http.Client{Timeout: cfg.Upstream.ConnectTimeout + cfg.Upstream.ReadTimeout}

		return upstream.NewClient(baseURL, httpClient, upCfg, logger), nil
	}

	p := pool.New(credStore, clientFactory, logger)

	drives, err := driveStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing drives for pool warm-up: %w", err)
	}

	for _, d := range drives {
		p.Register(d.ID, d.Kind)
	}

	redirectCache := redirect.New(cfg.Upstream.RedirectCacheTTL, logger)
	engine := syncengine.New(p, records, runLogs, taskReg, logger)
	sched := scheduler.New(engine, logger, cfg.Scheduler.TickInterval)
	watchers := watcher.NewManager(p, taskReg, sched, logger)

	authByKind := make(map[string]*auth.Machine, len(upstreamBaseURLs))

	for kind := range upstreamBaseURLs {
		client, err := clientFactory(kind)
		if err != nil {
			return nil, err
		}

		authByKind[kind] = auth.New(client, credStore, logger)
	}

	existingTasks, err := taskReg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for scheduler warm-up: %w", err)
	}

	for _, t := range existingTasks {
		if err := sched.Add(t); err != nil {
			logger.Warn("app: skipping task with invalid schedule", slog.String("task_id", t.ID.String()), slog.String("error", err.Error()))
		}
	}

	return &App{
		Cfg:        cfg,
		Drives:     driveStore,
		Records:    records,
		RunLogs:    runLogs,
		Tasks:      taskReg,
		Mounts:     mountReg,
		CredStore:  credStore,
		Pool:       p,
		Redirect:   redirectCache,
		Engine:     engine,
		Scheduler:  sched,
		Watchers:   watchers,
		AuthByKind: authByKind,
		Logger:     logger,
	}, nil
}

// authFor resolves the login state machine for a drive's kind.
func (a *App) authFor(kind string) (*auth.Machine, error) {
	m, ok := a.AuthByKind[kind]
	if !ok {
		return nil, fmt.Errorf("app: no auth machine registered for drive kind %q", kind)
	}

	return m, nil
}
