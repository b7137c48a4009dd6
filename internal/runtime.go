package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/sse"
	"github.com/navigator/codebook/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// runtime is the wired service graph shared by serve, mcp and play.
type runtime struct {
	cfg    *Config
	logger *slog.Logger

	site     *storage.FS
	cache    *challenge.CachedFetcher
	db       *progress.DB
	progress *progress.Manager
	broker   *sse.Broker
	sessions *session.Manager
	catalog  *scenario.Catalog
}

func newRuntime(cfg *Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	if err := os.MkdirAll(cfg.Site.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create site dir: %w", err)
	}
	site, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	rt.site = site

	// Resources come from the local site unless a base URL points elsewhere.
	var fetcher challenge.Fetcher = challenge.NewStorageFetcher(site)
	loaderOpts := []challenge.LoaderOption{
		challenge.WithReadyTimeout(cfg.Terminal.ReadyTimeout),
		challenge.WithCompletionDelay(cfg.Terminal.CompletionDelay),
		challenge.WithLoaderLogger(logger),
	}
	if cfg.Site.BaseURL != "" {
		fetcher = challenge.NewHTTPFetcher(cfg.Site.BaseURL)
	} else {
		loaderOpts = append(loaderOpts, challenge.WithBasePath("/"))
	}
	if cfg.Cache.Size > 0 {
		rt.cache, err = challenge.NewCachedFetcher(fetcher, cfg.Cache.Size)
		if err != nil {
			return nil, err
		}
		fetcher = rt.cache
	}
	loader := challenge.NewLoader(fetcher, loaderOpts...)

	rt.broker = sse.NewBroker(cfg.Progress.BroadcastThrottle)

	db, err := progress.Open(cfg.SQLite.Path)
	if err != nil {
		rt.broker.Close()
		return nil, fmt.Errorf("init progress store: %w", err)
	}
	rt.db = db
	rt.progress = progress.NewManager(db,
		progress.WithLogger(logger),
		progress.OnChange(func(p progress.Progress) {
			rt.broker.PublishProgress(p.UserID, p)
		}))

	rt.sessions, err = session.NewManager(loader,
		session.Config{MaxSessions: cfg.Terminal.MaxSessions, HistoryLimit: cfg.Terminal.HistoryLimit},
		session.WithProgress(rt.progress, challenge.Resolved()),
		session.WithBroker(rt.broker),
		session.WithLogger(logger))
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.catalog = scenario.NewCatalog(site, logger)
	return rt, nil
}

// scenarioChanged drops cached resources of id and tells clients.
func (rt *runtime) scenarioChanged(id, kind string) {
	n := 0
	if rt.cache != nil {
		dir := "/" + scenario.Dir + "/" + id + "/"
		n = rt.cache.Invalidate(func(path string) bool { return strings.Contains(path, dir) })
	}
	rt.logger.Info("scenario: changed",
		slog.String("scenario", id),
		slog.String("kind", kind),
		slog.Int("evicted", n))
	rt.broker.Publish(sse.Event{
		Type: sse.TypeScenarioUpdated,
		Data: map[string]string{"id": id, "kind": kind},
	})
}

// watch runs the scenario watcher; it only applies to a local site.
func (rt *runtime) watch(ctx context.Context) error {
	if rt.cfg.Site.BaseURL != "" {
		<-ctx.Done()
		return nil
	}
	return scenario.Watch(ctx, rt.site.Root(), rt.logger, rt.scenarioChanged)
}

func (rt *runtime) close() {
	if rt.sessions != nil {
		rt.sessions.Close()
	}
	if rt.progress != nil {
		if err := rt.progress.Flush(); err != nil {
			rt.logger.Error("progress: flush on close failed", slog.String("error", err.Error()))
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
	rt.broker.Close()
}
