package challenge

import (
	"context"
	"log/slog"
	"time"

	"github.com/navigator/codebook/internal/evidence"
	"github.com/navigator/codebook/internal/terminal"
)

const (
	DefaultReadyTimeout    = 5 * time.Second
	DefaultCompletionDelay = time.Second
)

// Loader builds engines from challenge definitions reachable through a
// Fetcher.
type Loader struct {
	fetcher         Fetcher
	basePath        string
	readyTimeout    time.Duration
	completionDelay time.Duration
	logger          *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBasePath fixes the site base path instead of deriving it from the page.
func WithBasePath(base string) LoaderOption {
	return func(l *Loader) { l.basePath = base }
}

// WithReadyTimeout bounds the wait for collaborators.
func WithReadyTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.readyTimeout = d }
}

// WithCompletionDelay sets the pause before the completion notification.
func WithCompletionDelay(d time.Duration) LoaderOption {
	return func(l *Loader) { l.completionDelay = d }
}

// WithLoaderLogger sets the logger handed to every engine.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader returns a loader reading through fetcher.
func NewLoader(fetcher Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:         fetcher,
		readyTimeout:    DefaultReadyTimeout,
		completionDelay: DefaultCompletionDelay,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Collaborators are the parts an engine is wired into. SessionReady and
// ProgressReady may be nil, meaning already available.
type Collaborators struct {
	Session       *terminal.Session
	SessionReady  *Ready
	ProgressReady *Ready
	Notifier      Notifier
}

// Load resolves the challenge for pc and returns a wired engine. It never
// fails: a definition that cannot be fetched or decoded yields a degraded
// engine with nothing registered.
func (l *Loader) Load(ctx context.Context, pc PageContext, c Collaborators) *Engine {
	id := ResolveID(pc)
	base := l.basePath
	if base == "" {
		base = BasePath(pc.Path)
	}
	logger := l.logger.With(slog.String("challenge", id))

	cfgPath := ConfigPath(base, id)
	data, err := l.fetcher.Fetch(ctx, cfgPath)
	if err != nil {
		logger.Error("loader: fetch definition failed", slog.String("path", cfgPath), slog.String("error", err.Error()))
		return newDegraded(id, c.Session, err, logger)
	}
	def, err := Decode(data, id)
	if err != nil {
		logger.Error("loader: decode definition failed", slog.String("path", cfgPath), slog.String("error", err.Error()))
		return newDegraded(id, c.Session, err, logger)
	}

	store := evidence.NewStore(logger)
	fetchEvidence := func(ctx context.Context, filename string) ([]byte, error) {
		return l.fetcher.Fetch(ctx, EvidencePath(base, id, filename))
	}
	for _, f := range def.EvidenceFiles {
		store.Preload(ctx, fetchEvidence, f.Filename)
	}

	l.await(ctx, logger, "session", c.SessionReady)
	l.await(ctx, logger, "progress", c.ProgressReady)

	e := &Engine{
		id:       id,
		def:      def,
		session:  c.Session,
		store:    store,
		hints:    NewHints(def.ProgressiveHints),
		triggers: def.triggers(),
		logger:   logger,
	}
	e.tracker = NewTracker(id, def.Objectives, c.Notifier, l.completionDelay, logger)
	e.tracker.summary = e.summary(time.Now())
	e.validator = NewValidator(def.Validation, e.tracker, e.triggers.flagSubmitted)
	e.wire()

	logger.Info("loader: challenge loaded",
		slog.Int("objectives", len(def.Objectives)),
		slog.Int("evidence", len(store.Loaded())),
		slog.Int("commands", len(def.TerminalCommands)))
	return e
}

func (l *Loader) await(ctx context.Context, logger *slog.Logger, name string, r *Ready) {
	if r == nil {
		return
	}
	if err := r.Wait(ctx, l.readyTimeout); err != nil {
		logger.Warn("loader: collaborator not ready, continuing",
			slog.String("collaborator", name),
			slog.String("error", err.Error()))
	}
}
