// Package session owns the live terminal sessions: one terminal, one
// challenge engine and one learner per session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/sse"
	"github.com/navigator/codebook/internal/terminal"
)

// DefaultMaxSessions bounds the session table.
const DefaultMaxSessions = 256

// Session is one learner at one terminal. Every call on a session is
// serialised by its mutex.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu     sync.Mutex
	term   *terminal.Session
	engine *challenge.Engine
}

// View is the JSON rendering of a session.
type View struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	Prompt    string           `json:"prompt"`
	Locked    bool             `json:"locked"`
	Challenge challenge.Status `json:"challenge"`
}

func (s *Session) view() View {
	return View{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		Prompt:    s.term.Prompt(),
		Locked:    s.term.Locked(),
		Challenge: s.engine.Status(),
	}
}

// Config tunes a Manager.
type Config struct {
	MaxSessions  int
	HistoryLimit int
}

// Manager creates and looks up sessions.
type Manager struct {
	loader        *challenge.Loader
	progress      *progress.Manager
	progressReady *challenge.Ready
	broker        *sse.Broker
	historyLimit  int
	logger        *slog.Logger

	sessions *lru.Cache[string, *Session]
}

// Option configures a Manager.
type Option func(*Manager)

// WithProgress credits completed challenges to learners. ready is resolved
// once the progress store is usable.
func WithProgress(p *progress.Manager, ready *challenge.Ready) Option {
	return func(m *Manager) {
		m.progress = p
		m.progressReady = ready
	}
}

// WithBroker publishes session events.
func WithBroker(b *sse.Broker) Option {
	return func(m *Manager) { m.broker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a manager loading challenges through loader.
func NewManager(loader *challenge.Loader, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	m := &Manager{
		loader:       loader,
		historyLimit: cfg.HistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	cache, err := lru.NewWithEvict[string, *Session](cfg.MaxSessions, func(id string, s *Session) {
		s.mu.Lock()
		s.engine.Close()
		s.mu.Unlock()
		m.logger.Debug("session: closed", slog.String("session", id))
	})
	if err != nil {
		return nil, fmt.Errorf("session: create table: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Create starts a session for the challenge pc resolves to. An empty userID
// gets a fresh learner when progress tracking is enabled.
func (m *Manager) Create(ctx context.Context, pc challenge.PageContext, userID string) (View, error) {
	if m.progress != nil {
		p, err := m.progress.Ensure(userID)
		if err != nil {
			return View{}, err
		}
		userID = p.UserID
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		term: terminal.NewSession(
			terminal.WithHistoryLimit(m.historyLimit),
			terminal.WithLogger(m.logger),
		),
	}
	s.engine = m.loader.Load(ctx, pc, challenge.Collaborators{
		Session:       s.term,
		SessionReady:  challenge.Resolved(),
		ProgressReady: m.progressReady,
		Notifier:      &notifier{m: m, sessionID: s.ID, userID: userID},
	})
	m.sessions.Add(s.ID, s)

	m.logger.Info("session: created",
		slog.String("session", s.ID),
		slog.String("user", userID),
		slog.String("challenge", s.engine.ChallengeID()),
		slog.Bool("degraded", s.engine.Degraded()))
	return s.view(), nil
}

func (m *Manager) get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// with runs fn holding the session lock.
func (m *Manager) with(id string, fn func(s *Session) error) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (View, error) {
	var v View
	err := m.with(id, func(s *Session) error {
		v = s.view()
		return nil
	})
	return v, err
}

// Dispatch runs one terminal line.
func (m *Manager) Dispatch(ctx context.Context, id, line string) (terminal.Result, string, error) {
	var (
		res    terminal.Result
		prompt string
	)
	err := m.with(id, func(s *Session) error {
		res = s.term.Dispatch(ctx, line)
		prompt = s.term.Prompt()
		return nil
	})
	return res, prompt, err
}

// History moves the recall cursor; dir is "prev" or "next".
func (m *Manager) History(id, dir string) (string, bool, error) {
	var (
		line string
		ok   bool
	)
	err := m.with(id, func(s *Session) error {
		if dir == "next" {
			line, ok = s.term.HistoryNext()
		} else {
			line, ok = s.term.HistoryPrev()
		}
		return nil
	})
	return line, ok, err
}

// Complete returns command names starting with partial.
func (m *Manager) Complete(id, partial string) ([]string, error) {
	var out []string
	err := m.with(id, func(s *Session) error {
		out = s.term.Complete(partial)
		return nil
	})
	return out, err
}

// Download hands out an evidence file and unlocks it.
func (m *Manager) Download(id, filename string) (*challenge.Download, error) {
	var d *challenge.Download
	err := m.with(id, func(s *Session) error {
		if s.term.Locked() {
			return apperr.ErrLocked
		}
		var err error
		d, err = s.engine.Download(filename)
		return err
	})
	if err == nil {
		m.publish(sse.Event{Type: sse.TypeEvidenceUnlocked, Session: id, Data: map[string]string{"filename": filename}})
	}
	return d, err
}

// Unlock marks an evidence file readable without downloading it.
func (m *Manager) Unlock(id, filename string) (bool, error) {
	var changed bool
	err := m.with(id, func(s *Session) error {
		if s.term.Locked() {
			return apperr.ErrLocked
		}
		var err error
		changed, err = s.engine.Unlock(filename)
		return err
	})
	if err == nil && changed {
		m.publish(sse.Event{Type: sse.TypeEvidenceUnlocked, Session: id, Data: map[string]string{"filename": filename}})
	}
	return changed, err
}

// HintView is a hint with the number still available.
type HintView struct {
	challenge.Hint
	Remaining int    `json:"remaining"`
	Text      string `json:"text"`
}

// Hint returns the next hint of the session's challenge.
func (m *Manager) Hint(id string) (HintView, error) {
	var hv HintView
	err := m.with(id, func(s *Session) error {
		h, err := s.engine.RequestHint()
		if err != nil {
			return err
		}
		remaining := s.engine.Status().HintsRemaining
		hv = HintView{Hint: h, Remaining: remaining, Text: challenge.FormatHint(h, remaining)}
		return nil
	})
	return hv, err
}

// Reset returns the session to its initial state.
func (m *Manager) Reset(id string) (terminal.Result, error) {
	var res terminal.Result
	err := m.with(id, func(s *Session) error {
		res = s.engine.Reset()
		return nil
	})
	return res, err
}

// SetLocked locks or unlocks the terminal.
func (m *Manager) SetLocked(id string, locked bool) error {
	return m.with(id, func(s *Session) error {
		if locked {
			s.term.Lock()
		} else {
			s.term.Unlock()
		}
		return nil
	})
}

// LoadTool registers a simulated security tool in the session.
func (m *Manager) LoadTool(id, tool string) (string, error) {
	var out string
	err := m.with(id, func(s *Session) error {
		var err error
		out, err = s.term.LoadTool(tool)
		return err
	})
	return out, err
}

// Delete ends a session.
func (m *Manager) Delete(id string) error {
	if !m.sessions.Remove(id) {
		return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return m.sessions.Len() }

// Close ends every session.
func (m *Manager) Close() { m.sessions.Purge() }

func (m *Manager) publish(ev sse.Event) {
	if m.broker != nil {
		m.broker.Publish(ev)
	}
}

// notifier forwards engine events to the broker and credits completions.
// ChallengeCompleted arrives on a timer goroutine; it touches only the
// concurrency-safe progress manager and broker.
type notifier struct {
	m         *Manager
	sessionID string
	userID    string
}

func (n *notifier) ObjectiveCompleted(challengeID string, obj challenge.Objective, trigger string) {
	n.m.publish(sse.Event{
		Type:    sse.TypeObjectiveCompleted,
		Session: n.sessionID,
		Data: map[string]string{
			"challengeId": challengeID,
			"objectiveId": string(obj.ID),
			"description": obj.Description,
			"trigger":     trigger,
		},
	})
}

func (n *notifier) ChallengeCompleted(c challenge.Completion) {
	n.m.publish(sse.Event{Type: sse.TypeChallengeCompleted, Session: n.sessionID, Data: c})
	if n.m.progress == nil || n.userID == "" {
		return
	}
	module := c.Module
	if module == "" {
		module = progress.ModuleIdentity
	}
	if _, _, err := n.m.progress.CompleteChallenge(n.userID, module, c.ChallengeID, c.XPReward); err != nil {
		n.m.logger.Error("session: credit challenge failed",
			slog.String("session", n.sessionID),
			slog.String("user", n.userID),
			slog.String("error", err.Error()))
	}
}
