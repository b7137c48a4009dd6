package progress

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navigator/codebook/internal/apperr"
)

// DefaultAutosaveInterval is how often Run flushes dirty records.
const DefaultAutosaveInterval = 30 * time.Second

const userIDPrefix = "navigator-"

// NewUserID returns a fresh learner identifier.
func NewUserID() string {
	return userIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// Manager keeps learner progress in memory and writes it through to a
// Store. It is safe for concurrent use.
type Manager struct {
	store    Store
	logger   *slog.Logger
	now      func() time.Time
	onChange func(Progress)

	mu    sync.Mutex
	users map[string]*Progress
	dirty map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// OnChange registers a callback invoked with a snapshot after every
// mutation. It runs without the manager lock held.
func OnChange(fn func(Progress)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// NewManager returns a manager persisting to store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		users:  make(map[string]*Progress),
		dirty:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// load returns the cached record, reading the store on a miss. Callers hold mu.
func (m *Manager) load(userID string) (*Progress, error) {
	if p, ok := m.users[userID]; ok {
		return p, nil
	}
	p, err := m.store.Load(userID)
	if err != nil {
		return nil, err
	}
	m.users[userID] = p
	return p, nil
}

// Ensure returns the record of userID, creating defaults when absent. An
// empty userID gets a generated one.
func (m *Manager) Ensure(userID string) (Progress, error) {
	if userID == "" {
		userID = NewUserID()
	}
	m.mu.Lock()
	p, err := m.load(userID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		p = New(userID, m.now())
		m.users[userID] = p
		m.dirty[userID] = struct{}{}
		m.logger.Info("progress: user created", slog.String("user", userID))
	default:
		m.mu.Unlock()
		return Progress{}, err
	}
	snap := p.Clone()
	m.mu.Unlock()
	return snap, nil
}

// Create registers a new learner. An empty userID gets a generated one; an
// existing one wraps apperr.ErrAlreadyExists.
func (m *Manager) Create(userID string) (Progress, error) {
	if userID == "" {
		userID = NewUserID()
	}
	m.mu.Lock()
	if _, err := m.load(userID); err == nil {
		m.mu.Unlock()
		return Progress{}, fmt.Errorf("progress: user %s: %w", userID, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		m.mu.Unlock()
		return Progress{}, err
	}
	p := New(userID, m.now())
	m.users[userID] = p
	err := m.saveLocked(p)
	snap := p.Clone()
	m.mu.Unlock()
	m.logger.Info("progress: user created", slog.String("user", userID))
	return snap, err
}

// Get returns the record of userID or an error wrapping apperr.ErrNotFound.
func (m *Manager) Get(userID string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.load(userID)
	if err != nil {
		return Progress{}, err
	}
	return p.Clone(), nil
}

// CompleteChallenge credits challengeID in module with xp (DefaultChallengeXP
// when zero). A challenge already credited is ignored and reported as false.
func (m *Manager) CompleteChallenge(userID, module, challengeID string, xp int) (Progress, bool, error) {
	if xp <= 0 {
		xp = DefaultChallengeXP
	}
	m.mu.Lock()
	p, err := m.load(userID)
	if err != nil {
		m.mu.Unlock()
		return Progress{}, false, err
	}
	if !p.completeChallenge(module, challengeID, xp, m.now()) {
		snap := p.Clone()
		m.mu.Unlock()
		return snap, false, nil
	}
	err = m.saveLocked(p)
	snap := p.Clone()
	m.mu.Unlock()

	m.logger.Info("progress: challenge completed",
		slog.String("user", userID),
		slog.String("module", module),
		slog.String("challenge", challengeID),
		slog.Int("xp", snap.TotalXP),
		slog.String("rank", snap.Rank))
	m.changed(snap)
	return snap, true, err
}

// CompleteModule marks module complete, unlocks the next one and awards the
// module bonus. Completing a completed module is a no-op.
func (m *Manager) CompleteModule(userID, module string) (Progress, error) {
	m.mu.Lock()
	p, err := m.load(userID)
	if err != nil {
		m.mu.Unlock()
		return Progress{}, err
	}
	mod, ok := p.Modules[module]
	if !ok {
		m.mu.Unlock()
		return Progress{}, fmt.Errorf("progress: module %s: %w", module, apperr.ErrNotFound)
	}
	if mod.Completed {
		snap := p.Clone()
		m.mu.Unlock()
		return snap, nil
	}
	p.completeModule(module, m.now())
	err = m.saveLocked(p)
	snap := p.Clone()
	m.mu.Unlock()
	m.changed(snap)
	return snap, err
}

// Reset discards all progress of userID.
func (m *Manager) Reset(userID string) error {
	m.mu.Lock()
	delete(m.users, userID)
	delete(m.dirty, userID)
	m.mu.Unlock()
	if err := m.store.Delete(userID); err != nil {
		return err
	}
	m.logger.Info("progress: reset", slog.String("user", userID))
	return nil
}

type recoveryPayload struct {
	Progress  *Progress `json:"progress"`
	UserID    string    `json:"userId"`
	Timestamp int64     `json:"timestamp"`
}

const recoveryPrefix = "NAV-"

// RecoveryCode encodes the full record of userID as a portable code.
func (m *Manager) RecoveryCode(userID string) (string, error) {
	m.mu.Lock()
	p, err := m.load(userID)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	data, err := json.Marshal(recoveryPayload{Progress: p, UserID: userID, Timestamp: m.now().UnixMilli()})
	m.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("progress: encode recovery: %w", err)
	}
	return recoveryPrefix + group(base64.StdEncoding.EncodeToString(data), 8), nil
}

func group(s string, n int) string {
	var b strings.Builder
	for i := 0; i < len(s); i += n {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(s[i:min(i+n, len(s))])
	}
	return b.String()
}

// Restore replaces the record named inside code with the record it carries.
// Malformed codes wrap apperr.ErrInvalidCode.
func (m *Manager) Restore(code string) (Progress, error) {
	clean := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(code), recoveryPrefix), "-", "")
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: %w: %w", apperr.ErrInvalidCode, err)
	}
	var payload recoveryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Progress{}, fmt.Errorf("progress: %w: %w", apperr.ErrInvalidCode, err)
	}
	if payload.UserID == "" || payload.Progress == nil {
		return Progress{}, fmt.Errorf("progress: %w: missing user", apperr.ErrInvalidCode)
	}
	p := payload.Progress
	p.UserID = payload.UserID
	if p.Modules == nil {
		p.Modules = New(p.UserID, m.now()).Modules
	}
	p.LastActive = m.now()

	m.mu.Lock()
	m.users[p.UserID] = p
	err = m.saveLocked(p)
	snap := p.Clone()
	m.mu.Unlock()

	m.logger.Info("progress: restored from recovery code", slog.String("user", p.UserID))
	m.changed(snap)
	return snap, err
}

// Leaderboard lists the top learners when the store supports it.
func (m *Manager) Leaderboard(limit int) ([]Entry, error) {
	db, ok := m.store.(interface {
		Leaderboard(limit int) ([]Entry, error)
	})
	if !ok {
		return nil, nil
	}
	return db.Leaderboard(limit)
}

// saveLocked writes p through. Callers hold mu.
func (m *Manager) saveLocked(p *Progress) error {
	if err := m.store.Save(p); err != nil {
		m.dirty[p.UserID] = struct{}{}
		m.logger.Error("progress: save failed", slog.String("user", p.UserID), slog.String("error", err.Error()))
		return err
	}
	delete(m.dirty, p.UserID)
	return nil
}

// Flush writes every dirty record.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	n := 0
	for id := range m.dirty {
		p, ok := m.users[id]
		if !ok {
			delete(m.dirty, id)
			continue
		}
		p.LastActive = m.now()
		if err := m.saveLocked(p); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if n > 0 {
		m.logger.Debug("progress: autosaved", slog.Int("users", n))
	}
	return errors.Join(errs...)
}

// Run flushes dirty records every interval until ctx is done, then flushes
// once more.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(); err != nil {
				m.logger.Error("progress: final flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			_ = m.Flush()
		}
	}
}

func (m *Manager) changed(p Progress) {
	if m.onChange != nil {
		m.onChange(p)
	}
}
