// Package evidence holds the per-session evidence text and the set of files
// the learner has unlocked.
package evidence

import (
	"context"
	"log/slog"
	"sort"
)

// FetchFunc retrieves the content of one evidence file.
type FetchFunc func(ctx context.Context, filename string) ([]byte, error)

// Store maps filename to content and tracks which files are unlocked.
// Content presence and unlock state are independent: a preloaded file stays
// unreadable to gated commands until it is unlocked.
//
// A Store is not safe for concurrent use; the owning session serialises
// access.
type Store struct {
	content  map[string]string
	unlocked map[string]struct{}
	logger   *slog.Logger
}

// NewStore returns an empty store. A nil logger falls back to slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		content:  make(map[string]string),
		unlocked: make(map[string]struct{}),
		logger:   logger,
	}
}

// Preload fetches filename and caches it. A failure is logged and the file is
// simply left absent.
func (s *Store) Preload(ctx context.Context, fetch FetchFunc, filename string) bool {
	data, err := fetch(ctx, filename)
	if err != nil {
		s.logger.Warn("evidence: preload failed",
			slog.String("file", filename),
			slog.String("error", err.Error()))
		return false
	}
	s.content[filename] = string(data)
	s.logger.Debug("evidence: preloaded", slog.String("file", filename), slog.Int("bytes", len(data)))
	return true
}

// Put stores content for filename without unlocking it.
func (s *Store) Put(filename, content string) {
	s.content[filename] = content
}

// Unlock makes filename available to gated commands. It reports whether the
// call changed anything; unlocking twice is a no-op.
func (s *Store) Unlock(filename string) bool {
	if _, ok := s.unlocked[filename]; ok {
		return false
	}
	s.unlocked[filename] = struct{}{}
	return true
}

// IsUnlocked reports whether filename has been unlocked.
func (s *Store) IsUnlocked(filename string) bool {
	_, ok := s.unlocked[filename]
	return ok
}

// Get returns the content of an unlocked file. Locked or absent files
// return false.
func (s *Store) Get(filename string) (string, bool) {
	if !s.IsUnlocked(filename) {
		return "", false
	}
	c, ok := s.content[filename]
	return c, ok
}

// Content returns cached content regardless of unlock state. It backs the
// download action, which has to hand out the file before unlocking it.
func (s *Store) Content(filename string) (string, bool) {
	c, ok := s.content[filename]
	return c, ok
}

// AnyUnlocked reports whether at least one file is unlocked.
func (s *Store) AnyUnlocked() bool { return len(s.unlocked) > 0 }

// Unlocked returns the unlocked filenames in sorted order.
func (s *Store) Unlocked() []string {
	out := make([]string, 0, len(s.unlocked))
	for f := range s.unlocked {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Loaded returns the filenames whose content is cached, sorted.
func (s *Store) Loaded() []string {
	out := make([]string, 0, len(s.content))
	for f := range s.content {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Reset relocks every file. Cached content is kept.
func (s *Store) Reset() {
	clear(s.unlocked)
}
