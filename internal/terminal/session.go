package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultHistoryLimit caps the command history.
	DefaultHistoryLimit = 100

	HomeDir  = "/home/navigator"
	userName = "navigator"
	hostName = "uss-navigator"
)

// LineKind tags an output line for rendering.
type LineKind string

const (
	KindCommand LineKind = "command"
	KindOutput  LineKind = "output"
	KindError   LineKind = "error"
)

// Line is one unit of terminal output.
type Line struct {
	Text string   `json:"text"`
	Kind LineKind `json:"kind"`
}

// Result is what a single dispatch produced.
type Result struct {
	Lines []Line `json:"lines"`
	// Clear asks the renderer to wipe the screen before printing Lines.
	Clear bool `json:"clear,omitempty"`
}

// Text joins the output lines, skipping the echoed command.
func (r Result) Text() string {
	var parts []string
	for _, l := range r.Lines {
		if l.Kind != KindCommand {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Option configures a Session.
type Option func(*Session)

// WithHistoryLimit overrides DefaultHistoryLimit. Values below 1 are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is the state of one terminal: its registry, history, working
// directory, environment and lock flag. It is not safe for concurrent use;
// callers serialise dispatches so that effects follow input order.
type Session struct {
	registry     *Registry
	history      []string // most recent first
	cursor       int
	historyLimit int
	cwd          string
	env          map[string]string
	locked       bool
	started      time.Time
	now          func() time.Time
	logger       *slog.Logger

	clearPending bool
}

// NewSession creates a session with the built-in commands registered.
func NewSession(opts ...Option) *Session {
	s := &Session{
		registry:     NewRegistry(),
		cursor:       -1,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.resetState()
	s.registerBuiltins()
	return s
}

func (s *Session) resetState() {
	s.history = nil
	s.cursor = -1
	s.cwd = HomeDir
	s.env = map[string]string{
		"USER":     userName,
		"HOME":     HomeDir,
		"HOSTNAME": hostName,
		"SHELL":    "/bin/navsh",
	}
}

// Register adds or replaces a command.
func (s *Session) Register(cmd Command) { s.registry.Register(cmd) }

// Registry exposes the session's command registry.
func (s *Session) Registry() *Registry { return s.registry }

// Dispatch parses and runs one input line. Handler errors and panics are
// turned into error lines; they never escape.
func (s *Session) Dispatch(ctx context.Context, line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{}
	}
	if s.locked {
		return Result{Lines: []Line{{Text: "[ERROR] Terminal locked", Kind: KindError}}}
	}

	s.record(strings.TrimSpace(line))

	name := strings.ToLower(fields[0])
	args := fields[1:]
	lines := []Line{{Text: s.Prompt() + strings.TrimSpace(line), Kind: KindCommand}}

	cmd, ok := s.registry.Lookup(name)
	if !ok {
		lines = append(lines, Line{
			Text: fmt.Sprintf("Command not found: %s. Type 'help' for available commands.", name),
			Kind: KindError,
		})
		return Result{Lines: lines}
	}

	s.clearPending = false
	out, err := s.invoke(ctx, cmd, args)
	res := Result{}
	if s.clearPending {
		s.clearPending = false
		res.Clear = true
		lines = nil
	}
	switch {
	case err != nil:
		s.logger.Debug("terminal: command failed", slog.String("command", name), slog.String("error", err.Error()))
		lines = append(lines, Line{Text: "Error: " + err.Error(), Kind: KindError})
	case out != "":
		lines = append(lines, Line{Text: out, Kind: KindOutput})
	}
	res.Lines = lines
	return res
}

func (s *Session) invoke(ctx context.Context, cmd Command, args []string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("terminal: handler panic", slog.String("command", cmd.Name), slog.Any("panic", r))
			out, err = "", fmt.Errorf("%v", r)
		}
	}()
	if cmd.Handler == nil {
		return "", fmt.Errorf("command '%s' not implemented", cmd.Name)
	}
	return cmd.Handler(ctx, args)
}

func (s *Session) record(line string) {
	s.history = append([]string{line}, s.history...)
	if len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
	s.cursor = -1
}

// History returns a copy of the command history, most recent first.
func (s *Session) History() []string { return slices.Clone(s.history) }

// HistoryPrev moves the recall cursor one entry back in time.
func (s *Session) HistoryPrev() (string, bool) {
	if s.cursor < len(s.history)-1 {
		s.cursor++
		return s.history[s.cursor], true
	}
	return "", false
}

// HistoryNext moves the recall cursor toward the present. Stepping past the
// newest entry returns an empty line.
func (s *Session) HistoryNext() (string, bool) {
	switch {
	case s.cursor > 0:
		s.cursor--
		return s.history[s.cursor], true
	case s.cursor == 0:
		s.cursor = -1
		return "", true
	}
	return "", false
}

// Complete returns registered names starting with partial, sorted.
func (s *Session) Complete(partial string) []string {
	p := strings.ToLower(strings.TrimSpace(partial))
	var out []string
	for _, n := range s.registry.Names() {
		if strings.HasPrefix(n, p) {
			out = append(out, n)
		}
	}
	return out
}

// CompletionText renders a multi-candidate completion.
func CompletionText(matches []string) string {
	if len(matches) < 2 {
		return ""
	}
	return "Available completions: " + strings.Join(matches, ", ")
}

// Prompt returns the shell prompt for the current directory.
func (s *Session) Prompt() string {
	dir := s.cwd
	if i := strings.LastIndex(dir, "/"); i >= 0 && i < len(dir)-1 {
		dir = dir[i+1:]
	}
	return fmt.Sprintf("%s@%s:%s$ ", userName, hostName, dir)
}

// Cwd returns the current working directory.
func (s *Session) Cwd() string { return s.cwd }

// Lock disables dispatch until Unlock.
func (s *Session) Lock() { s.locked = true }

// Unlock re-enables dispatch.
func (s *Session) Unlock() { s.locked = false }

// Locked reports the lock flag.
func (s *Session) Locked() bool { return s.locked }

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration { return s.now().Sub(s.started) }

// Reset clears history, directory and environment. Registered commands stay.
func (s *Session) Reset() Result {
	s.resetState()
	return Result{
		Clear: true,
		Lines: []Line{{Text: "Terminal reset. Ready for commands.", Kind: KindOutput}},
	}
}
