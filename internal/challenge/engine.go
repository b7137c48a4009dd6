package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/navigator/codebook/internal/apperr"
	"github.com/navigator/codebook/internal/evidence"
	"github.com/navigator/codebook/internal/search"
	"github.com/navigator/codebook/internal/terminal"
)

// DegradedMessage is what the download action answers when the definition
// could not be loaded.
const DegradedMessage = "Challenge system not fully loaded. Please refresh the page."

const noEvidenceText = "[ERROR] No evidence files loaded. Download evidence files first using the download action."

// Engine is one loaded challenge bound to one terminal session. All methods
// must be called from the goroutine that owns the session.
type Engine struct {
	id        string
	def       *Definition
	loadErr   error
	session   *terminal.Session
	store     *evidence.Store
	tracker   *Tracker
	validator *Validator
	hints     *Hints
	triggers  resolvedTriggers
	logger    *slog.Logger
}

// Download is the result of the download action.
type Download struct {
	Filename    string
	DisplayName string
	Content     string
	Lines       []string
}

// Status is a snapshot of the challenge for rendering.
type Status struct {
	ChallengeID    string            `json:"challengeId"`
	Title          string            `json:"title,omitempty"`
	MissionBrief   string            `json:"missionBrief,omitempty"`
	XISMessage     string            `json:"xisMessage,omitempty"`
	State          State             `json:"state"`
	Degraded       bool              `json:"degraded"`
	Objectives     []ObjectiveStatus `json:"objectives"`
	Evidence       []EvidenceStatus  `json:"evidence"`
	FlagSubmitted  bool              `json:"flagSubmitted"`
	HintsUsed      int               `json:"hintsUsed"`
	HintsRemaining int               `json:"hintsRemaining"`
}

// EvidenceStatus describes one declared evidence file.
type EvidenceStatus struct {
	EvidenceFile
	Loaded   bool `json:"loaded"`
	Unlocked bool `json:"unlocked"`
}

func newDegraded(id string, session *terminal.Session, err error, logger *slog.Logger) *Engine {
	return &Engine{
		id:      id,
		loadErr: err,
		session: session,
		store:   evidence.NewStore(logger),
		tracker: NewTracker(id, nil, nil, 0, logger),
		hints:   NewHints(nil),
		logger:  logger,
	}
}

// ChallengeID returns the resolved identifier.
func (e *Engine) ChallengeID() string { return e.id }

// Definition returns the loaded definition, or nil in degraded mode.
func (e *Engine) Definition() *Definition { return e.def }

// Degraded reports whether loading failed.
func (e *Engine) Degraded() bool { return e.def == nil }

// LoadErr returns the error that caused degraded mode.
func (e *Engine) LoadErr() error { return e.loadErr }

// Tracker exposes the objective tracker.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Evidence exposes the evidence store.
func (e *Engine) Evidence() *evidence.Store { return e.store }

// wire registers the declared commands on the session.
func (e *Engine) wire() {
	if e.session == nil {
		e.logger.Warn("challenge: no terminal session, commands not registered", slog.String("challenge", e.id))
		return
	}
	for _, name := range slices.Sorted(maps.Keys(e.def.TerminalCommands)) {
		spec := e.def.TerminalCommands[name]
		e.session.Register(terminal.Command{
			Name:             name,
			Description:      spec.Description,
			Examples:         spec.Examples,
			RequiresEvidence: spec.RequiresEvidence,
			Handler:          e.handler(strings.ToLower(name), spec),
		})
		e.logger.Debug("challenge: registered command", slog.String("command", name))
	}
	e.session.Register(terminal.Command{Name: "help", Description: "Show available commands", Handler: e.help})
	e.session.Register(terminal.Command{Name: "hint", Description: "Request the next progressive hint", Handler: e.hint})
	e.session.Register(terminal.Command{Name: "objectives", Description: "Show mission objectives", Handler: e.objectives})
}

func (e *Engine) handler(name string, spec CommandSpec) terminal.HandlerFunc {
	return func(_ context.Context, args []string) (string, error) {
		if spec.RequiresEvidence && !e.store.AnyUnlocked() {
			return noEvidenceText, nil
		}
		switch name {
		case "cat":
			return e.Cat(args), nil
		case "grep":
			return e.Grep(args), nil
		case "analyze":
			return e.Analyze(args), nil
		case "submit":
			return e.Submit(args), nil
		}
		return fmt.Sprintf("[ERROR] Command '%s' not implemented", name), nil
	}
}

func lockedText(filename string) string {
	return fmt.Sprintf("[ERROR] File '%s' not found. Download the evidence file first.", filename)
}

// Cat prints an unlocked evidence file.
func (e *Engine) Cat(args []string) string {
	if len(args) == 0 {
		return "[ERROR] Usage: cat <filename>"
	}
	filename := args[0]
	if !e.store.IsUnlocked(filename) {
		return lockedText(filename)
	}
	content, ok := e.store.Get(filename)
	if !ok {
		return fmt.Sprintf("[ERROR] Unable to read '%s'", filename)
	}
	e.tracker.CompleteObjective(e.triggers.fileExamined, "file_examined")
	return content + "\n\n[INFO] Use \"grep <pattern> " + filename + "\" to search for specific patterns."
}

// Grep searches an unlocked evidence file line by line.
func (e *Engine) Grep(args []string) string {
	if len(args) < 2 {
		var b strings.Builder
		b.WriteString("[ERROR] Usage: grep <pattern> <filename>\n\nExamples:")
		for _, ex := range e.def.TerminalCommands["grep"].Examples {
			b.WriteString("\n  " + ex)
		}
		return b.String()
	}
	pattern, filename := args[0], args[1]
	if !e.store.IsUnlocked(filename) {
		return lockedText(filename)
	}
	content, ok := e.store.Get(filename)
	if !ok {
		return fmt.Sprintf("[ERROR] Unable to read '%s'", filename)
	}
	matches := search.Grep(content, pattern)
	if len(matches) > 0 {
		lower := strings.ToLower(pattern)
		for _, kt := range e.triggers.keywords {
			if strings.Contains(lower, kt.keyword) {
				e.tracker.CompleteObjective(kt.id, "keyword:"+kt.keyword)
			}
		}
	}
	return search.FormatMatches(pattern, filename, matches)
}

// Analyze returns the canned security report.
func (e *Engine) Analyze(args []string) string {
	if len(args) == 0 {
		return "[ERROR] Usage: analyze <filename>"
	}
	if !e.store.IsUnlocked(args[0]) {
		return "[ERROR] File not found."
	}
	e.tracker.CompleteObjective(e.triggers.analysisPerformed, "analysis_performed")
	if e.def.AnalysisResults.Empty() {
		return "[INFO] Analysis complete. Review the file manually for patterns."
	}
	return search.Report(e.def.AnalysisResults)
}

// Submit validates a flag; args are joined with single spaces.
func (e *Engine) Submit(args []string) string {
	if len(args) == 0 {
		return "[ERROR] Usage: submit <flag>\n\nExample:\n  submit " + e.validator.FlagFormat()
	}
	out, _ := e.validator.Submit(strings.Join(args, " "))
	return out
}

func (e *Engine) help(context.Context, []string) (string, error) {
	rows := make([]search.CommandHelp, 0, len(e.def.TerminalCommands))
	for _, cmd := range e.session.Registry().Commands() {
		if _, declared := e.def.TerminalCommands[cmd.Name]; !declared {
			continue
		}
		rows = append(rows, search.CommandHelp{Name: cmd.Name, Description: cmd.Description, Examples: cmd.Examples})
	}
	return search.HelpText(rows), nil
}

func (e *Engine) hint(context.Context, []string) (string, error) {
	h, err := e.RequestHint()
	if err != nil {
		return noMoreHintsText, nil
	}
	return FormatHint(h, e.hints.Remaining()), nil
}

func (e *Engine) objectives(context.Context, []string) (string, error) {
	var b strings.Builder
	done, total := e.tracker.Progress()
	fmt.Fprintf(&b, "Mission objectives (%d/%d):", done, total)
	for i, o := range e.tracker.Objectives() {
		mark := "[ ]"
		if o.Completed {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "\n  %s Step %d: %s", mark, i+1, o.Description)
	}
	return b.String(), nil
}

// Unlock makes filename readable by gated commands without the download
// side effects. It fails for files the definition does not declare.
func (e *Engine) Unlock(filename string) (bool, error) {
	if e.Degraded() {
		return false, apperr.ErrDegraded
	}
	if _, ok := e.def.Evidence(filename); !ok {
		return false, fmt.Errorf("evidence %s: %w", filename, apperr.ErrNotFound)
	}
	return e.store.Unlock(filename), nil
}

// Download hands out an evidence file and unlocks it in one step, completing
// the evidence-downloaded objective.
func (e *Engine) Download(filename string) (*Download, error) {
	if e.Degraded() {
		return nil, apperr.ErrDegraded
	}
	file, ok := e.def.Evidence(filename)
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", filename, apperr.ErrNotFound)
	}
	content, ok := e.store.Content(filename)
	if !ok {
		return nil, fmt.Errorf("evidence %s content not loaded: %w", filename, apperr.ErrNotFound)
	}
	e.store.Unlock(filename)
	e.tracker.CompleteObjective(e.triggers.evidenceDownloaded, "evidence_downloaded")
	return &Download{
		Filename:    filename,
		DisplayName: file.DisplayName,
		Content:     content,
		Lines: []string{
			fmt.Sprintf("[INFO] Evidence file %s loaded successfully.", filename),
			"[INFO] Use terminal commands to examine the data.",
		},
	}, nil
}

// RequestHint returns the next hint.
func (e *Engine) RequestHint() (Hint, error) {
	return e.hints.Request()
}

// Status returns a rendering snapshot.
func (e *Engine) Status() Status {
	st := Status{
		ChallengeID:    e.id,
		State:          e.tracker.State(),
		Degraded:       e.Degraded(),
		Objectives:     e.tracker.Objectives(),
		FlagSubmitted:  e.tracker.FlagSubmitted(),
		HintsUsed:      e.hints.Used(),
		HintsRemaining: e.hints.Remaining(),
	}
	if e.def == nil {
		return st
	}
	st.Title = e.def.Title
	st.MissionBrief = string(e.def.MissionBrief)
	st.XISMessage = e.def.XISMessage
	for _, f := range e.def.EvidenceFiles {
		_, loaded := e.store.Content(f.Filename)
		st.Evidence = append(st.Evidence, EvidenceStatus{
			EvidenceFile: f,
			Loaded:       loaded,
			Unlocked:     e.store.IsUnlocked(f.Filename),
		})
	}
	return st
}

// Reset clears objectives, unlocks and hints, and resets the terminal.
func (e *Engine) Reset() terminal.Result {
	e.tracker.Reset()
	e.store.Reset()
	e.hints.Reset()
	e.logger.Info("challenge: reset", slog.String("challenge", e.id))
	if e.session == nil {
		return terminal.Result{}
	}
	return e.session.Reset()
}

// Close cancels pending timers.
func (e *Engine) Close() {
	e.tracker.Stop()
}

// summary measures elapsed time on the terminal clock, or from start when
// the engine has no terminal.
func (e *Engine) summary(start time.Time) func() Completion {
	return func() Completion {
		elapsed := time.Since(start)
		if e.session != nil {
			elapsed = e.session.Elapsed()
		}
		c := Completion{HintsUsed: e.hints.Used(), Elapsed: elapsed}
		if e.def != nil {
			c.Module = e.def.Module
			c.XPReward = e.def.XPReward
		}
		return c
	}
}
