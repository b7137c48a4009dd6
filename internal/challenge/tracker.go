package challenge

import (
	"log/slog"
	"sync"
	"time"
)

// State is the challenge lifecycle state.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Completion summarises a finished challenge for the notifier.
type Completion struct {
	ChallengeID   string        `json:"challengeId"`
	Module        string        `json:"module,omitempty"`
	XPReward      int           `json:"xpReward"`
	Completed     int           `json:"completed"`
	Total         int           `json:"total"`
	FlagSubmitted bool          `json:"flagSubmitted"`
	HintsUsed     int           `json:"hintsUsed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Notifier is the progress/display collaborator. ChallengeCompleted is
// called from a timer goroutine, so implementations must be safe for
// concurrent use.
type Notifier interface {
	ObjectiveCompleted(challengeID string, obj Objective, trigger string)
	ChallengeCompleted(c Completion)
}

// NopNotifier ignores every event.
type NopNotifier struct{}

func (NopNotifier) ObjectiveCompleted(string, Objective, string) {}
func (NopNotifier) ChallengeCompleted(Completion)                {}

// ObjectiveStatus is an objective together with its completion flag.
type ObjectiveStatus struct {
	Objective
	Completed bool `json:"completed"`
}

// Tracker owns the completed-objective set and the challenge state. Both
// completion paths (all objectives done, correct flag) converge in finish,
// which notifies exactly once.
type Tracker struct {
	challengeID string
	objectives  []Objective
	completed   map[ObjectiveID]bool
	state       State
	flag        bool

	notifier Notifier
	delay    time.Duration
	logger   *slog.Logger
	summary  func() Completion

	mu      sync.Mutex // guards timer and pending
	timer   *time.Timer
	pending Completion
}

// NewTracker seeds a tracker from the declared objectives. delay is the
// pause before the completion notification.
func NewTracker(challengeID string, objectives []Objective, notifier Notifier, delay time.Duration, logger *slog.Logger) *Tracker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		challengeID: challengeID,
		objectives:  objectives,
		completed:   make(map[ObjectiveID]bool, len(objectives)),
		state:       StateInProgress,
		notifier:    notifier,
		delay:       delay,
		logger:      logger,
	}
}

// CompleteObjective marks id complete. Unknown and already-complete IDs are
// ignored. It reports whether the set changed.
func (t *Tracker) CompleteObjective(id ObjectiveID, trigger string) bool {
	if id == "" || t.completed[id] {
		return false
	}
	obj, ok := t.lookup(id)
	if !ok {
		t.logger.Debug("tracker: unknown objective", slog.String("challenge", t.challengeID), slog.String("objective", string(id)))
		return false
	}
	t.completed[id] = true
	t.logger.Info("tracker: objective completed",
		slog.String("challenge", t.challengeID),
		slog.String("objective", string(id)),
		slog.String("trigger", trigger))
	t.notifier.ObjectiveCompleted(t.challengeID, obj, trigger)

	if len(t.objectives) > 0 && len(t.completed) == len(t.objectives) {
		t.finish()
	}
	return true
}

// MarkFlagSubmitted records a correct flag and completes the challenge.
func (t *Tracker) MarkFlagSubmitted() {
	t.flag = true
	t.finish()
}

func (t *Tracker) finish() {
	if t.state == StateCompleted {
		return
	}
	t.state = StateCompleted
	c := t.completion()
	t.logger.Info("tracker: challenge completed",
		slog.String("challenge", t.challengeID),
		slog.Int("objectives", c.Completed),
		slog.Bool("flag", c.FlagSubmitted))

	if t.delay <= 0 {
		t.notifier.ChallengeCompleted(c)
		return
	}
	t.mu.Lock()
	t.pending = c
	t.timer = time.AfterFunc(t.delay, func() { t.notifier.ChallengeCompleted(c) })
	t.mu.Unlock()
}

func (t *Tracker) completion() Completion {
	c := Completion{}
	if t.summary != nil {
		c = t.summary()
	}
	c.ChallengeID = t.challengeID
	c.Completed = len(t.completed)
	c.Total = len(t.objectives)
	c.FlagSubmitted = t.flag
	return c
}

func (t *Tracker) lookup(id ObjectiveID) (Objective, bool) {
	for _, o := range t.objectives {
		if o.ID == id {
			return o, true
		}
	}
	return Objective{}, false
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// FlagSubmitted reports whether a correct flag was submitted.
func (t *Tracker) FlagSubmitted() bool { return t.flag }

// IsComplete reports whether objective id is complete.
func (t *Tracker) IsComplete(id ObjectiveID) bool { return t.completed[id] }

// Progress returns completed and total objective counts.
func (t *Tracker) Progress() (done, total int) { return len(t.completed), len(t.objectives) }

// Objectives returns every objective with its status, in declared order.
func (t *Tracker) Objectives() []ObjectiveStatus {
	out := make([]ObjectiveStatus, len(t.objectives))
	for i, o := range t.objectives {
		out[i] = ObjectiveStatus{Objective: o, Completed: t.completed[o.ID]}
	}
	return out
}

// Reset returns the tracker to InProgress with nothing completed and drops
// a pending notification.
func (t *Tracker) Reset() {
	t.cancel()
	clear(t.completed)
	t.flag = false
	t.state = StateInProgress
}

// Stop ends the tracker. A completion notification still waiting on the
// delay is delivered now.
func (t *Tracker) Stop() {
	if c, ok := t.cancel(); ok {
		t.notifier.ChallengeCompleted(c)
	}
}

// cancel stops the delay timer and reports whether a notification was still
// pending.
func (t *Tracker) cancel() (Completion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return Completion{}, false
	}
	pending := t.timer.Stop()
	t.timer = nil
	return t.pending, pending
}
