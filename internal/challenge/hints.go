package challenge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/navigator/codebook/internal/apperr"
)

// DefaultHints are served when a definition declares none.
var DefaultHints = []Hint{
	{Level: 1, Title: "💡 Getting Started", Content: "Begin by exploring the available commands. Type 'help' to see what tools are available.", Example: "help"},
	{Level: 2, Title: "🔍 Investigation Techniques", Content: "Use basic file operations to examine the evidence. Try listing and reading files.", Example: "ls && cat filename"},
	{Level: 3, Title: "🎯 Pattern Recognition", Content: "Look for patterns and anomalies in the data. Use search commands to find specific information.", Example: "grep pattern filename"},
}

// Hints hands out progressive hints in level order.
type Hints struct {
	list []Hint
	used int
}

// NewHints returns a hint sequence over list (DefaultHints when empty).
func NewHints(list []Hint) *Hints {
	h := &Hints{}
	h.Update(list)
	return h
}

// Update replaces the hints and resets the counter.
func (h *Hints) Update(list []Hint) {
	if len(list) == 0 {
		list = DefaultHints
	}
	sorted := make([]Hint, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	h.list = sorted
	h.used = 0
}

// Request returns the next hint, or apperr.ErrNoMoreHints once all are used.
func (h *Hints) Request() (Hint, error) {
	if h.used >= len(h.list) {
		return Hint{}, apperr.ErrNoMoreHints
	}
	hint := h.list[h.used]
	h.used++
	return hint, nil
}

// Used returns how many hints were handed out.
func (h *Hints) Used() int { return h.used }

// Remaining returns how many hints are left.
func (h *Hints) Remaining() int { return len(h.list) - h.used }

// Reset makes every hint available again.
func (h *Hints) Reset() { h.used = 0 }

// FormatHint renders a hint for the terminal.
func FormatHint(h Hint, remaining int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[INFO] %s\n%s", h.Title, h.Content)
	if h.Example != "" {
		b.WriteString("\nTry this: " + h.Example)
	}
	fmt.Fprintf(&b, "\n(%d hints remaining)", remaining)
	return b.String()
}

const noMoreHintsText = "[INFO] No more hints available. You've got this, Navigator!"
