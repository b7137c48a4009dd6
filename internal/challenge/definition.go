// Package challenge loads JSON challenge definitions and drives a terminal
// session through them: evidence gating, objective tracking, flag
// validation and hints.
package challenge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/navigator/codebook/internal/search"
)

// ObjectiveID is an opaque objective identifier. JSON numbers and strings
// are both accepted and kept in their textual form, so 1 and "1" are equal.
type ObjectiveID string

// UnmarshalJSON accepts a string or a number.
func (id *ObjectiveID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ObjectiveID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("objective id must be a string or number: %w", err)
	}
	*id = ObjectiveID(n.String())
	return nil
}

// Objective is one trackable step of a challenge.
type Objective struct {
	ID          ObjectiveID `json:"id"`
	Description string      `json:"description"`
}

// Validate implements validation.Validatable.
func (o Objective) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ID, validation.Required),
	)
}

// CommandSpec declares one challenge command.
type CommandSpec struct {
	Description      string   `json:"description"`
	Examples         []string `json:"examples,omitempty"`
	RequiresEvidence bool     `json:"requiresEvidence"`
}

// EvidenceFile declares one downloadable evidence file.
type EvidenceFile struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"displayName"`
	FileSize    string `json:"fileSize"`
}

// Validate implements validation.Validatable.
func (f EvidenceFile) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Filename, validation.Required, validation.Match(filenamePattern)),
	)
}

// Hint is one progressive hint.
type Hint struct {
	Level   int    `json:"level"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Example string `json:"example,omitempty"`
}

// ValidationRule is the flag-checking contract.
type ValidationRule struct {
	CorrectFlag    string `json:"correctFlag"`
	SuccessMessage string `json:"successMessage"`
	FailureMessage string `json:"failureMessage"`
	FlagFormat     string `json:"flagFormat,omitempty"`
}

// Validate implements validation.Validatable.
func (v ValidationRule) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.CorrectFlag, validation.Required),
	)
}

// Checkpoint is the partial-credit structure some definitions carry. It is
// decoded and exposed but nothing awards points from it.
type Checkpoint struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Points      int    `json:"points"`
	Description string `json:"description,omitempty"`
}

// Triggers binds the fixed command side effects to objective IDs.
type Triggers struct {
	EvidenceDownloaded ObjectiveID            `json:"evidenceDownloaded,omitempty"`
	FileExamined       ObjectiveID            `json:"fileExamined,omitempty"`
	AnalysisPerformed  ObjectiveID            `json:"analysisPerformed,omitempty"`
	FlagSubmitted      ObjectiveID            `json:"flagSubmitted,omitempty"`
	Keywords           map[string]ObjectiveID `json:"keywords,omitempty"`
}

// MissionBrief is either a plain string or {"content": "..."}.
type MissionBrief string

// UnmarshalJSON accepts both brief encodings.
func (m *MissionBrief) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MissionBrief(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("missionBrief: %w", err)
	}
	*m = MissionBrief(obj.Content)
	return nil
}

// Definition is the full configuration of one challenge.
type Definition struct {
	ChallengeID      string                 `json:"challengeId"`
	Title            string                 `json:"title"`
	MissionBrief     MissionBrief           `json:"missionBrief"`
	XISMessage       string                 `json:"xisMessage"`
	Module           string                 `json:"module,omitempty"`
	XPReward         int                    `json:"xpReward,omitempty"`
	Objectives       []Objective            `json:"objectives"`
	TerminalCommands map[string]CommandSpec `json:"terminalCommands"`
	EvidenceFiles    []EvidenceFile         `json:"evidenceFiles"`
	ProgressiveHints []Hint                 `json:"progressiveHints"`
	Validation       ValidationRule         `json:"validation"`
	AnalysisResults  *search.Analysis       `json:"analysisResults,omitempty"`
	Checkpoints      []Checkpoint           `json:"checkpoints,omitempty"`
	Triggers         *Triggers              `json:"triggers,omitempty"`
}

var (
	idPattern       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Validate checks the structural rules of a definition.
func (d *Definition) Validate() error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.ChallengeID, validation.Required, validation.Match(idPattern)),
		validation.Field(&d.Objectives),
		validation.Field(&d.EvidenceFiles),
		validation.Field(&d.Validation),
		validation.Field(&d.XPReward, validation.Min(0)),
	); err != nil {
		return err
	}
	seen := make(map[ObjectiveID]struct{}, len(d.Objectives))
	for _, o := range d.Objectives {
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("objectives: duplicate id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// Evidence returns the declared evidence file named filename.
func (d *Definition) Evidence(filename string) (EvidenceFile, bool) {
	for _, f := range d.EvidenceFiles {
		if f.Filename == filename {
			return f, true
		}
	}
	return EvidenceFile{}, false
}

// ErrIDMismatch is returned when a definition's challengeId differs from the
// identifier used to locate it.
var ErrIDMismatch = errors.New("challengeId does not match requested identifier")

// Decode parses and validates a definition fetched for wantID.
func Decode(data []byte, wantID string) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("challenge: decode definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("challenge: invalid definition: %w", err)
	}
	if wantID != "" && d.ChallengeID != wantID {
		return nil, fmt.Errorf("challenge: %w: got %q, want %q", ErrIDMismatch, d.ChallengeID, wantID)
	}
	return &d, nil
}

// resolvedTriggers is Triggers with defaults applied.
type resolvedTriggers struct {
	evidenceDownloaded ObjectiveID
	fileExamined       ObjectiveID
	analysisPerformed  ObjectiveID
	flagSubmitted      ObjectiveID
	keywords           []keywordTrigger
}

type keywordTrigger struct {
	keyword string // lower-cased
	id      ObjectiveID
}

// triggers resolves the trigger table. Unset entries default to objective
// positions: download → 1st, cat and analyze → 2nd, "admin" → 3rd,
// "navigator" → 4th, submit → 5th. Positions past the end map to nothing.
func (d *Definition) triggers() resolvedTriggers {
	at := func(i int) ObjectiveID {
		if i < len(d.Objectives) {
			return d.Objectives[i].ID
		}
		return ""
	}
	rt := resolvedTriggers{
		evidenceDownloaded: at(0),
		fileExamined:       at(1),
		analysisPerformed:  at(1),
		flagSubmitted:      at(4),
	}
	keywords := map[string]ObjectiveID{"admin": at(2), "navigator": at(3)}

	if t := d.Triggers; t != nil {
		if t.EvidenceDownloaded != "" {
			rt.evidenceDownloaded = t.EvidenceDownloaded
		}
		if t.FileExamined != "" {
			rt.fileExamined = t.FileExamined
		}
		if t.AnalysisPerformed != "" {
			rt.analysisPerformed = t.AnalysisPerformed
		}
		if t.FlagSubmitted != "" {
			rt.flagSubmitted = t.FlagSubmitted
		}
		if t.Keywords != nil {
			keywords = t.Keywords
		}
	}
	for kw, id := range keywords {
		if kw == "" || id == "" {
			continue
		}
		rt.keywords = append(rt.keywords, keywordTrigger{keyword: strings.ToLower(kw), id: id})
	}
	sort.Slice(rt.keywords, func(i, j int) bool { return rt.keywords[i].keyword < rt.keywords[j].keyword })
	return rt
}
