package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/terminal"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ScenarioListResponse wraps the scenario catalog.
type ScenarioListResponse struct {
	Scenarios []scenario.Summary `json:"scenarios" validate:"required"`
}

// CreateSessionRequest carries the page context a challenge is resolved from.
type CreateSessionRequest struct {
	ChallengeID string `json:"challengeId,omitempty" example:"space-pirate-password-breach"`
	Path        string `json:"path,omitempty" example:"/codebook/modules/space-pirate-password-breach.html"`
	Meta        string `json:"meta,omitempty"`
	Title       string `json:"title,omitempty" example:"Space Pirate Password Breach"`
	UserID      string `json:"userId,omitempty" example:"navigator-1a2b3c4d5"`
}

// SessionView is a session with its challenge status (aliased from the domain layer).
type SessionView = session.View

// HintView is a revealed hint (aliased from the domain layer).
type HintView = session.HintView

// CommandRequest is one terminal input line.
type CommandRequest struct {
	Line string `json:"line" example:"grep password crew_passwords.txt" validate:"required"`
}

// CommandResponse is the outcome of one dispatched line.
type CommandResponse struct {
	Lines  []terminal.Line `json:"lines" validate:"required"`
	Text   string          `json:"text"`
	Clear  bool            `json:"clear,omitempty"`
	Prompt string          `json:"prompt" example:"navigator@uss-navigator:navigator$ "`
}

func newCommandResponse(res terminal.Result, prompt string) CommandResponse {
	lines := res.Lines
	if lines == nil {
		lines = []terminal.Line{}
	}
	return CommandResponse{Lines: lines, Text: res.Text(), Clear: res.Clear, Prompt: prompt}
}

// HistoryResponse is a recalled history entry.
type HistoryResponse struct {
	Line  string `json:"line"`
	Found bool   `json:"found"`
}

// CompleteResponse lists completions. Completion is set on a unique match,
// Text when several match.
type CompleteResponse struct {
	Matches    []string `json:"matches" validate:"required"`
	Completion string   `json:"completion,omitempty" example:"submit"`
	Text       string   `json:"text,omitempty"`
}

// UnlockResponse reports an evidence unlock.
type UnlockResponse struct {
	Filename string `json:"filename" example:"crew_passwords.txt"`
	Changed  bool   `json:"changed"`
}

// LockResponse reports the terminal lock state.
type LockResponse struct {
	ID     string `json:"id"`
	Locked bool   `json:"locked"`
}

// ToolResponse is the banner of a loaded tool.
type ToolResponse struct {
	Tool   string `json:"tool" example:"hashcat"`
	Output string `json:"output"`
}

// CreateProgressRequest optionally names the learner to register.
type CreateProgressRequest struct {
	UserID string `json:"userId,omitempty" example:"navigator-1a2b3c4d5"`
}

// Validate checks the request.
func (r CreateProgressRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Length(1, 64), validation.Match(userIDPattern)),
	)
}

// ProgressResponse is a learner record with derived fields.
type ProgressResponse struct {
	progress.Progress
	OverallPercent int `json:"overallPercent" example:"25"`
}

// RecoveryResponse carries an exported recovery code.
type RecoveryResponse struct {
	Code string `json:"code" example:"NAV-eyJwcm9n-cmVzcyI6"`
}

// RestoreRequest carries a recovery code to import.
type RestoreRequest struct {
	Code string `json:"code" validate:"required"`
}

// Validate checks the request.
func (r RestoreRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
	)
}

// LeaderboardResponse lists the top learners.
type LeaderboardResponse struct {
	Entries []progress.Entry `json:"entries" validate:"required"`
}

// wsInbound is a client frame on the terminal websocket. Type is "command"
// (the default) or "ping".
type wsInbound struct {
	Type string `json:"type,omitempty"`
	Line string `json:"line"`
}

// wsMessage is a server frame on the terminal websocket.
type wsMessage struct {
	Type   string           `json:"type"`
	Result *CommandResponse `json:"result,omitempty"`
	Data   any              `json:"data,omitempty"`
	Error  string           `json:"error,omitempty"`
}
