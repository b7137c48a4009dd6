package challenge

import "strings"

const defaultFlagFormat = "FLAG{...}"

// Validator checks submitted flags against a ValidationRule.
type Validator struct {
	rule      ValidationRule
	tracker   *Tracker
	objective ObjectiveID
}

// NewValidator binds rule to tracker; objective is completed on success.
func NewValidator(rule ValidationRule, tracker *Tracker, objective ObjectiveID) *Validator {
	return &Validator{rule: rule, tracker: tracker, objective: objective}
}

// FlagFormat returns the configured format hint or the generic one.
func (v *Validator) FlagFormat() string {
	if v.rule.FlagFormat != "" {
		return v.rule.FlagFormat
	}
	return defaultFlagFormat
}

// Submit compares candidate with the correct flag using exact,
// case-sensitive equality. A match completes the challenge; resubmitting
// after that is harmless. A mismatch changes nothing and may be retried
// any number of times.
func (v *Validator) Submit(candidate string) (string, bool) {
	if candidate != v.rule.CorrectFlag {
		return v.failure(), false
	}
	// flag is set first so a completion triggered by the objective reports it
	v.tracker.flag = true
	v.tracker.CompleteObjective(v.objective, "flag_submitted")
	v.tracker.MarkFlagSubmitted()
	return v.success(candidate), true
}

func (v *Validator) success(flag string) string {
	msg := v.rule.SuccessMessage
	if msg == "" {
		msg = "Flag accepted. Challenge complete!"
	}
	return "[SUCCESS] " + msg + "\n[INFO] Flag: " + flag
}

func (v *Validator) failure() string {
	msg := v.rule.FailureMessage
	if msg == "" {
		msg = "Incorrect flag. Keep investigating."
	}
	var b strings.Builder
	b.WriteString("[ERROR] " + msg)
	b.WriteString("\n[INFO] Hint: flags are case-sensitive and look like " + v.FlagFormat() + ". Search the evidence for that pattern.")
	return b.String()
}
