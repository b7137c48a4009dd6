// Package search implements the text matching and canned report generation
// behind the evidence commands. Matching is deliberately literal: a pattern
// is a case-insensitive substring tested against each line.
package search

import (
	"fmt"
	"strings"
)

// Analysis is the canned report bundle carried by a challenge definition.
type Analysis struct {
	WeakPatterns         []string `json:"weakPatterns,omitempty"`
	AdminVulnerabilities []string `json:"adminVulnerabilities,omitempty"`
	SecurityInsights     string   `json:"securityInsights,omitempty"`
}

// Empty reports whether the bundle has nothing to render.
func (a *Analysis) Empty() bool {
	return a == nil || (len(a.WeakPatterns) == 0 && len(a.AdminVulnerabilities) == 0 && a.SecurityInsights == "")
}

// Suggestions are offered when a grep finds nothing.
var Suggestions = []string{"admin", "password", "123456", "NAVIGATOR"}

// Grep returns the lines of content whose lower-cased form contains the
// lower-cased pattern, in their original order. Content is split on "\n".
func Grep(content, pattern string) []string {
	needle := strings.ToLower(pattern)
	var matches []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, line)
		}
	}
	return matches
}

// FormatMatches renders a grep result the way the terminal prints it.
func FormatMatches(pattern, filename string, matches []string) string {
	if len(matches) == 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "[INFO] No matches found for '%s' in %s\n\nTry searching for common patterns like:", pattern, filename)
		for _, s := range Suggestions {
			b.WriteString("\n  • " + s)
		}
		return b.String()
	}
	return fmt.Sprintf("[INFO] Found %d matches for '%s':\n\n%s", len(matches), pattern, strings.Join(matches, "\n"))
}

// Report assembles the static security analysis report. Sections with no
// content are left out.
func Report(a *Analysis) string {
	var b strings.Builder
	b.WriteString("[SECURITY ANALYSIS REPORT]\n\n")
	if a == nil {
		return b.String()
	}
	if len(a.WeakPatterns) > 0 {
		b.WriteString("🚨 WEAK PASSWORD PATTERNS DETECTED:\n")
		for _, p := range a.WeakPatterns {
			b.WriteString("• " + p + "\n")
		}
		b.WriteString("\n")
	}
	if len(a.AdminVulnerabilities) > 0 {
		b.WriteString("⚠️ ADMIN ACCOUNT VULNERABILITIES:\n")
		for _, v := range a.AdminVulnerabilities {
			b.WriteString("• " + v + "\n")
		}
		b.WriteString("\n")
	}
	if a.SecurityInsights != "" {
		b.WriteString("📊 SECURITY INSIGHTS:\n")
		b.WriteString(a.SecurityInsights)
	}
	return b.String()
}

// CommandHelp is one row of challenge help output.
type CommandHelp struct {
	Name        string
	Description string
	Examples    []string
}

// HelpText lists challenge commands followed by their examples.
func HelpText(cmds []CommandHelp) string {
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	for _, c := range cmds {
		fmt.Fprintf(&b, "%-20s - %s\n", c.Name, c.Description)
	}
	b.WriteString("\nCHALLENGE-SPECIFIC EXAMPLES:\n")
	for _, c := range cmds {
		for _, ex := range c.Examples {
			b.WriteString("  " + ex + "\n")
		}
	}
	return b.String()
}
