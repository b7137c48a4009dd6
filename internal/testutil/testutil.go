// Package testutil provides shared test helpers for setting up sites and
// databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/storage"
)

// TestDB creates a temporary progress database that is automatically cleaned up.
func TestDB(t *testing.T) *progress.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "codebook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := progress.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SampleID is the scenario written by TestSite.
const SampleID = "crew-audit"

// SampleFlag is the correct flag of the sample scenario.
const SampleFlag = "NAVIGATOR{x}"

// SampleDefinition is a small scenario with two objectives: grep for
// "navigator" completes the first, a correct submit the second.
const SampleDefinition = `{
  "challengeId": "crew-audit",
  "title": "Crew Audit",
  "module": "identity-defense",
  "xpReward": 100,
  "missionBrief": "Audit the crew roster.",
  "objectives": [{"id": 1, "description": "Find the navigator entry"}, {"id": 2, "description": "Submit the flag"}],
  "terminalCommands": {
    "cat": {"description": "Display file contents", "requiresEvidence": true},
    "grep": {"description": "Search for patterns in files", "examples": ["grep admin crew.txt"], "requiresEvidence": true},
    "analyze": {"description": "Run security analysis", "requiresEvidence": true},
    "submit": {"description": "Submit the flag"}
  },
  "evidenceFiles": [{"filename": "crew.txt", "displayName": "Crew roster", "fileSize": "1KB"}],
  "progressiveHints": [
    {"level": 1, "title": "Look around", "content": "Download the roster first."},
    {"level": 2, "title": "Search", "content": "Grep for the flag prefix.", "example": "grep NAVIGATOR crew.txt"}
  ],
  "validation": {"correctFlag": "NAVIGATOR{x}", "successMessage": "Flag accepted", "failureMessage": "Wrong flag", "flagFormat": "NAVIGATOR{...}"},
  "triggers": {"evidenceDownloaded": "0", "keywords": {"navigator": "1"}, "flagSubmitted": "2"}
}`

// SampleEvidence is the content of crew.txt.
const SampleEvidence = "alpha\nNAVIGATOR{x}\nbeta"

// TestSite creates a temporary site root holding the sample scenario and a
// storage.Provider over it.
func TestSite(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "assets", "data", "scenarios", SampleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, SampleID+".json"), []byte(SampleDefinition), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "crew.txt"), []byte(SampleEvidence), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}
