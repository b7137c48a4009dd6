package scenario

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/navigator/codebook/internal/storage"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestCatalogList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, Dir+"/alpha-beta/alpha-beta.json",
		`{"challengeId":"alpha-beta","title":"Alpha","module":"identity-defense","objectives":[{"id":1}],"evidenceFiles":[{"filename":"a.txt"}],"validation":{"correctFlag":"F"}}`)
	writeFile(t, root, Dir+"/alpha-beta/a.txt", "data")
	writeFile(t, root, Dir+"/broken/broken.json", `{"challengeId":"broken"}`)
	writeFile(t, root, Dir+"/stray.json", `{}`)
	writeFile(t, root, Dir+"/alpha-beta/extra.json", `{}`)

	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewCatalog(store, nil).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d scenarios: %+v", len(got), got)
	}
	if got[0].ID != "alpha-beta" || got[0].Title != "Alpha" || got[0].Objectives != 1 || got[0].Evidence != 1 {
		t.Errorf("alpha-beta = %+v", got[0])
	}
	if got[1].ID != "broken" || got[1].Error == "" {
		t.Errorf("broken = %+v", got[1])
	}
}

func TestIDFromPath(t *testing.T) {
	cases := map[string]string{
		Dir + "/x/x.json":  "x",
		Dir + "/x/f.txt":   "x",
		Dir + "/loose.txt": "",
		"assets/other":     "",
	}
	for p, want := range cases {
		got, _ := IDFromPath(p)
		if got != want {
			t.Errorf("IDFromPath(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestWatchReportsChangedScenario(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, Dir+"/alpha-beta/alpha-beta.json", `{}`)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	events := map[string]string{}
	go Watch(ctx, root, logger, func(id, kind string) {
		mu.Lock()
		events[id] = kind
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	writeFile(t, root, Dir+"/alpha-beta/crew.txt", "x")
	writeFile(t, root, Dir+"/new-one/new-one.json", `{}`)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events["alpha-beta"] == "updated"
	}, "edit in alpha-beta not reported")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events["new-one"] == "updated"
	}, "new scenario directory not reported")

	if err := os.RemoveAll(filepath.Join(root, Dir, "alpha-beta")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events["alpha-beta"] == "deleted"
	}, "removed scenario not reported")
}
