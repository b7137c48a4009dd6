package progress

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/navigator/codebook/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "codebook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestNewUserIDFormat(t *testing.T) {
	id := NewUserID()
	if !strings.HasPrefix(id, "navigator-") || len(id) != len("navigator-")+9 {
		t.Fatalf("unexpected id %q", id)
	}
	if id == NewUserID() {
		t.Fatal("ids should differ")
	}
}

func TestEnsureDefaults(t *testing.T) {
	m := NewManager(testDB(t), WithClock(fixedClock()))
	p, err := m.Ensure("navigator-abc")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if p.Rank != RankCadet || p.TotalXP != 0 {
		t.Errorf("rank=%q xp=%d", p.Rank, p.TotalXP)
	}
	for i, id := range ModuleOrder {
		mod := p.Modules[id]
		if mod.Total != 4 || mod.Unlocked != (i == 0) {
			t.Errorf("%s = %+v", id, mod)
		}
	}
}

func TestGetUnknownUser(t *testing.T) {
	m := NewManager(testDB(t))
	if _, err := m.Get("nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteChallengeIgnoresRepeat(t *testing.T) {
	m := NewManager(testDB(t), WithClock(fixedClock()))
	_, _ = m.Ensure("u")

	p, ok, err := m.CompleteChallenge("u", ModuleIdentity, "c1", 0)
	if err != nil || !ok {
		t.Fatalf("CompleteChallenge: ok=%v err=%v", ok, err)
	}
	if p.TotalXP != 100 || p.ChallengesCompleted != 1 || p.Modules[ModuleIdentity].Progress != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
	p, ok, _ = m.CompleteChallenge("u", ModuleIdentity, "c1", 0)
	if ok || p.TotalXP != 100 {
		t.Errorf("repeat credited: ok=%v xp=%d", ok, p.TotalXP)
	}
}

func TestModuleCompletionUnlocksNextAndPromotes(t *testing.T) {
	m := NewManager(testDB(t), WithClock(fixedClock()))
	_, _ = m.Ensure("u")

	var p Progress
	for _, c := range []string{"a", "b", "c", "d"} {
		p, _, _ = m.CompleteChallenge("u", ModuleIdentity, c, 0)
	}
	if !p.Modules[ModuleIdentity].Completed || !p.Modules[ModuleNetwork].Unlocked {
		t.Fatalf("modules = %+v", p.Modules)
	}
	if p.Modules[ModuleIntelligence].Unlocked {
		t.Error("intelligence-hub should still be locked")
	}
	// 3*100, +500 bonus, +100
	if p.TotalXP != 900 {
		t.Errorf("xp = %d, want 900", p.TotalXP)
	}
	if p.Rank != RankSpecialist {
		t.Errorf("rank = %q", p.Rank)
	}
	titles := make([]string, len(p.Achievements))
	for i, a := range p.Achievements {
		titles[i] = a.Title
	}
	want := []string{"Identity Defense Grid Master", "Promoted to Navigation Specialist"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("achievements = %v, want %v", titles, want)
	}
}

func TestCompleteModuleDirectly(t *testing.T) {
	m := NewManager(testDB(t), WithClock(fixedClock()))
	_, _ = m.Ensure("u")

	p, err := m.CompleteModule("u", ModuleNetwork)
	if err != nil {
		t.Fatalf("CompleteModule: %v", err)
	}
	if !p.Modules[ModuleNetwork].Completed || !p.Modules[ModuleIntelligence].Unlocked {
		t.Fatalf("modules = %+v", p.Modules)
	}
	if p.TotalXP != 500 || p.Rank != RankSpecialist {
		t.Errorf("xp = %d rank = %q", p.TotalXP, p.Rank)
	}

	again, err := m.CompleteModule("u", ModuleNetwork)
	if err != nil || again.TotalXP != 500 {
		t.Errorf("repeat = %d, %v; want no extra XP", again.TotalXP, err)
	}

	if _, err := m.CompleteModule("u", "warp-core"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown module err = %v", err)
	}
	if _, err := m.CompleteModule("nobody", ModuleNetwork); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestRankFor(t *testing.T) {
	cases := map[int]string{0: RankCadet, 499: RankCadet, 500: RankSpecialist, 1500: RankJunior, 3000: RankSenior, 5000: RankMaster}
	for xp, want := range cases {
		if got := RankFor(xp); got != want {
			t.Errorf("RankFor(%d) = %q, want %q", xp, got, want)
		}
	}
}

func TestRecoveryRoundTrip(t *testing.T) {
	m := NewManager(testDB(t), WithClock(fixedClock()))
	_, _ = m.Ensure("navigator-r1")
	_, _, _ = m.CompleteChallenge("navigator-r1", ModuleIdentity, "c1", 250)

	code, err := m.RecoveryCode("navigator-r1")
	if err != nil {
		t.Fatalf("RecoveryCode: %v", err)
	}
	if !strings.HasPrefix(code, "NAV-") {
		t.Fatalf("code %q", code)
	}
	for _, g := range strings.Split(strings.TrimPrefix(code, "NAV-"), "-") {
		if len(g) > 8 {
			t.Fatalf("group %q longer than 8", g)
		}
	}

	other := NewManager(testDB(t), WithClock(fixedClock()))
	p, err := other.Restore(code)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if p.UserID != "navigator-r1" || p.TotalXP != 250 || !p.HasCompleted("c1") {
		t.Errorf("restored %+v", p)
	}
	if _, err := other.Get("navigator-r1"); err != nil {
		t.Errorf("restored user not stored: %v", err)
	}
}

func TestRestoreInvalidCode(t *testing.T) {
	m := NewManager(testDB(t))
	for _, code := range []string{"NAV-!!!!", "NAV-" + "e30=", ""} {
		if _, err := m.Restore(code); !errors.Is(err, apperr.ErrInvalidCode) {
			t.Errorf("Restore(%q) err = %v", code, err)
		}
	}
}

func TestResetRemovesUser(t *testing.T) {
	db := testDB(t)
	m := NewManager(db)
	_, _ = m.Ensure("u")
	_, _, _ = m.CompleteChallenge("u", ModuleIdentity, "c1", 0)

	if err := m.Reset("u"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := db.Load("u"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("store still has user: %v", err)
	}
}

func TestFlushPersistsNewUsers(t *testing.T) {
	db := testDB(t)
	m := NewManager(db)
	_, _ = m.Ensure("fresh")
	if _, err := db.Load("fresh"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("user persisted before flush: %v", err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := db.Load("fresh"); err != nil {
		t.Fatalf("Load after flush: %v", err)
	}
}

func TestOnChangeAndLeaderboard(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	m := NewManager(testDB(t), OnChange(func(p Progress) {
		mu.Lock()
		seen = append(seen, p.TotalXP)
		mu.Unlock()
	}))
	_, _ = m.Ensure("low")
	_, _ = m.Ensure("high")
	_, _, _ = m.CompleteChallenge("low", ModuleIdentity, "x", 100)
	_, _, _ = m.CompleteChallenge("high", ModuleIdentity, "x", 300)

	mu.Lock()
	if len(seen) != 2 {
		t.Errorf("onChange calls = %v", seen)
	}
	mu.Unlock()

	top, err := m.Leaderboard(5)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "high" {
		t.Errorf("leaderboard = %+v", top)
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	m := NewManager(testDB(t))
	p, err := m.Create("")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(p.UserID); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}
