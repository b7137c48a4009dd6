package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/navigator/codebook/internal/challenge"
	"github.com/navigator/codebook/internal/checksum"
	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/sse"
	"github.com/navigator/codebook/internal/testutil"
)

// testEnv builds a router over a temp site with the sample scenario.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()
	_, store := testutil.TestSite(t)
	loader := challenge.NewLoader(challenge.NewStorageFetcher(store),
		challenge.WithCompletionDelay(0),
		challenge.WithBasePath("/"))
	pm := progress.NewManager(testutil.TestDB(t))
	broker := sse.NewBroker(10 * time.Millisecond)
	t.Cleanup(broker.Close)

	sessions, err := session.NewManager(loader, session.Config{},
		session.WithProgress(pm, challenge.Resolved()),
		session.WithBroker(broker))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(sessions.Close)

	return NewRouter(Deps{
		Sessions:    sessions,
		Progress:    pm,
		Catalog:     scenario.NewCatalog(store, nil),
		Broker:      broker,
		AuthEnabled: authToken != "",
		Token:       authToken,
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, router http.Handler, req CreateSessionRequest) SessionView {
	t.Helper()
	w := do(t, router, http.MethodPost, "/sessions", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[SessionView](t, w)
}

func run(t *testing.T, router http.Handler, id, line string) CommandResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/sessions/"+id+"/commands", CommandRequest{Line: line})
	if w.Code != http.StatusOK {
		t.Fatalf("command %q = %d, body = %s", line, w.Code, w.Body.String())
	}
	return decode[CommandResponse](t, w)
}

func TestListScenarios(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/scenarios", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ScenarioListResponse](t, w)
	if len(resp.Scenarios) != 1 || resp.Scenarios[0].ID != testutil.SampleID {
		t.Errorf("scenarios = %+v", resp.Scenarios)
	}
}

func TestSessionLifecycle(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{Path: "/codebook/modules/" + testutil.SampleID + ".html"})
	if v.Challenge.ChallengeID != testutil.SampleID || v.Challenge.Degraded {
		t.Fatalf("challenge = %+v", v.Challenge)
	}

	w := do(t, router, http.MethodGet, "/sessions/"+v.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/sessions/"+v.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/sessions/"+v.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestCommandFlowCompletesChallenge(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})

	locked := run(t, router, v.ID, "cat crew.txt")
	if !strings.Contains(strings.ToLower(locked.Text), "download") {
		t.Errorf("cat before download = %q", locked.Text)
	}

	w := do(t, router, http.MethodPost, "/sessions/"+v.ID+"/evidence/crew.txt/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="crew.txt"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := w.Header().Get("ETag"); got != checksum.ETag([]byte(testutil.SampleEvidence)) {
		t.Errorf("ETag = %q", got)
	}
	if w.Body.String() != testutil.SampleEvidence {
		t.Errorf("body = %q", w.Body.String())
	}

	if out := run(t, router, v.ID, "grep navigator crew.txt"); !strings.Contains(out.Text, "Found 1 matches") {
		t.Errorf("grep = %q", out.Text)
	}
	out := run(t, router, v.ID, "submit "+testutil.SampleFlag)
	if !strings.Contains(out.Text, "[SUCCESS]") || out.Prompt == "" {
		t.Errorf("submit = %+v", out)
	}

	got := decode[SessionView](t, do(t, router, http.MethodGet, "/sessions/"+v.ID, nil))
	if got.Challenge.State != challenge.StateCompleted || !got.Challenge.FlagSubmitted {
		t.Errorf("status = %+v", got.Challenge)
	}

	p := decode[ProgressResponse](t, do(t, router, http.MethodGet, "/progress/"+v.UserID, nil))
	if p.TotalXP != 100 || !p.HasCompleted(testutil.SampleID) {
		t.Errorf("progress = %+v", p)
	}
}

func TestDownloadDegraded(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: "ghost-ship-escape"})
	if !v.Challenge.Degraded {
		t.Fatal("expected degraded session")
	}
	w := do(t, router, http.MethodPost, "/sessions/"+v.ID+"/evidence/crew.txt/download", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error != challenge.DegradedMessage {
		t.Errorf("error = %q", body.Error)
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})
	w := do(t, router, http.MethodPost, "/sessions/"+v.ID+"/evidence/nope.txt/download", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})
	path := "/sessions/" + v.ID + "/evidence/crew.txt/unlock"

	first := decode[UnlockResponse](t, do(t, router, http.MethodPost, path, nil))
	second := decode[UnlockResponse](t, do(t, router, http.MethodPost, path, nil))
	if !first.Changed || second.Changed {
		t.Errorf("changed = %v then %v", first.Changed, second.Changed)
	}
}

func TestHintsThenExhausted(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})
	path := "/sessions/" + v.ID + "/hints"

	for i := range 2 {
		w := do(t, router, http.MethodPost, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("hint %d = %d", i, w.Code)
		}
	}
	w := do(t, router, http.MethodPost, path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("third hint = %d, want 404", w.Code)
	}
	if body := decode[errResponse](t, w); body.Error != "No more hints available" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestHistoryCompleteAndLock(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})
	base := "/sessions/" + v.ID

	run(t, router, v.ID, "whoami")
	h := decode[HistoryResponse](t, do(t, router, http.MethodGet, base+"/history?dir=prev", nil))
	if !h.Found || h.Line != "whoami" {
		t.Errorf("history = %+v", h)
	}
	if w := do(t, router, http.MethodGet, base+"/history?dir=sideways", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad dir = %d", w.Code)
	}

	c := decode[CompleteResponse](t, do(t, router, http.MethodGet, base+"/complete?partial=sub", nil))
	if c.Completion != "submit" {
		t.Errorf("complete = %+v", c)
	}
	c = decode[CompleteResponse](t, do(t, router, http.MethodGet, base+"/complete?partial=c", nil))
	if len(c.Matches) < 2 || !strings.HasPrefix(c.Text, "Available completions:") {
		t.Errorf("complete = %+v", c)
	}

	do(t, router, http.MethodPost, base+"/lock", nil)
	if out := run(t, router, v.ID, "pwd"); out.Text != "[ERROR] Terminal locked" {
		t.Errorf("locked pwd = %q", out.Text)
	}
	if w := do(t, router, http.MethodPost, base+"/evidence/crew.txt/download", nil); w.Code != http.StatusLocked {
		t.Errorf("locked download = %d, want 423", w.Code)
	}
	do(t, router, http.MethodPost, base+"/unlock", nil)
	if out := run(t, router, v.ID, "pwd"); out.Text != "/home/navigator" {
		t.Errorf("pwd = %q", out.Text)
	}
}

func TestResetAndTools(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})
	base := "/sessions/" + v.ID

	do(t, router, http.MethodPost, base+"/evidence/crew.txt/unlock", nil)
	got := decode[SessionView](t, do(t, router, http.MethodPost, base+"/reset", nil))
	if got.Challenge.Evidence[0].Unlocked {
		t.Error("evidence still unlocked after reset")
	}

	w := do(t, router, http.MethodPost, base+"/tools/hashcat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load tool = %d", w.Code)
	}
	if out := run(t, router, v.ID, "hashcat"); !strings.Contains(out.Text, "Hashcat") {
		t.Errorf("hashcat = %q", out.Text)
	}
	if w := do(t, router, http.MethodPost, base+"/tools/nessus", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown tool = %d, want 404", w.Code)
	}
}

func TestProgressEndpoints(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/progress", CreateProgressRequest{UserID: "navigator-api1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/progress", CreateProgressRequest{UserID: "navigator-api1"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/progress", CreateProgressRequest{UserID: "bad id!"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id = %d, want 400", w.Code)
	}

	mod := decode[ProgressResponse](t, do(t, router, http.MethodPost, "/progress/navigator-api1/modules/identity-defense/complete", nil))
	if !mod.Modules["identity-defense"].Completed || !mod.Modules["network-defense"].Unlocked || mod.TotalXP != 500 {
		t.Errorf("module complete = %+v xp=%d", mod.Modules, mod.TotalXP)
	}
	if w := do(t, router, http.MethodPost, "/progress/navigator-api1/modules/warp-core/complete", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown module = %d, want 404", w.Code)
	}

	rec := decode[RecoveryResponse](t, do(t, router, http.MethodGet, "/progress/navigator-api1/recovery", nil))
	if !strings.HasPrefix(rec.Code, "NAV-") {
		t.Fatalf("code = %q", rec.Code)
	}

	if w := do(t, router, http.MethodDelete, "/progress/navigator-api1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/progress/navigator-api1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}

	w = do(t, router, http.MethodPost, "/progress/restore", RestoreRequest{Code: rec.Code})
	if w.Code != http.StatusOK {
		t.Fatalf("restore = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/progress/navigator-api1", nil); w.Code != http.StatusOK {
		t.Errorf("get after restore = %d", w.Code)
	}

	if w := do(t, router, http.MethodPost, "/progress/restore", RestoreRequest{Code: "NAV-!!!"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad code = %d, want 400", w.Code)
	}

	lb := decode[LeaderboardResponse](t, do(t, router, http.MethodGet, "/progress/leaderboard?limit=5", nil))
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "navigator-api1" {
		t.Errorf("leaderboard = %+v", lb.Entries)
	}
	for _, limit := range []string{"0", "-3", "101", "ten"} {
		if w := do(t, router, http.MethodGet, "/progress/leaderboard?limit="+limit, nil); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s = %d, want 400", limit, w.Code)
		}
	}
	if w := do(t, router, http.MethodGet, "/progress/leaderboard?limit=100", nil); w.Code != http.StatusOK {
		t.Errorf("limit=100 = %d, want 200", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestEmptyBodyIsAccepted(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/scenarios", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/scenarios?token=secret", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/scenarios", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/scenarios", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

// Websocket terminal.

func TestTerminalWebsocket(t *testing.T) {
	router := testEnv(t, "")
	v := createSession(t, router, CreateSessionRequest{ChallengeID: testutil.SampleID})

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + v.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsInbound{Line: "pwd"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "result" {
			continue
		}
		if msg.Result == nil || msg.Result.Text != "/home/navigator" {
			t.Fatalf("result = %+v", msg.Result)
		}
		return
	}
}

func TestTerminalWebsocket_UnknownSession(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/sessions/missing/ws", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
