package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeEvidenceUnlocked, Data: map[string]string{"file": "crew.txt"}})

	select {
	case ev := <-ch:
		msg, err := Frame(ev)
		if err != nil {
			t.Fatalf("Frame: %v", err)
		}
		s := string(msg)
		if !strings.Contains(s, "event: evidence.unlocked") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"file":"crew.txt"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSessionFilter(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe("s1")
	defer b.Unsubscribe(mine)

	b.Publish(Event{Type: TypeObjectiveCompleted, Session: "s2", Data: "other"})
	b.Publish(Event{Type: TypeObjectiveCompleted, Session: "s1", Data: "mine"})
	b.Publish(Event{Type: TypeScenarioUpdated, Data: "global"})

	var got []any
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-mine:
			got = append(got, ev.Data)
		case <-timeout:
			t.Fatalf("timeout, got %v", got)
		}
	}
	if got[0] != "mine" || got[1] != "global" {
		t.Errorf("got %v", got)
	}
}

func TestPublishProgressThrottle(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// First goes out at once; the next two collapse into the latest.
	b.PublishProgress("u", 1)
	b.PublishProgress("u", 2)
	b.PublishProgress("u", 3)

	time.Sleep(50 * time.Millisecond)
	var got []any
drain:
	for {
		select {
		case ev := <-ch:
			got = append(got, ev.Data)
		default:
			break drain
		}
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("immediate events = %v, want [1]", got)
	}

	select {
	case ev := <-ch:
		if ev.Data != 3 || ev.Type != TypeProgressUpdated {
			t.Errorf("trailing event = %+v, want data 3", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("pending progress was never flushed")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeChallengeCompleted, Data: map[string]string{"challengeId": "x"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: challenge.completed") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeScenarioUpdated, Data: map[string]string{"id": "x"}})
	b.PublishProgress("u", 1)
}
