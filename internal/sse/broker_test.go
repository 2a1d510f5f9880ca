package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/snapshot"
)

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countType(msgs []string, kind string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+kind+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishSnapshotEvent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshotEvent(snapshot.EventCreated, models.SnapshotInfo{ID: "s1", RootPath: "/repo", FileCount: 3})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: snapshot.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"snapshotId":"s1"`) || !strings.Contains(s, `"fileCount":3`) {
			t.Errorf("missing data in %q", s)
		}
		if !strings.HasPrefix(s, "id: 1\n") {
			t.Errorf("expected first event id, got %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestGraphUpdatedThrottledPerSnapshot(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshotEvent(snapshot.EventCreated, models.SnapshotInfo{ID: "s1"})
	b.PublishSnapshotEvent(snapshot.EventUpdated, models.SnapshotInfo{ID: "s1"})
	b.PublishSnapshotEvent(snapshot.EventCreated, models.SnapshotInfo{ID: "s2"})

	msgs := drain(ch)
	if n := countType(msgs, snapshot.EventCreated) + countType(msgs, snapshot.EventUpdated); n != 3 {
		t.Errorf("snapshot events = %d, want 3", n)
	}
	if n := countType(msgs, GraphUpdated); n != 2 {
		t.Errorf("graph events = %d, want 2 (one per snapshot)", n)
	}
}

func TestDeleteResetsThrottle(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSnapshotEvent(snapshot.EventCreated, models.SnapshotInfo{ID: "s1"})
	b.PublishSnapshotEvent(snapshot.EventDeleted, models.SnapshotInfo{ID: "s1"})
	b.PublishSnapshotEvent(snapshot.EventCreated, models.SnapshotInfo{ID: "s1"})

	msgs := drain(ch)
	if n := countType(msgs, snapshot.EventDeleted); n != 1 {
		t.Errorf("deleted events = %d, want 1", n)
	}
	if n := countType(msgs, GraphUpdated); n != 2 {
		t.Errorf("graph events = %d, want 2", n)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "snapshot.updated", Data: map[string]string{"snapshotId": "x"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: snapshot.updated") {
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
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Subscriber buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
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

	b.Publish(Event{Type: "snapshot.updated"})
	b.PublishSnapshotEvent(snapshot.EventUpdated, models.SnapshotInfo{ID: "x"})
	b.Close()
}
