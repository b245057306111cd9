package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestUpdatedDeliversEvent(t *testing.T) {
	var got atomic.Pointer[Event]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		got.Store(&evt)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL})
	n.Updated()

	waitFor(t, func() bool { return got.Load() != nil }, "event never arrived")

	evt := got.Load()
	if evt.Type != "context.updated" {
		t.Errorf("event type = %q", evt.Type)
	}
	if evt.ID != "evt_000001" {
		t.Errorf("event id = %q", evt.ID)
	}

	waitFor(t, func() bool { return len(n.Deliveries()) == 1 }, "delivery log never recorded")
	d := n.Deliveries()[0]
	if d.StatusCode != http.StatusOK || d.Attempt != 1 {
		t.Errorf("unexpected delivery record: %+v", d)
	}
}

func TestUpdatedRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL, RetryDelay: time.Millisecond})
	n.Updated()

	waitFor(t, func() bool { return calls.Load() >= 2 }, "no retry after a 500")
	waitFor(t, func() bool { return len(n.Deliveries()) == 2 }, "delivery log incomplete")

	last := n.Deliveries()[1]
	if last.StatusCode != http.StatusOK || last.Attempt != 2 {
		t.Errorf("unexpected final delivery: %+v", last)
	}
}

func TestUpdatedGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond})
	n.Updated()

	waitFor(t, func() bool { return len(n.Deliveries()) == 2 }, "expected exactly the bounded attempts")
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestEmptyURLDropsEvents(t *testing.T) {
	n := New(Config{})
	n.Updated()

	time.Sleep(20 * time.Millisecond)
	if got := len(n.Deliveries()); got != 0 {
		t.Errorf("expected no deliveries without a URL, got %d", got)
	}
}
