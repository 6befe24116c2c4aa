package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jwulff/ragscope/internal/protocol"
)

type recordingHandler struct {
	mu     sync.Mutex
	states []State
	opened int
	events []protocol.Event
}

func (h *recordingHandler) ConnectionChanged(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, s)
}

func (h *recordingHandler) Opened() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
}

func (h *recordingHandler) Event(ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) snapshot() ([]State, int, []protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...), h.opened, append([]protocol.Event(nil), h.events...)
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		fmt.Fprint(w, f)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := New(Config{URL: srv.URL, Delay: time.Millisecond}, h)

	err := c.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if got := dials.Load(); got != 6 {
		t.Errorf("dials = %d, want 6 (initial + 5 retries)", got)
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want failed", c.State())
	}
	if c.Attempts() != DefaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", c.Attempts(), DefaultMaxAttempts)
	}

	states, opened, _ := h.snapshot()
	if opened != 0 {
		t.Errorf("opened = %d, want 0", opened)
	}
	if states[len(states)-1] != StateFailed {
		t.Errorf("last state = %v, want failed", states[len(states)-1])
	}
	var reconnecting int
	for _, s := range states {
		if s == StateReconnecting {
			reconnecting++
		}
	}
	if reconnecting != DefaultMaxAttempts {
		t.Errorf("reconnecting transitions = %d, want %d", reconnecting, DefaultMaxAttempts)
	}
}

func TestClientResetsAttemptsOnOpen(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		if n == 4 {
			writeSSE(w, "event: ping\ndata: {}\n\n")
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := New(Config{URL: srv.URL, Delay: time.Millisecond}, h)

	if err := c.Run(context.Background()); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	// 3 failures, one open, then a fresh budget of 5 retries.
	if got := dials.Load(); got != 9 {
		t.Errorf("dials = %d, want 9", got)
	}
	_, opened, events := h.snapshot()
	if opened != 1 {
		t.Errorf("opened = %d, want 1", opened)
	}
	if len(events) != 1 || events[0].Kind != protocol.KindPing {
		t.Errorf("events = %+v, want one ping", events)
	}
}

func TestClientSkipsMalformedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			"event: new_query\ndata: {\"query\":\"q\"}\n\n",
			"event: embedding_complete\ndata: {not json\n\n",
			": keep-alive comment\n\n",
			"event: mystery\ndata: {}\n\n",
			"id: 7\nevent: embedding_complete\ndata: {\"vector_size\":768,\"time_ms\":45}\n\n",
		)
		<-r.Context().Done()
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := New(Config{URL: srv.URL, Delay: time.Millisecond}, h)
	c.Start(context.Background())
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, _, events := h.snapshot()
		if len(events) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d events before timeout, want 2", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, _, events := h.snapshot()
	if events[0].Kind != protocol.KindNewQuery || events[0].Payload.Query != "q" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != protocol.KindEmbeddingComplete || events[1].ID != "7" {
		t.Errorf("events[1] = %+v", events[1])
	}
	if got := protocol.Int(events[1].Payload.VectorSize); got != 768 {
		t.Errorf("vector_size = %d, want 768", got)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want connected", c.State())
	}
}

func TestClientCloseCancelsPendingRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := New(Config{URL: srv.URL, Delay: time.Hour}, h)
	c.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateReconnecting {
		if time.Now().After(deadline) {
			t.Fatalf("never reached reconnecting, state = %v", c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the pending retry")
	}
	if err := c.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil after Close", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}

func TestStartReplacesPreviousRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "event: ping\ndata: {}\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := New(Config{URL: srv.URL, Delay: time.Millisecond}, h)
	for i := 0; i < 3; i++ {
		c.Start(context.Background())
		deadline := time.Now().Add(2 * time.Second)
		for {
			_, opened, _ := h.snapshot()
			if opened == i+1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("run %d never connected", i)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	c.Close()

	states, opened, _ := h.snapshot()
	if opened != 3 {
		t.Errorf("opened = %d, want 3", opened)
	}
	// Each replaced run ends disconnected before the next one connects.
	var connected, disconnected int
	for _, s := range states {
		switch s {
		case StateConnected:
			connected++
		case StateDisconnected:
			disconnected++
		}
	}
	if connected != 3 || disconnected != 3 {
		t.Errorf("connected = %d, disconnected = %d, want 3 and 3", connected, disconnected)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateDisconnected, "disconnected"},
		{StateReconnecting, "reconnecting"},
		{StateFailed, "failed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
