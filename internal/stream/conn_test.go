package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		writeSSE(w,
			"retry: 1000\n: comment\n\n",
			"data: plain\n\n",
			"event: complete\r\ndata: {\"answer\":\r\ndata: \"x\"}\r\n\r\n",
			"event:ping\nid:42\ndata:{}\n\n",
			"event: dangling\n",
		)
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := []Frame{
		{Event: DefaultEventName, Data: "plain"},
		{Event: "complete", Data: "{\"answer\":\n\"x\"}"},
		{Event: "ping", Data: "{}", ID: "42"},
	}
	for i, w := range want {
		got, err := conn.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if got != w {
			t.Errorf("frame %d = %+v, want %+v", i, got, w)
		}
	}

	if _, err := conn.ReadFrame(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("after end of stream err = %v, want ErrConnectionClosed", err)
	}
}

func TestDialRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := Dial(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Dial(context.Background(), nil, url); err == nil {
		t.Fatal("expected error for closed server")
	}
}
