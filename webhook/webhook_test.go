package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliverSignsBody(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := &Event{Type: EventCompleted, SessionID: "s1", Keyword: "fridge magnets", Timestamp: 1, Data: map[string]int{"products": 4}}
	if err := NewSender(srv.Client()).Deliver(context.Background(), srv.URL, "topsecret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if want := Sign(gotBody, "topsecret"); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != EventCompleted || decoded.SessionID != "s1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDeliverUnsignedAndFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature without secret")
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewSender(srv.Client()).Deliver(context.Background(), srv.URL, "", &Event{Type: EventCompleted})
	if err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestDeliverAsyncRetries(t *testing.T) {
	calls := make(chan struct{}, 4)
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.Client())
	s.delays = []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond}
	s.DeliverAsync(srv.URL, "", &Event{Type: EventCompleted})

	deadline := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-deadline:
			t.Fatalf("got %d deliveries, want 2", i)
		}
	}
}
