package intervention

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testRecord() *Record {
	return &Record{
		ID:            "alert_1",
		TransactionID: "txn_1",
		UserID:        "u1",
		Alert:         true,
		Rationale:     "gambling transaction detected",
		Confidence:    0.9,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestNotifySignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-BetGuard-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "topsecret", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testRecord()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	want := Sign(gotBody, "topsecret")
	if !hmac.Equal([]byte(gotSig), []byte(want)) {
		t.Errorf("signature mismatch: got %s want %s", gotSig, want)
	}

	var r Record
	if err := json.Unmarshal(gotBody, &r); err != nil {
		t.Fatalf("delivered payload not JSON: %v", err)
	}
	if r.ID != "alert_1" || !r.Alert {
		t.Errorf("unexpected payload: %+v", r)
	}
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testRecord()); err != nil {
		t.Fatalf("notify should succeed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error for rejected payload")
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestNotifyBreakerOpensAfterSustainedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = n.Notify(ctx, testRecord())
	}

	srv.Close()
	// Circuit is open: the call fails fast without reaching the network.
	start := time.Now()
	err := n.Notify(ctx, testRecord())
	if err == nil {
		t.Fatal("expected breaker-open error")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("open breaker should fail fast, not retry with backoff")
	}
}

func TestNotifyDisabledWithoutURL(t *testing.T) {
	n := NewNotifier("", "s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testRecord()); err != nil {
		t.Errorf("disabled notifier should no-op, got %v", err)
	}
}
