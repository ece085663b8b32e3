package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestDoWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	fastRetries(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := doWithRetry(context.Background(), srv.Client(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())

	var re *retryableError
	if !errors.As(err, &re) || re.statusCode != http.StatusTooManyRequests {
		t.Fatalf("expected retryable 429, got %v", err)
	}
	if hits.Load() != maxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, hits.Load())
	}
}

func TestDoWithRetry_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, err := doWithRetry(ctx, srv.Client(), func() (*http.Request, error) {
		calls++
		cancel()
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	}, testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
