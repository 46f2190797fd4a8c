package scraping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
)

func testClient(srvURL string, maxRetries int) *Client {
	return NewClient(ClientOptions{
		BaseURL:      srvURL,
		UserAgent:    "test-agent",
		Timeout:      time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	}, Unlimited(), zerolog.Nop())
}

func TestClientRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := testClient(srv.URL, 3)
	body, err := client.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchPage after retries: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("server called %d times, want 3", calls.Load())
	}
}

func TestClientDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := testClient(srv.URL, 3)
	if _, err := client.FetchPage(context.Background(), srv.URL); err == nil {
		t.Fatal("404 should return an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("server called %d times, want 1 (no retry)", calls.Load())
	}
}

func TestClientExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testClient(srv.URL, 2)
	_, err := client.FetchPage(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("persistent 429 should fail")
	}
	if !errs.IsTransient(err) {
		t.Fatalf("exhausted retries should unwrap to transient, got %v", err)
	}
}

func TestClientSendsDataHeaders(t *testing.T) {
	var gotXHR, gotReferer, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXHR = r.Header.Get("X-Requested-With")
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL, 0)
	if _, err := client.FetchData(context.Background(), srv.URL, "https://example.org/match"); err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if gotXHR != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", gotXHR)
	}
	if gotReferer != "https://example.org/match" {
		t.Errorf("Referer = %q", gotReferer)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestSlotBudgetBlocksWhenFull(t *testing.T) {
	budget := NewSlotBudget(1)

	release, err := budget.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := budget.Acquire(ctx); err == nil {
		t.Fatal("second acquire should block until cancellation")
	}

	release()
	release2, err := budget.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}
