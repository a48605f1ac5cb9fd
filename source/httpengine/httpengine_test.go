package httpengine_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sgtransit/ingest/source/httpengine"
)

func TestDoRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	eng, err := httpengine.New(httpengine.Config{
		Endpoints:   []string{srv.URL},
		MaxRetries:  5,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := eng.Do(httpengine.Request{Method: "GET", Path: "/"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoExhaustsRetriesAndFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng, err := httpengine.New(httpengine.Config{
		Endpoints:   []string{srv.URL},
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := eng.Do(httpengine.Request{Method: "GET", Path: "/"}); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
	if calls != 3 { // max_retries + 1 attempts
		t.Fatalf("expected exactly max_retries+1=3 attempts, got %d", calls)
	}
}

func TestEncodingForContentType(t *testing.T) {
	cases := map[string]string{
		"application/json":            "utf-8",
		"application/json; charset=utf-16": "utf-16",
		"text/csv":                    "utf-8",
		"application/octet-stream":    httpengine.BinaryEncoding,
		"image/png":                   httpengine.BinaryEncoding,
	}
	for ct, want := range cases {
		if got := httpengine.EncodingForContentType(ct); got != want {
			t.Errorf("EncodingForContentType(%q) = %q, want %q", ct, got, want)
		}
	}
}
