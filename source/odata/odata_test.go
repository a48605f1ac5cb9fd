package odata_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/source/odata"
)

func TestFetchThreePages(t *testing.T) {
	pageSize := 2
	total := 5 // 3 pages: 2, 2, 1 (last page shorter than pageSize terminates)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := 0
		fmt.Sscanf(r.URL.Query().Get("$skip"), "%d", &skip)
		remaining := total - skip
		if remaining < 0 {
			remaining = 0
		}
		n := remaining
		if n > pageSize {
			n = pageSize
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[` + rep("{}", n) + `]}`))
	}))
	defer srv.Close()

	src, err := odata.New(map[string]any{
		"endpoint":  srv.URL,
		"path":      "/records",
		"page_size": pageSize,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := src.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var records []cache.RawCacheRecord
	err = src.Fetch(func(r cache.RawCacheRecord) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(records))
	}
}

func rep(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
