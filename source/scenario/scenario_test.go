package scenario_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/source/scenario"
)

func TestFetchSingleRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"speed":42}`))
	}))
	defer srv.Close()

	src, err := scenario.New(map[string]any{"endpoint": srv.URL, "path": "/realtime"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var records []cache.RawCacheRecord
	err = src.Fetch(func(r cache.RawCacheRecord) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
}
