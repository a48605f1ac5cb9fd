package datamall_test

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/source/datamall"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestFetchTwoStageZipDiscovery(t *testing.T) {
	zipBytes := buildZip(t, map[string]string{"a.csv": "1,2,3", "b.csv": "4,5,6"})

	mux := http.NewServeMux()
	mux.HandleFunc("/discover", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Link":"/download/bundle.zip"}`))
	})
	mux.HandleFunc("/download/bundle.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := datamall.New(map[string]any{
		"endpoint":       srv.URL,
		"discovery_path": "/discover",
	})
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
	// 1 discovery record + 2 zip entries
	if len(records) != 3 {
		t.Fatalf("expected 3 records (discovery + 2 entries), got %d", len(records))
	}
	if records[0].Meta.Meta["stage"] != "discovery" {
		t.Fatalf("expected first record to be the discovery stage")
	}
}

func TestFetchNonZipDownloadEmitsSingleRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/discover", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Link":"/download/data.json"}`))
	})
	mux.HandleFunc("/download/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := datamall.New(map[string]any{"endpoint": srv.URL, "discovery_path": "/discover"})
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
	if len(records) != 2 {
		t.Fatalf("expected 2 records (discovery + download), got %d", len(records))
	}
}
