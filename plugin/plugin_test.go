package plugin

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestLoadExactlyOncePerName(t *testing.T) {
	reset()
	var calls int32
	Provide("demo.widget", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := Load([]string{"demo.widget"}); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 registration call, got %d", calls)
	}
}

func TestLoadConcurrentCallersShareOneRun(t *testing.T) {
	reset()
	var calls int32
	Provide("demo.concurrent", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Load([]string{"demo.concurrent"})
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("expected exactly 1 registration call under concurrent load, got %d", calls)
	}
}

func TestLoadUnknownNameFails(t *testing.T) {
	reset()
	if err := Load([]string{"does.not.exist"}); err == nil {
		t.Fatalf("expected error loading unknown plugin name")
	}
}

func TestLoadCaseAndWhitespaceNormalized(t *testing.T) {
	reset()
	var calls int32
	Provide("demo.widget", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err := Load([]string{"  Demo.Widget  "}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected normalized name to resolve to the same provider, got %d calls", calls)
	}
}
