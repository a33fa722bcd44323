package traverse

import (
	"context"
	"sync"
	"testing"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
)

// fakeAnalyzer serves canned records and counts calls per id.
type fakeAnalyzer struct {
	mu    sync.Mutex
	links map[string][]string // id -> linked container ids
	calls map[string]int
}

func newFakeAnalyzer(links map[string][]string) *fakeAnalyzer {
	return &fakeAnalyzer{links: links, calls: map[string]int{}}
}

func (f *fakeAnalyzer) analyze(ctx context.Context, id string) (*analyze.Record, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()
	rec := &analyze.Record{ID: id, Status: analyze.StatusActive}
	if linked := f.links[id]; len(linked) > 0 {
		rec.TrackingIDs = map[gtmid.Kind][]string{gtmid.KindContainer: linked}
	}
	return rec, nil
}

func TestCyclicReferencesTerminate(t *testing.T) {
	// WHAT: A links to B, B links to A; each is analyzed exactly once
	// and the engine terminates.
	// WHY: The visited set is the cycle guard.
	fa := newFakeAnalyzer(map[string][]string{
		"GTM-AAAAAA": {"GTM-BBBBBB"},
		"GTM-BBBBBB": {"GTM-AAAAAA"},
	})
	e := New(Config{Analyze: fa.analyze, MaxDepth: 5, Workers: 2})

	records, err := e.Run(context.Background(), []string{"GTM-AAAAAA"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	for id, n := range fa.calls {
		if n != 1 {
			t.Errorf("%s analyzed %d times, want exactly 1", id, n)
		}
	}
}

func TestDepthBound(t *testing.T) {
	// WHAT: MaxDepth stops expansion even on an endless linked chain.
	fa := newFakeAnalyzer(map[string][]string{
		"GTM-AAAAAA": {"GTM-BBBBBB"},
		"GTM-BBBBBB": {"GTM-CCCCCC"},
		"GTM-CCCCCC": {"GTM-DDDDDD"},
		"GTM-DDDDDD": {"GTM-EEEEEE"},
	})
	e := New(Config{Analyze: fa.analyze, MaxDepth: 2})

	records, err := e.Run(context.Background(), []string{"GTM-AAAAAA"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// depth 0: A, depth 1: B, depth 2: C. D is beyond the bound.
	if len(records) != 3 {
		t.Fatalf("records: got %d, want 3", len(records))
	}
	if n := fa.calls["GTM-DDDDDD"]; n != 0 {
		t.Errorf("container beyond depth bound analyzed %d times", n)
	}
}

func TestRootsOnlyWhenDepthZero(t *testing.T) {
	fa := newFakeAnalyzer(map[string][]string{
		"GTM-AAAAAA": {"GTM-BBBBBB"},
	})
	e := New(Config{Analyze: fa.analyze, MaxDepth: 0})

	records, err := e.Run(context.Background(), []string{"GTM-AAAAAA"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1 (no expansion)", len(records))
	}
}

func TestWaveOrderAndDedupe(t *testing.T) {
	// WHAT: Duplicate and malformed roots are dropped; depth-N records
	// precede depth-N+1 records.
	fa := newFakeAnalyzer(map[string][]string{
		"GTM-AAAAAA": {"GTM-CCCCCC"},
		"GTM-BBBBBB": {"GTM-CCCCCC"},
	})
	e := New(Config{Analyze: fa.analyze, MaxDepth: 3, Workers: 4})

	roots := []string{"GTM-AAAAAA", "GTM-AAAAAA", "not-an-id", "GTM-BBBBBB"}
	records, err := e.Run(context.Background(), roots)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: got %d, want 3", len(records))
	}
	if records[2].ID != "GTM-CCCCCC" {
		t.Errorf("linked container should come after its wave, got %v", records[2].ID)
	}
	if n := fa.calls["GTM-CCCCCC"]; n != 1 {
		t.Errorf("shared link analyzed %d times, want 1", n)
	}
}
