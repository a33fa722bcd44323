package recon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/source"
)

// fakeAdapter serves a fixed item set.
type fakeAdapter struct {
	name  string
	items []source.RawItem
	err   error

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Collect(ctx context.Context) ([]source.RawItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.items, f.err
}

// fakeLookupSource returns a fixed number of synthetic domains per
// container.
type fakeLookupSource struct {
	name   string
	counts map[string]int
}

func (f *fakeLookupSource) Name() string { return f.name }

func (f *fakeLookupSource) Lookup(ctx context.Context, id string) ([]string, error) {
	var domains []string
	for k := 0; k < f.counts[id]; k++ {
		domains = append(domains, fmt.Sprintf("v%d.%s.example", k, id[4:]))
	}
	return domains, nil
}

func fakeAnalyze(links map[string][]string) func(ctx context.Context, id string) (*analyze.Record, error) {
	return func(ctx context.Context, id string) (*analyze.Record, error) {
		rec := &analyze.Record{ID: id, Status: analyze.StatusActive}
		if l := links[id]; len(l) > 0 {
			rec.TrackingIDs = map[gtmid.Kind][]string{gtmid.KindContainer: l}
		}
		return rec, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsEmptyConfig(t *testing.T) {
	// WHAT: No input source selected is a configuration error.
	_, err := New(Config{OutputDir: t.TempDir(), Logger: quietLogger()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	// WHAT: 8 items with 7 distinct ids, none seen; deep mode finds one
	// linked id; reverse lookup merges to 76 unique entries; history
	// ends with 8 seen containers.
	ids := []string{
		"GTM-ID0001", "GTM-ID0002", "GTM-ID0003", "GTM-ID0004",
		"GTM-ID0005", "GTM-ID0006", "GTM-ID0007",
	}
	items := make([]source.RawItem, 0, 8)
	for i, id := range ids {
		items = append(items, source.RawItem{
			ID:   fmt.Sprintf("post:%d", i),
			Text: "leaked container " + id,
		})
	}
	// Eighth item repeats an id already in the set.
	items = append(items, source.RawItem{ID: "post:7", Text: "again GTM-ID0001"})

	counts := map[string]int{
		"GTM-ID0001": 10, "GTM-ID0002": 10, "GTM-ID0003": 10, "GTM-ID0004": 10,
		"GTM-ID0005": 9, "GTM-ID0006": 9, "GTM-ID0007": 9,
		"GTM-LINKED1": 9,
	}

	dir := t.TempDir()
	svc, err := New(
		Config{IDs: []string{"placeholder"}, Deep: true, Lookup: true,
			OutputDir: dir, Logger: quietLogger()},
		WithAdapters(&fakeAdapter{name: "timeline", items: items}),
		WithAnalyzeFunc(fakeAnalyze(map[string][]string{
			"GTM-ID0001": {"GTM-LINKED1"},
		})),
		WithLookupSources(
			&fakeLookupSource{name: "primary", counts: counts},
			// Second source repeats the first domain of every
			// container; the merge must not double-count it.
			&fakeLookupSource{name: "echo", counts: map[string]int{
				"GTM-ID0001": 1, "GTM-ID0002": 1, "GTM-LINKED1": 1,
			}},
		),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.NewItems != 8 {
		t.Errorf("new items: got %d, want 8", res.NewItems)
	}
	if res.NewContainers != 8 {
		t.Errorf("containers: got %d, want 8 (7 roots + 1 linked)", res.NewContainers)
	}
	if got := res.Document.UniqueLookupCount(); got != 76 {
		t.Errorf("unique lookup entries: got %d, want 76", got)
	}
	if svc.History().Count("container") != 8 {
		t.Errorf("seen containers: got %d, want 8", svc.History().Count("container"))
	}

	for _, c := range res.Document.Containers {
		if c.Status != StatusActive {
			t.Errorf("%s: status %s, want active", c.ID, c.Status)
		}
	}
}

func TestIdempotence(t *testing.T) {
	// WHAT: A second run over unchanged inputs processes nothing new.
	// WHY: History gates all downstream work.
	items := []source.RawItem{
		{ID: "post:1", Text: "GTM-ABC123"},
		{ID: "post:2", Text: "GTM-XYZ789"},
	}
	dir := t.TempDir()

	run := func() *Result {
		svc, err := New(
			Config{IDs: []string{"x"}, OutputDir: dir, Logger: quietLogger()},
			WithAdapters(&fakeAdapter{name: "a", items: items}),
			WithAnalyzeFunc(fakeAnalyze(nil)),
		)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		res, err := svc.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res
	}

	first := run()
	if first.NewContainers != 2 {
		t.Fatalf("first run containers: got %d, want 2", first.NewContainers)
	}
	second := run()
	if second.NewContainers != 0 {
		t.Errorf("second run containers: got %d, want 0", second.NewContainers)
	}
	if second.NewItems != 0 {
		t.Errorf("second run items: got %d, want 0", second.NewItems)
	}
}

func TestAuthExpiredTriggersSingleRefresh(t *testing.T) {
	// WHAT: An auth-expired source gets one refresh + retry, not a loop.
	refreshes := 0
	adapter := &fakeAdapter{name: "timeline"}
	adapter.err = fmt.Errorf("%w: session stale", ErrAuthExpired)

	svc, err := New(
		Config{IDs: []string{"x"}, OutputDir: t.TempDir(), Logger: quietLogger()},
		WithAdapters(adapter),
		WithAnalyzeFunc(fakeAnalyze(nil)),
		WithRefresher(refresherFunc(func(ctx context.Context, name string) error {
			refreshes++
			adapter.err = nil // renewal fixes the source
			adapter.items = []source.RawItem{{ID: "post:1", Text: "GTM-ABC123"}}
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes: got %d, want 1", refreshes)
	}
	if res.NewContainers != 1 {
		t.Errorf("containers after refresh: got %d, want 1", res.NewContainers)
	}
	if len(res.SkippedSources) != 0 {
		t.Errorf("skipped: got %v, want none", res.SkippedSources)
	}
}

func TestFailedSourceIsSkippedNotFatal(t *testing.T) {
	svc, err := New(
		Config{IDs: []string{"x"}, OutputDir: t.TempDir(), Logger: quietLogger()},
		WithAdapters(
			&fakeAdapter{name: "broken", err: fmt.Errorf("%w: down", ErrSourceUnavailable)},
			&fakeAdapter{name: "ok", items: []source.RawItem{{ID: "post:1", Text: "GTM-ABC123"}}},
		),
		WithAnalyzeFunc(fakeAnalyze(nil)),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.SkippedSources) != 1 || res.SkippedSources[0] != "broken" {
		t.Errorf("skipped sources: got %v", res.SkippedSources)
	}
	if res.NewContainers != 1 {
		t.Errorf("containers: got %d, want 1", res.NewContainers)
	}
}

type refresherFunc func(ctx context.Context, name string) error

func (f refresherFunc) Refresh(ctx context.Context, name string) error { return f(ctx, name) }
