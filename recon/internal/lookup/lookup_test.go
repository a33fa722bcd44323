package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

type fakeSource struct {
	name    string
	domains []string
	err     error
	delay   time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(ctx context.Context, id string) ([]string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.domains, f.err
}

func TestMergeDeduplicatesByDomain(t *testing.T) {
	// WHAT: Two sources reporting the same domain yield one entry.
	// WHY: Entries are unique per (container, domain) regardless of source.
	a := New(Config{Sources: []Source{
		&fakeSource{name: "fast", domains: []string{"victim.example", "only-fast.example"}},
		&fakeSource{name: "slow", domains: []string{"victim.example", "only-slow.example"}, delay: 50 * time.Millisecond},
	}})

	entries, err := a.Lookup(context.Background(), "GTM-ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(entries))
	}
	count := 0
	for _, e := range entries {
		if e.Domain == "victim.example" {
			count++
			// The forced latency gap pins the attribution here.
			if e.Source != "fast" {
				t.Errorf("victim.example attributed to %q, want fast", e.Source)
			}
		}
	}
	if count != 1 {
		t.Fatalf("victim.example appears %d times, want 1", count)
	}
}

func TestSourceFailureIsolated(t *testing.T) {
	// WHAT: One failing source does not abort the others.
	a := New(Config{Sources: []Source{
		&fakeSource{name: "broken", err: fmt.Errorf("%w: down", fetch.ErrUnavailable)},
		&fakeSource{name: "ok", domains: []string{"victim.example"}},
	}})

	entries, err := a.Lookup(context.Background(), "GTM-ABC123")
	if err != nil {
		t.Fatalf("transient failure should not surface: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != "ok" {
		t.Fatalf("entries: got %+v", entries)
	}
}

func TestAuthExpirySurfacedWithResults(t *testing.T) {
	// WHAT: Expired credentials surface distinctly, alongside the
	// entries the other sources produced.
	// WHY: The caller prompts for renewal instead of assuming absence.
	a := New(Config{Sources: []Source{
		&fakeSource{name: "authed", err: fmt.Errorf("%w", fetch.ErrAuthExpired)},
		&fakeSource{name: "open", domains: []string{"victim.example"}},
	}})

	entries, err := a.Lookup(context.Background(), "GTM-ABC123")
	if !errors.Is(err, fetch.ErrAuthExpired) {
		t.Fatalf("got %v, want ErrAuthExpired", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries alongside auth error: got %d, want 1", len(entries))
	}
}

func TestPerSourceTimeout(t *testing.T) {
	// WHAT: A hung source times out alone; siblings still report.
	a := New(Config{
		PerSourceTimeout: 20 * time.Millisecond,
		Sources: []Source{
			&fakeSource{name: "hung", domains: []string{"never.example"}, delay: time.Second},
			&fakeSource{name: "ok", domains: []string{"victim.example"}},
		},
	})

	start := time.Now()
	entries, err := a.Lookup(context.Background(), "GTM-ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("aggregator waited past the per-source timeout")
	}
	if len(entries) != 1 || entries[0].Domain != "victim.example" {
		t.Fatalf("entries: got %+v", entries)
	}
}

func TestNormalizeDomainFilters(t *testing.T) {
	cases := map[string]string{
		"www.Victim.Example": "victim.example",
		"google.com":         "",
		"builtwith.com":      "",
		"not a domain":       "",
		"nodots":             "",
	}
	for in, want := range cases {
		if got := normalizeDomain(in); got != want {
			t.Errorf("normalizeDomain(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestWaybackSource(t *testing.T) {
	// WHAT: CDX rows become hosts, header row skipped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[["original"],["https://shop.example/checkout"],["https://blog.example/post"]]`))
	}))
	defer srv.Close()

	s := &Wayback{Base: srv.URL, Fetcher: fetch.New(fetch.Config{PerHostRate: 1000, RetryBase: time.Millisecond})}
	domains, err := s.Lookup(context.Background(), "GTM-ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(domains) != 2 || domains[0] != "shop.example" {
		t.Fatalf("domains: got %v", domains)
	}
}

func TestBuiltWithFallsBackToTrends(t *testing.T) {
	// WHAT: A rejected session falls back to the public trends page.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/relationships/tag/GTM-ABC123" {
			w.WriteHeader(403)
			return
		}
		w.Write([]byte(`<table><tr><td><a href="/x">victim.example</a></td></tr></table>`))
	}))
	defer srv.Close()

	s := &BuiltWith{
		Base:    srv.URL,
		Cookies: "bw=stale",
		Fetcher: fetch.New(fetch.Config{MaxAttempts: 1, PerHostRate: 1000, RetryBase: time.Millisecond}),
	}
	domains, err := s.Lookup(context.Background(), "GTM-ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(domains) != 1 || domains[0] != "victim.example" {
		t.Fatalf("domains: got %v", domains)
	}
}
