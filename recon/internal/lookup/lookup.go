// Package lookup cross-references a container identifier against
// independent external indexes and merges the domains they report.
//
// Per-source queries for one container run concurrently and are joined
// all-settled; a slow or failing source never aborts its siblings.
// Merged entries are deduplicated by domain, first completion winning
// the attribution. That makes attribution nondeterministic between
// sources of comparable latency, which is accepted.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

// Entry attributes one victim domain to the source that reported it
// first.
type Entry struct {
	Domain string `json:"domain"`
	Source string `json:"source"`
}

// Source is one external reverse-lookup index.
type Source interface {
	Name() string
	Lookup(ctx context.Context, containerID string) ([]string, error)
}

// Config configures the Aggregator.
type Config struct {
	Sources          []Source
	PerSourceTimeout time.Duration // default: 30s
	Logger           *slog.Logger
}

func (c *Config) defaults() {
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Aggregator fans a container id out to every source and merges the
// results.
type Aggregator struct {
	config Config
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	cfg.defaults()
	return &Aggregator{config: cfg}
}

// Lookup queries every source concurrently and returns the merged,
// domain-deduplicated entries sorted by domain. The error is non-nil
// only when a source reported expired credentials; entries from the
// remaining sources are still returned alongside it.
func (a *Aggregator) Lookup(ctx context.Context, containerID string) ([]Entry, error) {
	type settled struct {
		source  string
		domains []string
		err     error
	}

	results := make(chan settled, len(a.config.Sources))
	for _, src := range a.config.Sources {
		go func(src Source) {
			sctx, cancel := context.WithTimeout(ctx, a.config.PerSourceTimeout)
			defer cancel()
			domains, err := src.Lookup(sctx, containerID)
			results <- settled{source: src.Name(), domains: domains, err: err}
		}(src)
	}

	// Single owner merges; workers only send.
	byDomain := map[string]string{}
	var authErrs []error
	for range a.config.Sources {
		r := <-results
		if r.err != nil {
			if errors.Is(r.err, fetch.ErrAuthExpired) {
				authErrs = append(authErrs, fmt.Errorf("%s: %w", r.source, r.err))
			}
			a.config.Logger.Warn("lookup: source failed",
				"source", r.source, "container_id", containerID, "error", r.err)
			continue
		}
		kept := 0
		for _, d := range r.domains {
			d = normalizeDomain(d)
			if d == "" {
				continue
			}
			if _, dup := byDomain[d]; dup {
				continue
			}
			byDomain[d] = r.source
			kept++
		}
		a.config.Logger.Debug("lookup: source settled",
			"source", r.source, "container_id", containerID, "new_domains", kept)
	}

	entries := make([]Entry, 0, len(byDomain))
	for d, src := range byDomain {
		entries = append(entries, Entry{Domain: d, Source: src})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Domain < entries[j].Domain })
	return entries, errors.Join(authErrs...)
}

// skipDomains are the lookup engines themselves and tag-management
// infrastructure; reporting them as victims is noise.
var skipDomains = map[string]struct{}{
	"google.com":           {},
	"bing.com":             {},
	"duckduckgo.com":       {},
	"yahoo.com":            {},
	"yandex.ru":            {},
	"baidu.com":            {},
	"archive.org":          {},
	"builtwith.com":        {},
	"publicwww.com":        {},
	"spyonweb.com":         {},
	"fofa.info":            {},
	"googletagmanager.com": {},
	"google-analytics.com": {},
	"x.com":                {},
	"twitter.com":          {},
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "www.")
	if d == "" || !strings.Contains(d, ".") || strings.ContainsAny(d, " /:") {
		return ""
	}
	if _, skip := skipDomains[d]; skip {
		return ""
	}
	return d
}

// hostOf extracts a normalized host from a link found on a results page.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return normalizeDomain(u.Hostname())
}
