// Package analyze fetches a container's JavaScript payload and derives
// a structured record from it: domains, URLs, tracking identifiers,
// detected services, custom markup, data-layer variables, flagged
// strings, and the payload version.
//
// Every extraction rule runs over the same fetched payload and is
// independent of the others; no rule short-circuits another.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
)

// Status of a container after analysis.
type Status string

const (
	StatusActive   Status = "active"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Record is the immutable result of analyzing one container. A re-fetch
// produces a new Record rather than mutating an old one.
type Record struct {
	ID          string                  `json:"id"`
	Status      Status                  `json:"status"`
	Error       string                  `json:"error,omitempty"`
	PayloadSize int                     `json:"payload_size"`
	Domains     []string                `json:"domains,omitempty"`
	URLs        []string                `json:"urls,omitempty"`
	Scripts     []string                `json:"scripts,omitempty"`
	Pixels      []string                `json:"pixels,omitempty"`
	TrackingIDs map[gtmid.Kind][]string `json:"tracking_ids,omitempty"`
	Services    []string                `json:"services,omitempty"`
	CustomHTML  int                     `json:"custom_html_tags"`
	DataLayer   []string                `json:"data_layer_vars,omitempty"`
	Interesting []string                `json:"interesting_strings,omitempty"`
	Version     string                  `json:"version,omitempty"`
	FetchedAt   time.Time               `json:"fetched_at"`
}

// LinkedContainers returns the container ids referenced by this record's
// payload, excluding its own.
func (r *Record) LinkedContainers() []string {
	return r.TrackingIDs[gtmid.KindContainer]
}

// Config configures the Analyzer.
type Config struct {
	// BaseURL of the container CDN. Default: https://www.googletagmanager.com.
	BaseURL string
	Fetcher *fetch.Fetcher
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.googletagmanager.com"
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.New(fetch.Config{})
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Analyzer fetches and dissects container payloads.
type Analyzer struct {
	config Config
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	cfg.defaults()
	return &Analyzer{config: cfg}
}

// Analyze fetches the payload for id and extracts its record. Fetch
// failures are captured in the record's status, not returned; the error
// is non-nil only when the context is done.
func (a *Analyzer) Analyze(ctx context.Context, id string) (*Record, error) {
	log := a.config.Logger.With("container_id", id)
	rec := &Record{ID: id, FetchedAt: time.Now().UTC()}

	url := fmt.Sprintf("%s/gtm.js?id=%s", a.config.BaseURL, id)
	start := time.Now()
	res, err := a.config.Fetcher.Get(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, fetch.ErrNotFound) {
			rec.Status = StatusNotFound
			log.Debug("analyze: container not found")
			return rec, nil
		}
		rec.Status = StatusError
		rec.Error = err.Error()
		log.Warn("analyze: fetch failed", "error", err)
		return rec, nil
	}

	payload := string(res.Body)
	rec.Status = StatusActive
	rec.PayloadSize = len(payload)

	rec.Domains = extractDomains(payload)
	rec.URLs, rec.Scripts, rec.Pixels = extractURLs(payload)
	rec.TrackingIDs = extractTracking(payload, id)
	rec.Services = matchServices(payload)
	rec.CustomHTML = countCustomHTML(payload)
	rec.DataLayer = extractDataLayerVars(payload)
	rec.Interesting = extractInteresting(payload)
	rec.Version = extractVersion(payload)

	log.Info("analyze: processed",
		"size", rec.PayloadSize,
		"domains", len(rec.Domains),
		"services", len(rec.Services),
		"linked", len(rec.LinkedContainers()),
		"duration_ms", time.Since(start).Milliseconds())
	return rec, nil
}

// extractTracking collects every tracking-id kind, dropping the record's
// own id from the container kind so traversal never re-enqueues self.
func extractTracking(payload, ownID string) map[gtmid.Kind][]string {
	all := gtmid.ExtractAll(payload)
	if ids, ok := all[gtmid.KindContainer]; ok {
		kept := ids[:0]
		for _, id := range ids {
			if id != ownID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(all, gtmid.KindContainer)
		} else {
			all[gtmid.KindContainer] = kept
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'\\<>)(]+`)

func extractURLs(payload string) (urls, scripts, pixels []string) {
	seen := map[string]struct{}{}
	for _, u := range urlPattern.FindAllString(payload, -1) {
		u = strings.TrimRight(u, ".,;")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)

		path := u
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		switch {
		case strings.HasSuffix(path, ".js"):
			scripts = append(scripts, u)
		case strings.HasSuffix(path, ".gif"),
			strings.HasSuffix(path, ".png"),
			strings.HasSuffix(path, "/tr"),
			strings.Contains(path, "/collect"),
			strings.Contains(path, "/pixel"),
			strings.Contains(path, "/track"):
			pixels = append(pixels, u)
		}
	}
	sort.Strings(urls)
	sort.Strings(scripts)
	sort.Strings(pixels)
	return urls, scripts, pixels
}

// Custom HTML tags are injection points; count them, capped because some
// containers carry hundreds of templated blocks.
const maxCustomHTML = 20

var customHTMLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"tag"\s*:\s*"html"`),
	regexp.MustCompile(`"function"\s*:\s*"__html"`),
	regexp.MustCompile(`"vtp_html"\s*:\s*"`),
}

func countCustomHTML(payload string) int {
	n := 0
	for _, p := range customHTMLPatterns {
		n += len(p.FindAllStringIndex(payload, -1))
		if n >= maxCustomHTML {
			return maxCustomHTML
		}
	}
	return n
}

var dataLayerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"vtp_name"\s*:\s*"([^"]{1,64})"`),
	regexp.MustCompile(`dataLayer\s*\[\s*"([^"]{1,64})"`),
}

func extractDataLayerVars(payload string) []string {
	seen := map[string]struct{}{}
	for _, p := range dataLayerPatterns {
		for _, m := range p.FindAllStringSubmatch(payload, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var versionPattern = regexp.MustCompile(`"version"\s*:\s*"(\d+)"`)

func extractVersion(payload string) string {
	if m := versionPattern.FindStringSubmatch(payload); m != nil {
		return m[1]
	}
	return ""
}
