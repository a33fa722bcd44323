// Package recon orchestrates the container discovery pipeline: source
// adapters emit raw items, the extractor turns them into candidate
// identifiers, history filters to unseen ones, the analyzer and the
// traversal engine produce records, the reverse-lookup aggregator
// enriches them, and the result documents are written out.
package recon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/notify"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/history"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/lookup"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/report"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/source"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/traverse"
)

// HistoryFile is the persisted history document name inside OutputDir.
const HistoryFile = "gtm_history.json"

// Refresher renews the credentials behind a named source after an
// auth-expired signal. The pipeline retries that source once.
type Refresher interface {
	Refresh(ctx context.Context, sourceName string) error
}

// Result summarizes one completed run.
type Result struct {
	Document       *report.Document
	ReportPath     string
	NewItems       int
	NewContainers  int
	DomainsFound   int
	SkippedSources []string
}

// Service runs the pipeline. Construct with New; zero value is not
// usable.
type Service struct {
	config     Config
	fetcher    *fetch.Fetcher
	adapters   []source.Adapter
	analyzer   traverse.AnalyzeFunc
	aggregator *lookup.Aggregator
	refresher  Refresher
	notifier   notify.Notifier
	hist       *history.Store
}

// Option customizes a Service, mainly for tests.
type Option func(*Service)

// WithAdapters replaces the adapters derived from the Config.
func WithAdapters(adapters ...source.Adapter) Option {
	return func(s *Service) { s.adapters = adapters }
}

// WithAnalyzeFunc replaces the container analyzer.
func WithAnalyzeFunc(fn traverse.AnalyzeFunc) Option {
	return func(s *Service) { s.analyzer = fn }
}

// WithLookupSources replaces the reverse-lookup source set.
func WithLookupSources(sources ...lookup.Source) Option {
	return func(s *Service) {
		s.aggregator = lookup.New(lookup.Config{Sources: sources, Logger: s.config.Logger})
	}
}

// WithRefresher installs the credential-renewal collaborator.
func WithRefresher(r Refresher) Option {
	return func(s *Service) { s.refresher = r }
}

// WithNotifier installs the post-run notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithHistory replaces the history store (e.g. a custom path).
func WithHistory(h *history.Store) Option {
	return func(s *Service) { s.hist = h }
}

// New builds a Service from the resolved configuration.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		config:  cfg,
		fetcher: fetch.New(fetch.Config{Logger: cfg.Logger}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adapters == nil {
		s.adapters = buildAdapters(cfg, s.fetcher)
	}
	if s.analyzer == nil {
		a := analyze.New(analyze.Config{Fetcher: s.fetcher, Logger: cfg.Logger})
		s.analyzer = a.Analyze
	}
	if s.aggregator == nil {
		s.aggregator = lookup.New(lookup.Config{
			Sources: buildLookupSources(cfg, s.fetcher),
			Logger:  cfg.Logger,
		})
	}
	if s.notifier == nil {
		s.notifier = notify.Log(cfg.Logger)
	}
	if s.hist == nil {
		s.hist = history.Open(filepath.Join(cfg.OutputDir, HistoryFile), cfg.Logger)
	}
	return s, nil
}

// ClearHistory resets the persisted history, forcing a full re-scan.
func (s *Service) ClearHistory() error {
	return s.hist.Clear()
}

// History exposes the underlying store to status surfaces.
func (s *Service) History() *history.Store {
	return s.hist
}

// Run executes the pipeline once. Per-source and per-container failures
// are contained; only configuration and store-level I/O errors abort.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	log := s.config.Logger
	started := time.Now().UTC()
	res := &Result{}

	// Collect, retrying once per source after a credential refresh.
	var items []source.RawItem
	for _, adapter := range s.adapters {
		collected, err := s.collect(ctx, adapter)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("recon: source skipped", "source", adapter.Name(), "error", err)
			res.SkippedSources = append(res.SkippedSources, adapter.Name())
			continue
		}
		items = append(items, collected...)
	}
	log.Info("recon: collected", "items", len(items), "skipped_sources", len(res.SkippedSources))

	// History gates: unseen items only, then unseen container ids.
	var fresh []source.RawItem
	idset := map[string]struct{}{}
	for _, item := range items {
		if !s.hist.IsNew(history.KindPost, item.ID) {
			continue
		}
		fresh = append(fresh, item)
		for _, id := range gtmid.ExtractContainers(item.Text) {
			idset[id] = struct{}{}
		}
	}
	var roots []string
	for id := range idset {
		if s.hist.IsNew(history.KindContainer, id) {
			roots = append(roots, id)
		}
	}
	res.NewItems = len(fresh)
	log.Info("recon: extracted", "new_items", len(fresh), "new_containers", len(roots))

	// Analyze, expanding linked containers when deep mode is on.
	depth := 0
	if s.config.Deep {
		depth = s.config.MaxDepth
	}
	engine := traverse.New(traverse.Config{
		Analyze:  s.analyzer,
		MaxDepth: depth,
		Workers:  s.config.Workers,
		Logger:   log,
	})
	records, err := engine.Run(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("traverse: %w", err)
	}

	containers := make([]report.Container, 0, len(records))
	for _, rec := range records {
		c := report.Container{Record: rec}
		if s.config.Lookup && rec.Status == analyze.StatusActive {
			entries, lerr := s.aggregator.Lookup(ctx, rec.ID)
			if lerr != nil {
				log.Warn("recon: lookup credentials expired", "container_id", rec.ID, "error", lerr)
			}
			c.Lookups = entries
		}
		containers = append(containers, c)
	}

	// Persist: mark consumed inputs and analyzed containers as seen,
	// write the result documents, then replace history atomically.
	for _, item := range fresh {
		s.hist.MarkSeen(history.KindPost, item.ID)
	}
	for _, c := range containers {
		s.hist.MarkSeen(history.KindContainer, c.ID)
	}

	doc := report.Build(fresh, containers)
	writer := &report.Writer{Dir: s.config.OutputDir}
	path, err := writer.Write(doc)
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	res.Document = doc
	res.ReportPath = path
	res.NewContainers = len(containers)
	res.DomainsFound = len(doc.DomainMap)

	s.hist.AppendRun(history.RunLog{
		StartedAt:     started,
		Items:         res.NewItems,
		NewContainers: res.NewContainers,
		DomainsFound:  res.DomainsFound,
	})
	if err := s.hist.Persist(); err != nil {
		return nil, fmt.Errorf("persist history: %w", err)
	}

	if err := s.notifier.Notify(ctx, notify.Summary{
		ScanID:     doc.ScanID,
		When:       doc.ScanDate,
		Containers: res.NewContainers,
		Domains:    res.DomainsFound,
		ReportPath: path,
	}); err != nil {
		log.Warn("recon: notification failed", "error", err)
	}

	log.Info("recon: run complete",
		"containers", res.NewContainers,
		"domains", res.DomainsFound,
		"report", path,
		"duration_ms", time.Since(started).Milliseconds())
	return res, nil
}

func (s *Service) collect(ctx context.Context, adapter source.Adapter) ([]source.RawItem, error) {
	items, err := adapter.Collect(ctx)
	if err == nil || !errors.Is(err, ErrAuthExpired) || s.refresher == nil {
		return items, err
	}
	if rerr := s.refresher.Refresh(ctx, adapter.Name()); rerr != nil {
		return nil, fmt.Errorf("refresh %s: %w (after %w)", adapter.Name(), rerr, err)
	}
	return adapter.Collect(ctx)
}

func buildAdapters(cfg Config, f *fetch.Fetcher) []source.Adapter {
	xcfg := source.XConfig{
		AuthHeaders: cfg.XAuthHeaders,
		Fetcher:     f,
		Logger:      cfg.Logger,
	}
	var adapters []source.Adapter
	if cfg.User != "" {
		adapters = append(adapters, source.NewTimeline(cfg.User, xcfg))
	}
	if cfg.Query != "" {
		adapters = append(adapters, source.NewSearch(cfg.Query, xcfg))
	}
	if len(cfg.IDs) > 0 {
		adapters = append(adapters, &source.IDList{IDs: cfg.IDs})
	}
	if cfg.FilePath != "" {
		adapters = append(adapters, &source.File{Path: cfg.FilePath})
	}
	if cfg.PostsFile != "" {
		adapters = append(adapters, &source.PostsFile{Path: cfg.PostsFile})
	}
	if len(cfg.URLs) > 0 {
		adapters = append(adapters, &source.URLScan{URLs: cfg.URLs, Fetcher: f, Logger: cfg.Logger})
	}
	if cfg.FofaQuery != "" {
		adapters = append(adapters, source.NewFofa(cfg.FofaQuery, source.FofaConfig{
			Key:     cfg.FofaKey,
			Fetcher: f,
			Logger:  cfg.Logger,
		}))
	}
	return adapters
}

func buildLookupSources(cfg Config, f *fetch.Fetcher) []lookup.Source {
	return []lookup.Source{
		&lookup.BuiltWith{Cookies: cfg.BuiltWithCookies, Fetcher: f},
		&lookup.PublicWWW{Fetcher: f},
		&lookup.SpyOnWeb{Fetcher: f},
		&lookup.Wayback{Fetcher: f},
		&lookup.DuckDuckGo{Fetcher: f},
		&lookup.WebSearch{Fetcher: f},
		&lookup.Fofa{Key: cfg.FofaKey, Fetcher: f},
	}
}
