// Package traverse expands the analysis queue by following linked
// container identifiers discovered inside analyzed payloads.
//
// Termination is guaranteed by a visited set (an identifier is analyzed
// at most once, so reference cycles cannot loop) and a depth bound from
// the traversal roots.
package traverse

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
)

// AnalyzeFunc analyzes one container. It is the only dependency of the
// engine, so tests inject fakes.
type AnalyzeFunc func(ctx context.Context, id string) (*analyze.Record, error)

// Config configures the engine.
type Config struct {
	Analyze  AnalyzeFunc
	MaxDepth int // 0 analyzes roots only. Default when Deep: 3.
	Workers  int // concurrent in-flight analyses. Default: 10.
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine drives the bounded breadth-first expansion.
type Engine struct {
	config Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{config: cfg}
}

// Run analyzes every root and, wave by wave, the linked containers their
// records surface, until the queue drains or the depth bound is hit.
// Records are returned in discovery order: all of depth N before any of
// depth N+1. A container is fully analyzed before its links are
// considered for enqueue; an already-visited identifier is never
// re-enqueued.
func (e *Engine) Run(ctx context.Context, roots []string) ([]*analyze.Record, error) {
	visited := map[string]struct{}{}
	var wave []string
	for _, id := range roots {
		if _, dup := visited[id]; dup || !gtmid.ValidContainer(id) {
			continue
		}
		visited[id] = struct{}{}
		wave = append(wave, id)
	}

	var records []*analyze.Record
	for depth := 0; len(wave) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		results, err := e.analyzeWave(ctx, wave)
		if err != nil {
			return records, err
		}
		records = append(records, results...)

		if depth >= e.config.MaxDepth {
			break
		}
		var next []string
		for _, rec := range results {
			for _, linked := range rec.LinkedContainers() {
				if _, dup := visited[linked]; dup {
					continue
				}
				visited[linked] = struct{}{}
				next = append(next, linked)
			}
		}
		if len(next) > 0 {
			e.config.Logger.Info("traverse: expanding",
				"depth", depth+1, "new_containers", len(next))
		}
		wave = next
	}
	return records, nil
}

// analyzeWave fans one wave out over the worker pool. Workers send
// results to the single collecting owner; nothing is mutated from two
// goroutines.
func (e *Engine) analyzeWave(ctx context.Context, ids []string) ([]*analyze.Record, error) {
	type indexed struct {
		i   int
		rec *analyze.Record
		err error
	}

	jobs := make(chan indexed)
	results := make(chan indexed)

	workers := e.config.Workers
	if workers > len(ids) {
		workers = len(ids)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				rec, err := e.config.Analyze(ctx, ids[job.i])
				results <- indexed{i: job.i, rec: rec, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range ids {
			select {
			case jobs <- indexed{i: i}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*analyze.Record, len(ids))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		ordered[r.i] = r.rec
	}
	if firstErr != nil {
		return nil, firstErr
	}
	out := make([]*analyze.Record, 0, len(ids))
	for _, rec := range ordered {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
