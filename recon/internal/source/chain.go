package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

// Link is one retrieval strategy inside a Chain.
type Link struct {
	Name    string
	Collect func(ctx context.Context) ([]RawItem, error)
}

// Chain tries its links in priority order and returns the first
// success, tagging each item with the link that produced it. A chain
// with every link failing surfaces fetch.ErrUnavailable joined with
// the per-link failures; it never disguises total failure as an empty
// success.
type Chain struct {
	name   string
	links  []Link
	logger *slog.Logger

	via string // last successful link
}

// NewChain builds a chain for one logical source.
func NewChain(name string, logger *slog.Logger, links ...Link) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{name: name, links: links, logger: logger}
}

func (c *Chain) Name() string { return c.name }

// Via returns the link name that served the last successful Collect.
func (c *Chain) Via() string { return c.via }

func (c *Chain) Collect(ctx context.Context) ([]RawItem, error) {
	failures := make([]error, 0, len(c.links))
	for _, link := range c.links {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		items, err := link.Collect(ctx)
		if err != nil {
			c.logger.Warn("chain: link failed, trying next",
				"source", c.name, "link", link.Name, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", link.Name, err))
			continue
		}
		c.via = link.Name
		for i := range items {
			items[i].Origin = c.name + "/" + link.Name
		}
		c.logger.Info("chain: collected",
			"source", c.name, "link", link.Name, "items", len(items))
		return items, nil
	}
	c.via = ""
	return nil, errors.Join(
		fmt.Errorf("%w: every link of %s failed", fetch.ErrUnavailable, c.name),
		errors.Join(failures...),
	)
}
