package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

// URLScan fetches each configured page and emits its markup for
// identifier extraction. Per-URL failures are skipped; the adapter only
// fails when every URL fails.
type URLScan struct {
	URLs    []string
	Fetcher *fetch.Fetcher
	Logger  *slog.Logger
}

func (a *URLScan) Name() string { return "urlscan" }

func (a *URLScan) Collect(ctx context.Context) ([]RawItem, error) {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	var items []RawItem
	var failures []error
	for _, u := range a.URLs {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		res, err := a.Fetcher.Get(ctx, u, nil)
		if err != nil {
			log.Warn("urlscan: page skipped", "url", u, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", u, err))
			continue
		}
		items = append(items, RawItem{
			ID:     "url:" + u,
			Origin: a.Name(),
			Text:   pageText(res.Body),
			URL:    u,
		})
	}
	if len(items) == 0 && len(failures) > 0 {
		return nil, errors.Join(
			fmt.Errorf("%w: all %d urls failed", fetch.ErrUnavailable, len(failures)),
			errors.Join(failures...),
		)
	}
	return items, nil
}

// pageText keeps the raw markup (inline scripts carry the ids) but
// appends script src attributes so externally-referenced ids in URLs
// survive HTML parsing quirks.
func pageText(body []byte) string {
	text := string(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			b.WriteByte('\n')
			b.WriteString(src)
		}
	})
	return b.String()
}
