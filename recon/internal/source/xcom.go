package source

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

// XConfig configures the post-stream adapters (timeline and keyword
// search). Both share the same fallback chain: authenticated live API,
// then web-archive snapshots, then mirror instances, then a
// search-engine cache.
type XConfig struct {
	APIBase      string            // default: https://api.x.com
	CDXBase      string            // default: https://web.archive.org
	Mirrors      []string          // default: public nitter instances
	CacheBase    string            // default: https://html.duckduckgo.com
	AuthHeaders  map[string]string // live-API credentials; expiry surfaces ErrAuthExpired
	MaxSnapshots int               // archive pages fetched per collect. Default: 10.
	Fetcher      *fetch.Fetcher
	Logger       *slog.Logger
}

func (c *XConfig) defaults() {
	if c.APIBase == "" {
		c.APIBase = "https://api.x.com"
	}
	if c.CDXBase == "" {
		c.CDXBase = "https://web.archive.org"
	}
	if len(c.Mirrors) == 0 {
		c.Mirrors = []string{"https://nitter.net", "https://nitter.poast.org"}
	}
	if c.CacheBase == "" {
		c.CacheBase = "https://html.duckduckgo.com"
	}
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = 10
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.New(fetch.Config{})
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewTimeline builds the fallback chain for one user's post stream.
func NewTimeline(user string, cfg XConfig) *Chain {
	cfg.defaults()
	x := &xcom{cfg: cfg}
	return NewChain("timeline", cfg.Logger,
		Link{"api", func(ctx context.Context) ([]RawItem, error) {
			return x.api(ctx, "from:"+user)
		}},
		Link{"archive", func(ctx context.Context) ([]RawItem, error) {
			return x.archive(ctx, "x.com/"+user)
		}},
		Link{"mirror", func(ctx context.Context) ([]RawItem, error) {
			return x.mirror(ctx, "/"+user)
		}},
		Link{"cache", func(ctx context.Context) ([]RawItem, error) {
			return x.cache(ctx, "site:x.com "+user)
		}},
	)
}

// NewSearch builds the fallback chain for a keyword search.
func NewSearch(query string, cfg XConfig) *Chain {
	cfg.defaults()
	x := &xcom{cfg: cfg}
	return NewChain("search", cfg.Logger,
		Link{"api", func(ctx context.Context) ([]RawItem, error) {
			return x.api(ctx, query)
		}},
		Link{"mirror", func(ctx context.Context) ([]RawItem, error) {
			return x.mirror(ctx, "/search?f=tweets&q="+url.QueryEscape(query))
		}},
		Link{"cache", func(ctx context.Context) ([]RawItem, error) {
			return x.cache(ctx, "site:x.com "+query)
		}},
	)
}

type xcom struct {
	cfg XConfig
}

// api queries the authenticated recent-search endpoint. 401/403 bubble
// up as fetch.ErrAuthExpired so the caller can refresh credentials
// instead of retrying blindly.
func (x *xcom) api(ctx context.Context, query string) ([]RawItem, error) {
	u := fmt.Sprintf("%s/2/tweets/search/recent?max_results=100&query=%s",
		x.cfg.APIBase, url.QueryEscape(query))
	res, err := x.cfg.Fetcher.Get(ctx, u, x.cfg.AuthHeaders)
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body, &body); err != nil {
		return nil, fmt.Errorf("api response: %w", err)
	}
	items := make([]RawItem, 0, len(body.Data))
	for _, t := range body.Data {
		items = append(items, RawItem{ID: "post:" + t.ID, Text: t.Text})
	}
	return items, nil
}

// archive lists CDX snapshots for the page and fetches a bounded number
// of them.
func (x *xcom) archive(ctx context.Context, page string) ([]RawItem, error) {
	u := fmt.Sprintf("%s/cdx/search/cdx?url=%s&output=json&filter=statuscode:200&limit=%d",
		x.cfg.CDXBase, url.QueryEscape(page), x.cfg.MaxSnapshots+1)
	res, err := x.cfg.Fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(res.Body, &rows); err != nil {
		return nil, fmt.Errorf("cdx response: %w", err)
	}

	var items []RawItem
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue // header row
		}
		if len(items) >= x.cfg.MaxSnapshots {
			break
		}
		ts, original := row[1], row[2]
		snap := fmt.Sprintf("%s/web/%s/%s", x.cfg.CDXBase, ts, original)
		page, err := x.cfg.Fetcher.Get(ctx, snap, nil)
		if err != nil {
			x.cfg.Logger.Debug("archive: snapshot skipped", "url", snap, "error", err)
			continue
		}
		items = append(items, RawItem{
			ID:   "wb:" + ts + ":" + original,
			Text: string(page.Body),
			URL:  snap,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no usable snapshots for %s", fetch.ErrUnavailable, page)
	}
	return items, nil
}

// mirror tries each mirror instance until one serves parsable posts.
func (x *xcom) mirror(ctx context.Context, path string) ([]RawItem, error) {
	var last error
	for _, base := range x.cfg.Mirrors {
		res, err := x.cfg.Fetcher.Get(ctx, base+path, nil)
		if err != nil {
			last = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
		if err != nil {
			last = err
			continue
		}
		var items []RawItem
		doc.Find(".timeline-item").Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Find(".tweet-content").Text())
			if text == "" {
				return
			}
			id, _ := s.Find("a.tweet-link").Attr("href")
			if id == "" {
				sum := sha256.Sum256([]byte(text))
				id = fmt.Sprintf("%x", sum[:8])
			}
			items = append(items, RawItem{ID: "post:" + id, Text: text})
		})
		if len(items) > 0 {
			return items, nil
		}
		last = fmt.Errorf("no posts parsed from %s", base)
	}
	if last == nil {
		last = fmt.Errorf("no mirrors configured")
	}
	return nil, fmt.Errorf("%w: %w", fetch.ErrUnavailable, last)
}

// cache scrapes search-engine result snippets as a last resort.
func (x *xcom) cache(ctx context.Context, query string) ([]RawItem, error) {
	u := fmt.Sprintf("%s/html/?q=%s", x.cfg.CacheBase, url.QueryEscape(query))
	res, err := x.cfg.Fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, fmt.Errorf("cache response: %w", err)
	}
	var items []RawItem
	doc.Find(".result__snippet").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		sum := sha256.Sum256([]byte(text))
		items = append(items, RawItem{
			ID:   fmt.Sprintf("cache:%x", sum[:8]),
			Text: text,
		})
	})
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cache returned no snippets", fetch.ErrUnavailable)
	}
	return items, nil
}
