package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

// FofaConfig configures host discovery against the FOFA index.
type FofaConfig struct {
	Key      string // API key; without it the API link fails over to web scraping
	APIBase  string // default: https://fofa.info
	WebBase  string // default: https://en.fofa.info
	MaxHosts int    // pages fetched per collect. Default: 20.
	Fetcher  *fetch.Fetcher
	Logger   *slog.Logger
}

func (c *FofaConfig) defaults() {
	if c.APIBase == "" {
		c.APIBase = "https://fofa.info"
	}
	if c.WebBase == "" {
		c.WebBase = "https://en.fofa.info"
	}
	if c.MaxHosts <= 0 {
		c.MaxHosts = 20
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.New(fetch.Config{})
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewFofa builds the discovery chain for a FOFA query: cursor-paginated
// API first, public web results as fallback. Each discovered host's
// page is fetched and emitted for identifier extraction.
func NewFofa(query string, cfg FofaConfig) *Chain {
	cfg.defaults()
	f := &fofa{query: query, cfg: cfg}
	return NewChain("fofa", cfg.Logger,
		Link{"api", f.api},
		Link{"web", f.web},
	)
}

type fofa struct {
	query string
	cfg   FofaConfig
}

func (f *fofa) qbase64() string {
	return base64.StdEncoding.EncodeToString([]byte(f.query))
}

// api pages through /search/next with the cursor until MaxHosts links
// are discovered. A quota error (code -3000 family) is ErrRateLimited
// so the chain falls through to web scraping instead of retrying.
func (f *fofa) api(ctx context.Context) ([]RawItem, error) {
	if f.cfg.Key == "" {
		return nil, fmt.Errorf("%w: no api key configured", fetch.ErrAuthExpired)
	}

	var links []string
	next := ""
	for len(links) < f.cfg.MaxHosts {
		u := fmt.Sprintf("%s/api/v1/search/next?key=%s&qbase64=%s&fields=host,link&size=100",
			f.cfg.APIBase, url.QueryEscape(f.cfg.Key), f.qbase64())
		if next != "" {
			u += "&next=" + url.QueryEscape(next)
		}
		res, err := f.cfg.Fetcher.Get(ctx, u, nil)
		if err != nil {
			return nil, err
		}
		var body struct {
			Error   bool       `json:"error"`
			Errmsg  string     `json:"errmsg"`
			Results [][]string `json:"results"`
			Next    string     `json:"next"`
		}
		if err := json.Unmarshal(res.Body, &body); err != nil {
			return nil, fmt.Errorf("api response: %w", err)
		}
		if body.Error {
			if strings.Contains(body.Errmsg, "-3000") {
				return nil, fmt.Errorf("%w: fofa quota: %s", fetch.ErrRateLimited, body.Errmsg)
			}
			return nil, fmt.Errorf("%w: fofa api: %s", fetch.ErrUnavailable, body.Errmsg)
		}
		for _, row := range body.Results {
			if len(row) < 2 || row[1] == "" {
				continue
			}
			links = append(links, row[1])
		}
		if body.Next == "" || len(body.Results) == 0 {
			break
		}
		next = body.Next
	}
	return f.fetchPages(ctx, links)
}

// web scrapes the public result page for host links.
func (f *fofa) web(ctx context.Context) ([]RawItem, error) {
	u := fmt.Sprintf("%s/result?qbase64=%s", f.cfg.WebBase, f.qbase64())
	res, err := f.cfg.Fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, fmt.Errorf("web response: %w", err)
	}
	var links []string
	doc.Find(".hsxa-host a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "http") {
			links = append(links, href)
		}
	})
	return f.fetchPages(ctx, links)
}

func (f *fofa) fetchPages(ctx context.Context, links []string) ([]RawItem, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: query matched no hosts", fetch.ErrUnavailable)
	}
	if len(links) > f.cfg.MaxHosts {
		links = links[:f.cfg.MaxHosts]
	}
	var items []RawItem
	for _, link := range links {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		res, err := f.cfg.Fetcher.Get(ctx, link, nil)
		if err != nil {
			f.cfg.Logger.Debug("fofa: host page skipped", "url", link, "error", err)
			continue
		}
		items = append(items, RawItem{
			ID:   "fofa:" + link,
			Text: string(res.Body),
			URL:  link,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no host pages reachable", fetch.ErrUnavailable)
	}
	return items, nil
}
