package lookup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

func parseDoc(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(string(body)))
}

// BuiltWith queries the authenticated relationships page and falls back
// to the public trends page when the session is rejected.
type BuiltWith struct {
	Base    string // default: https://builtwith.com
	Cookies string // session blob; empty forces the public fallback
	Fetcher *fetch.Fetcher
}

func (s *BuiltWith) Name() string { return "builtwith" }

func (s *BuiltWith) base() string {
	if s.Base == "" {
		return "https://builtwith.com"
	}
	return s.Base
}

func (s *BuiltWith) Lookup(ctx context.Context, id string) ([]string, error) {
	if s.Cookies != "" {
		domains, err := s.page(ctx, s.base()+"/relationships/tag/"+id,
			map[string]string{"Cookie": s.Cookies})
		if err == nil {
			return domains, nil
		}
	}
	return s.page(ctx, s.base()+"/trends/"+id, nil)
}

func (s *BuiltWith) page(ctx context.Context, u string, headers map[string]string) ([]string, error) {
	res, err := s.Fetcher.Get(ctx, u, headers)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find("td a[href], .card a[href]").Each(func(_ int, sel *goquery.Selection) {
		if d := normalizeDomain(strings.TrimSpace(sel.Text())); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}

// PublicWWW searches indexed page source for the identifier.
type PublicWWW struct {
	Base    string // default: https://publicwww.com
	Fetcher *fetch.Fetcher
}

func (s *PublicWWW) Name() string { return "publicwww" }

func (s *PublicWWW) Lookup(ctx context.Context, id string) ([]string, error) {
	base := s.Base
	if base == "" {
		base = "https://publicwww.com"
	}
	res, err := s.Fetcher.Get(ctx, base+"/websites/%22"+id+"%22/", nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find("td a[href^='http']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if d := hostOf(href); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}

// SpyOnWeb lists sites sharing the identifier.
type SpyOnWeb struct {
	Base    string // default: https://spyonweb.com
	Fetcher *fetch.Fetcher
}

func (s *SpyOnWeb) Name() string { return "spyonweb" }

func (s *SpyOnWeb) Lookup(ctx context.Context, id string) ([]string, error) {
	base := s.Base
	if base == "" {
		base = "https://spyonweb.com"
	}
	res, err := s.Fetcher.Get(ctx, base+"/"+id, nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find(".links a").Each(func(_ int, sel *goquery.Selection) {
		if d := normalizeDomain(strings.TrimSpace(sel.Text())); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}

// Wayback asks the CDX index which archived pages loaded this
// container's payload URL.
type Wayback struct {
	Base    string // default: https://web.archive.org
	Fetcher *fetch.Fetcher
}

func (s *Wayback) Name() string { return "wayback" }

func (s *Wayback) Lookup(ctx context.Context, id string) ([]string, error) {
	base := s.Base
	if base == "" {
		base = "https://web.archive.org"
	}
	q := url.QueryEscape("googletagmanager.com/gtm.js?id=" + id)
	res, err := s.Fetcher.Get(ctx,
		base+"/cdx/search/cdx?url="+q+"&output=json&collapse=urlkey&fl=original&limit=500", nil)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := json.Unmarshal(res.Body, &rows); err != nil {
		return nil, fmt.Errorf("cdx response: %w", err)
	}
	var domains []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue // header row
		}
		if d := hostOf(row[0]); d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

// DuckDuckGo scrapes the HTML results page for sites mentioning the id.
type DuckDuckGo struct {
	Base    string // default: https://html.duckduckgo.com
	Fetcher *fetch.Fetcher
}

func (s *DuckDuckGo) Name() string { return "duckduckgo" }

func (s *DuckDuckGo) Lookup(ctx context.Context, id string) ([]string, error) {
	base := s.Base
	if base == "" {
		base = "https://html.duckduckgo.com"
	}
	res, err := s.Fetcher.Get(ctx, base+"/html/?q=%22"+id+"%22", nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find("a.result__a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if d := hostOf(href); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}

// WebSearch scrapes a generic search-result page, catching engines the
// dedicated sources miss.
type WebSearch struct {
	Base    string // default: https://www.startpage.com
	Fetcher *fetch.Fetcher
}

func (s *WebSearch) Name() string { return "websearch" }

func (s *WebSearch) Lookup(ctx context.Context, id string) ([]string, error) {
	base := s.Base
	if base == "" {
		base = "https://www.startpage.com"
	}
	res, err := s.Fetcher.Get(ctx, base+"/sp/search?query=%22"+id+"%22", nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find("a[href^='http']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if d := hostOf(href); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}

// Fofa queries the host index for pages embedding the container,
// falling back from the API to the public web results.
type Fofa struct {
	Key     string
	APIBase string // default: https://fofa.info
	WebBase string // default: https://en.fofa.info
	Fetcher *fetch.Fetcher
}

func (s *Fofa) Name() string { return "fofa" }

func (s *Fofa) Lookup(ctx context.Context, id string) ([]string, error) {
	qb := base64.StdEncoding.EncodeToString([]byte(`body="` + id + `"`))
	if s.Key != "" {
		domains, err := s.api(ctx, qb)
		if err == nil {
			return domains, nil
		}
	}
	return s.web(ctx, qb)
}

func (s *Fofa) api(ctx context.Context, qb string) ([]string, error) {
	base := s.APIBase
	if base == "" {
		base = "https://fofa.info"
	}
	u := fmt.Sprintf("%s/api/v1/search/next?key=%s&qbase64=%s&fields=host&size=100",
		base, url.QueryEscape(s.Key), qb)
	res, err := s.Fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Error   bool     `json:"error"`
		Errmsg  string   `json:"errmsg"`
		Results []string `json:"results"`
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
	var domains []string
	for _, host := range body.Results {
		if !strings.Contains(host, "://") {
			host = "https://" + host
		}
		if d := hostOf(host); d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}

func (s *Fofa) web(ctx context.Context, qb string) ([]string, error) {
	base := s.WebBase
	if base == "" {
		base = "https://en.fofa.info"
	}
	res, err := s.Fetcher.Get(ctx, base+"/result?qbase64="+qb, nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(res.Body)
	if err != nil {
		return nil, err
	}
	var domains []string
	doc.Find(".hsxa-host a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if d := hostOf(href); d != "" {
			domains = append(domains, d)
		}
	})
	return domains, nil
}
