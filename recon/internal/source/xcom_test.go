package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
)

func testXFetcher(t *testing.T) *fetch.Fetcher {
	t.Helper()
	return fetch.New(fetch.Config{MaxAttempts: 1, PerHostRate: 1000, RetryBase: time.Millisecond})
}

func TestTimelineFallsBackToMirror(t *testing.T) {
	// WHAT: Expired API credentials and an empty archive push the chain
	// to the mirror link.
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer api.Close()
	cdx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]string{{"urlkey", "timestamp", "original"}})
	}))
	defer cdx.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div class="timeline-item">
			<a class="tweet-link" href="/ofjaaah/status/1"></a>
			<div class="tweet-content">leak drops GTM-ABC123</div>
		</div>`))
	}))
	defer mirror.Close()

	ch := NewTimeline("ofjaaah", XConfig{
		APIBase: api.URL,
		CDXBase: cdx.URL,
		Mirrors: []string{mirror.URL},
		Fetcher: testXFetcher(t),
	})

	items, err := ch.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if ch.Via() != "mirror" {
		t.Fatalf("via: got %q, want mirror", ch.Via())
	}
	if len(items) != 1 || !strings.Contains(items[0].Text, "GTM-ABC123") {
		t.Fatalf("items: got %+v", items)
	}
	if items[0].Origin != "timeline/mirror" {
		t.Errorf("origin: got %q", items[0].Origin)
	}
}

func TestTimelineAPISuccess(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(401)
			return
		}
		w.Write([]byte(`{"data":[{"id":"11","text":"GTM-ABC123 spotted"}]}`))
	}))
	defer api.Close()

	ch := NewTimeline("ofjaaah", XConfig{
		APIBase:     api.URL,
		AuthHeaders: map[string]string{"Authorization": "Bearer tok"},
		Mirrors:     []string{"http://127.0.0.1:0"},
		Fetcher:     testXFetcher(t),
	})

	items, err := ch.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if ch.Via() != "api" {
		t.Fatalf("via: got %q, want api", ch.Via())
	}
	if items[0].ID != "post:11" {
		t.Errorf("item id: got %q", items[0].ID)
	}
}

func TestFofaQuotaFallsBackToWeb(t *testing.T) {
	// WHAT: A quota response from the API link (rate limited) moves the
	// chain to the web scraper.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script src="https://www.googletagmanager.com/gtm.js?id=GTM-XYZ789">`))
	}))
	defer target.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":true,"errmsg":"[-3000] quota exhausted"}`))
	}))
	defer apiSrv.Close()
	webSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<span class="hsxa-host"><a href="` + target.URL + `">host</a></span>`))
	}))
	defer webSrv.Close()

	ch := NewFofa(`body="gtm.js?id=GTM-"`, FofaConfig{
		Key:     "k",
		APIBase: apiSrv.URL,
		WebBase: webSrv.URL,
		Fetcher: testXFetcher(t),
	})

	items, err := ch.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if ch.Via() != "web" {
		t.Fatalf("via: got %q, want web", ch.Via())
	}
	if len(items) != 1 || !strings.Contains(items[0].Text, "GTM-XYZ789") {
		t.Fatalf("items: got %+v", items)
	}
}

func TestFofaAPIPagination(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page with GTM-ABC123"))
	}))
	defer target.Close()

	page := 0
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		if r.URL.Query().Get("next") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"error":   false,
				"results": [][]string{{"h1", target.URL + "/1"}},
				"next":    "cursor2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"error":   false,
			"results": [][]string{{"h2", target.URL + "/2"}},
			"next":    "",
		})
	}))
	defer apiSrv.Close()

	ch := NewFofa("q", FofaConfig{
		Key:     "k",
		APIBase: apiSrv.URL,
		Fetcher: testXFetcher(t),
	})

	items, err := ch.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if page != 2 {
		t.Errorf("api pages: got %d, want 2 (cursor must be followed)", page)
	}
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
}
