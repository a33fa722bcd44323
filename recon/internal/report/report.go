// Package report writes the result documents a run produces: the JSON
// scan document plus plain-text id and domain sidecars. All files are
// written atomically so consumers never observe partial documents.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/lookup"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/source"
)

// Container is one analyzed record with its reverse-lookup entries.
type Container struct {
	*analyze.Record
	Lookups []lookup.Entry `json:"reverse_lookups,omitempty"`
}

// Document is the full result of one pipeline run.
type Document struct {
	ScanID     string              `json:"scan_id"`
	ScanDate   time.Time           `json:"scan_date"`
	Items      []source.RawItem    `json:"items"`
	Containers []Container         `json:"containers"`
	DomainMap  map[string][]string `json:"domain_mapping"`
}

// Build assembles a Document, inverting each container's domain set
// into the domain to container-ids mapping.
func Build(items []source.RawItem, containers []Container) *Document {
	domainMap := map[string][]string{}
	for _, c := range containers {
		for _, d := range c.Domains {
			domainMap[d] = append(domainMap[d], c.ID)
		}
		for _, e := range c.Lookups {
			domainMap[e.Domain] = append(domainMap[e.Domain], c.ID)
		}
	}
	for d, ids := range domainMap {
		sort.Strings(ids)
		domainMap[d] = dedupeSorted(ids)
	}
	return &Document{
		ScanID:     uuid.NewString(),
		ScanDate:   time.Now().UTC(),
		Items:      items,
		Containers: containers,
		DomainMap:  domainMap,
	}
}

// UniqueLookupCount returns the number of (container, domain) reverse
// lookup pairs across the document.
func (d *Document) UniqueLookupCount() int {
	n := 0
	for _, c := range d.Containers {
		n += len(c.Lookups)
	}
	return n
}

// Writer persists result documents into one output directory.
type Writer struct {
	Dir string
}

// Write stores the document and its sidecars, stamped with the scan's
// unix time. Returns the JSON document path.
func (w *Writer) Write(doc *Document) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("report: mkdir %s: %w", w.Dir, err)
	}
	stamp := doc.ScanDate.Unix()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}
	jsonPath := filepath.Join(w.Dir, fmt.Sprintf("crawlgtm_%d.json", stamp))
	if err := atomicWrite(jsonPath, raw); err != nil {
		return "", err
	}

	var ids, domains []string
	for _, c := range doc.Containers {
		ids = append(ids, c.ID)
	}
	for d := range doc.DomainMap {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	idPath := filepath.Join(w.Dir, fmt.Sprintf("gtm_ids_%d.txt", stamp))
	if err := atomicWrite(idPath, []byte(strings.Join(ids, "\n")+"\n")); err != nil {
		return "", err
	}
	domPath := filepath.Join(w.Dir, fmt.Sprintf("domains_%d.txt", stamp))
	if err := atomicWrite(domPath, []byte(strings.Join(domains, "\n")+"\n")); err != nil {
		return "", err
	}
	return jsonPath, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("report: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}

func dedupeSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}
