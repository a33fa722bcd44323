package recon

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/analyze"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/gtmid"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/history"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/lookup"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/report"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/source"
)

// Re-exported domain types so callers never import internal packages.
type (
	RawItem   = source.RawItem
	Adapter   = source.Adapter
	Record    = analyze.Record
	Status    = analyze.Status
	Entry     = lookup.Entry
	Container = report.Container
	Document  = report.Document
	RunLog    = history.RunLog
)

const (
	StatusActive   = analyze.StatusActive
	StatusNotFound = analyze.StatusNotFound
	StatusError    = analyze.StatusError
)

// ExtractContainers exposes the strict identifier extractor.
func ExtractContainers(text string) []string {
	return gtmid.ExtractContainers(text)
}

// ValidContainer reports whether id is a well-formed container id.
func ValidContainer(id string) bool {
	return gtmid.ValidContainer(id)
}

// ClearHistory removes the persisted history under outputDir, forcing
// the next run to reprocess everything.
func ClearHistory(outputDir string, logger *slog.Logger) error {
	return history.Open(filepath.Join(outputDir, HistoryFile), logger).Clear()
}

// HistoryInfo reports the last run time and the run log under outputDir.
func HistoryInfo(outputDir string, logger *slog.Logger) (time.Time, []RunLog) {
	h := history.Open(filepath.Join(outputDir, HistoryFile), logger)
	return h.LastRun(), h.Runs()
}
