// Package notify delivers a compact post-run summary to an external
// sink. Formatting beyond the summary fields is the sink's business.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Summary is what a completed run reports.
type Summary struct {
	ScanID     string    `json:"scan_id"`
	When       time.Time `json:"when"`
	Containers int       `json:"containers"`
	Domains    int       `json:"domains"`
	ReportPath string    `json:"report_path"`
}

// Notifier receives run summaries.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

type logNotifier struct {
	logger *slog.Logger
}

// Log returns a Notifier that writes the summary to the logger.
func Log(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, s Summary) error {
	n.logger.Info("scan finished",
		"scan_id", s.ScanID,
		"containers", s.Containers,
		"domains", s.Domains,
		"report", s.ReportPath)
	return nil
}

// Webhook POSTs the summary as JSON to one URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

func (n *Webhook) Notify(ctx context.Context, s Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned http %d", resp.StatusCode)
	}
	return nil
}
