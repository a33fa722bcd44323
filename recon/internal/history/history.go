// Package history persists the set of already-processed posts and
// container identifiers between runs.
//
// The whole state is one JSON document, rewritten atomically (write
// .tmp then rename) so a crash mid-run never leaves a half-updated
// file. A missing or corrupted document is treated as empty state with
// a warning, never a fatal error.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Kind separates the seen-id namespaces.
type Kind string

const (
	KindPost      Kind = "post"
	KindContainer Kind = "container"
)

// RunLog records one completed pipeline run.
type RunLog struct {
	StartedAt     time.Time `json:"started_at"`
	Items         int       `json:"items"`
	NewContainers int       `json:"new_containers"`
	DomainsFound  int       `json:"domains_found"`
}

type document struct {
	SeenPostIDs      []string  `json:"seen_post_ids"`
	SeenContainerIDs []string  `json:"seen_gtm_ids"`
	LastRun          time.Time `json:"last_run"`
	Runs             []RunLog  `json:"runs,omitempty"`
}

// Store accumulates seen-id mutations in memory; Persist writes them
// back as one atomic replace.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	posts map[string]struct{}
	ids   map[string]struct{}
	last  time.Time
	runs  []RunLog
}

// Open loads the history document at path. Corrupt or missing state
// yields an empty store.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		posts:  map[string]struct{}{},
		ids:    map[string]struct{}{},
	}
	s.load()
	return s
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("history: unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("history: corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	for _, id := range doc.SeenPostIDs {
		s.posts[id] = struct{}{}
	}
	for _, id := range doc.SeenContainerIDs {
		s.ids[id] = struct{}{}
	}
	s.last = doc.LastRun
	s.runs = doc.Runs
}

// IsNew reports whether id has not been seen for kind.
func (s *Store) IsNew(kind Kind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.set(kind)[id]
	return !seen
}

// MarkSeen records id as seen. Inserting twice is a no-op.
func (s *Store) MarkSeen(kind Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(kind)[id] = struct{}{}
}

func (s *Store) set(kind Kind) map[string]struct{} {
	if kind == KindPost {
		return s.posts
	}
	return s.ids
}

// Count returns the number of seen ids for kind.
func (s *Store) Count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set(kind))
}

// LastRun returns the recorded end of the previous run.
func (s *Store) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Runs returns the recorded run log, oldest first.
func (s *Store) Runs() []RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunLog, len(s.runs))
	copy(out, s.runs)
	return out
}

// AppendRun adds one run entry, keeping the most recent 50.
func (s *Store) AppendRun(r RunLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	if len(s.runs) > 50 {
		s.runs = s.runs[len(s.runs)-50:]
	}
}

// Persist writes the full state back atomically and stamps the run time.
func (s *Store) Persist() error {
	s.mu.Lock()
	s.last = time.Now().UTC()
	doc := document{
		SeenPostIDs:      sortedKeys(s.posts),
		SeenContainerIDs: sortedKeys(s.ids),
		LastRun:          s.last,
		Runs:             s.runs,
	}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("history: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("history: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}

// Clear resets to the empty state, in memory and on disk. The next run
// reprocesses everything.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.posts = map[string]struct{}{}
	s.ids = map[string]struct{}{}
	s.last = time.Time{}
	s.runs = nil
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
