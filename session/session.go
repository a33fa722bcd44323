// Package session manages the opaque credential blobs the adapters and
// lookup sources authenticate with: a post-stream API session, a
// BuiltWith cookie jar, and a FOFA API key.
//
// The pipeline never inspects blob contents; it only asks whether a
// session is still valid and forwards the header material.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrMissing reports that no credential blob is stored yet.
var ErrMissing = errors.New("session: no stored credentials")

// Credentials is one stored blob: arbitrary header values plus the time
// they were captured.
type Credentials struct {
	Headers map[string]string `json:"headers"`
	SavedAt time.Time         `json:"saved_at"`
}

// Store persists one named credential blob under the config directory.
type Store struct {
	path string
}

// Dir returns the credential directory, honoring CRAWLGTM_HOME.
func Dir() (string, error) {
	if d := os.Getenv("CRAWLGTM_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: home dir: %w", err)
	}
	return filepath.Join(home, ".crawlgtm"), nil
}

// Open creates a store for one blob file name (e.g. "x_session.json").
func Open(name string) (*Store, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, name)}, nil
}

// Load reads the blob. A missing file is ErrMissing.
func (s *Store) Load() (*Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("session: read %s: %w", s.path, err)
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("session: corrupt blob %s: %w", s.path, err)
	}
	return &c, nil
}

// Save writes the blob with owner-only permissions.
func (s *Store) Save(c *Credentials) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("session: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}

// Delete removes the blob.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Probe checks a stored session against a live endpoint.
type Probe func(ctx context.Context, headers map[string]string) error

// IsValid reports whether the stored blob exists and, when a probe is
// supplied, whether the remote end still accepts it.
func (s *Store) IsValid(ctx context.Context, probe Probe) bool {
	c, err := s.Load()
	if err != nil {
		return false
	}
	if probe == nil {
		return true
	}
	return probe(ctx, c.Headers) == nil
}

// Well-known blob names.
const (
	XSessionFile  = "x_session.json"
	BuiltWithFile = "bw_session.json"
	FofaKeyFile   = "fofa_key.json"
)
