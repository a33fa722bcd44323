package recon

import (
	"fmt"
	"log/slog"
)

// Config is the resolved configuration for one pipeline run. Flag
// parsing happens outside; the service only sees this value.
type Config struct {
	// Source selection. At least one must be set.
	User      string   // timeline of one user's public posts
	Query     string   // keyword search
	IDs       []string // explicit container ids
	FilePath  string   // local text/JSON file to scan
	PostsFile string   // exported posts dump
	URLs      []string // pages to scan
	FofaQuery string   // host-discovery query

	// Analysis options.
	Deep     bool // follow linked containers
	MaxDepth int  // traversal bound when Deep. Default: 3.
	Lookup   bool // reverse-lookup every analyzed container
	Workers  int  // concurrent network work. Default: 10.

	// Credentials, loaded from the session blobs by the caller.
	XAuthHeaders     map[string]string
	BuiltWithCookies string
	FofaKey          string

	OutputDir string // default: "."
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.User == "" && c.Query == "" && len(c.IDs) == 0 &&
		c.FilePath == "" && c.PostsFile == "" && len(c.URLs) == 0 &&
		c.FofaQuery == "" {
		return fmt.Errorf("%w: no input source selected", ErrInvalidConfig)
	}
	return nil
}
