package source

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IDList emits one synthetic item per explicitly supplied container id.
type IDList struct {
	IDs []string
}

func (a *IDList) Name() string { return "idlist" }

func (a *IDList) Collect(ctx context.Context) ([]RawItem, error) {
	items := make([]RawItem, 0, len(a.IDs))
	for _, id := range a.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		items = append(items, RawItem{
			ID:     "id:" + id,
			Origin: a.Name(),
			Text:   id,
		})
	}
	return items, nil
}

// File scans a local text or JSON file for identifiers. A .json file
// that does not parse is ErrMalformedInput and is skipped by the
// caller, not fatal.
type File struct {
	Path string
}

func (a *File) Name() string { return "file" }

func (a *File) Collect(ctx context.Context) ([]RawItem, error) {
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", a.Path, err)
	}
	if strings.EqualFold(filepath.Ext(a.Path), ".json") && !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrMalformedInput, a.Path)
	}
	sum := sha256.Sum256(raw)
	return []RawItem{{
		ID:     fmt.Sprintf("file:%s:%x", filepath.Base(a.Path), sum[:8]),
		Origin: a.Name(),
		Text:   string(raw),
	}}, nil
}

// PostsFile reads an exported posts dump: a JSON array of objects with
// id/text/url fields. Each post becomes one item so history can skip
// posts individually.
type PostsFile struct {
	Path string
}

type post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (a *PostsFile) Name() string { return "postsfile" }

func (a *PostsFile) Collect(ctx context.Context) ([]RawItem, error) {
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("postsfile: read %s: %w", a.Path, err)
	}
	var posts []post
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, a.Path, err)
	}
	items := make([]RawItem, 0, len(posts))
	for _, p := range posts {
		if p.Text == "" {
			continue
		}
		id := p.ID
		if id == "" {
			sum := sha256.Sum256([]byte(p.Text))
			id = fmt.Sprintf("post:%x", sum[:8])
		}
		items = append(items, RawItem{
			ID:     id,
			Origin: a.Name(),
			Text:   p.Text,
			URL:    p.URL,
		})
	}
	return items, nil
}
