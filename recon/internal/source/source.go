// Package source implements the input adapters that feed the pipeline:
// timeline, keyword search, explicit id lists, local files, exported
// posts files, URL scans, and host-discovery queries.
//
// Adapters form a closed set behind one Collect contract, selected at
// configuration time. Adapters with several retrieval strategies wrap
// them in a Chain tried in fixed priority order.
package source

import (
	"context"
	"errors"
)

// ErrMalformedInput marks an unparsable file or JSON input. The caller
// reports it and skips that input; it is never fatal to the run.
var ErrMalformedInput = errors.New("source: malformed input")

// RawItem is one unit of collected input. Ephemeral; only its ID
// reaches the history store.
type RawItem struct {
	ID     string `json:"id"`     // stable identity for history dedupe
	Origin string `json:"origin"` // adapter (and chain link) that produced it
	Text   string `json:"text"`   // free text/HTML/JSON payload
	URL    string `json:"url,omitempty"`
}

// Adapter produces raw items for one configured input.
//
// Collect fails with fetch.ErrUnavailable when the source cannot be
// reached, fetch.ErrAuthExpired when credentials must be refreshed, and
// ErrMalformedInput for unparsable local input.
type Adapter interface {
	Name() string
	Collect(ctx context.Context) ([]RawItem, error)
}
