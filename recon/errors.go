package recon

import (
	"errors"

	"github.com/ofjaaah-tools/crawlGTM/recon/internal/fetch"
	"github.com/ofjaaah-tools/crawlGTM/recon/internal/source"
)

// ErrInvalidConfig marks contradictory or empty run configuration.
// Nothing runs after it; the CLI maps it to the configuration exit code.
var ErrInvalidConfig = errors.New("recon: invalid configuration")

// Failure classes surfaced by adapters and lookup sources. Per-source
// failures are contained at their boundary and never abort the run.
var (
	ErrSourceUnavailable = fetch.ErrUnavailable
	ErrAuthExpired       = fetch.ErrAuthExpired
	ErrRateLimited       = fetch.ErrRateLimited
	ErrMalformedInput    = source.ErrMalformedInput
)
