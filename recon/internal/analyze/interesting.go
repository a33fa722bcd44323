package analyze

import (
	"regexp"
	"sort"
	"strings"
)

// Flagged-string extraction. Each rule is an independent pattern with a
// minimum-confidence heuristic to bound false positives; the combined
// output is capped.
const maxInteresting = 30

var (
	apiEndpointPattern = regexp.MustCompile(`https?://[^\s"'\\<>]*(?:/api/|/v1/|/v2/|graphql)[^\s"'\\<>]*`)
	webhookPattern     = regexp.MustCompile(`https?://[^\s"'\\<>]*(?:webhook|hooks?\.)[^\s"'\\<>]*`)
	emailPattern       = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	keyPattern         = regexp.MustCompile(`[A-Za-z0-9_-]{32,64}`)
)

func extractInteresting(payload string) []string {
	seen := map[string]struct{}{}
	add := func(prefix, s string) {
		seen[prefix+s] = struct{}{}
	}

	for _, m := range apiEndpointPattern.FindAllString(payload, -1) {
		add("api:", strings.TrimRight(m, ".,;"))
	}
	for _, m := range webhookPattern.FindAllString(payload, -1) {
		add("webhook:", strings.TrimRight(m, ".,;"))
	}
	for _, m := range emailPattern.FindAllString(payload, -1) {
		add("email:", m)
	}
	for _, m := range keyPattern.FindAllString(payload, -1) {
		if plausibleKey(m) {
			add("key:", m)
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) > maxInteresting {
		out = out[:maxInteresting]
	}
	return out
}

// plausibleKey rejects long runs that are clearly not secrets: pure
// digits (timestamps, ids) and all-lowercase words (minified symbol
// runs, hashes are mixed-case or digit-bearing in practice).
func plausibleKey(s string) bool {
	digits, lower, upper := 0, 0, 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c >= 'a' && c <= 'z':
			lower++
		case c >= 'A' && c <= 'Z':
			upper++
		}
	}
	if digits == len(s) {
		return false
	}
	if lower+digits == len(s) && upper == 0 && digits == 0 {
		return false
	}
	return true
}
