// Package gtmid validates and extracts tag-manager container identifiers
// and the sibling tracking identifiers found inside container payloads.
//
// Extraction is strict: a candidate is the maximal alphanumeric run after
// its prefix and must match the full grammar. Over-long runs are rejected,
// never truncated to a valid-looking prefix.
package gtmid

import (
	"regexp"
	"sort"
)

// Kind names a tracking identifier family.
type Kind string

const (
	KindContainer Kind = "gtm" // GTM-XXXXXXXX
	KindGA4       Kind = "ga4" // G-XXXXXXXXXX
	KindUA        Kind = "ua"  // UA-XXXXXXXX-X
	KindAW        Kind = "aw"  // AW-XXXXXXXXXX
)

// Kinds lists every tracking identifier family, container type first.
var Kinds = []Kind{KindContainer, KindGA4, KindUA, KindAW}

type grammar struct {
	run   *regexp.Regexp // maximal candidate run
	exact *regexp.Regexp // anchored full-token grammar
}

var grammars = map[Kind]grammar{
	KindContainer: {
		run:   regexp.MustCompile(`GTM-[A-Z0-9]+`),
		exact: regexp.MustCompile(`^GTM-[A-Z0-9]{6,8}$`),
	},
	KindGA4: {
		run:   regexp.MustCompile(`G-[A-Z0-9]+`),
		exact: regexp.MustCompile(`^G-[A-Z0-9]{6,12}$`),
	},
	KindUA: {
		run:   regexp.MustCompile(`UA-[0-9]+-[0-9]+`),
		exact: regexp.MustCompile(`^UA-[0-9]{4,12}-[0-9]{1,4}$`),
	},
	KindAW: {
		run:   regexp.MustCompile(`AW-[0-9]+`),
		exact: regexp.MustCompile(`^AW-[0-9]{6,12}$`),
	},
}

// ValidContainer reports whether id is a well-formed container identifier.
func ValidContainer(id string) bool {
	return grammars[KindContainer].exact.MatchString(id)
}

// Valid reports whether id is a well-formed identifier of the given kind.
func Valid(kind Kind, id string) bool {
	g, ok := grammars[kind]
	return ok && g.exact.MatchString(id)
}

// ExtractContainers returns the sorted set of well-formed container
// identifiers found in text. Pure and safe for concurrent use.
func ExtractContainers(text string) []string {
	return extract(KindContainer, text)
}

// Extract returns the sorted set of well-formed identifiers of one kind.
func Extract(kind Kind, text string) []string {
	return extract(kind, text)
}

// ExtractAll runs every kind's extractor over the same text.
func ExtractAll(text string) map[Kind][]string {
	out := make(map[Kind][]string, len(Kinds))
	for _, k := range Kinds {
		if ids := extract(k, text); len(ids) > 0 {
			out[k] = ids
		}
	}
	return out
}

func extract(kind Kind, text string) []string {
	g, ok := grammars[kind]
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	for _, loc := range g.run.FindAllStringIndex(text, -1) {
		if !tokenBoundary(text, loc[0]) {
			continue
		}
		candidate := text[loc[0]:loc[1]]
		if !g.exact.MatchString(candidate) {
			continue
		}
		seen[candidate] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// tokenBoundary rejects candidates glued to a preceding identifier
// character, e.g. the GTM run inside "XGTM-ABC123".
func tokenBoundary(text string, start int) bool {
	if start == 0 {
		return true
	}
	c := text[start-1]
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		return false
	}
	return true
}
