package analyze

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var domainCandidate = regexp.MustCompile(`[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)+`)

// ignoreDomains is the tag-management infrastructure whose presence in a
// payload carries no intelligence value.
var ignoreDomains = map[string]struct{}{
	"googletagmanager.com":  {},
	"google-analytics.com":  {},
	"googleadservices.com":  {},
	"googlesyndication.com": {},
	"googleapis.com":        {},
	"gstatic.com":           {},
	"google.com":            {},
	"google.co":             {},
	"doubleclick.net":       {},
	"gtm.js":                {},
	"w3.org":                {},
	"schema.org":            {},
	"example.com":           {},
}

// JavaScript property accesses like "window.name" or "event.data" parse
// as host.tld because .name, .id and .data are delegated TLDs. Reject
// candidates whose suffix and prefix both look like a property access.
var (
	fpSuffixes = map[string]struct{}{
		"id": {}, "name": {}, "type": {}, "value": {},
		"length": {}, "data": {}, "key": {}, "text": {},
	}
	fpPrefixes = map[string]struct{}{
		"module": {}, "window": {}, "document": {}, "this": {},
		"event": {}, "config": {}, "element": {}, "target": {},
		"parent": {}, "self": {}, "object": {}, "item": {},
		"node": {}, "style": {}, "form": {}, "input": {},
	}
)

// extractDomains returns the sorted set of plausible registrable domains
// in the payload. Validation goes through the public-suffix list; a bare
// substring match is a known false-positive source.
func extractDomains(payload string) []string {
	seen := map[string]struct{}{}
	for _, raw := range domainCandidate.FindAllString(payload, -1) {
		d := strings.ToLower(raw)
		if !validDomain(d) {
			continue
		}
		seen[d] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func validDomain(d string) bool {
	if len(d) > 253 || strings.Count(d, ".") == 0 {
		return false
	}
	if _, ignored := ignoreDomains[d]; ignored {
		return false
	}
	labels := strings.Split(d, ".")
	last := labels[len(labels)-1]
	if _, fp := fpSuffixes[last]; fp {
		if _, prop := fpPrefixes[labels[0]]; prop || len(labels) == 2 && len(labels[0]) <= 2 {
			return false
		}
	}
	// A real domain needs a known public suffix plus at least one more label.
	suffix, icann := publicsuffix.PublicSuffix(d)
	if !icann || suffix == d {
		return false
	}
	// Registrable part of an ignored infrastructure domain.
	if reg, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
		if _, ignored := ignoreDomains[reg]; ignored {
			return false
		}
	}
	return true
}
