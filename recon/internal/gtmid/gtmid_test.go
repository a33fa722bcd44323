package gtmid

import (
	"reflect"
	"testing"
)

func TestExtractContainersStrict(t *testing.T) {
	// WHAT: Only full-grammar container ids are extracted.
	// WHY: Loose prefix matching shipped false positives before.
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"single", `<script src="gtm.js?id=GTM-ABC123"></script>`, []string{"GTM-ABC123"}},
		{"overlong rejected", `GTM-ABC123 and GTM-ABCDEFGHIJKL`, []string{"GTM-ABC123"}},
		{"too short rejected", `GTM-AB1`, nil},
		{"lowercase rejected", `gtm-abc123`, nil},
		{"glued prefix rejected", `XGTM-ABC123`, nil},
		{"dedup", `GTM-ABC123,GTM-ABC123;GTM-XYZ789`, []string{"GTM-ABC123", "GTM-XYZ789"}},
		{"json payload", `{"id":"GTM-W5K7PQ2","next":"GTM-T2M9RX"}`, []string{"GTM-T2M9RX", "GTM-W5K7PQ2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractContainers(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("extract: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExtractTrackingKinds(t *testing.T) {
	// WHAT: Each tracking family matches its own grammar only.
	// WHY: Kinds must not bleed into each other (G- vs GTM-, UA- vs AW-).
	text := `gtag('config','G-AB12CD34'); _gaq.push('UA-123456-1'); conversion AW-9876543210; GTM-NESTED1`

	all := ExtractAll(text)
	if got := all[KindGA4]; !reflect.DeepEqual(got, []string{"G-AB12CD34"}) {
		t.Errorf("ga4: got %v", got)
	}
	if got := all[KindUA]; !reflect.DeepEqual(got, []string{"UA-123456-1"}) {
		t.Errorf("ua: got %v", got)
	}
	if got := all[KindAW]; !reflect.DeepEqual(got, []string{"AW-9876543210"}) {
		t.Errorf("aw: got %v", got)
	}
	if got := all[KindContainer]; !reflect.DeepEqual(got, []string{"GTM-NESTED1"}) {
		t.Errorf("gtm: got %v", got)
	}
}

func TestValidContainer(t *testing.T) {
	valid := []string{"GTM-ABC123", "GTM-ABCD1234", "GTM-000000"}
	for _, id := range valid {
		if !ValidContainer(id) {
			t.Errorf("ValidContainer(%q) = false, want true", id)
		}
	}
	invalid := []string{"", "GTM-", "GTM-ABC12", "GTM-ABCDEF123", "G-ABC123", "GTM-abc123"}
	for _, id := range invalid {
		if ValidContainer(id) {
			t.Errorf("ValidContainer(%q) = true, want false", id)
		}
	}
}
