package analyze

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var signaturesYAML []byte

type signature struct {
	Pattern string `yaml:"pattern"`
	Service string `yaml:"service"`
}

type signatureFile struct {
	Signatures []signature `yaml:"signatures"`
}

var serviceTable = mustLoadSignatures()

func mustLoadSignatures() []signature {
	var f signatureFile
	if err := yaml.Unmarshal(signaturesYAML, &f); err != nil {
		panic(fmt.Sprintf("analyze: embedded signatures: %v", err))
	}
	return f.Signatures
}

// matchServices tests every signature independently against the payload
// and returns the sorted set of detected service names.
func matchServices(payload string) []string {
	lowered := strings.ToLower(payload)
	seen := map[string]struct{}{}
	for _, sig := range serviceTable {
		if strings.Contains(lowered, strings.ToLower(sig.Pattern)) {
			seen[sig.Service] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for svc := range seen {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}
