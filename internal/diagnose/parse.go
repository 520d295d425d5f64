package diagnose

import (
	"regexp"
	"strings"

	"github.com/waigani/diffparser"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

var diffFenceRe = regexp.MustCompile("(?s)```diff[ \t]*\n(.*?)```")

// ParseResponse turns raw engine output into a validated Diagnosis. The
// engine is untrusted: a missing narrative is an invalid response, and a
// patch that is not a well-formed unified diff is discarded rather than
// propagated downstream.
func ParseResponse(raw string) (*remedy.Diagnosis, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, remedy.Failf(remedy.KindEngineInvalidResponse, "empty engine response")
	}

	var patch string
	narrative := raw
	if m := diffFenceRe.FindStringSubmatchIndex(raw); m != nil {
		patch = raw[m[2]:m[3]]
		narrative = strings.TrimSpace(raw[:m[0]] + raw[m[1]:])
	}

	if narrative == "" {
		return nil, remedy.Failf(remedy.KindEngineInvalidResponse, "response carries a patch but no narrative")
	}

	if patch != "" && !WellFormedPatch(patch) {
		// Malformed patch: treat as "no patch proposed", keep the narrative.
		patch = ""
	}
	if patch != "" && !strings.HasSuffix(patch, "\n") {
		patch += "\n"
	}

	return &remedy.Diagnosis{Narrative: narrative, Patch: patch}, nil
}

// WellFormedPatch reports whether s parses as a unified diff touching at
// least one file.
func WellFormedPatch(s string) bool {
	d, err := diffparser.Parse(s)
	if err != nil || d == nil || len(d.Files) == 0 {
		return false
	}
	for _, f := range d.Files {
		if len(f.Hunks) > 0 {
			return true
		}
	}
	return false
}
