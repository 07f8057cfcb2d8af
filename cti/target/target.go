// Package target classifies free-form user input into a scan target type.
package target

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/CTIDashboard/go-api/cti"
)

// MaxInputLength is the longest input the lookup service accepts.
const MaxInputLength = 500

var ipv4Pattern = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)

// Classify returns the target type of text. The IP check runs before the URL
// check, which runs before the domain heuristic, so a dotted quad is never a
// domain.
func Classify(text string) cti.TargetType {
	s := strings.TrimSpace(text)
	switch {
	case s == "":
		return cti.TargetUnknown
	case ipv4Pattern.MatchString(s):
		return cti.TargetIP
	case strings.HasPrefix(s, "http") || strings.HasPrefix(s, "www."):
		return cti.TargetURL
	case strings.Contains(s, ".") && !strings.Contains(s, "/"):
		return cti.TargetDomain
	default:
		return cti.TargetUnknown
	}
}

// New validates raw and builds the ScanTarget for one request. Empty input is
// rejected here, before any network call.
func New(raw string) (cti.ScanTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return cti.ScanTarget{}, fmt.Errorf("empty input: %w", cti.ErrInvalidInput)
	}
	if len(s) > MaxInputLength {
		return cti.ScanTarget{}, fmt.Errorf("input longer than %d characters: %w", MaxInputLength, cti.ErrInvalidInput)
	}
	return cti.ScanTarget{RawInput: s, Type: Classify(s)}, nil
}

// Label returns the human-readable name of a target type.
func Label(t cti.TargetType) string {
	switch t {
	case cti.TargetIP:
		return "IP Address"
	case cti.TargetURL:
		return "URL/Website"
	case cti.TargetDomain:
		return "Domain"
	default:
		return "Unknown"
	}
}
