package ai

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultScore     = 0.5
	maxReasons       = 3
	completedReason  = "Analysis completed"
	unableReasonStem = "Unable to complete analysis: "
)

var (
	// The optional second group catches scores on another scale, e.g. 7/10.
	scorePattern = regexp.MustCompile(`(?i)score\s*:\s*\**\s*([0-9]*\.?[0-9]+)(\s*/\s*[0-9]+)?`)
	// A list marker needs trailing whitespace so "2.5M" stays intact.
	leadingMarkup  = regexp.MustCompile(`^(?:[-*_=]{3,}$|[-*•>]+\s+|#+\s*|\d+[.)]\s+)?\**\s*`)
	trailingMarkup = regexp.MustCompile(`\s*\*+$`)
	reasonLabel    = regexp.MustCompile(`(?i)^ai analysis:\s*\**\s*`)
)

// ParseResponse extracts a score and up to three reasons from free text. It
// never fails: a missing or out of range score becomes 0.5, missing reasons
// become a generic one.
func ParseResponse(raw string) *Assessment {
	score := defaultScore
	if m := scorePattern.FindStringSubmatch(raw); m != nil && m[2] == "" {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil && parsed <= 1 {
			score = parsed
		}
	}

	reasons := make([]string, 0, maxReasons)
	for _, line := range strings.Split(raw, "\n") {
		if len(reasons) == maxReasons {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(strings.ToLower(line), "score:") {
			continue
		}

		if reason := stripMarkup(line); reason != "" {
			reasons = append(reasons, reason)
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, completedReason)
	}

	return &Assessment{
		Score:   score,
		Reasons: reasons,
		Raw:     raw,
	}
}

// stripMarkup removes one list marker, emphasis and the "AI Analysis:" label.
func stripMarkup(line string) string {
	line = leadingMarkup.ReplaceAllString(line, "")
	line = reasonLabel.ReplaceAllString(line, "")
	line = trailingMarkup.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

func fallback(err error) *Assessment {
	return &Assessment{
		Score:    defaultScore,
		Reasons:  []string{unableReasonStem + err.Error()},
		Fallback: true,
	}
}
