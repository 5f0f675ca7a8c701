// Package scoring implements the deterministic rule based tender/client scorer.
package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/spigell/tender-matcher/internal/tender"
)

const (
	noMatchReason = "No specific matches found"
	cpvReason     = "CPV code matches client preferences"

	// valueTolerance is the accepted relative deviation from the preferred value.
	valueTolerance = 0.3
)

var nationwideMarkers = []string{"uk wide", "nationwide"}

// Result is the outcome of scoring a single pair.
type Result struct {
	Score   float64
	Reasons []string
}

// Model scores tenders against client profiles. It is safe for concurrent use.
type Model struct {
	criteria Criteria
}

func NewModel(criteria Criteria) *Model {
	return &Model{criteria: criteria}
}

func (m *Model) Criteria() Criteria {
	return m.criteria
}

// Score never fails: missing data yields a low score with a reason, not an error.
func (m *Model) Score(contract *tender.Contract, client *tender.ClientProfile) Result {
	if contract == nil || client == nil {
		return Result{Score: 0, Reasons: []string{noMatchReason}}
	}

	descWeight := nonNegative(m.criteria.DescriptionWeight)
	locWeight := nonNegative(m.criteria.LocationWeight)
	valueWeight := nonNegative(m.criteria.ValueWeight)

	var (
		reasons []string
		total   float64
	)

	// A zero weight disables the criterion, including its reason.
	if descWeight > 0 {
		keywordScore, matched := keywordMatch(contract.Title+" "+contract.Description, client.Keywords)
		total += keywordScore * descWeight
		if len(matched) > 0 {
			reasons = append(reasons, "Found expertise matches: "+strings.Join(matched, ", "))
		}
	}

	if locWeight > 0 && locationMatch(contract.Region, client.PreferredLocation) {
		total += locWeight
		reasons = append(reasons, fmt.Sprintf("Location match: %s aligns with preferred location %s",
			contract.Region, client.PreferredLocation))
	}

	if valueWeight > 0 && valueMatch(contract.Value, client.PreferredContractValue) {
		total += valueWeight
		if contract.HasValue() {
			reasons = append(reasons, fmt.Sprintf("Contract value %s matches preferred value", tender.FormatValue(contract.Value)))
		} else {
			reasons = append(reasons, "Contract value not specified - considered compatible")
		}
	}

	if bonus := nonNegative(m.criteria.CPVBonus); bonus > 0 && cpvMatch(contract, client.PreferredCPVs) {
		total += bonus
		reasons = append(reasons, cpvReason)
	}

	score := 0.0
	if weightSum := descWeight + locWeight + valueWeight; weightSum > 0 {
		score = clamp(total / weightSum)
	}

	if len(reasons) == 0 {
		reasons = []string{noMatchReason}
	}

	return Result{Score: score, Reasons: reasons}
}

// keywordMatch returns the share of keywords found as whole words (or with an
// "s"/"ing" suffix) in text, and the matched keywords as given.
func keywordMatch(text string, keywords []string) (float64, []string) {
	lower := strings.ToLower(text)

	var matched []string
	for _, keyword := range keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}

		q := regexp.QuoteMeta(kw)
		re, err := regexp.Compile(`\b` + q + `\b|\b` + q + `s\b|\b` + q + `ing\b`)
		if err != nil {
			continue
		}
		if re.MatchString(lower) {
			matched = append(matched, keyword)
		}
	}

	total := len(keywords)
	if total < 1 {
		total = 1
	}

	return clamp(float64(len(matched)) / float64(total)), matched
}

func locationMatch(region, preferred string) bool {
	region = strings.ToLower(strings.TrimSpace(region))
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if region == "" || preferred == "" {
		return false
	}

	for _, marker := range nationwideMarkers {
		if strings.Contains(preferred, marker) {
			return true
		}
	}

	return strings.Contains(region, preferred) || strings.Contains(preferred, region)
}

// valueMatch treats an unstated value on either side as compatible.
func valueMatch(value, preferred float64) bool {
	if value == 0 || preferred == 0 {
		return true
	}

	lower := preferred * (1 - valueTolerance)
	upper := preferred * (1 + valueTolerance)
	return value >= lower && value <= upper
}

func cpvMatch(contract *tender.Contract, preferred []string) bool {
	for _, cpv := range preferred {
		cpv = strings.TrimSpace(cpv)
		if cpv == "" {
			continue
		}
		if strings.Contains(contract.CPVLevel1, cpv) || strings.Contains(contract.CPVLevel2, cpv) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
