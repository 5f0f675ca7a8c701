package tender

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"
)

// AIReasonPrefix labels reasons that came from the external analysis.
const AIReasonPrefix = "AI Analysis: "

// MatchResult is a tender/client pair that passed the inclusion threshold.
type MatchResult struct {
	Tender  *Contract      `json:"tender"`
	Client  *ClientProfile `json:"client"`
	Score   float64        `json:"match_score"`
	Reasons []string       `json:"match_reasons"`
	// AIAssisted is set when Score combines the rule score with an analysis score.
	AIAssisted bool `json:"ai_assisted,omitempty"`
}

type MatchResults struct {
	Items []*MatchResult
}

func (m *MatchResults) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Items)
}

// SortByScore orders results by score, highest first. Equal scores keep their current order.
func (m *MatchResults) SortByScore() {
	sort.SliceStable(m.Items, func(i, j int) bool {
		return m.Items[i].Score > m.Items[j].Score
	})
}

// SuitabilityLabel buckets a match score for display.
func SuitabilityLabel(score float64) string {
	switch {
	case score >= 0.9:
		return "Highly Suitable"
	case score >= 0.6:
		return "Potentially Suitable"
	default:
		return "Not Suitable"
	}
}

// ReportByClient groups results by client, keeping the ranking inside each group.
func (m *MatchResults) ReportByClient() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, r := range m.Items {
		key := fmt.Sprintf("%s (%s)", r.Client.BusinessName, r.Client.ID)
		report[key] = append(report[key], map[string]string{
			"tender":      r.Tender.Title,
			"buyer":       r.Tender.Buyer,
			"url":         r.Tender.NoticeURL,
			"deadline":    r.Tender.Deadline,
			"score":       fmt.Sprintf("%.1f%%", r.Score*100),
			"suitability": SuitabilityLabel(r.Score),
			"reasons":     strings.Join(r.Reasons, "; "),
		})
	}
	return report
}

func (m *MatchResults) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := m.WriteJSON(file); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (m *MatchResults) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Items)
}

const (
	maxTitleWidth  = 48
	maxClientWidth = 28
)

// WriteTable renders the first limit results as an aligned text table. A
// non-positive limit renders everything.
func (m *MatchResults) WriteTable(w io.Writer, limit int) error {
	items := m.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	rows := [][]string{{"#", "SCORE", "SUITABILITY", "CLIENT", "TENDER", "VALUE", "DEADLINE"}}
	for i, r := range items {
		value := "Not stated"
		if r.Tender.HasValue() {
			value = FormatValue(r.Tender.Value)
		}
		score := fmt.Sprintf("%.1f%%", r.Score*100)
		if r.AIAssisted {
			score += "*"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			score,
			SuitabilityLabel(r.Score),
			runewidth.Truncate(r.Client.BusinessName, maxClientWidth, "..."),
			runewidth.Truncate(r.Tender.Title, maxTitleWidth, "..."),
			value,
			r.Tender.Deadline,
		})
	}

	return writeTable(w, rows)
}
