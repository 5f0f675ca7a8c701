package tender

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Contract is a published procurement opportunity. It is never mutated after ingestion.
type Contract struct {
	Title     string  `json:"title" mapstructure:"Contract Title"`
	NoticeURL string  `json:"notice_url,omitempty" mapstructure:"Contract Notice Url"`
	Value     float64 `json:"value,omitempty" mapstructure:"Total Contract Value - High (GBP)"`
	// Deadline is kept exactly as published.
	Deadline    string `json:"deadline,omitempty" mapstructure:"BID Deadline Date"`
	Buyer       string `json:"buyer,omitempty" mapstructure:"Contracting Authority"`
	Description string `json:"description,omitempty" mapstructure:"Contract Description"`
	CPVLevel1   string `json:"cpv_level_1,omitempty" mapstructure:"CPV Sector - Level 1"`
	CPVLevel2   string `json:"cpv_level_2,omitempty" mapstructure:"CPV Sector - Level 2"`
	Region      string `json:"region,omitempty" mapstructure:"Contracting Authority Region"`
}

type Contracts struct {
	Items []*Contract
}

func (c *Contracts) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// HasValue reports whether the contract states a monetary value.
func (c *Contract) HasValue() bool {
	return c.Value > 0
}

var gbp = message.NewPrinter(language.BritishEnglish)

// FormatValue renders a GBP amount with thousands separators, e.g. £1,250,000.
func FormatValue(v float64) string {
	if v == math.Trunc(v) {
		return gbp.Sprintf("£%.0f", v)
	}
	return gbp.Sprintf("£%.2f", v)
}
