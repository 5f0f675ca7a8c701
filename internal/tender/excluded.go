package tender

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

const (
	ContractURLField   = "url"
	ContractBuyerField = "buyer"
)

// ExcludedContracts is the persisted list of notices that should not be matched again.
type ExcludedContracts struct {
	Items []*ExcludedContract `json:"items"`
}

type ExcludedContract struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

func (c *Contracts) ToExcluded() *ExcludedContracts {
	excluded := &ExcludedContracts{}
	for _, contract := range c.Items {
		excluded.Items = append(excluded.Items, &ExcludedContract{
			URL:        contract.NoticeURL,
			Title:      contract.Title,
			Buyer:      contract.Buyer,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// LoadExcludedContracts reads an exclude file. A missing or empty file yields an empty list.
func LoadExcludedContracts(path string) (*ExcludedContracts, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ExcludedContracts{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedContracts{}, nil
	}

	var excluded ExcludedContracts
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedContracts) Append(s *ExcludedContracts) {
	if s == nil {
		return
	}
	e.Items = append(e.Items, s.Items...)
}

func (e *ExcludedContracts) URLs() []string {
	urls := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	return urls
}

func (e *ExcludedContracts) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

func (c *Contract) GetStringField(name string) string {
	switch name {
	case ContractURLField:
		return c.NoticeURL
	case ContractBuyerField:
		return c.Buyer
	default:
		return ""
	}
}

// Exclude removes contracts whose field equals one of targets (case-insensitive)
// and returns the titles of the removed ones. Order of the remaining items is kept.
func (c *Contracts) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = struct{}{}
		}
	}

	var excluded []string
	kept := c.Items[:0]
	for _, contract := range c.Items {
		if _, ok := set[strings.ToLower(strings.TrimSpace(contract.GetStringField(name)))]; ok {
			excluded = append(excluded, contract.Title)
			continue
		}
		kept = append(kept, contract)
	}
	c.Items = kept

	return excluded
}
