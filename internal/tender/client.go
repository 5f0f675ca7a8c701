package tender

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

var ErrClientNotFound = errors.New("client profile not found")

// ClientProfile describes what kind of tenders a business is interested in.
type ClientProfile struct {
	ID                     string   `json:"id" yaml:"id"`
	BusinessName           string   `json:"business_name" yaml:"business-name"`
	Keywords               []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	PreferredLocation      string   `json:"preferred_location,omitempty" yaml:"preferred-location,omitempty"`
	PreferredContractValue float64  `json:"preferred_contract_value,omitempty" yaml:"preferred-contract-value,omitempty"`
	PreferredCPVs          []string `json:"preferred_cpvs,omitempty" yaml:"preferred-cpvs,omitempty"`
	AdditionalPreferences  string   `json:"additional_preferences,omitempty" yaml:"additional-preferences,omitempty"`
}

type ClientProfiles struct {
	Items []*ClientProfile `yaml:"clients"`
}

// LoadClientProfiles reads the profile store. A missing or empty file yields an empty store.
func LoadClientProfiles(path string) (*ClientProfiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ClientProfiles{}, nil
		}
		return nil, err
	}

	profiles := &ClientProfiles{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return profiles, nil
	}

	if err := yaml.Unmarshal(data, profiles); err != nil {
		return nil, fmt.Errorf("decode client profiles %s: %w", path, err)
	}

	for _, p := range profiles.Items {
		p.Keywords = cleanList(p.Keywords)
		p.PreferredCPVs = cleanList(p.PreferredCPVs)
	}

	return profiles, nil
}

func (c *ClientProfiles) ToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (c *ClientProfiles) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

func (c *ClientProfiles) FindByID(id string) *ClientProfile {
	for _, p := range c.Items {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Add appends a profile. The id must be set and unique.
func (c *ClientProfiles) Add(p *ClientProfile) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return errors.New("client profile id is required")
	}
	if c.FindByID(p.ID) != nil {
		return fmt.Errorf("client profile %s already exists", p.ID)
	}

	c.Items = append(c.Items, p)
	return nil
}

// Delete removes the profile with the given id preserving the order of the rest.
func (c *ClientProfiles) Delete(id string) error {
	for idx, p := range c.Items {
		if p.ID == id {
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrClientNotFound, id)
}

// SplitList splits a comma separated form value, trimming entries and dropping empty ones.
func SplitList(s string) []string {
	return cleanList(strings.Split(s, ","))
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

const maxKeywordsWidth = 40

// WriteTable lists the profiles as an aligned text table.
func (c *ClientProfiles) WriteTable(w io.Writer) error {
	rows := [][]string{{"ID", "BUSINESS", "LOCATION", "VALUE", "KEYWORDS"}}
	for _, p := range c.Items {
		value := "Any"
		if p.PreferredContractValue > 0 {
			value = FormatValue(p.PreferredContractValue)
		}
		rows = append(rows, []string{
			p.ID,
			runewidth.Truncate(p.BusinessName, maxClientWidth, "..."),
			p.PreferredLocation,
			value,
			runewidth.Truncate(strings.Join(p.Keywords, ", "), maxKeywordsWidth, "..."),
		})
	}
	return writeTable(w, rows)
}
