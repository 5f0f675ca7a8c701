package scoring

import (
	"errors"
	"fmt"
)

// Criteria holds the weights and thresholds of the rule based scorer.
type Criteria struct {
	DescriptionWeight float64 `mapstructure:"description-weight" json:"description_weight"`
	LocationWeight    float64 `mapstructure:"location-weight" json:"location_weight"`
	ValueWeight       float64 `mapstructure:"value-weight" json:"value_weight"`
	// CPVBonus is added to the weighted total before normalisation.
	CPVBonus float64 `mapstructure:"cpv-bonus" json:"cpv_bonus"`
	// MinimumScore is the base score a pair needs to be reported at all.
	MinimumScore float64 `mapstructure:"minimum-score" json:"minimum_score"`
	// AIThreshold is the base score from which a pair is sent for analysis.
	AIThreshold float64 `mapstructure:"ai-threshold" json:"ai_threshold"`
}

func DefaultCriteria() Criteria {
	return Criteria{
		DescriptionWeight: 0.8,
		LocationWeight:    0.1,
		ValueWeight:       0.1,
		CPVBonus:          0.1,
		MinimumScore:      0.3,
		AIThreshold:       0.6,
	}
}

func (c Criteria) Validate() error {
	weights := map[string]float64{
		"description weight": c.DescriptionWeight,
		"location weight":    c.LocationWeight,
		"value weight":       c.ValueWeight,
		"cpv bonus":          c.CPVBonus,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, w)
		}
	}

	if c.DescriptionWeight+c.LocationWeight+c.ValueWeight == 0 {
		return errors.New("at least one of description, location or value weight must be positive")
	}

	if c.MinimumScore < 0 || c.MinimumScore > 1 {
		return fmt.Errorf("minimum score must be within [0,1], got %v", c.MinimumScore)
	}
	if c.AIThreshold < 0 || c.AIThreshold > 1 {
		return fmt.Errorf("ai threshold must be within [0,1], got %v", c.AIThreshold)
	}
	if c.AIThreshold < c.MinimumScore {
		return fmt.Errorf("ai threshold (%v) must not be lower than minimum score (%v)", c.AIThreshold, c.MinimumScore)
	}

	return nil
}
