package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/tender"
)

type buyersFilter struct {
	buyers []string
}

// NewExcludedBuyers creates a filter that removes tenders published by the given contracting authorities.
func NewExcludedBuyers(buyers []string) Filter {
	return &buyersFilter{buyers: buyers}
}

func (f *buyersFilter) Name() string { return "buyers" }

func (f *buyersFilter) IsEnabled() bool { return len(f.buyers) > 0 }

func (f *buyersFilter) Apply(_ context.Context, deps Deps, c *tender.Contracts) (*tender.Contracts, Step, error) {
	initial := c.Len()

	excluded := c.Exclude(tender.ContractBuyerField, f.buyers)
	if len(excluded) > 0 {
		deps.Logger.Info("excluding tenders by buyers",
			zap.Strings("excluded_buyers", f.buyers),
			zap.Strings("excluded_tenders", excluded),
			zap.Int("tenders_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *buyersFilter) Status() Status {
	details := map[string]string{}
	if len(f.buyers) > 0 {
		details["buyers"] = strings.Join(f.buyers, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}
