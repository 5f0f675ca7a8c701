package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/tender"
)

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes tenders whose notice URL is listed in the exclude file.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) IsEnabled() bool { return f.path != "" }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, c *tender.Contracts) (*tender.Contracts, Step, error) {
	initial := c.Len()

	excluded, err := tender.LoadExcludedContracts(f.path)
	if err != nil {
		return c, Step{}, fmt.Errorf("getting excluded tenders from file: %w", err)
	}

	removed := c.Exclude(tender.ContractURLField, excluded.URLs())
	if len(removed) > 0 {
		deps.Logger.Info("excluding tenders based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_tenders", removed),
			zap.Int("tenders_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(removed), Left: c.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Details: details}
}
