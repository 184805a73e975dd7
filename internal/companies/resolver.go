package companies

import (
	"context"

	"finsight/internal/domain"
	"finsight/internal/resilience"
)

// Resolver is the outward entity-resolution seam: it maps a free-text
// query to canonical company records, retrying transient directory
// failures. An empty result is a valid outcome, never an error.
type Resolver struct {
	dir   domain.Directory
	retry resilience.Config
}

func NewResolver(dir domain.Directory) *Resolver {
	return &Resolver{dir: dir, retry: resilience.DefaultConfig()}
}

// Resolve returns up to limit canonical records for query, best first.
func (r *Resolver) Resolve(ctx context.Context, query string, limit int) ([]domain.CompanyRecord, error) {
	matches, err := resilience.RetryWithResult(ctx, r.retry, func() ([]domain.CompanyMatch, error) {
		return r.dir.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.CompanyRecord, len(matches))
	for i, m := range matches {
		records[i] = m.Record
	}
	return records, nil
}
