package companies

import (
	"context"
	"sort"
	"strings"
	"sync"

	"finsight/internal/domain"
)

// MemoryDirectory is an in-process company directory. It mirrors the
// matching policy of the Postgres directory and backs tests and offline
// use.
type MemoryDirectory struct {
	mu        sync.RWMutex
	records   []domain.CompanyRecord
	threshold float64
}

func NewMemoryDirectory(threshold float64) *MemoryDirectory {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &MemoryDirectory{threshold: threshold}
}

// ReplaceAll overwrites the directory contents from a feed refresh.
func (d *MemoryDirectory) ReplaceAll(_ context.Context, records []domain.CompanyRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append([]domain.CompanyRecord(nil), records...)
	return nil
}

// match tiers, best first
const (
	tierExact = iota
	tierSimilarity
	tierContainment
)

// Search ranks records by exact bse_code/isin match first, then trigram
// similarity over name and symbols, then substring containment. Ties
// break on company name ascending. No match yields an empty result.
func (d *MemoryDirectory) Search(_ context.Context, query string, limit int) ([]domain.CompanyMatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	type candidate struct {
		match domain.CompanyMatch
		tier  int
	}
	nq := normalize(query)
	var found []candidate
	for _, rec := range d.records {
		tier, score, ok := classify(rec, query, nq, d.threshold)
		if !ok {
			continue
		}
		found = append(found, candidate{match: domain.CompanyMatch{Record: rec, Score: score}, tier: tier})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].tier != found[j].tier {
			return found[i].tier < found[j].tier
		}
		if found[i].match.Score != found[j].match.Score {
			return found[i].match.Score > found[j].match.Score
		}
		return found[i].match.Record.CompanyName < found[j].match.Record.CompanyName
	})

	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]domain.CompanyMatch, len(found))
	for i, c := range found {
		out[i] = c.match
	}
	return out, nil
}

func classify(rec domain.CompanyRecord, query, nq string, threshold float64) (tier int, score float64, ok bool) {
	// Exact identifier match is case-sensitive and always ranks first.
	if (rec.BSECode != "" && rec.BSECode == query) || (rec.ISIN != "" && rec.ISIN == query) {
		return tierExact, 1, true
	}

	best := 0.0
	contains := false
	for _, field := range []string{rec.CompanyName, rec.NSESymbol, rec.BSESymbol} {
		if field == "" {
			continue
		}
		nf := normalize(field)
		if sim := similarity(nf, nq); sim > best {
			best = sim
		}
		if strings.Contains(nf, nq) {
			contains = true
		}
	}
	if best >= threshold {
		return tierSimilarity, best, true
	}
	if contains {
		return tierContainment, best, true
	}
	return 0, 0, false
}
