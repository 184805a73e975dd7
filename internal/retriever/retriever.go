// Package retriever orchestrates query-time retrieval: entity
// resolution, query embedding, scoped similarity search with unscoped
// supplementation, and the final ranking.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"finsight/internal/domain"
	"finsight/internal/resilience"
)

// DefaultMinConfidence is the resolver score required before a query is
// scoped to the top candidate's symbol.
const DefaultMinConfidence = 0.4

// Retriever answers similarity queries over the vector store. The
// directory is optional; without it every query runs unscoped unless a
// symbol hint is given.
type Retriever struct {
	embedder      domain.Embedder
	store         domain.VectorStore
	directory     domain.Directory
	minConfidence float64
	retry         resilience.Config
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

func WithMinConfidence(score float64) Option {
	return func(r *Retriever) { r.minConfidence = score }
}

func WithRetryConfig(cfg resilience.Config) Option {
	return func(r *Retriever) { r.retry = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

func New(embedder domain.Embedder, store domain.VectorStore, directory domain.Directory, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		store:         store,
		directory:     directory,
		minConfidence: DefaultMinConfidence,
		retry:         resilience.DefaultConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve resolves the query to a symbol (the hint wins over the
// resolver), embeds it, and returns up to k chunks ranked by cosine
// distance. A scoped search that comes up short is supplemented with
// unscoped results; exact distance ties prefer scoped hits. Zero hits
// is a valid outcome.
func (r *Retriever) Retrieve(ctx context.Context, query, symbolHint string, k int) (domain.RetrievalResult, error) {
	var result domain.RetrievalResult
	if k <= 0 {
		return result, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}

	symbol := symbolHint
	if symbol == "" && r.directory != nil {
		matches, err := resilience.RetryWithResult(ctx, r.retry, func() ([]domain.CompanyMatch, error) {
			return r.directory.Search(ctx, query, 1)
		})
		switch {
		case err != nil:
			// Resolution is best-effort: an unreachable directory
			// degrades to an unscoped search instead of failing the
			// whole retrieval.
			r.logger.Warn("entity resolution failed, searching unscoped", "error", err)
		case len(matches) > 0 && matches[0].Score >= r.minConfidence && matches[0].Record.Symbol() != "":
			rec := matches[0].Record
			result.ResolvedEntity = &rec
			symbol = rec.Symbol()
		}
	}

	queryVec, err := resilience.RetryWithResult(ctx, r.retry, func() ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("%w: embedding query: %w", domain.ErrRetrieval, err)
	}

	hits, err := resilience.RetryWithResult(ctx, r.retry, func() ([]domain.Hit, error) {
		return r.store.Search(ctx, queryVec, k, symbol)
	})
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("%w: similarity search: %w", domain.ErrRetrieval, err)
	}
	if symbol != "" {
		for i := range hits {
			hits[i].Scoped = true
		}
		if len(hits) < k {
			hits, err = r.supplement(ctx, queryVec, hits, k)
			if err != nil {
				return domain.RetrievalResult{}, err
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Scoped && !hits[j].Scoped
	})
	result.Hits = hits
	return result, nil
}

// supplement widens a short scoped result with unscoped hits, skipping
// chunks already returned, until k hits are collected or the store is
// exhausted.
func (r *Retriever) supplement(ctx context.Context, queryVec []float32, hits []domain.Hit, k int) ([]domain.Hit, error) {
	global, err := resilience.RetryWithResult(ctx, r.retry, func() ([]domain.Hit, error) {
		return r.store.Search(ctx, queryVec, k, "")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: unscoped similarity search: %w", domain.ErrRetrieval, err)
	}
	seen := make(map[uuid.UUID]struct{}, len(hits))
	for _, h := range hits {
		seen[h.Chunk.ID] = struct{}{}
	}
	for _, h := range global {
		if len(hits) >= k {
			break
		}
		if _, ok := seen[h.Chunk.ID]; ok {
			continue
		}
		seen[h.Chunk.ID] = struct{}{}
		hits = append(hits, h)
	}
	return hits, nil
}
