// Package memory implements the vector store on an in-process slice
// with brute-force cosine distance. It backs tests and offline use.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"finsight/internal/domain"
)

// Store is an in-memory vector store. The embedding dimension is fixed
// by the first upsert and enforced afterwards.
type Store struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.DocumentChunk
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Upsert replaces every chunk for symbol whose stored revision differs
// from revision. Re-upserting an existing (symbol, revision) pair is a
// no-op.
func (s *Store) Upsert(_ context.Context, symbol, revision string, chunks []domain.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range chunks {
		if s.dimension == 0 {
			s.dimension = len(ch.Embedding)
		}
		if len(ch.Embedding) != s.dimension {
			return fmt.Errorf("%w: embedding dimension %d does not match store dimension %d",
				domain.ErrConfiguration, len(ch.Embedding), s.dimension)
		}
	}

	kept := s.chunks[:0]
	exists := false
	for _, ch := range s.chunks {
		if ch.Symbol == symbol {
			if ch.SourceRevision != revision {
				continue
			}
			exists = true
		}
		kept = append(kept, ch)
	}
	s.chunks = kept
	if exists {
		return nil
	}

	now := s.now()
	for _, ch := range chunks {
		if ch.ID == uuid.Nil {
			ch.ID = uuid.New()
		}
		ch.Symbol = symbol
		ch.SourceRevision = revision
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		s.chunks = append(s.chunks, ch)
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance, optionally
// restricted to symbol. Equal distances rank newer chunks first.
func (s *Store) Search(_ context.Context, query []float32, k int, symbol string) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	var hits []domain.Hit
	for _, ch := range s.chunks {
		if symbol != "" && ch.Symbol != symbol {
			continue
		}
		hits = append(hits, domain.Hit{Chunk: ch, Distance: cosineDistance(query, ch.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.CreatedAt.After(hits[j].Chunk.CreatedAt)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteSymbol removes every chunk for symbol.
func (s *Store) DeleteSymbol(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, ch := range s.chunks {
		if ch.Symbol != symbol {
			kept = append(kept, ch)
		}
	}
	s.chunks = kept
	return nil
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
