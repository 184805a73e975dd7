package retriever

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/domain"
	"finsight/internal/resilience"
	"finsight/internal/vectorstore/memory"
)

// stubEmbedder returns canned vectors keyed by text.
type stubEmbedder struct {
	vecs map[string][]float32
	dim  int
	err  error
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return make([]float32, s.dim), nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// stubDirectory returns a fixed match list.
type stubDirectory struct {
	matches []domain.CompanyMatch
	err     error
}

func (s *stubDirectory) Search(context.Context, string, int) ([]domain.CompanyMatch, error) {
	return s.matches, s.err
}

func (s *stubDirectory) ReplaceAll(context.Context, []domain.CompanyRecord) error { return nil }

func fastRetry() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.InitialInterval = 0
	cfg.MaxInterval = 0
	return cfg
}

func seedStore(t *testing.T, store *memory.Store, symbol string, n int, vec []float32) {
	t.Helper()
	chunks := make([]domain.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = domain.DocumentChunk{
			Text:      fmt.Sprintf("%s doc %d", symbol, i),
			Embedding: vec,
		}
	}
	require.NoError(t, store.Upsert(context.Background(), symbol, "v1", chunks))
}

func TestRetrieve_ScopedWhenEnoughChunksExist(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "TCS", 5, []float32{1, 0})
	seedStore(t, store, "INFY", 5, []float32{1, 0})

	emb := &stubEmbedder{dim: 2, vecs: map[string][]float32{"latest news": {1, 0}}}
	r := New(emb, store, nil, WithRetryConfig(fastRetry()))

	res, err := r.Retrieve(context.Background(), "latest news", "TCS", 5)
	require.NoError(t, err)
	require.Len(t, res.Hits, 5)
	for _, h := range res.Hits {
		assert.Equal(t, "TCS", h.Chunk.Symbol)
		assert.True(t, h.Scoped)
	}
}

func TestRetrieve_SupplementsWithUnscopedResults(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "TCS", 2, []float32{1, 0})
	seedStore(t, store, "INFY", 4, []float32{0.9, 0.1})

	emb := &stubEmbedder{dim: 2, vecs: map[string][]float32{"latest news": {1, 0}}}
	r := New(emb, store, nil, WithRetryConfig(fastRetry()))

	res, err := r.Retrieve(context.Background(), "latest news", "TCS", 5)
	require.NoError(t, err)
	require.Len(t, res.Hits, 5)

	scoped := 0
	ids := map[string]struct{}{}
	for _, h := range res.Hits {
		if h.Scoped {
			scoped++
			assert.Equal(t, "TCS", h.Chunk.Symbol)
		}
		_, dup := ids[h.Chunk.ID.String()]
		assert.False(t, dup, "no duplicate chunks after supplementation")
		ids[h.Chunk.ID.String()] = struct{}{}
	}
	assert.Equal(t, 2, scoped)
	// Scoped TCS chunks are closer, so they lead the ranking.
	assert.True(t, res.Hits[0].Scoped)
	assert.True(t, res.Hits[1].Scoped)
}

func TestRetrieve_ResolvesEntityAboveConfidence(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "TCS", 3, []float32{1, 0})

	emb := &stubEmbedder{dim: 2, vecs: map[string][]float32{"how is tcs doing": {1, 0}}}
	dir := &stubDirectory{matches: []domain.CompanyMatch{
		{Record: domain.CompanyRecord{CompanyName: "Tata Consultancy Services", NSESymbol: "TCS"}, Score: 0.9},
	}}
	r := New(emb, store, dir, WithRetryConfig(fastRetry()))

	res, err := r.Retrieve(context.Background(), "how is tcs doing", "", 3)
	require.NoError(t, err)
	require.NotNil(t, res.ResolvedEntity)
	assert.Equal(t, "TCS", res.ResolvedEntity.NSESymbol)
	require.Len(t, res.Hits, 3)
	for _, h := range res.Hits {
		assert.True(t, h.Scoped)
	}
}

func TestRetrieve_LowConfidenceStaysUnscoped(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "TCS", 3, []float32{1, 0})

	emb := &stubEmbedder{dim: 2, vecs: map[string][]float32{"market outlook": {1, 0}}}
	dir := &stubDirectory{matches: []domain.CompanyMatch{
		{Record: domain.CompanyRecord{CompanyName: "Tata Consultancy Services", NSESymbol: "TCS"}, Score: 0.1},
	}}
	r := New(emb, store, dir, WithRetryConfig(fastRetry()))

	res, err := r.Retrieve(context.Background(), "market outlook", "", 3)
	require.NoError(t, err)
	assert.Nil(t, res.ResolvedEntity)
	for _, h := range res.Hits {
		assert.False(t, h.Scoped)
	}
}

func TestRetrieve_DirectoryFailureDegradesToUnscoped(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "TCS", 2, []float32{1, 0})

	emb := &stubEmbedder{dim: 2, vecs: map[string][]float32{"anything": {1, 0}}}
	dir := &stubDirectory{err: fmt.Errorf("%w: directory down", domain.ErrStoreUnavailable)}
	r := New(emb, store, dir, WithRetryConfig(resilience.Config{MaxAttempts: 1}))

	res, err := r.Retrieve(context.Background(), "anything", "", 2)
	require.NoError(t, err)
	assert.Nil(t, res.ResolvedEntity)
	assert.Len(t, res.Hits, 2)
}

func TestRetrieve_EmbedderFailureIsRetrievalError(t *testing.T) {
	store := memory.NewStore()
	emb := &stubEmbedder{dim: 2, err: fmt.Errorf("%w: backend down", domain.ErrEmbedding)}
	r := New(emb, store, nil, WithRetryConfig(resilience.Config{MaxAttempts: 1}))

	_, err := r.Retrieve(context.Background(), "q", "", 3)
	require.ErrorIs(t, err, domain.ErrRetrieval)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestRetrieve_EmptyStoreIsNotAnError(t *testing.T) {
	store := memory.NewStore()
	emb := &stubEmbedder{dim: 2}
	r := New(emb, store, nil, WithRetryConfig(fastRetry()))

	res, err := r.Retrieve(context.Background(), "anything at all", "", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Nil(t, res.ResolvedEntity)
}

func TestRetrieve_InvalidK(t *testing.T) {
	r := New(&stubEmbedder{dim: 2}, memory.NewStore(), nil)
	_, err := r.Retrieve(context.Background(), "q", "", 0)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
