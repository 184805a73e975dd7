package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/chunker"
	"finsight/internal/domain"
	"finsight/internal/embedding"
	"finsight/internal/resilience"
	"finsight/internal/vectorstore/memory"
)

func newPipeline(t *testing.T, store domain.VectorStore, emb domain.Embedder) *Pipeline {
	t.Helper()
	ch, err := chunker.New(64, 8)
	require.NoError(t, err)
	cfg := resilience.DefaultConfig()
	cfg.InitialInterval = 0
	cfg.MaxInterval = 0
	return New(ch, emb, store, WithRetryConfig(cfg))
}

func searchAll(t *testing.T, store *memory.Store, emb domain.Embedder, symbol string) []domain.Hit {
	t.Helper()
	vec, err := emb.Embed(context.Background(), "anything")
	require.NoError(t, err)
	hits, err := store.Search(context.Background(), vec, 100, symbol)
	require.NoError(t, err)
	return hits
}

func TestIngest_StoresChunks(t *testing.T) {
	store := memory.NewStore()
	emb := embedding.NewHashEmbedder(16)
	p := newPipeline(t, store, emb)

	text := strings.Repeat("TCS quarterly revenue grew on strong deal wins. ", 6)
	err := p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: text, Revision: "v1"}})
	require.NoError(t, err)

	hits := searchAll(t, store, emb, "TCS")
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "TCS", h.Chunk.Symbol)
		assert.Equal(t, "v1", h.Chunk.SourceRevision)
		assert.Len(t, h.Chunk.Embedding, 16)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	store := memory.NewStore()
	emb := embedding.NewHashEmbedder(16)
	p := newPipeline(t, store, emb)

	docs := []domain.RawDocument{{Text: "Infosys raised its FY26 guidance.", Revision: "v1"}}
	require.NoError(t, p.Ingest(context.Background(), "INFY", docs))
	first := searchAll(t, store, emb, "INFY")

	require.NoError(t, p.Ingest(context.Background(), "INFY", docs))
	second := searchAll(t, store, emb, "INFY")

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, second[i].Chunk.ID)
	}
}

func TestIngest_NewRevisionReplacesOld(t *testing.T) {
	store := memory.NewStore()
	emb := embedding.NewHashEmbedder(16)
	p := newPipeline(t, store, emb)

	ctx := context.Background()
	require.NoError(t, p.Ingest(ctx, "TCS", []domain.RawDocument{{Text: "old filing text", Revision: "v1"}}))
	require.NoError(t, p.Ingest(ctx, "TCS", []domain.RawDocument{{Text: "new filing text", Revision: "v2"}}))

	for _, h := range searchAll(t, store, emb, "TCS") {
		assert.Equal(t, "v2", h.Chunk.SourceRevision)
	}
}

func TestIngest_EmptyInputs(t *testing.T) {
	store := memory.NewStore()
	emb := embedding.NewHashEmbedder(16)
	p := newPipeline(t, store, emb)

	err := p.Ingest(context.Background(), "", []domain.RawDocument{{Text: "x", Revision: "v1"}})
	require.ErrorIs(t, err, domain.ErrConfiguration)

	require.NoError(t, p.Ingest(context.Background(), "TCS", nil))
	require.NoError(t, p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: "", Revision: "v1"}}))
	assert.Empty(t, searchAll(t, store, emb, "TCS"))
}

// failEmbedder always fails so retries are exercised and the error
// taxonomy can be asserted.
type failEmbedder struct{ dim int }

func (f *failEmbedder) Name() string   { return "fail" }
func (f *failEmbedder) Dimension() int { return f.dim }

func (f *failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: backend down", domain.ErrEmbedding)
}

func (f *failEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: backend down", domain.ErrEmbedding)
}

func TestIngest_EmbeddingFailureIsIngestionError(t *testing.T) {
	store := memory.NewStore()
	p := newPipeline(t, store, &failEmbedder{dim: 16})

	err := p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: "some text", Revision: "v1"}})
	require.ErrorIs(t, err, domain.ErrIngestion)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Empty(t, searchAll(t, store, embedding.NewHashEmbedder(16), "TCS"))
}

// failStore rejects every upsert.
type failStore struct{}

func (failStore) Upsert(context.Context, string, string, []domain.DocumentChunk) error {
	return fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func (failStore) Search(context.Context, []float32, int, string) ([]domain.Hit, error) {
	return nil, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func (failStore) DeleteSymbol(context.Context, string) error {
	return fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func TestIngest_StoreFailureIsIngestionError(t *testing.T) {
	p := newPipeline(t, failStore{}, embedding.NewHashEmbedder(16))

	err := p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: "some text", Revision: "v1"}})
	require.ErrorIs(t, err, domain.ErrIngestion)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// gateEmbedder blocks EmbedBatch until released, signalling when a
// call has entered embedding.
type gateEmbedder struct {
	inner   domain.Embedder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateEmbedder) Name() string   { return g.inner.Name() }
func (g *gateEmbedder) Dimension() int { return g.inner.Dimension() }

func (g *gateEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.inner.Embed(ctx, text)
}

func (g *gateEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	gated := false
	g.once.Do(func() {
		gated = true
		close(g.entered)
	})
	if gated {
		<-g.release
	}
	return g.inner.EmbedBatch(ctx, texts)
}

func TestIngest_LaterCallSupersedesEarlier(t *testing.T) {
	store := memory.NewStore()
	hash := embedding.NewHashEmbedder(16)
	gate := &gateEmbedder{
		inner:   hash,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := newPipeline(t, store, gate)

	done := make(chan error, 1)
	go func() {
		done <- p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: "stale document", Revision: "v1"}})
	}()

	// Wait for the first call to start embedding, then land a newer
	// revision while it is stuck.
	<-gate.entered
	require.NoError(t, p.Ingest(context.Background(), "TCS", []domain.RawDocument{{Text: "fresh document", Revision: "v2"}}))

	close(gate.release)
	require.NoError(t, <-done)

	hits := searchAll(t, store, hash, "TCS")
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "v2", h.Chunk.SourceRevision)
	}
}

func TestIngest_DifferentSymbolsInParallel(t *testing.T) {
	store := memory.NewStore()
	emb := embedding.NewHashEmbedder(16)
	p := newPipeline(t, store, emb)

	symbols := []string{"TCS", "INFY", "RELIANCE", "HDFCBANK"}
	var wg sync.WaitGroup
	errs := make([]error, len(symbols))
	for i, sym := range symbols {
		i, sym := i, sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := domain.RawDocument{Text: sym + " posted results.", Revision: "v1"}
			errs[i] = p.Ingest(context.Background(), sym, []domain.RawDocument{doc})
		}()
	}
	wg.Wait()

	for i, sym := range symbols {
		require.NoError(t, errs[i])
		assert.NotEmpty(t, searchAll(t, store, emb, sym))
	}
}
