// Package ingest drives the chunk, embed, upsert flow that puts raw
// documents into the vector store. Ingestion for different symbols runs
// in parallel; calls for the same symbol serialize at commit time, and
// an earlier in-flight call is discarded when a later one has arrived.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"finsight/internal/chunker"
	"finsight/internal/domain"
	"finsight/internal/resilience"
)

// DefaultWorkers bounds concurrent embedding batches per ingest call.
const DefaultWorkers = 4

// Pipeline indexes raw documents for a symbol.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder domain.Embedder
	store    domain.VectorStore
	retry    resilience.Config
	logger   *slog.Logger
	workers  int

	mu      sync.Mutex
	arrival map[string]uint64
	commits map[string]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithRetryConfig(cfg resilience.Config) Option {
	return func(p *Pipeline) { p.retry = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

func New(ch *chunker.Chunker, embedder domain.Embedder, store domain.VectorStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker:  ch,
		embedder: embedder,
		store:    store,
		retry:    resilience.DefaultConfig(),
		logger:   slog.Default(),
		workers:  DefaultWorkers,
		arrival:  make(map[string]uint64),
		commits:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// revisionGroup collects the chunks derived from every document that
// shares one source revision, in arrival order.
type revisionGroup struct {
	revision string
	texts    []string
	chunks   []domain.DocumentChunk
}

// Ingest chunks and embeds docs, then upserts them for symbol. Calling
// it twice with identical documents leaves the store unchanged. When a
// later call for the same symbol arrives while this one is still
// embedding, this call's result is discarded before commit and Ingest
// returns nil.
func (p *Pipeline) Ingest(ctx context.Context, symbol string, docs []domain.RawDocument) error {
	if symbol == "" {
		return fmt.Errorf("%w: ingest requires a symbol", domain.ErrConfiguration)
	}
	if len(docs) == 0 {
		return nil
	}

	seq, commit := p.register(symbol)

	groups := p.groupByRevision(docs)
	if len(groups) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			vecs, err := resilience.RetryWithResult(gctx, p.retry, func() ([][]float32, error) {
				return p.embedder.EmbedBatch(gctx, grp.texts)
			})
			if err != nil {
				return fmt.Errorf("%w: embedding %d chunks for %s: %w", domain.ErrIngestion, len(grp.texts), symbol, err)
			}
			grp.chunks = make([]domain.DocumentChunk, len(grp.texts))
			for i, text := range grp.texts {
				grp.chunks[i] = domain.DocumentChunk{
					Symbol:         symbol,
					Text:           text,
					Embedding:      vecs[i],
					SourceRevision: grp.revision,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	commit.Lock()
	defer commit.Unlock()
	if p.superseded(symbol, seq) {
		p.logger.Info("discarding superseded ingest", "symbol", symbol)
		return nil
	}
	for _, grp := range groups {
		err := resilience.Retry(ctx, p.retry, func() error {
			return p.store.Upsert(ctx, symbol, grp.revision, grp.chunks)
		})
		if err != nil {
			return fmt.Errorf("%w: upserting revision %q for %s: %w", domain.ErrIngestion, grp.revision, symbol, err)
		}
	}
	p.logger.Info("ingested documents", "symbol", symbol, "documents", len(docs), "revisions", len(groups))
	return nil
}

// register stamps this call with the symbol's next arrival number and
// returns the per-symbol commit lock.
func (p *Pipeline) register(symbol string) (uint64, *sync.Mutex) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arrival[symbol]++
	lock, ok := p.commits[symbol]
	if !ok {
		lock = &sync.Mutex{}
		p.commits[symbol] = lock
	}
	return p.arrival[symbol], lock
}

func (p *Pipeline) superseded(symbol string, seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arrival[symbol] != seq
}

// groupByRevision chunks every document and collects the chunk texts
// per source revision, preserving the order revisions first appear in.
// Documents whose text chunks to nothing are dropped.
func (p *Pipeline) groupByRevision(docs []domain.RawDocument) []*revisionGroup {
	index := make(map[string]*revisionGroup)
	var groups []*revisionGroup
	for _, doc := range docs {
		texts := p.chunker.Split(doc.Text)
		if len(texts) == 0 {
			continue
		}
		grp, ok := index[doc.Revision]
		if !ok {
			grp = &revisionGroup{revision: doc.Revision}
			index[doc.Revision] = grp
			groups = append(groups, grp)
		}
		grp.texts = append(grp.texts, texts...)
	}
	return groups
}
