package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CompanyRecord is a canonical listed-company identity. At least one
// identifying field is non-empty.
type CompanyRecord struct {
	CompanyName string
	NSESymbol   string
	BSESymbol   string
	BSECode     string
	ISIN        string
}

// Symbol returns the preferred trading symbol for scoping retrieval,
// NSE first, then BSE.
func (r CompanyRecord) Symbol() string {
	if r.NSESymbol != "" {
		return r.NSESymbol
	}
	return r.BSESymbol
}

// CompanyMatch is a resolver candidate with its lexical similarity score
// in [0, 1]. Exact identifier matches score 1.
type CompanyMatch struct {
	Record CompanyRecord
	Score  float64
}

// RawDocument is an unprocessed source document handed to ingestion.
// Revision is an opaque version marker for the document's source.
type RawDocument struct {
	Text     string
	Revision string
}

// DocumentChunk is the unit of embedding and retrieval.
type DocumentChunk struct {
	ID             uuid.UUID
	Symbol         string
	Text           string
	Embedding      []float32
	SourceRevision string
	CreatedAt      time.Time
}

// Hit is a retrieved chunk with its cosine distance to the query vector.
// Scoped marks hits returned by the symbol-restricted search pass.
type Hit struct {
	Chunk    DocumentChunk
	Distance float64
	Scoped   bool
}

// RetrievalResult is the transient outcome of one retrieve call.
type RetrievalResult struct {
	Hits           []Hit
	ResolvedEntity *CompanyRecord
}

// ContextBudget bounds how much retrieved context is admitted into a
// prompt. A zero limit disables that axis; negative limits are invalid.
type ContextBudget struct {
	MaxChunks int
	MaxChars  int
}

// GenerateOptions configures a single generation call.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// GenerateResult is the output of the generation capability.
type GenerateResult struct {
	Text       string
	TokensUsed int
}

// Embedder maps text to a fixed-dimension vector. Dimension reports the
// output size once known; implementations may learn it on first use.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists document chunks and serves nearest-neighbour
// queries. Upsert replaces every chunk for the symbol whose stored
// source revision differs from revision, atomically; re-upserting the
// same revision is a no-op. Search returns the k chunks closest to the
// query vector by cosine distance, optionally restricted to symbol,
// newest-first on equal distance.
type VectorStore interface {
	Upsert(ctx context.Context, symbol, revision string, chunks []DocumentChunk) error
	Search(ctx context.Context, query []float32, k int, symbol string) ([]Hit, error)
	DeleteSymbol(ctx context.Context, symbol string) error
}

// Directory looks up canonical company records. Search returns scored
// candidates best-first; an empty result is a valid outcome, never an
// error. ReplaceAll overwrites the directory from a source feed refresh.
type Directory interface {
	Search(ctx context.Context, query string, limit int) ([]CompanyMatch, error)
	ReplaceAll(ctx context.Context, records []CompanyRecord) error
}

// Generator is the opaque language-model capability that turns a
// grounding prompt into an answer.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (GenerateResult, error)
}
