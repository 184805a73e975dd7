// Package postgres implements the vector store on PostgreSQL with the
// pgvector extension. Chunks are partitioned by symbol and versioned by
// source revision; similarity search uses cosine distance.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"finsight/internal/domain"
)

// Store persists document chunks in a document_chunks table with a
// vector(N) embedding column.
type Store struct {
	db        *sqlx.DB
	dimension int
}

// NewStore creates a store over an open connection pool. dimension is
// the embedding size the table is declared with.
func NewStore(db *sqlx.DB, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension %d must be positive", domain.ErrConfiguration, dimension)
	}
	return &Store{db: db, dimension: dimension}, nil
}

// EnsureSchema creates the pgvector extension, the chunk table and its
// indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			source_revision TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_symbol ON document_chunks (symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
			ON document_chunks USING ivfflat (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("ensure schema", err)
		}
	}
	return nil
}

// Upsert replaces all chunks for symbol whose stored source revision
// differs from revision, in one transaction. If the (symbol, revision)
// pair is already present the call only clears stale revisions.
func (s *Store) Upsert(ctx context.Context, symbol, revision string, chunks []domain.DocumentChunk) error {
	for _, ch := range chunks {
		if len(ch.Embedding) != s.dimension {
			return fmt.Errorf("%w: embedding dimension %d does not match store dimension %d",
				domain.ErrConfiguration, len(ch.Embedding), s.dimension)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE symbol = $1 AND source_revision <> $2`,
		symbol, revision); err != nil {
		return storeErr("delete stale revisions", err)
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM document_chunks WHERE symbol = $1 AND source_revision = $2)`,
		symbol, revision); err != nil {
		return storeErr("check revision", err)
	}
	if !exists {
		now := time.Now()
		for _, ch := range chunks {
			id := ch.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			createdAt := ch.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO document_chunks (id, symbol, text, embedding, source_revision, created_at)
				 VALUES ($1, $2, $3, $4::vector, $5, $6)`,
				id, symbol, ch.Text, formatVector(ch.Embedding), revision, createdAt); err != nil {
				return storeErr("insert chunk", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

// Search returns the k chunks nearest to query by cosine distance,
// optionally restricted to symbol. Equal distances rank newer chunks
// first.
func (s *Store) Search(ctx context.Context, query []float32, k int, symbol string) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	q := `SELECT id, symbol, text, source_revision, created_at,
	             embedding <=> $1::vector AS distance
	      FROM document_chunks`
	args := []interface{}{formatVector(query)}
	if symbol != "" {
		q += ` WHERE symbol = $2`
		args = append(args, symbol)
	}
	q += fmt.Sprintf(` ORDER BY distance ASC, created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, k)

	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("similarity search", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []domain.Hit
	for rows.Next() {
		var (
			ch       domain.DocumentChunk
			distance float64
		)
		if err := rows.Scan(&ch.ID, &ch.Symbol, &ch.Text, &ch.SourceRevision, &ch.CreatedAt, &distance); err != nil {
			return nil, storeErr("scan search row", err)
		}
		hits = append(hits, domain.Hit{Chunk: ch, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read search rows", err)
	}
	return hits, nil
}

// DeleteSymbol removes every chunk for symbol.
func (s *Store) DeleteSymbol(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE symbol = $1`, symbol); err != nil {
		return storeErr("delete symbol", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// formatVector renders a pgvector literal: [0.1,0.2,...].
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
