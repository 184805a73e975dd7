// Package service exposes the question-answering entry point that the
// outer layers (TUI, schedulers, future HTTP handlers) call into.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"finsight/internal/assembler"
	"finsight/internal/domain"
	"finsight/internal/retriever"
)

// DefaultTopK is how many chunks a question retrieves when the caller
// does not say otherwise.
const DefaultTopK = 8

// Answer is a generated response together with the chunks it was
// grounded on.
type Answer struct {
	Text       string
	Sources    []domain.Hit
	Entity     *domain.CompanyRecord
	TokensUsed int
}

// AnswerService answers natural-language questions over the indexed
// documents.
type AnswerService struct {
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	generator domain.Generator
	genOpts   domain.GenerateOptions
	logger    *slog.Logger
}

// Option configures an AnswerService.
type Option func(*AnswerService)

func WithGenerateOptions(opts domain.GenerateOptions) Option {
	return func(s *AnswerService) { s.genOpts = opts }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *AnswerService) { s.logger = logger }
}

func New(r *retriever.Retriever, a *assembler.Assembler, g domain.Generator, opts ...Option) *AnswerService {
	s := &AnswerService{
		retriever: r,
		assembler: a,
		generator: g,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask retrieves context for query, assembles the grounding prompt and
// generates an answer. A k of zero or less uses DefaultTopK. Zero
// retrieved chunks is not a failure; the answer is generated from
// general knowledge and Sources comes back empty.
func (s *AnswerService) Ask(ctx context.Context, query, symbolHint string, k int) (Answer, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	result, err := s.retriever.Retrieve(ctx, query, symbolHint, k)
	if err != nil {
		return Answer{}, err
	}
	prompt := s.assembler.Assemble(query, result)

	gen, err := s.generator.Generate(ctx, prompt, s.genOpts)
	if err != nil {
		return Answer{}, fmt.Errorf("answering %q: %w", query, err)
	}
	s.logger.Info("answered question",
		"chunks", len(result.Hits),
		"scoped", result.ResolvedEntity != nil || symbolHint != "",
		"tokens", gen.TokensUsed)
	return Answer{
		Text:       gen.Text,
		Sources:    result.Hits,
		Entity:     result.ResolvedEntity,
		TokensUsed: gen.TokensUsed,
	}, nil
}
