// Package assembler turns a retrieval result into the grounding prompt
// handed to the generation backend.
package assembler

import (
	"fmt"
	"strings"

	"finsight/internal/domain"
)

const (
	groundedPreamble = "Answer the question using only the excerpts below. " +
		"Cite the source number of every excerpt you rely on. " +
		"If the excerpts do not contain the answer, say so."

	ungroundedPreamble = "No relevant documents were found for this question. " +
		"Answer from general knowledge and state clearly that the answer " +
		"is not grounded in any retrieved document."
)

// Assembler builds grounding prompts under a context budget.
type Assembler struct {
	budget domain.ContextBudget
}

// New validates the budget and returns an Assembler. A zero value on
// either axis means that axis is unlimited.
func New(budget domain.ContextBudget) (*Assembler, error) {
	if budget.MaxChunks < 0 || budget.MaxChars < 0 {
		return nil, fmt.Errorf("%w: context budget must not be negative, got chunks=%d chars=%d",
			domain.ErrConfiguration, budget.MaxChunks, budget.MaxChars)
	}
	return &Assembler{budget: budget}, nil
}

// Assemble renders the prompt for query over result. Hits are included
// in rank order until the budget runs out; a chunk that would cross the
// character limit is skipped whole, never cut. An empty result produces
// a prompt that tells the model to answer from general knowledge and
// flag the missing context.
func (a *Assembler) Assemble(query string, result domain.RetrievalResult) string {
	var b strings.Builder
	included := a.fit(result.Hits)
	if len(included) == 0 {
		b.WriteString(ungroundedPreamble)
	} else {
		b.WriteString(groundedPreamble)
		if result.ResolvedEntity != nil {
			fmt.Fprintf(&b, "\n\nThe question concerns %s.", result.ResolvedEntity.CompanyName)
		}
		for i, h := range included {
			fmt.Fprintf(&b, "\n\n[source %d] (%s)\n%s", i+1, h.Chunk.Symbol, h.Chunk.Text)
		}
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// fit selects the prefix of hits that satisfies both budget axes.
func (a *Assembler) fit(hits []domain.Hit) []domain.Hit {
	var included []domain.Hit
	chars := 0
	for _, h := range hits {
		if a.budget.MaxChunks > 0 && len(included) >= a.budget.MaxChunks {
			break
		}
		n := len([]rune(h.Chunk.Text))
		if a.budget.MaxChars > 0 && chars+n > a.budget.MaxChars {
			break
		}
		chars += n
		included = append(included, h)
	}
	return included
}
