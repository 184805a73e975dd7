package chunker

import (
	"fmt"

	"finsight/internal/domain"
)

// Chunker splits raw text into overlapping fixed-size segments. Splits
// happen on rune boundaries so multibyte characters are never cut.
type Chunker struct {
	maxLen  int
	overlap int
}

// New validates the segmentation parameters and returns a Chunker.
// overlap must be smaller than maxLen.
func New(maxLen, overlap int) (*Chunker, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("%w: chunk max length %d must be positive", domain.ErrConfiguration, maxLen)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap %d must not be negative", domain.ErrConfiguration, overlap)
	}
	if overlap >= maxLen {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than max length %d", domain.ErrConfiguration, overlap, maxLen)
	}
	return &Chunker{maxLen: maxLen, overlap: overlap}, nil
}

// Split segments text into chunks of at most maxLen runes where
// consecutive chunks share exactly overlap runes. Empty input yields no
// chunks. The segmentation is deterministic.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.maxLen - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + c.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			return chunks
		}
	}
}
