package domain

import "errors"

// Failure kinds. Callers classify with errors.Is; the wrapped cause
// carries the human-readable detail.
var (
	// ErrConfiguration marks invalid chunking or budget parameters.
	// Never retried; the caller must fix the configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbedding marks an embedding backend failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStoreUnavailable marks an unreachable vector or company store.
	// Retried with bounded backoff before surfacing.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRetrieval is the terminal failure of a retrieval attempt.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrIngestion is the terminal failure of an ingestion attempt.
	// Nothing was committed.
	ErrIngestion = errors.New("ingestion failed")

	// ErrGeneration marks a generation backend failure.
	ErrGeneration = errors.New("generation failed")
)
