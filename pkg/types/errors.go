package types

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested document is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrParseFailure is returned when source parsing fails.
	// The extractor recovers from it locally; callers only see it in logs.
	ErrParseFailure = errors.New("parse failure")

	// ErrEmbeddingUnavailable is returned when the embedding provider is
	// unreachable, times out, or returns a non-success status.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable is returned when the context store cannot be opened.
	ErrStoreUnavailable = errors.New("context store unavailable")

	// ErrStoreTransaction is returned when an upsert transaction fails and
	// is rolled back.
	ErrStoreTransaction = errors.New("store transaction failed")

	// ErrDimensionMismatch is returned when an upsert carries a vector whose
	// length differs from the store's established dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
