package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrProducerRequired is returned when a record producer is not provided.
	ErrProducerRequired = errors.New("record producer required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidWorkers is returned when the worker count is < 1.
	ErrInvalidWorkers = errors.New("workers must be greater than 0")
)
