package vector

import "errors"

var (
	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensions is returned when an embedding does not match the store's dimensionality.
	ErrDimensions = errors.New("embedding dimensions mismatch")
)
