// Package apperr defines the error taxonomy shared by the library store,
// the codec and the ingestion pipeline. Callers match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrExtraction         = errors.New("extraction failed")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrCorruption         = errors.New("stored content is corrupted")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
