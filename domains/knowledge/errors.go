package knowledge

import "errors"

var (
	// ErrDocumentNotFound is returned when a doc_id has no chunks for the tenant.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmptyDocument is returned when ingestion produced no usable chunks.
	ErrEmptyDocument = errors.New("document has no extractable text")
)
