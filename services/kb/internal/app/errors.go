package app

import "errors"

var (
	// ErrDocumentNotFound indicates an unknown or deactivated document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyDocument indicates extraction produced no usable text.
	ErrEmptyDocument = errors.New("document has no extractable text")
	// ErrInvalidRequest indicates the caller supplied a bad payload.
	ErrInvalidRequest = errors.New("invalid request")
)
