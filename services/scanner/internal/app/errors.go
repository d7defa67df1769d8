package app

import "errors"

var (
	// ErrScanNotFound indicates an unknown scan reference.
	ErrScanNotFound = errors.New("scan not found")
	// ErrInvalidRequest indicates the caller supplied a bad payload.
	ErrInvalidRequest = errors.New("invalid request")
)
