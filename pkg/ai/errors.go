package ai

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding provider is unreachable
	// or misconfigured. Callers surface it; they never invent a vector.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrMalformedAnalysis indicates the analyzer returned a payload that
	// cannot be parsed as the expected structured result. No partial or
	// best-guess analysis is ever synthesized from such a response.
	ErrMalformedAnalysis = errors.New("malformed analysis response")
)
