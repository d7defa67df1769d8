package app

import (
	"math"
	"sort"

	"docintel/pkg/domain"
)

// cosineSimilarity returns dot(a,b) / (|a|·|b|). Vectors of different length
// compare on the shorter prefix; a zero-norm vector scores 0 rather than NaN.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankChunks scores every embedded chunk against the query vector and returns
// the top hits ordered by similarity. The sort is stable so chunks with equal
// similarity keep their insertion order.
func rankChunks(queryEmbedding []float32, chunks []domain.Chunk, limit int) []domain.SearchHit {
	hits := make([]domain.SearchHit, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		hits = append(hits, domain.SearchHit{
			Chunk:      chunk,
			Similarity: cosineSimilarity(queryEmbedding, chunk.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
