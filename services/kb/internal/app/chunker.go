package app

import "strings"

// splitChunks cuts text into fixed-size rune windows with a fixed overlap.
// Chunks are not trimmed: concatenating the chunks with the overlapping
// prefixes removed reproduces the input exactly, so answers can cite the
// original text verbatim. Whitespace-only windows are dropped.
func splitChunks(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	chunks := make([]string, 0, (len(runes)/step)+1)
	for off := 0; off < len(runes); off += step {
		end := off + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[off:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
