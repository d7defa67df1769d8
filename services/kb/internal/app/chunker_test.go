package app

import (
	"strings"
	"testing"
)

func TestSplitChunksWindowSizes(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := splitChunks(text, 10, 3)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks, got none")
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if got := len([]rune(chunk)); got != 10 {
			t.Fatalf("chunk %d has %d runes, want 10", i, got)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		curr := []rune(chunks[i])
		tail := string(prev[len(prev)-3:])
		head := string(curr[:3])
		if tail != head {
			t.Fatalf("chunks %d/%d overlap mismatch: %q vs %q", i-1, i, tail, head)
		}
	}
}

func TestSplitChunksReconstructsInput(t *testing.T) {
	text := "The quarterly report covers premiums, claims, and renewals for each registered agent in the province."
	overlap := 7
	chunks := splitChunks(text, 24, overlap)

	var sb strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk)
		if i == 0 {
			sb.WriteString(chunk)
			continue
		}
		sb.WriteString(string(runes[overlap:]))
	}
	if sb.String() != text {
		t.Fatalf("reconstructed text mismatch:\n got %q\nwant %q", sb.String(), text)
	}
}

func TestSplitChunksShortTextSingleChunk(t *testing.T) {
	chunks := splitChunks("short", 100, 10)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Fatalf("chunks = %v, want single %q", chunks, "short")
	}
}

func TestSplitChunksDropsWhitespaceOnly(t *testing.T) {
	if chunks := splitChunks("     \n\t  ", 4, 1); len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace input, got %v", chunks)
	}
	if chunks := splitChunks("", 4, 1); chunks != nil {
		t.Fatalf("expected nil for empty input, got %v", chunks)
	}
}

func TestSplitChunksHandlesMultibyteRunes(t *testing.T) {
	text := strings.Repeat("保険契約者", 5)
	chunks := splitChunks(text, 8, 2)
	for i, chunk := range chunks[:len(chunks)-1] {
		if got := len([]rune(chunk)); got != 8 {
			t.Fatalf("chunk %d has %d runes, want 8", i, got)
		}
	}
}
