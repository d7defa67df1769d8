package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedFormat indicates the file's mime type has no extractor.
// Extraction errors are fatal for the request that submitted the file; there
// is no retry at this layer.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts a source file into plain extracted text.
type Extractor interface {
	ExtractText(ctx context.Context, path, mimeType string) (string, error)
}

// Config tunes the file extractor.
type Config struct {
	// OCRCommand is the external OCR binary invoked for image files, e.g.
	// "tesseract". Empty disables image extraction.
	OCRCommand string
	OCRArgs    []string
	OCRTimeout time.Duration
}

// FileExtractor dispatches on mime type: PDF via pdftotext with a Go-library
// fallback, images via an external OCR command, HTML and plain text directly.
type FileExtractor struct {
	ocrCommand string
	ocrArgs    []string
	ocrTimeout time.Duration
}

// NewFileExtractor builds an extractor from config.
func NewFileExtractor(cfg Config) *FileExtractor {
	timeout := cfg.OCRTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &FileExtractor{
		ocrCommand: strings.TrimSpace(cfg.OCRCommand),
		ocrArgs:    cfg.OCRArgs,
		ocrTimeout: timeout,
	}
}

// ExtractText returns normalized text for the file at path.
func (e *FileExtractor) ExtractText(ctx context.Context, path, mimeType string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch {
	case mimeType == "application/pdf":
		return e.extractPDF(ctx, path)
	case strings.HasPrefix(mimeType, "image/"):
		return e.extractImage(ctx, path)
	case mimeType == "text/html" || mimeType == "application/xhtml+xml":
		return extractHTMLFile(path)
	case mimeType == "text/plain" || mimeType == "text/csv" || mimeType == "application/json":
		return extractPlainText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	text := normalizeText(string(data))
	if text == "" {
		return "", fmt.Errorf("no text extracted from file")
	}
	return text, nil
}

// normalizeText strips NUL bytes and invalid UTF-8 and collapses whitespace
// runs while keeping single newlines as paragraph hints.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
