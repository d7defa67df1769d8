package extract

import (
	"context"
	"fmt"
	"os/exec"
)

func (e *FileExtractor) extractImage(ctx context.Context, path string) (string, error) {
	if e.ocrCommand == "" {
		return "", fmt.Errorf("%w: image extraction requires an OCR command", ErrUnsupportedFormat)
	}
	ctx, cancel := context.WithTimeout(ctx, e.ocrTimeout)
	defer cancel()

	// The OCR command receives the image path and must print extracted text
	// on stdout, e.g. "tesseract <path> stdout".
	args := make([]string, 0, len(e.ocrArgs)+2)
	args = append(args, path)
	args = append(args, e.ocrArgs...)
	cmd := exec.CommandContext(ctx, e.ocrCommand, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ocr command failed: %w", err)
	}
	text := normalizeText(string(output))
	if text == "" {
		return "", fmt.Errorf("no text extracted from image")
	}
	return text, nil
}
