package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docintel/pkg/domain"
)

// maxAnalysisRunes caps how much extracted text is sent to the analyzer.
const maxAnalysisRunes = 60000

const analyzerSystemPrompt = `You are a document-integrity auditor for an insurance and credit agency.
You inspect the extracted text of one uploaded document for signs of tampering,
assembly from multiple sources, duplicated content, identity mismatches, or
mixed reporting periods.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "status": one of "consistent", "possible_duplicate_content",
            "multiple_blocks_detected", "identity_inconsistency",
            "mixed_periods", "structural_anomaly", "potentially_modified",
  "blockCount": optional integer count of independent structural blocks,
  "anomalies": array of short free-text anomaly descriptions (may be empty),
  "summary": optional one-paragraph summary of your findings
}`

// StructuralAnalyzer inspects extracted document text and returns a parsed
// integrity classification. Implementations must be deterministic for
// identical input.
type StructuralAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.StructuralAnalysis, error)
}

// LLMAnalyzer implements StructuralAnalyzer on top of any TextGenerator.
type LLMAnalyzer struct {
	generator TextGenerator
}

// NewLLMAnalyzer builds an analyzer backed by the given generator.
func NewLLMAnalyzer(generator TextGenerator) *LLMAnalyzer {
	return &LLMAnalyzer{generator: generator}
}

// Analyze sends the (possibly truncated) text to the model and parses the
// structured verdict. A payload that does not decode into the expected shape
// fails with ErrMalformedAnalysis.
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string) (domain.StructuralAnalysis, error) {
	text, truncated := truncateRunes(text, maxAnalysisRunes)
	var sb strings.Builder
	sb.WriteString("Document text to audit:\n\n")
	sb.WriteString(text)
	if truncated {
		sb.WriteString("\n\n[NOTE: the document text was truncated to the first ")
		fmt.Fprintf(&sb, "%d characters; judge only what is shown.]", maxAnalysisRunes)
	}
	raw, err := a.generator.GenerateText(ctx, analyzerSystemPrompt, sb.String())
	if err != nil {
		return domain.StructuralAnalysis{}, fmt.Errorf("structural analysis: %w", err)
	}
	return parseAnalysis(raw)
}

type analysisPayload struct {
	Status     string   `json:"status"`
	BlockCount int      `json:"blockCount"`
	Anomalies  []string `json:"anomalies"`
	Summary    string   `json:"summary"`
}

func parseAnalysis(raw string) (domain.StructuralAnalysis, error) {
	raw = stripCodeFences(raw)
	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.StructuralAnalysis{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	status := domain.AnalysisStatus(strings.TrimSpace(payload.Status))
	if !domain.KnownAnalysisStatus(status) {
		return domain.StructuralAnalysis{}, fmt.Errorf("%w: unknown status %q", ErrMalformedAnalysis, payload.Status)
	}
	anomalies := make([]string, 0, len(payload.Anomalies))
	for _, anomaly := range payload.Anomalies {
		anomaly = strings.TrimSpace(anomaly)
		if anomaly != "" {
			anomalies = append(anomalies, anomaly)
		}
	}
	return domain.StructuralAnalysis{
		Status:     status,
		BlockCount: payload.BlockCount,
		Anomalies:  anomalies,
		Summary:    strings.TrimSpace(payload.Summary),
	}, nil
}

// stripCodeFences removes a surrounding markdown code block, which some
// models emit around JSON despite instructions.
func stripCodeFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func truncateRunes(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]), true
}
