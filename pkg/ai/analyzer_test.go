package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docintel/pkg/domain"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _ string, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.response, f.err
}

func TestAnalyzeParsesStructuredVerdict(t *testing.T) {
	gen := &fakeGenerator{response: `{
		"status": "multiple_blocks_detected",
		"blockCount": 3,
		"anomalies": ["three independent letterheads", " mismatched page footers "],
		"summary": "Document appears assembled from several sources."
	}`}
	analyzer := NewLLMAnalyzer(gen)

	got, err := analyzer.Analyze(context.Background(), "some extracted text")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Status != domain.AnalysisMultipleBlocks {
		t.Fatalf("status = %q", got.Status)
	}
	if got.BlockCount != 3 {
		t.Fatalf("blockCount = %d", got.BlockCount)
	}
	if len(got.Anomalies) != 2 || got.Anomalies[1] != "mismatched page footers" {
		t.Fatalf("anomalies = %+v", got.Anomalies)
	}
	if got.Summary == "" {
		t.Fatal("expected summary")
	}
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n{\"status\":\"consistent\",\"anomalies\":[]}\n```"}
	got, err := NewLLMAnalyzer(gen).Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Status != domain.AnalysisConsistent {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestAnalyzeRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       "the document looks fine to me",
		"unknown status": `{"status":"looks_ok","anomalies":[]}`,
		"empty status":   `{"anomalies":["something"]}`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{response: response}
			_, err := NewLLMAnalyzer(gen).Analyze(context.Background(), "text")
			if !errors.Is(err, ErrMalformedAnalysis) {
				t.Fatalf("expected ErrMalformedAnalysis, got %v", err)
			}
		})
	}
}

func TestAnalyzeTruncatesLongInputAndNotesIt(t *testing.T) {
	gen := &fakeGenerator{response: `{"status":"consistent","anomalies":[]}`}
	long := strings.Repeat("a", maxAnalysisRunes+500)
	if _, err := NewLLMAnalyzer(gen).Analyze(context.Background(), long); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "truncated") {
		t.Fatal("expected truncation notice in prompt")
	}
	if strings.Count(gen.prompts[0], "a") > maxAnalysisRunes {
		t.Fatal("prompt should not carry more than the truncation limit")
	}
}
