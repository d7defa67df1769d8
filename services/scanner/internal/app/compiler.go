package app

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"docintel/pkg/domain"
)

const (
	confidenceThreshold = 0.6
	penaltyPerPoint     = 25.0
	maxCriticalFlags    = 8
	anomalyConfidence   = 0.7
)

// statusProfile fixes the scoring contribution of each analyzer status.
type statusProfile struct {
	baseScore      int
	recommendation domain.Recommendation
	factorType     domain.RiskFactorType
	confidence     float64
	label          string
}

var statusProfiles = map[domain.AnalysisStatus]statusProfile{
	domain.AnalysisConsistent: {
		baseScore:      95,
		recommendation: domain.RecommendAccept,
	},
	domain.AnalysisPossibleDuplicate: {
		baseScore:      55,
		recommendation: domain.RecommendMoreEvidence,
		factorType:     domain.FactorDuplicate,
		confidence:     0.75,
		label:          "possible duplicate content detected",
	},
	domain.AnalysisMixedPeriods: {
		baseScore:      50,
		recommendation: domain.RecommendMoreEvidence,
		factorType:     domain.FactorContentInconsistency,
		confidence:     0.65,
		label:          "document mixes multiple reporting periods",
	},
	domain.AnalysisMultipleBlocks: {
		baseScore:      45,
		recommendation: domain.RecommendManualReview,
		factorType:     domain.FactorStructural,
		confidence:     0.8,
		label:          "multiple independent document blocks detected",
	},
	domain.AnalysisStructuralAnomaly: {
		baseScore:      40,
		recommendation: domain.RecommendManualReview,
		factorType:     domain.FactorStructural,
		confidence:     0.7,
		label:          "abnormal document structure",
	},
	domain.AnalysisIdentityMismatch: {
		baseScore:      35,
		recommendation: domain.RecommendManualReview,
		factorType:     domain.FactorContentInconsistency,
		confidence:     0.85,
		label:          "identity fields are inconsistent",
	},
	domain.AnalysisPotentiallyModified: {
		baseScore:      20,
		recommendation: domain.RecommendReject,
		factorType:     domain.FactorAlteredText,
		confidence:     0.9,
		label:          "document text appears modified",
	},
}

// anomalyKeywords classifies free-text anomaly descriptions into factor
// types. First matching rule wins; anything unmatched counts as structural.
var anomalyKeywords = []struct {
	factorType domain.RiskFactorType
	keywords   []string
}{
	{domain.FactorDuplicate, []string{"duplicate", "duplicat", "copy", "copied", "repeated"}},
	{domain.FactorAlteredText, []string{"modif", "alter", "tamper", "edit", "erase", "overwrit", "font"}},
	{domain.FactorContentInconsistency, []string{"inconsisten", "mismatch", "contradict", "period", "date", "identity", "name", "holder"}},
}

// statusRedundancy lists keywords already implied by a status. Anomalies
// matching one of them restate the status and are dropped before scoring.
// Heuristic substring matching, tunable independently of the score algorithm.
var statusRedundancy = map[domain.AnalysisStatus][]string{
	domain.AnalysisPossibleDuplicate:   {"duplicate", "duplicat", "copy", "repeated"},
	domain.AnalysisMultipleBlocks:      {"multiple", "block", "independent document", "several document"},
	domain.AnalysisIdentityMismatch:    {"identity", "name", "holder"},
	domain.AnalysisMixedPeriods:        {"period", "date", "month", "quarter"},
	domain.AnalysisStructuralAnomaly:   {"structur", "layout", "format"},
	domain.AnalysisPotentiallyModified: {"modif", "alter", "tamper", "edit"},
}

var tierMessages = map[domain.RiskTier]string{
	domain.TierLow:        "Low risk: no significant integrity concerns.",
	domain.TierMedium:     "Medium risk: request additional supporting evidence.",
	domain.TierMediumHigh: "Elevated risk: route to manual review before acceptance.",
	domain.TierHigh:       "High risk: reject pending investigation.",
}

var tierRecommendations = map[domain.RiskTier]domain.Recommendation{
	domain.TierLow:        domain.RecommendAccept,
	domain.TierMedium:     domain.RecommendMoreEvidence,
	domain.TierMediumHigh: domain.RecommendManualReview,
	domain.TierHigh:       domain.RecommendReject,
}

// compileScore turns a parsed structural analysis into a scan result. It is
// deterministic for identical input apart from the CreatedAt timestamp; the
// caller fills in Elapsed.
func compileScore(documentID string, analysis domain.StructuralAnalysis) domain.ScanResult {
	profile, ok := statusProfiles[analysis.Status]
	if !ok {
		// Unknown statuses are rejected at the analyzer boundary; score the
		// most conservative profile if one ever slips through.
		profile = statusProfiles[domain.AnalysisPotentiallyModified]
	}

	factors := extractFactors(analysis, profile)

	penalty := 0.0
	hasHighConfidence := false
	for _, f := range factors {
		if f.Confidence >= confidenceThreshold {
			hasHighConfidence = true
			penalty += f.Confidence * penaltyPerPoint
		}
	}
	if penalty > 100 {
		penalty = 100
	}

	score := profile.baseScore
	if hasHighConfidence {
		adjusted := 100 - int(math.Round(penalty))
		if adjusted > profile.baseScore {
			adjusted = profile.baseScore
		}
		if adjusted < 0 {
			adjusted = 0
		}
		score = adjusted
	}

	tier := tierForScore(score)
	flags := criticalFlags(factors)

	return domain.ScanResult{
		DocumentID:     documentID,
		TotalScore:     score,
		RiskTier:       tier,
		Recommendation: tierRecommendations[tier],
		SubScores:      map[string]int{"structural_analysis": score},
		CriticalFlags:  flags,
		Justification:  buildJustification(analysis.Summary, flags, tier),
		CreatedAt:      time.Now().UTC(),
	}
}

// extractFactors turns the status and anomaly list into deduplicated risk
// factors. Anomalies implied by the status are dropped so one defect is
// never counted twice.
func extractFactors(analysis domain.StructuralAnalysis, profile statusProfile) []domain.RiskFactor {
	factors := make([]domain.RiskFactor, 0, len(analysis.Anomalies)+1)
	seen := make(map[string]struct{})

	add := func(f domain.RiskFactor) {
		key := string(f.Type) + "|" + normalizeFactorText(f.Justification)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		factors = append(factors, f)
	}

	if analysis.Status != domain.AnalysisConsistent && profile.confidence > 0 {
		add(domain.RiskFactor{
			Type:          profile.factorType,
			Justification: profile.label,
			Confidence:    profile.confidence,
		})
	}

	redundant := statusRedundancy[analysis.Status]
	for _, anomaly := range analysis.Anomalies {
		text := strings.TrimSpace(anomaly)
		if text == "" {
			continue
		}
		if matchesAny(text, redundant) {
			continue
		}
		add(domain.RiskFactor{
			Type:          classifyAnomaly(text),
			Justification: text,
			Confidence:    anomalyConfidence,
		})
	}
	return factors
}

func classifyAnomaly(text string) domain.RiskFactorType {
	for _, rule := range anomalyKeywords {
		if matchesAny(text, rule.keywords) {
			return rule.factorType
		}
	}
	return domain.FactorStructural
}

func matchesAny(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func normalizeFactorText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func tierForScore(score int) domain.RiskTier {
	switch {
	case score >= 85:
		return domain.TierLow
	case score >= 70:
		return domain.TierMedium
	case score >= 50:
		return domain.TierMediumHigh
	default:
		return domain.TierHigh
	}
}

// criticalFlags keeps high-confidence factors sorted by confidence, stable so
// equal confidences preserve extraction order, capped for the UI.
func criticalFlags(factors []domain.RiskFactor) []domain.RiskFactor {
	flags := make([]domain.RiskFactor, 0, len(factors))
	for _, f := range factors {
		if f.Confidence >= confidenceThreshold {
			flags = append(flags, f)
		}
	}
	sort.SliceStable(flags, func(i, j int) bool {
		return flags[i].Confidence > flags[j].Confidence
	})
	if len(flags) > maxCriticalFlags {
		flags = flags[:maxCriticalFlags]
	}
	return flags
}

func buildJustification(summary string, flags []domain.RiskFactor, tier domain.RiskTier) string {
	var parts []string
	if s := strings.TrimSpace(summary); s != "" {
		parts = append(parts, s)
	}
	if len(flags) > 0 {
		labels := make([]string, 0, len(flags))
		for _, f := range flags {
			labels = append(labels, f.Justification)
		}
		parts = append(parts, fmt.Sprintf("Flags: %s.", strings.Join(labels, "; ")))
	}
	parts = append(parts, tierMessages[tier])
	return strings.Join(parts, " ")
}
