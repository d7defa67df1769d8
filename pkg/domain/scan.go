package domain

import "time"

// AnalysisStatus is the classification the structural analyzer assigns to a
// document after inspecting its extracted text.
type AnalysisStatus string

const (
	AnalysisConsistent          AnalysisStatus = "consistent"
	AnalysisPossibleDuplicate   AnalysisStatus = "possible_duplicate_content"
	AnalysisMultipleBlocks      AnalysisStatus = "multiple_blocks_detected"
	AnalysisIdentityMismatch    AnalysisStatus = "identity_inconsistency"
	AnalysisMixedPeriods        AnalysisStatus = "mixed_periods"
	AnalysisStructuralAnomaly   AnalysisStatus = "structural_anomaly"
	AnalysisPotentiallyModified AnalysisStatus = "potentially_modified"
)

// KnownAnalysisStatus reports whether s is one of the fixed status values.
func KnownAnalysisStatus(s AnalysisStatus) bool {
	switch s {
	case AnalysisConsistent, AnalysisPossibleDuplicate, AnalysisMultipleBlocks,
		AnalysisIdentityMismatch, AnalysisMixedPeriods, AnalysisStructuralAnomaly,
		AnalysisPotentiallyModified:
		return true
	}
	return false
}

// StructuralAnalysis is the parsed analyzer payload for one document.
// It is intermediate state and never persisted.
type StructuralAnalysis struct {
	Status     AnalysisStatus `json:"status"`
	BlockCount int            `json:"blockCount,omitempty"`
	Anomalies  []string       `json:"anomalies"`
	Summary    string         `json:"summary,omitempty"`
}

// RiskTier is one of four ordered score bands.
type RiskTier string

const (
	TierLow        RiskTier = "low"
	TierMedium     RiskTier = "medium"
	TierMediumHigh RiskTier = "medium_high"
	TierHigh       RiskTier = "high"
)

// Recommendation is the action derived from the risk tier.
type Recommendation string

const (
	RecommendAccept       Recommendation = "accept"
	RecommendMoreEvidence Recommendation = "request_more_evidence"
	RecommendManualReview Recommendation = "reject_with_manual_review"
	RecommendReject       Recommendation = "reject"
)

// RiskFactorType classifies a detected defect.
type RiskFactorType string

const (
	FactorDuplicate            RiskFactorType = "duplicate"
	FactorContentInconsistency RiskFactorType = "content_inconsistency"
	FactorStructural           RiskFactorType = "structural"
	FactorAlteredText          RiskFactorType = "altered_text"
)

// RiskFactor is a single scored defect surfaced by the compiler.
type RiskFactor struct {
	Type          RiskFactorType `json:"type"`
	Justification string         `json:"justification"`
	Confidence    float64        `json:"confidence"`
}

type ScanStatus string

const (
	ScanReceived   ScanStatus = "received"
	ScanExtracting ScanStatus = "extracting"
	ScanAnalyzing  ScanStatus = "analyzing"
	ScanCompiling  ScanStatus = "compiling"
	ScanComplete   ScanStatus = "complete"
	ScanFailed     ScanStatus = "failed"
)

// ScanResult is the deterministic outcome of a document scan.
// TotalScore is always >= 0 and never above the structural sub-score.
type ScanResult struct {
	DocumentID     string           `json:"documentId"`
	TotalScore     int              `json:"totalScore"`
	RiskTier       RiskTier         `json:"riskTier"`
	Recommendation Recommendation   `json:"recommendation"`
	SubScores      map[string]int   `json:"subScores"`
	CriticalFlags  []RiskFactor     `json:"criticalFlags"`
	Justification  string           `json:"justification"`
	Elapsed        time.Duration    `json:"elapsedMs"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Scan tracks one scan request through the orchestrator state machine.
type Scan struct {
	ID               string      `json:"id"`
	DocumentID       string      `json:"documentId"`
	OriginalFilename string      `json:"originalFilename"`
	MimeType         string      `json:"mimeType"`
	Status           ScanStatus  `json:"status"`
	ErrorMessage     string      `json:"errorMessage,omitempty"`
	Result           *ScanResult `json:"result,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}
