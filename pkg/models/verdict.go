package models

// VerificationStatus is the headline answer for a session.
type VerificationStatus string

const (
	StatusAuthentic      VerificationStatus = "authentic"
	StatusSuspicious     VerificationStatus = "suspicious"
	StatusLikelySpoofed  VerificationStatus = "likely_spoofed"
	StatusUnableToVerify VerificationStatus = "unable_to_verify"
)

// EnvironmentKind classifies what the client is probably running on.
type EnvironmentKind string

const (
	EnvLocalDesktop   EnvironmentKind = "local_desktop"
	EnvPossiblyRemote EnvironmentKind = "possibly_remote"
	EnvRemoteDesktop  EnvironmentKind = "remote_desktop"
	EnvVirtualMachine EnvironmentKind = "virtual_machine"
)

// RiskTier is the final tier the risk evaluator assigns.
type RiskTier string

const (
	TierLow     RiskTier = "LOW"
	TierMedium  RiskTier = "MEDIUM"
	TierHigh    RiskTier = "HIGH"
	TierUnknown RiskTier = "UNKNOWN"
)

// ProcessingMode marks which evaluator path produced a RiskEvaluation.
type ProcessingMode string

const (
	ProcessingFast  ProcessingMode = "fast"
	ProcessingFull  ProcessingMode = "full"
	ProcessingError ProcessingMode = "error"
)

// RiskEvaluation is the evaluator's output, identical in shape for the
// lite and full paths.
type RiskEvaluation struct {
	Tier               RiskTier       `json:"tier"`
	Confidence         int            `json:"confidence"`
	Explanation        string         `json:"explanation"`
	RiskFactors        []string       `json:"riskFactors,omitempty"`
	Patterns           []string       `json:"patterns,omitempty"`
	Recommendations    []string       `json:"recommendations,omitempty"`
	SimilarityInsights string         `json:"similarityInsights,omitempty"`
	ProcessingMode     ProcessingMode `json:"processingMode"`
}

// Verdict is the full response the orchestrator returns for one session.
type Verdict struct {
	Status VerificationStatus `json:"status"`

	LocationScore    int `json:"locationScore"`
	EnvironmentScore int `json:"environmentScore"`
	// OverallScore folds flag severities from both categories into one
	// number via the scoring.deductions thresholds.
	OverallScore int `json:"overallScore"`

	EnvironmentKind EnvironmentKind `json:"environmentKind"`

	LocationFlags    []Flag `json:"locationFlags"`
	EnvironmentFlags []Flag `json:"environmentFlags"`

	VPNDetection *VPNAggregateResult `json:"vpnDetection,omitempty"`
	Fingerprint  *SessionFingerprint `json:"fingerprint,omitempty"`
	Risk         *RiskEvaluation     `json:"risk,omitempty"`

	// Diagnostics records degraded, non-fatal subsystems (vector store
	// down, embedding failed, ...). Absence of evidence is explained here.
	Diagnostics []string `json:"diagnostics,omitempty"`
}
