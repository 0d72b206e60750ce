package models

import "time"

// RiskLevel is the coarse session risk recorded in fingerprint summaries.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// SessionFingerprint is the canonical structured record of one verified
// session. It doubles as the feature source for the vector embedding and
// as the payload stored alongside the vector. Given identical inputs the
// builder produces identical content (the id and timestamp aside, which
// identify rather than describe the session).
type SessionFingerprint struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Location    *FingerprintLocation    `json:"location"`
	Environment *FingerprintEnvironment `json:"environment"`
	Network     *FingerprintNetwork     `json:"network"`

	Summary FingerprintSummary `json:"summary"`
}

// FingerprintLocation is the normalised location subset of a fingerprint.
type FingerprintLocation struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Accuracy       *float64 `json:"accuracy"`
	ResponseTimeMs *float64 `json:"responseTimeMs"`
	VPNDetected    bool     `json:"vpnDetected"`
	VPNConfidence  int      `json:"vpnConfidence"`
}

// FingerprintEnvironment is the normalised environment subset.
type FingerprintEnvironment struct {
	Platform     string `json:"platform"`
	Resolution   string `json:"resolution"`
	ColorDepth   int    `json:"colorDepth"`
	TouchSupport *bool  `json:"touchSupport"`
	GPU          string `json:"gpu"`
	UserAgent    string `json:"userAgent"`
	Timezone     string `json:"timezone"`
	Language     string `json:"language"`
}

// FingerprintNetwork is the normalised network subset.
type FingerprintNetwork struct {
	ClientIP             string   `json:"clientIp"`
	CandidateIPs         []string `json:"candidateIps"`
	SuspiciousProperties []string `json:"suspiciousProperties"`
}

// FingerprintSummary is the derived verdict summary embedded in the
// fingerprint. Scores are pointers so "never computed" is distinct from 0.
type FingerprintSummary struct {
	LocationScore      *int      `json:"locationScore"`
	EnvironmentScore   *int      `json:"environmentScore"`
	OverallRisk        RiskLevel `json:"overallRisk"`
	SpoofingIndicators []string  `json:"spoofingIndicators"`
}
