package models

// FlagSeverity grades how damning an individual finding is.
type FlagSeverity string

const (
	SeverityInfo     FlagSeverity = "info"
	SeverityWarning  FlagSeverity = "warning"
	SeverityFail     FlagSeverity = "fail"
	SeverityCritical FlagSeverity = "critical"
)

// Flag is a single finding produced by a verification rule.
type Flag struct {
	Severity FlagSeverity `json:"severity"`
	// Message is short and machine-readable; dashboards key off it.
	Message string `json:"message"`
	// Detail is an optional human explanation.
	Detail string `json:"detail,omitempty"`
}

// Indicates reports whether the flag counts as a spoofing indicator
// (anything stronger than informational).
func (f Flag) Indicates() bool {
	return f.Severity != SeverityInfo
}
