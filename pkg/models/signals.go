package models

import "strconv"

// Client-collected signals. All of these arrive from an untrusted
// collector (browser or native shim) and are validated, never trusted.

// LocationSignal carries the client-reported geolocation fix.
//
// Latitude and Longitude travel together: either both are present or the
// session is scored down the "location unavailable" path. Pointers
// distinguish "absent" from a legitimate zero value.
type LocationSignal struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Accuracy is the reported fix accuracy in metres (non-negative).
	Accuracy *float64 `json:"accuracy,omitempty"`

	// Timestamp is the client-reported fix time in epoch milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	// ResponseTimeMs is the measured time the client took to produce the
	// fix. A near-instant answer suggests a cached or injected value.
	ResponseTimeMs *float64 `json:"responseTimeMs,omitempty"`
}

// HasCoordinates reports whether both coordinates are present.
func (l *LocationSignal) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// EnvironmentSignal describes the client runtime. Every field is optional;
// missing fields degrade the analysis instead of failing it.
type EnvironmentSignal struct {
	ScreenWidth   int    `json:"screenWidth,omitempty"`
	ScreenHeight  int    `json:"screenHeight,omitempty"`
	ColorDepth    int    `json:"colorDepth,omitempty"`
	TouchSupport  *bool  `json:"touchSupport,omitempty"`
	WebGLRenderer string `json:"webglRenderer,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	Language      string `json:"language,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
}

// Resolution renders the screen dimensions as "WxH", or "" when unknown.
func (e *EnvironmentSignal) Resolution() string {
	if e == nil || e.ScreenWidth <= 0 || e.ScreenHeight <= 0 {
		return ""
	}
	return strconv.Itoa(e.ScreenWidth) + "x" + strconv.Itoa(e.ScreenHeight)
}

// NetworkSignal holds the network-level observations for a session.
type NetworkSignal struct {
	// ClientIP is the textual IPv4/IPv6 address the transport observed.
	ClientIP string `json:"clientIp,omitempty"`

	// CandidateIPs are addresses surfaced by client-side peer-connection
	// gathering. They can reveal the real address behind a VPN.
	CandidateIPs []string `json:"candidateIps,omitempty"`

	// SuspiciousProperties lists browser property names the collector
	// flagged (automation markers, privacy shims and so on).
	SuspiciousProperties []string `json:"suspiciousProperties,omitempty"`
}
