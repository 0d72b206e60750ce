package models

// VPNProviderResult is the normalised answer from one IP-reputation
// backend. Heterogeneous provider schemas are mapped onto this shape by
// the adapters; anything the mapping cannot place lands in Extra.
type VPNProviderResult struct {
	Provider  string `json:"provider"`
	IsVPN     bool   `json:"isVpn"`
	IsProxy   bool   `json:"isProxy"`
	IsTor     bool   `json:"isTor"`
	IsHosting bool   `json:"isHosting"`
	IsRelay   bool   `json:"isRelay"`

	// FraudScore is a 0-100 abuse likelihood, where the provider offers one.
	FraudScore *float64 `json:"fraudScore,omitempty"`

	Organization string `json:"organization,omitempty"`
	ASN          string `json:"asn,omitempty"`
	ISP          string `json:"isp,omitempty"`

	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`

	// Error marks a failed call (network, HTTP >= 400, malformed body,
	// timeout). An errored result is excluded from the consensus
	// denominator but kept for observability.
	Error string `json:"error,omitempty"`

	// Extra carries provider-specific fields that have no normalised slot.
	Extra map[string]any `json:"extra,omitempty"`
}

// Failed reports whether the provider call errored.
func (r VPNProviderResult) Failed() bool { return r.Error != "" }

// VPNDetails records the full evidence behind an aggregate verdict.
type VPNDetails struct {
	TotalChecks   int                 `json:"totalChecks"`
	VPNDetections int                 `json:"vpnDetections"`
	Services      []VPNProviderResult `json:"services"`
	Error         string              `json:"error,omitempty"`
}

// VPNAggregateResult is the consensus verdict over all enabled providers.
//
// Confidence = round(100 * detections / successful checks); zero when no
// provider succeeded. The services list preserves registry order, not
// response arrival order.
type VPNAggregateResult struct {
	IP         string     `json:"ip"`
	IsVPN      bool       `json:"isVpn"`
	Confidence int        `json:"confidence"`
	DetectedBy []string   `json:"detectedBy,omitempty"`
	Details    VPNDetails `json:"details"`
}

// AnyTor reports whether any successful provider marked the IP as a Tor
// exit node.
func (a *VPNAggregateResult) AnyTor() bool {
	if a == nil {
		return false
	}
	for _, s := range a.Details.Services {
		if !s.Failed() && s.IsTor {
			return true
		}
	}
	return false
}

// MaxFraudScore returns the highest fraud score any successful provider
// reported, or nil when none did.
func (a *VPNAggregateResult) MaxFraudScore() *float64 {
	if a == nil {
		return nil
	}
	var max *float64
	for _, s := range a.Details.Services {
		if s.Failed() || s.FraudScore == nil {
			continue
		}
		if max == nil || *s.FraudScore > *max {
			v := *s.FraudScore
			max = &v
		}
	}
	return max
}
