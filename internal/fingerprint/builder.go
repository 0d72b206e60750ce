package fingerprint

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

// Risk boundaries for the summary: the average of the category scores is
// mapped to a coarse level.
const (
	summaryHighBelow   = 40
	summaryMediumBelow = 70
)

// Input is the orchestrator's aggregated session record: raw signals
// plus the scored results of the verification stage.
type Input struct {
	Location    *models.LocationSignal
	Environment *models.EnvironmentSignal
	Network     *models.NetworkSignal

	LocationScore    *int
	EnvironmentScore *int

	LocationFlags    []models.Flag
	EnvironmentFlags []models.Flag

	VPN *models.VPNAggregateResult
}

// Builder produces canonical session fingerprints. The transformation is
// pure: identical inputs yield identical fingerprint content (id and
// timestamp identify the session, everything else describes it).
type Builder struct {
	clock clockwork.Clock
	newID func() string
}

func NewBuilder(clock clockwork.Clock) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{clock: clock, newID: uuid.NewString}
}

// Build assembles the fingerprint. Missing nested signals are recorded
// as nulls, never invented.
func (b *Builder) Build(in Input) *models.SessionFingerprint {
	fp := &models.SessionFingerprint{
		ID:        b.newID(),
		Timestamp: b.clock.Now().UTC(),
	}

	if in.Location != nil || in.VPN != nil {
		loc := &models.FingerprintLocation{}
		if in.Location != nil {
			loc.Latitude = in.Location.Latitude
			loc.Longitude = in.Location.Longitude
			loc.Accuracy = in.Location.Accuracy
			loc.ResponseTimeMs = in.Location.ResponseTimeMs
		}
		if in.VPN != nil {
			loc.VPNDetected = in.VPN.IsVPN
			loc.VPNConfidence = in.VPN.Confidence
		}
		fp.Location = loc
	}

	if in.Environment != nil {
		fp.Environment = &models.FingerprintEnvironment{
			Platform:     in.Environment.Platform,
			Resolution:   in.Environment.Resolution(),
			ColorDepth:   in.Environment.ColorDepth,
			TouchSupport: in.Environment.TouchSupport,
			GPU:          in.Environment.WebGLRenderer,
			UserAgent:    in.Environment.UserAgent,
			Timezone:     in.Environment.Timezone,
			Language:     in.Environment.Language,
		}
	}

	if in.Network != nil {
		fp.Network = &models.FingerprintNetwork{
			ClientIP:             in.Network.ClientIP,
			CandidateIPs:         in.Network.CandidateIPs,
			SuspiciousProperties: in.Network.SuspiciousProperties,
		}
	}

	fp.Summary = models.FingerprintSummary{
		LocationScore:      in.LocationScore,
		EnvironmentScore:   in.EnvironmentScore,
		OverallRisk:        summariseRisk(in.LocationScore, in.EnvironmentScore),
		SpoofingIndicators: spoofingIndicators(in.LocationFlags, in.EnvironmentFlags),
	}

	return fp
}

func summariseRisk(locScore, envScore *int) models.RiskLevel {
	if locScore == nil || envScore == nil {
		return models.RiskUnknown
	}
	avg := (float64(*locScore) + float64(*envScore)) / 2
	switch {
	case avg < summaryHighBelow:
		return models.RiskHigh
	case avg < summaryMediumBelow:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// spoofingIndicators concatenates the messages of every non-info flag,
// location first, preserving rule order within each category.
func spoofingIndicators(locFlags, envFlags []models.Flag) []string {
	var out []string
	for _, f := range locFlags {
		if f.Indicates() {
			out = append(out, f.Message)
		}
	}
	for _, f := range envFlags {
		if f.Indicates() {
			out = append(out, f.Message)
		}
	}
	return out
}

// TextProjection renders the fingerprint as the canonical line-oriented
// text used for embedding. The line set and formats are fixed: equal
// fingerprints must project to byte-identical text so that they embed to
// the same vector.
func TextProjection(fp *models.SessionFingerprint) string {
	var b strings.Builder

	writeLine := func(key, value string) {
		if value == "" {
			value = "unknown"
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	loc := fp.Location
	if loc != nil && loc.Latitude != nil && loc.Longitude != nil {
		writeLine("location", fmt.Sprintf("%.6f,%.6f", *loc.Latitude, *loc.Longitude))
	} else {
		writeLine("location", "")
	}
	if loc != nil && loc.Accuracy != nil {
		writeLine("accuracy", fmt.Sprintf("%.0fm", *loc.Accuracy))
	} else {
		writeLine("accuracy", "")
	}
	if loc != nil {
		verdict := "none"
		if loc.VPNDetected {
			verdict = "detected"
		}
		writeLine("vpn", fmt.Sprintf("%s confidence=%d", verdict, loc.VPNConfidence))
	} else {
		writeLine("vpn", "")
	}

	env := fp.Environment
	if env != nil {
		writeLine("platform", env.Platform)
		writeLine("resolution", env.Resolution)
		writeLine("gpu", env.GPU)
		writeLine("user_agent", env.UserAgent)
	} else {
		writeLine("platform", "")
		writeLine("resolution", "")
		writeLine("gpu", "")
		writeLine("user_agent", "")
	}

	if fp.Network != nil && len(fp.Network.CandidateIPs) > 0 {
		writeLine("observed_ips", strings.Join(fp.Network.CandidateIPs, ", "))
	} else {
		writeLine("observed_ips", "")
	}

	writeLine("risk", string(fp.Summary.OverallRisk))
	writeLine("scores", fmt.Sprintf("location=%s environment=%s",
		scoreText(fp.Summary.LocationScore), scoreText(fp.Summary.EnvironmentScore)))
	if len(fp.Summary.SpoofingIndicators) > 0 {
		writeLine("indicators", strings.Join(fp.Summary.SpoofingIndicators, "; "))
	} else {
		writeLine("indicators", "none")
	}

	return b.String()
}

func scoreText(s *int) string {
	if s == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *s)
}
