package verify

import (
	"log/slog"
	"math"

	"github.com/jonboulle/clockwork"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// ──────────────────────────────────────────────────────────────────────
// Location Verifier
//
// Starts from a perfect score of 100 and walks a fixed-order rule table;
// every matching rule appends one flag and subtracts a fixed amount. The
// order is part of the contract — a verdict for identical inputs must be
// byte-identical, flags included.
// ──────────────────────────────────────────────────────────────────────

const (
	staleTimestampMs = 60_000

	deductNullIsland   = 50
	deductIntegerCoord = 20
	deductLowAccuracy  = 30
	deductStale        = 10
	deductFastResponse = 20
	deductVPN          = 30
	deductTor          = 20
	deductFraudScore   = 20

	highFraudScore = 90
)

// LocationResult is the scored outcome for the location category.
type LocationResult struct {
	Status models.VerificationStatus `json:"status"`
	Score  int                       `json:"score"`
	Flags  []models.Flag             `json:"flags"`
}

// LocationVerifier scores a location signal together with the VPN
// aggregate.
type LocationVerifier struct {
	thresholds *config.Registry
	clock      clockwork.Clock
	log        *slog.Logger
}

func NewLocationVerifier(thresholds *config.Registry, clock clockwork.Clock, log *slog.Logger) *LocationVerifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocationVerifier{thresholds: thresholds, clock: clock, log: log}
}

// Verify scores the signal. A nil or coordinate-less signal takes the
// unable-to-verify path without evaluating the rule table.
func (v *LocationVerifier) Verify(loc *models.LocationSignal, vpnRes *models.VPNAggregateResult) LocationResult {
	if !loc.HasCoordinates() {
		return LocationResult{
			Status: models.StatusUnableToVerify,
			Score:  0,
			Flags: []models.Flag{{
				Severity: models.SeverityFail,
				Message:  "Location data not provided",
			}},
		}
	}

	t := v.thresholds.Get()
	lat, lon := *loc.Latitude, *loc.Longitude
	score := 100
	var flags []models.Flag

	fail := func(sev models.FlagSeverity, msg, detail string, deduction int) {
		flags = append(flags, models.Flag{Severity: sev, Message: msg, Detail: detail})
		score -= deduction
	}

	if lat == 0 && lon == 0 {
		fail(models.SeverityCritical, "Null Island coordinates",
			"Coordinates are exactly (0, 0), the default of naive spoofing tools", deductNullIsland)
	}

	if lat == math.Trunc(lat) && lon == math.Trunc(lon) {
		fail(models.SeverityWarning, "Integer coordinates",
			"Real GPS fixes virtually never land on whole degrees", deductIntegerCoord)
	}

	if loc.Accuracy != nil && *loc.Accuracy > t.Location.Accuracy.Low {
		fail(models.SeverityWarning, "Low accuracy reading",
			"Accuracy radius exceeds the configured ceiling; likely IP-derived, not GPS", deductLowAccuracy)
	}

	if loc.Timestamp > 0 {
		nowMs := v.clock.Now().UnixMilli()
		if nowMs-loc.Timestamp > staleTimestampMs {
			fail(models.SeverityWarning, "Stale location timestamp",
				"Fix is older than 60 seconds; may be replayed", deductStale)
		}
	}

	if loc.ResponseTimeMs != nil && *loc.ResponseTimeMs < t.Location.ResponseTime.Suspicious {
		fail(models.SeverityWarning, "Suspiciously fast response",
			"Geolocation answered faster than real positioning hardware can", deductFastResponse)
	}

	if vpnRes != nil && vpnRes.IsVPN {
		fail(models.SeverityWarning, "VPN/Proxy detected",
			"IP reputation consensus flags this address as VPN or proxy", deductVPN)
	}

	if vpnRes.AnyTor() {
		fail(models.SeverityFail, "Tor exit node detected",
			"At least one provider identifies this address as a Tor exit", deductTor)
	}

	if fs := vpnRes.MaxFraudScore(); fs != nil && *fs > highFraudScore {
		fail(models.SeverityFail, "High fraud score",
			"A provider rates this address above the fraud ceiling", deductFraudScore)
	}

	score = clampScore(score)

	status := models.StatusAuthentic
	switch {
	case score < t.Location.Score.LikelySpoofed:
		status = models.StatusLikelySpoofed
	case score < t.Location.Score.Suspicious:
		status = models.StatusSuspicious
	}

	return LocationResult{Status: status, Score: score, Flags: flags}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
