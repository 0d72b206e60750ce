package vpn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// fakeProvider answers from canned data and counts its calls.
type fakeProvider struct {
	name   string
	result models.VPNProviderResult
	err    error
	calls  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.VPNProviderResult{}, f.err
	}
	return f.result, nil
}

func newTestAggregator(t *testing.T, providers ...Provider) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(AggregatorConfig{
		Logger:     testLogger(),
		Thresholds: config.NewRegistry(testLogger()),
		Providers:  providers,
	})
	if err != nil {
		t.Fatalf("NewAggregator() error: %v", err)
	}
	return agg
}

func TestDetectInvalidIP(t *testing.T) {
	p := &fakeProvider{name: "a"}
	agg := newTestAggregator(t, p)

	res := agg.Detect(context.Background(), "not-an-ip")
	if res.Details.Error != "Invalid IP address" {
		t.Errorf("Details.Error = %q, want Invalid IP address", res.Details.Error)
	}
	if res.IsVPN || res.Confidence != 0 {
		t.Errorf("invalid IP must not produce a detection")
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider contacted for an invalid IP")
	}
}

func TestDetectPrivateIPShortCircuits(t *testing.T) {
	tests := []struct {
		name string
		ip   string
	}{
		{"RFC1918", "192.168.1.10"},
		{"Loopback", "127.0.0.1"},
		{"LinkLocal", "169.254.0.5"},
		{"Unspecified", "0.0.0.0"},
		{"IPv6 ULA", "fd00::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{name: "a"}
			agg := newTestAggregator(t, p)

			res := agg.Detect(context.Background(), tt.ip)
			if res.Details.Error != "Private IP" {
				t.Errorf("Details.Error = %q, want Private IP", res.Details.Error)
			}
			if p.calls.Load() != 0 {
				t.Errorf("provider contacted for a private IP")
			}
		})
	}
}

func TestDetectConsensusExcludesErroredProviders(t *testing.T) {
	// Three providers succeed and all detect; the fourth errors. The
	// errored one must not dilute the denominator.
	detecting := func(name string) *fakeProvider {
		return &fakeProvider{name: name, result: models.VPNProviderResult{IsVPN: true}}
	}
	broken := &fakeProvider{name: "broken", err: errors.New("timeout")}
	agg := newTestAggregator(t, detecting("a"), detecting("b"), detecting("c"), broken)

	res := agg.Detect(context.Background(), "203.0.113.7")

	if res.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", res.Confidence)
	}
	if !res.IsVPN {
		t.Errorf("IsVPN = false, want true")
	}
	if res.Details.TotalChecks != 3 {
		t.Errorf("TotalChecks = %d, want 3 (errored provider excluded)", res.Details.TotalChecks)
	}
	if res.Details.VPNDetections != 3 {
		t.Errorf("VPNDetections = %d, want 3", res.Details.VPNDetections)
	}
	if len(res.DetectedBy) != 3 {
		t.Errorf("DetectedBy = %v, want 3 providers", res.DetectedBy)
	}
	if len(res.Details.Services) != 4 {
		t.Errorf("Services = %d entries, want all 4 including the errored one", len(res.Details.Services))
	}
}

func TestDetectAllProvidersFailed(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("down")}
	b := &fakeProvider{name: "b", err: errors.New("down")}
	agg := newTestAggregator(t, a, b)

	res := agg.Detect(context.Background(), "203.0.113.8")

	if res.Details.Error != "All provider checks failed" {
		t.Errorf("Details.Error = %q, want All provider checks failed", res.Details.Error)
	}
	if res.IsVPN || res.Confidence != 0 {
		t.Errorf("all-failed outcome must degrade to not-detected")
	}

	// Degraded verdicts are not cached; a recovered provider is consulted
	// again on the next call.
	a.err = nil
	a.result = models.VPNProviderResult{IsVPN: true}
	res = agg.Detect(context.Background(), "203.0.113.8")
	if res.Details.TotalChecks != 1 {
		t.Errorf("TotalChecks after recovery = %d, want 1", res.Details.TotalChecks)
	}
}

func TestDetectConfidenceThreshold(t *testing.T) {
	tests := []struct {
		name       string
		detections int
		total      int
		confidence int
		isVPN      bool
	}{
		{"NoDetections", 0, 4, 0, false},
		{"OneOfFour", 1, 4, 25, false},
		{"TwoOfFour", 2, 4, 50, true},
		{"OneOfThree", 1, 3, 33, false},
		{"TwoOfThree", 2, 3, 67, true},
		{"Unanimous", 4, 4, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := make([]Provider, tt.total)
			for i := range providers {
				providers[i] = &fakeProvider{
					name:   string(rune('a' + i)),
					result: models.VPNProviderResult{IsVPN: i < tt.detections},
				}
			}
			agg := newTestAggregator(t, providers...)

			res := agg.Detect(context.Background(), "198.51.100.20")
			if res.Confidence != tt.confidence {
				t.Errorf("Confidence = %d, want %d", res.Confidence, tt.confidence)
			}
			if res.IsVPN != tt.isVPN {
				t.Errorf("IsVPN = %v, want %v", res.IsVPN, tt.isVPN)
			}
		})
	}
}

func TestDetectPreservesRegistryOrder(t *testing.T) {
	names := []string{"first", "second", "third", "fourth"}
	providers := make([]Provider, len(names))
	for i, n := range names {
		providers[i] = &fakeProvider{name: n}
	}
	agg := newTestAggregator(t, providers...)

	res := agg.Detect(context.Background(), "198.51.100.30")
	if len(res.Details.Services) != len(names) {
		t.Fatalf("Services = %d entries, want %d", len(res.Details.Services), len(names))
	}
	for i, svc := range res.Details.Services {
		if svc.Provider != names[i] {
			t.Errorf("Services[%d].Provider = %q, want %q", i, svc.Provider, names[i])
		}
	}
}

func TestDetectCachesSuccessfulVerdicts(t *testing.T) {
	p := &fakeProvider{name: "a", result: models.VPNProviderResult{IsVPN: true}}
	agg := newTestAggregator(t, p)

	first := agg.Detect(context.Background(), "203.0.113.40")
	second := agg.Detect(context.Background(), "203.0.113.40")

	if p.calls.Load() != 1 {
		t.Errorf("provider called %d times for the same IP, want 1", p.calls.Load())
	}
	if first.Confidence != second.Confidence || first.IsVPN != second.IsVPN {
		t.Errorf("cached verdict differs from the original")
	}
}

func TestDetectCacheExpiresUnderSteadyTraffic(t *testing.T) {
	p := &fakeProvider{name: "a", result: models.VPNProviderResult{IsVPN: true}}
	agg, err := NewAggregator(AggregatorConfig{
		Logger:     testLogger(),
		Thresholds: config.NewRegistry(testLogger()),
		Providers:  []Provider{p},
		CacheTTL:   40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewAggregator() error: %v", err)
	}
	defer agg.Close()

	// Hammer the same IP faster than the TTL. Reads must not extend the
	// entry's lifetime: after the TTL a fresh round of provider checks is
	// due even though the entry was never left alone.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		agg.Detect(context.Background(), "203.0.113.50")
		time.Sleep(10 * time.Millisecond)
	}

	if calls := p.calls.Load(); calls < 2 {
		t.Errorf("provider called %d time(s) over 200ms of steady traffic with a 40ms TTL; verdict never refreshed", calls)
	}
}

func TestDetectRefreshPicksUpThresholdChanges(t *testing.T) {
	// 1-of-2 consensus sits exactly at a detected cutoff of 50. Verdicts
	// computed after a hot threshold replace must use the new cutoff once
	// the cached entry has expired.
	detecting := &fakeProvider{name: "a", result: models.VPNProviderResult{IsVPN: true}}
	clean := &fakeProvider{name: "b"}

	thresholds := config.NewRegistry(testLogger())
	agg, err := NewAggregator(AggregatorConfig{
		Logger:     testLogger(),
		Thresholds: thresholds,
		Providers:  []Provider{detecting, clean},
		CacheTTL:   30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewAggregator() error: %v", err)
	}
	defer agg.Close()

	res := agg.Detect(context.Background(), "203.0.113.51")
	if !res.IsVPN || res.Confidence != 50 {
		t.Fatalf("initial verdict = isVPN %v confidence %d, want true/50", res.IsVPN, res.Confidence)
	}

	s := config.Defaults()
	s.VPN.Confidence.Detected = 60
	thresholds.Replace(s)

	time.Sleep(50 * time.Millisecond)
	res = agg.Detect(context.Background(), "203.0.113.51")
	if res.IsVPN {
		t.Errorf("verdict after expiry still isVPN with cutoff raised to 60 (confidence %d)", res.Confidence)
	}
}

func TestAggregatorClose(t *testing.T) {
	p := &fakeProvider{name: "a"}
	agg := newTestAggregator(t, p)

	if res := agg.Detect(context.Background(), "203.0.113.52"); res.Details.TotalChecks != 1 {
		t.Fatalf("TotalChecks = %d, want 1", res.Details.TotalChecks)
	}
	agg.Close()
}

func TestAggregateResultHelpers(t *testing.T) {
	fraud := 95.0
	res := &models.VPNAggregateResult{
		Details: models.VPNDetails{
			Services: []models.VPNProviderResult{
				{Provider: "a", IsTor: true},
				{Provider: "b", FraudScore: &fraud},
				{Provider: "c", Error: "down", IsTor: true},
			},
		},
	}

	if !res.AnyTor() {
		t.Errorf("AnyTor() = false, want true")
	}
	if got := res.MaxFraudScore(); got == nil || *got != 95 {
		t.Errorf("MaxFraudScore() = %v, want 95", got)
	}

	var nilRes *models.VPNAggregateResult
	if nilRes.AnyTor() {
		t.Errorf("nil receiver AnyTor() = true, want false")
	}
	if nilRes.MaxFraudScore() != nil {
		t.Errorf("nil receiver MaxFraudScore() != nil")
	}
}
