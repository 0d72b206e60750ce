package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

// ──────────────────────────────────────────────────────────────────────
// Threshold Registry
//
// Every numeric decision boundary in the engine lives here so that tuning
// is configuration, not code. Readers take an immutable snapshot via
// Get(); hot reload swaps the snapshot atomically, so in-flight requests
// always see a consistent view and nobody takes a lock.
// ──────────────────────────────────────────────────────────────────────

// Snapshot is one immutable set of thresholds. Callers must not mutate
// the value returned by Registry.Get.
type Snapshot struct {
	Location        LocationThresholds    `json:"location"`
	Environment     EnvironmentThresholds `json:"environment"`
	VPN             VPNThresholds         `json:"vpn"`
	Scoring         ScoringThresholds     `json:"scoring"`
	PatternAnalysis PatternThresholds     `json:"patternAnalysis"`
}

type LocationThresholds struct {
	ResponseTime struct {
		// Suspicious is the floor, in ms, under which a geolocation answer
		// is too fast to have hit real hardware.
		Suspicious float64 `json:"suspicious"`
	} `json:"responseTime"`
	Accuracy struct {
		// Low is the accuracy radius, in metres, beyond which a fix is
		// considered low quality.
		Low float64 `json:"low"`
	} `json:"accuracy"`
	Score struct {
		LikelySpoofed int `json:"likelySpoofed"`
		Suspicious    int `json:"suspicious"`
	} `json:"score"`
}

type EnvironmentThresholds struct {
	Score struct {
		LikelyRemote   int `json:"likelyRemote"`
		PossiblyRemote int `json:"possiblyRemote"`
	} `json:"score"`
	ColorDepth struct {
		// RDPIndicator is the colour depth, in bits, below which remote
		// desktop transport is the usual explanation.
		RDPIndicator int `json:"rdpIndicator"`
	} `json:"colorDepth"`
}

type VPNThresholds struct {
	Confidence struct {
		// Detected is the consensus percentage at or above which the
		// aggregate verdict flips to VPN.
		Detected int `json:"detected"`
	} `json:"confidence"`
}

type ScoringThresholds struct {
	Deductions struct {
		LocationWarning    int `json:"locationWarning"`
		LocationFail       int `json:"locationFail"`
		EnvironmentWarning int `json:"environmentWarning"`
		EnvironmentFail    int `json:"environmentFail"`
	} `json:"deductions"`
}

// PatternThresholds are the per-factor bonuses the lite risk evaluator
// tallies.
type PatternThresholds struct {
	VPNDetected     int `json:"vpnDetected"`
	LowAccuracy     int `json:"lowAccuracy"`
	FastResponse    int `json:"fastResponse"`
	VirtualGPU      int `json:"virtualGpu"`
	LowColorDepth   int `json:"lowColorDepth"`
	RiskyNeighbours int `json:"riskyNeighbours"`
}

// Defaults returns the built-in snapshot used when no configuration
// document is available.
func Defaults() Snapshot {
	var s Snapshot
	s.Location.ResponseTime.Suspicious = 10
	s.Location.Accuracy.Low = 1000
	s.Location.Score.LikelySpoofed = 60
	s.Location.Score.Suspicious = 80
	s.Environment.Score.LikelyRemote = 50
	s.Environment.Score.PossiblyRemote = 75
	s.Environment.ColorDepth.RDPIndicator = 24
	s.VPN.Confidence.Detected = 50
	s.Scoring.Deductions.LocationWarning = 20
	s.Scoring.Deductions.LocationFail = 40
	s.Scoring.Deductions.EnvironmentWarning = 25
	s.Scoring.Deductions.EnvironmentFail = 50
	s.PatternAnalysis.VPNDetected = 30
	s.PatternAnalysis.LowAccuracy = 15
	s.PatternAnalysis.FastResponse = 20
	s.PatternAnalysis.VirtualGPU = 25
	s.PatternAnalysis.LowColorDepth = 15
	s.PatternAnalysis.RiskyNeighbours = 20
	return s
}

// Registry hands out threshold snapshots. Safe for concurrent use.
type Registry struct {
	snap atomic.Pointer[Snapshot]
	log  *slog.Logger
}

// NewRegistry creates a registry seeded with the built-in defaults.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{log: log}
	d := Defaults()
	r.snap.Store(&d)
	return r
}

// Get returns the current snapshot. The returned value is shared and
// must be treated as read-only.
func (r *Registry) Get() *Snapshot {
	return r.snap.Load()
}

// Replace atomically installs a new snapshot.
func (r *Registry) Replace(s Snapshot) {
	r.snap.Store(&s)
	r.log.Info("threshold snapshot replaced")
}

// LoadFile reads a JSON threshold document and installs it. Missing keys
// keep their built-in defaults; unknown keys are ignored. The previous
// snapshot stays in place if the document cannot be read or parsed.
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read thresholds: %w", err)
	}
	s := Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("parse thresholds: %w", err)
	}
	r.snap.Store(&s)
	r.log.Info("thresholds loaded", "path", path)
	return nil
}
