package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/internal/llm"
	"github.com/rawblock/geoshield-engine/internal/vector"
	"github.com/rawblock/geoshield-engine/internal/verify"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// ──────────────────────────────────────────────────────────────────────
// Risk Evaluator — lite path
//
// Deterministic tallying over the fingerprint and its nearest
// neighbours. Each matching factor adds a configured bonus, the total
// maps to a tier. Adding a factor can only raise the score, so the
// result is monotone in the evidence.
// ──────────────────────────────────────────────────────────────────────

const (
	tierHighAt   = 60
	tierMediumAt = 30

	confidenceBase    = 50
	confidencePerHit  = 10
	confidenceCeiling = 90

	liteFastResponseMs    = 10
	liteLowColorDepth     = 24
	liteSummaryTimeout    = 3 * time.Second
	maxNeighboursInPrompt = 5
)

// EvaluatorConfig wires an Evaluator. Generator is optional: without it
// the lite path uses a templated explanation and the full path is
// unavailable.
type EvaluatorConfig struct {
	Logger     *slog.Logger
	Thresholds *config.Registry
	Generator  llm.Generator
}

// Evaluator produces RiskEvaluations. Safe for concurrent use.
type Evaluator struct {
	log        *slog.Logger
	thresholds *config.Registry
	generator  llm.Generator
}

func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{log: log, thresholds: cfg.Thresholds, generator: cfg.Generator}
}

// HasGenerator reports whether a generative backend is configured.
func (e *Evaluator) HasGenerator() bool { return e.generator != nil }

// EvaluateLite runs the deterministic path. It never returns an error:
// an internal failure degrades to an UNKNOWN tier with the error marker.
func (e *Evaluator) EvaluateLite(ctx context.Context, fp *models.SessionFingerprint, neighbours []vector.Neighbor) (ev *models.RiskEvaluation) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("lite evaluator panicked", "panic", r)
			ev = unknownEvaluation()
		}
	}()

	if fp == nil {
		return unknownEvaluation()
	}

	t := e.thresholds.Get()
	score := 0
	var factors []string
	var patterns []string

	addFactor := func(bonus int, factor, pattern string) {
		score += bonus
		factors = append(factors, factor)
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}

	if fp.Location != nil && fp.Location.VPNDetected {
		addFactor(t.PatternAnalysis.VPNDetected,
			fmt.Sprintf("VPN detected (%d%% provider consensus)", fp.Location.VPNConfidence),
			"ip_masking")
	}
	if fp.Location != nil && fp.Location.Accuracy != nil && *fp.Location.Accuracy > t.Location.Accuracy.Low {
		addFactor(t.PatternAnalysis.LowAccuracy,
			fmt.Sprintf("Low location accuracy (%.0fm)", *fp.Location.Accuracy),
			"coarse_location")
	}
	if fp.Location != nil && fp.Location.ResponseTimeMs != nil && *fp.Location.ResponseTimeMs < liteFastResponseMs {
		addFactor(t.PatternAnalysis.FastResponse,
			"Geolocation answered implausibly fast",
			"injected_coordinates")
	}
	if fp.Environment != nil && verify.IsVirtualGPU(fp.Environment.GPU) {
		addFactor(t.PatternAnalysis.VirtualGPU,
			"Virtualised GPU: "+fp.Environment.GPU,
			"virtual_machine")
	}
	if fp.Environment != nil && fp.Environment.ColorDepth > 0 && fp.Environment.ColorDepth < liteLowColorDepth {
		addFactor(t.PatternAnalysis.LowColorDepth,
			fmt.Sprintf("Reduced color depth (%d-bit)", fp.Environment.ColorDepth),
			"remote_session")
	}
	if riskyMajority(neighbours) {
		addFactor(t.PatternAnalysis.RiskyNeighbours,
			"Majority of similar sessions were high risk",
			"similar_high_risk_sessions")
	}

	tier := models.TierLow
	switch {
	case score >= tierHighAt:
		tier = models.TierHigh
	case score >= tierMediumAt:
		tier = models.TierMedium
	}

	confidence := confidenceBase + confidencePerHit*len(factors)
	if confidence > confidenceCeiling {
		confidence = confidenceCeiling
	}

	return &models.RiskEvaluation{
		Tier:               tier,
		Confidence:         confidence,
		Explanation:        e.explain(ctx, tier, factors),
		RiskFactors:        factors,
		Patterns:           patterns,
		Recommendations:    recommend(tier),
		SimilarityInsights: similarityInsights(neighbours),
		ProcessingMode:     models.ProcessingFast,
	}
}

// explain produces the one-sentence explanation. A reachable generator
// is asked for a summary on a short deadline; otherwise a templated
// sentence is used.
func (e *Evaluator) explain(ctx context.Context, tier models.RiskTier, factors []string) string {
	templated := templatedExplanation(tier, factors)
	if e.generator == nil {
		return templated
	}

	genCtx, cancel := context.WithTimeout(ctx, liteSummaryTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Summarise this session risk assessment in one sentence for a fraud analyst. Tier: %s. Factors: %s.",
		tier, strings.Join(factors, "; "))
	text, err := e.generator.Generate(genCtx, prompt)
	if err != nil {
		e.log.Debug("explanation generation unavailable, using template", "error", err)
		return templated
	}
	return strings.TrimSpace(text)
}

func templatedExplanation(tier models.RiskTier, factors []string) string {
	if len(factors) == 0 {
		return "No spoofing or remote-environment indicators were found; the session looks like a genuine local device."
	}
	return fmt.Sprintf("Session rated %s risk based on %d indicator(s): %s.",
		tier, len(factors), strings.Join(factors, "; "))
}

// riskyMajority reports whether more than half of the neighbours carry a
// high overall risk.
func riskyMajority(neighbours []vector.Neighbor) bool {
	if len(neighbours) == 0 {
		return false
	}
	high := 0
	for _, n := range neighbours {
		if n.Fingerprint.Summary.OverallRisk == models.RiskHigh {
			high++
		}
	}
	return high*2 > len(neighbours)
}

func similarityInsights(neighbours []vector.Neighbor) string {
	if len(neighbours) == 0 {
		return ""
	}
	high := 0
	for _, n := range neighbours {
		if n.Fingerprint.Summary.OverallRisk == models.RiskHigh {
			high++
		}
	}
	return fmt.Sprintf("%d similar session(s) found, %d of them high risk.", len(neighbours), high)
}

func recommend(tier models.RiskTier) []string {
	switch tier {
	case models.TierHigh:
		return []string{
			"Block or step-up authenticate this session",
			"Require out-of-band location confirmation",
			"Review recent activity from this IP range",
		}
	case models.TierMedium:
		return []string{
			"Apply additional verification before sensitive actions",
			"Monitor this session for further anomalies",
		}
	case models.TierLow:
		return []string{"No action required"}
	default:
		return []string{"Retry evaluation; insufficient evidence"}
	}
}

func unknownEvaluation() *models.RiskEvaluation {
	return &models.RiskEvaluation{
		Tier:           models.TierUnknown,
		Confidence:     0,
		Explanation:    "Risk evaluation failed internally; no tier could be assigned.",
		ProcessingMode: models.ProcessingError,
	}
}
