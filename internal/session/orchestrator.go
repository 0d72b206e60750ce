package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/internal/fingerprint"
	"github.com/rawblock/geoshield-engine/internal/llm"
	"github.com/rawblock/geoshield-engine/internal/risk"
	"github.com/rawblock/geoshield-engine/internal/vector"
	"github.com/rawblock/geoshield-engine/internal/verify"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// neighbourLimit is K for the nearest-neighbour lookup feeding pattern
// analysis.
const neighbourLimit = 5

// ErrInvalidInput is returned for malformed request envelopes. It is the
// only error Verify surfaces; every downstream failure degrades into
// verdict diagnostics instead.
var ErrInvalidInput = errors.New("invalid verification input")

// Mode selects the risk evaluator path.
type Mode string

const (
	ModeLite Mode = "lite"
	ModeFull Mode = "full"
)

// Request is one verification envelope as handed over by the transport.
type Request struct {
	Location    *models.LocationSignal    `json:"location"`
	Environment *models.EnvironmentSignal `json:"environment"`
	Network     *models.NetworkSignal     `json:"network"`

	// ClientIP is the transport-observed address; it wins over anything
	// the client self-reports.
	ClientIP string `json:"-"`

	Mode Mode `json:"-"`
}

// VPNDetector is the aggregator contract the orchestrator needs.
type VPNDetector interface {
	Detect(ctx context.Context, ip string) *models.VPNAggregateResult
}

// VectorIndex is the slice of the vector store the orchestrator uses.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vec []float32, fp *models.SessionFingerprint) error
	Search(ctx context.Context, vec []float32, limit int) ([]vector.Neighbor, error)
}

// OrchestratorConfig wires an Orchestrator. Embedder and Index are
// optional as a pair: without both, pattern analysis is degraded and the
// verdict says so.
type OrchestratorConfig struct {
	Logger      *slog.Logger
	Thresholds  *config.Registry
	VPN         VPNDetector
	Location    *verify.LocationVerifier
	Environment *verify.EnvironmentAnalyzer
	Fingerprint *fingerprint.Builder
	Risk        *risk.Evaluator

	Embedder llm.Embedder
	Index    VectorIndex

	// OnVerdict, when set, observes every completed verdict (used for
	// the live alert stream). Called synchronously; keep it cheap.
	OnVerdict func(*models.Verdict)
}

func (c *OrchestratorConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Thresholds == nil {
		return errors.New("threshold registry is required")
	}
	if c.VPN == nil {
		return errors.New("vpn detector is required")
	}
	if c.Location == nil || c.Environment == nil {
		return errors.New("verifiers are required")
	}
	if c.Fingerprint == nil {
		return errors.New("fingerprint builder is required")
	}
	if c.Risk == nil {
		return errors.New("risk evaluator is required")
	}
	return nil
}

// Orchestrator drives one verification request end to end. It holds no
// per-request state; all fields are safe for concurrent use.
type Orchestrator struct {
	cfg OrchestratorConfig
	log *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, log: cfg.Logger}, nil
}

// Verify runs the pipeline:
//
//	validate → (environment ‖ vpn→location) → fingerprint →
//	best-effort embed/upsert/search → risk → verdict
//
// Only input validation can fail the call. Verification-stage trouble
// yields an unable_to_verify verdict with whatever evidence was
// gathered; vector and risk trouble only degrade the verdict.
func (o *Orchestrator) Verify(ctx context.Context, req Request) (*models.Verdict, error) {
	ip, err := o.validate(&req)
	if err != nil {
		return nil, err
	}

	var (
		vpnRes *models.VPNAggregateResult
		locRes verify.LocationResult
		envRes verify.EnvironmentResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vpnRes = o.cfg.VPN.Detect(gctx, ip)
		locRes = o.cfg.Location.Verify(req.Location, vpnRes)
		return nil
	})
	g.Go(func() error {
		envRes = o.cfg.Environment.Analyze(req.Environment)
		return nil
	})
	_ = g.Wait()

	verdict := &models.Verdict{
		Status:           locRes.Status,
		LocationScore:    locRes.Score,
		EnvironmentScore: envRes.Score,
		EnvironmentKind:  envRes.Kind,
		LocationFlags:    locRes.Flags,
		EnvironmentFlags: envRes.Flags,
		VPNDetection:     vpnRes,
	}
	verdict.OverallScore = o.overallScore(locRes.Flags, envRes.Flags)

	fp := o.cfg.Fingerprint.Build(fingerprint.Input{
		Location:         req.Location,
		Environment:      req.Environment,
		Network:          req.Network,
		LocationScore:    scorePtr(locRes, req.Location),
		EnvironmentScore: &envRes.Score,
		LocationFlags:    locRes.Flags,
		EnvironmentFlags: envRes.Flags,
		VPN:              vpnRes,
	})
	verdict.Fingerprint = fp

	neighbours := o.patternAnalysis(ctx, fp, verdict)

	if req.Mode == ModeFull && o.cfg.Risk.HasGenerator() {
		verdict.Risk = o.cfg.Risk.EvaluateFull(ctx, fp, neighbours)
	} else {
		verdict.Risk = o.cfg.Risk.EvaluateLite(ctx, fp, neighbours)
	}

	if o.cfg.OnVerdict != nil {
		o.cfg.OnVerdict(verdict)
	}
	return verdict, nil
}

// validate rejects malformed envelopes and resolves the effective IP.
func (o *Orchestrator) validate(req *Request) (string, error) {
	if req.Location == nil && req.Environment == nil && req.Network == nil {
		return "", fmt.Errorf("%w: empty envelope", ErrInvalidInput)
	}
	if req.Location != nil {
		if (req.Location.Latitude == nil) != (req.Location.Longitude == nil) {
			return "", fmt.Errorf("%w: latitude and longitude must be provided together", ErrInvalidInput)
		}
		if req.Location.Accuracy != nil && *req.Location.Accuracy < 0 {
			return "", fmt.Errorf("%w: negative accuracy", ErrInvalidInput)
		}
	}

	ip := req.ClientIP
	if ip == "" && req.Network != nil {
		ip = req.Network.ClientIP
	}
	if ip == "" {
		return "", fmt.Errorf("%w: no client IP", ErrInvalidInput)
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("%w: unparseable client IP %q", ErrInvalidInput, ip)
	}
	if req.Network == nil {
		req.Network = &models.NetworkSignal{}
	}
	if req.Network.ClientIP == "" {
		req.Network.ClientIP = ip
	}
	return ip, nil
}

// patternAnalysis embeds the fingerprint, persists it and fetches the
// nearest neighbours. Every failure is recorded as a diagnostic; none of
// them fails the verdict.
func (o *Orchestrator) patternAnalysis(ctx context.Context, fp *models.SessionFingerprint, verdict *models.Verdict) []vector.Neighbor {
	if o.cfg.Embedder == nil || o.cfg.Index == nil {
		verdict.Diagnostics = append(verdict.Diagnostics, "pattern analysis disabled: no vector backend configured")
		return nil
	}

	text := fingerprint.TextProjection(fp)
	vec, err := o.cfg.Embedder.Embed(ctx, text)
	if err != nil {
		o.log.Warn("embedding failed", "session", fp.ID, "error", err)
		verdict.Diagnostics = append(verdict.Diagnostics, "pattern analysis degraded: embedding failed")
		return nil
	}

	if err := o.cfg.Index.Upsert(ctx, fp.ID, vec, fp); err != nil {
		o.log.Warn("vector upsert failed", "session", fp.ID, "error", err)
		verdict.Diagnostics = append(verdict.Diagnostics, "pattern analysis degraded: vector store write failed")
	}

	neighbours, err := o.cfg.Index.Search(ctx, vec, neighbourLimit)
	if err != nil {
		o.log.Warn("vector search failed", "session", fp.ID, "error", err)
		verdict.Diagnostics = append(verdict.Diagnostics, "pattern analysis degraded: similarity search failed")
		return nil
	}

	// The freshly upserted point matches itself with similarity ~1; it
	// is not a neighbour.
	filtered := neighbours[:0]
	for _, n := range neighbours {
		if n.ID != fp.ID {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// overallScore folds both categories' flags into one number using the
// configured severity deductions.
func (o *Orchestrator) overallScore(locFlags, envFlags []models.Flag) int {
	d := o.cfg.Thresholds.Get().Scoring.Deductions
	score := 100
	for _, f := range locFlags {
		switch f.Severity {
		case models.SeverityWarning:
			score -= d.LocationWarning
		case models.SeverityFail, models.SeverityCritical:
			score -= d.LocationFail
		}
	}
	for _, f := range envFlags {
		switch f.Severity {
		case models.SeverityWarning:
			score -= d.EnvironmentWarning
		case models.SeverityFail, models.SeverityCritical:
			score -= d.EnvironmentFail
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// scorePtr withholds the location score from the fingerprint summary
// when no location was provided at all, so the summary risk maps to
// unknown rather than a confident zero.
func scorePtr(res verify.LocationResult, loc *models.LocationSignal) *int {
	if !loc.HasCoordinates() {
		return nil
	}
	return &res.Score
}
