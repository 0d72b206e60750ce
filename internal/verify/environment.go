package verify

import (
	"log/slog"
	"math"
	"strings"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// ──────────────────────────────────────────────────────────────────────
// Environment Analyzer
//
// Scores the reported client runtime and classifies it as a local
// desktop, a remote/virtual session, or something in between. Same
// fixed-order tallying discipline as the location verifier.
// ──────────────────────────────────────────────────────────────────────

const (
	deductOddAspectRatio = 20
	deductLowColorDepth  = 25
	deductVirtualGPU     = 50
	deductNoTouchMobile  = 30
	deductOddResolution  = 15

	aspectRatioTolerance = 0.01
)

// vmRendererSubstrings identify virtualised graphics stacks in a WebGL
// renderer string. Case-insensitive substring match.
var vmRendererSubstrings = []string{"vmware", "virtualbox", "microsoft basic", "llvmpipe"}

// commonAspectRatios are the width/height ratios of real consumer
// displays.
var commonAspectRatios = []float64{16.0 / 9.0, 16.0 / 10.0, 4.0 / 3.0, 21.0 / 9.0}

// commonResolutions is the canonical set of widespread physical screen
// sizes. Anything else is worth a mild flag: remote-desktop clients
// often report the window size rather than a real panel.
var commonResolutions = map[string]bool{
	"1920x1080": true,
	"1366x768":  true,
	"1536x864":  true,
	"1440x900":  true,
	"1280x720":  true,
	"2560x1440": true,
	"1600x900":  true,
	"1024x768":  true,
	"1680x1050": true,
	"3840x2160": true,
}

// IsVirtualGPU reports whether a renderer string names a known
// virtualised graphics stack.
func IsVirtualGPU(renderer string) bool {
	lower := strings.ToLower(renderer)
	for _, sub := range vmRendererSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// EnvironmentResult is the scored outcome for the environment category.
type EnvironmentResult struct {
	Kind  models.EnvironmentKind `json:"kind"`
	Score int                    `json:"score"`
	Flags []models.Flag          `json:"flags"`
}

// EnvironmentAnalyzer scores an environment signal.
type EnvironmentAnalyzer struct {
	thresholds *config.Registry
	log        *slog.Logger
}

func NewEnvironmentAnalyzer(thresholds *config.Registry, log *slog.Logger) *EnvironmentAnalyzer {
	if log == nil {
		log = slog.Default()
	}
	return &EnvironmentAnalyzer{thresholds: thresholds, log: log}
}

// Analyze applies the environment rule table. Missing fields skip their
// rule rather than penalise.
func (a *EnvironmentAnalyzer) Analyze(env *models.EnvironmentSignal) EnvironmentResult {
	if env == nil {
		env = &models.EnvironmentSignal{}
	}

	t := a.thresholds.Get()
	score := 100
	kind := models.EnvLocalDesktop
	var flags []models.Flag

	fail := func(sev models.FlagSeverity, msg, detail string, deduction int) {
		flags = append(flags, models.Flag{Severity: sev, Message: msg, Detail: detail})
		score -= deduction
	}

	if env.ScreenWidth > 0 && env.ScreenHeight > 0 {
		ratio := float64(env.ScreenWidth) / float64(env.ScreenHeight)
		if !isCommonAspectRatio(ratio) {
			fail(models.SeverityWarning, "Unusual aspect ratio",
				"Screen proportions match no common physical display", deductOddAspectRatio)
		}
	}

	if env.ColorDepth > 0 && env.ColorDepth < t.Environment.ColorDepth.RDPIndicator {
		fail(models.SeverityWarning, "Reduced color depth",
			"Remote desktop transports commonly drop below 24-bit color", deductLowColorDepth)
	}

	if env.WebGLRenderer != "" && IsVirtualGPU(env.WebGLRenderer) {
		fail(models.SeverityCritical, "Virtual machine GPU",
			"WebGL renderer names a virtualised graphics stack: "+env.WebGLRenderer, deductVirtualGPU)
		kind = models.EnvVirtualMachine
	}

	if platformIndicatesAndroid(env.Platform) && (env.TouchSupport == nil || !*env.TouchSupport) {
		fail(models.SeverityWarning, "Mobile platform without touch",
			"Android platform reported but no touch support; emulator or spoofed UA", deductNoTouchMobile)
	}

	if res := env.Resolution(); res != "" && !commonResolutions[res] {
		fail(models.SeverityWarning, "Uncommon screen resolution",
			"Resolution "+res+" is not a standard panel size", deductOddResolution)
	}

	score = clampScore(score)

	if kind != models.EnvVirtualMachine {
		switch {
		case score < t.Environment.Score.LikelyRemote:
			kind = models.EnvRemoteDesktop
		case score < t.Environment.Score.PossiblyRemote:
			kind = models.EnvPossiblyRemote
		}
	}

	return EnvironmentResult{Kind: kind, Score: score, Flags: flags}
}

func isCommonAspectRatio(ratio float64) bool {
	for _, r := range commonAspectRatios {
		if math.Abs(ratio-r) <= aspectRatioTolerance {
			return true
		}
	}
	return false
}

func platformIndicatesAndroid(platform string) bool {
	return strings.Contains(strings.ToLower(platform), "android") ||
		strings.Contains(strings.ToLower(platform), "linux armv")
}
