package verify

import (
	"testing"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

func newEnvironmentAnalyzer() *EnvironmentAnalyzer {
	return NewEnvironmentAnalyzer(config.NewRegistry(testLogger()), testLogger())
}

func boolPtr(v bool) *bool { return &v }

// desktopSignal is a plausible physical desktop.
func desktopSignal() *models.EnvironmentSignal {
	return &models.EnvironmentSignal{
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		ColorDepth:    24,
		WebGLRenderer: "NVIDIA GeForce RTX 3060/PCIe/SSE2",
		Platform:      "Win32",
		Timezone:      "Europe/Paris",
		Language:      "fr-FR",
	}
}

func TestAnalyzeNilSignal(t *testing.T) {
	a := newEnvironmentAnalyzer()

	res := a.Analyze(nil)
	if res.Score != 100 {
		t.Errorf("Score = %d, want 100", res.Score)
	}
	if res.Kind != models.EnvLocalDesktop {
		t.Errorf("Kind = %v, want local_desktop", res.Kind)
	}
	if len(res.Flags) != 0 {
		t.Errorf("Flags = %v, want none", res.Flags)
	}
}

func TestAnalyzeCleanDesktop(t *testing.T) {
	a := newEnvironmentAnalyzer()

	res := a.Analyze(desktopSignal())
	if res.Score != 100 || res.Kind != models.EnvLocalDesktop || len(res.Flags) != 0 {
		t.Errorf("clean desktop = score %d, kind %v, flags %v; want 100/local_desktop/none",
			res.Score, res.Kind, res.Flags)
	}
}

func TestAnalyzeVirtualGPURenderers(t *testing.T) {
	tests := []struct {
		name     string
		renderer string
	}{
		{"VMware", "VMware SVGA 3D"},
		{"VirtualBox", "VirtualBox Graphics Adapter"},
		{"MicrosoftBasic", "Microsoft Basic Render Driver"},
		{"LLVMpipe", "llvmpipe (LLVM 15.0.7, 256 bits)"},
		{"MixedCase", "VMWARE svga 3d"},
	}

	a := newEnvironmentAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := desktopSignal()
			env.WebGLRenderer = tt.renderer

			res := a.Analyze(env)
			if res.Kind != models.EnvVirtualMachine {
				t.Errorf("Kind = %v, want virtual_machine", res.Kind)
			}
			if res.Score != 50 {
				t.Errorf("Score = %d, want 50", res.Score)
			}
			if len(res.Flags) != 1 || res.Flags[0].Severity != models.SeverityCritical {
				t.Errorf("Flags = %v, want single critical flag", res.Flags)
			}
		})
	}
}

func TestAnalyzeVirtualMachineKindOverridesScoreBands(t *testing.T) {
	// A VM detection pins the kind even when further deductions push the
	// score into the remote-desktop band.
	a := newEnvironmentAnalyzer()

	env := desktopSignal()
	env.WebGLRenderer = "VMware SVGA 3D"
	env.ColorDepth = 16

	res := a.Analyze(env)
	if res.Score != 25 {
		t.Errorf("Score = %d, want 25", res.Score)
	}
	if res.Kind != models.EnvVirtualMachine {
		t.Errorf("Kind = %v, want virtual_machine", res.Kind)
	}
}

func TestAnalyzeRuleDeductions(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.EnvironmentSignal)
		wantScore int
		wantKind  models.EnvironmentKind
		wantFlag  string
	}{
		{
			name: "ReducedColorDepth",
			mutate: func(e *models.EnvironmentSignal) {
				e.ColorDepth = 16
			},
			wantScore: 75,
			wantKind:  models.EnvLocalDesktop,
			wantFlag:  "Reduced color depth",
		},
		{
			name: "AndroidWithoutTouch",
			mutate: func(e *models.EnvironmentSignal) {
				e.Platform = "Android"
				e.TouchSupport = boolPtr(false)
			},
			wantScore: 70,
			wantKind:  models.EnvPossiblyRemote,
			wantFlag:  "Mobile platform without touch",
		},
		{
			name: "UncommonResolution",
			mutate: func(e *models.EnvironmentSignal) {
				e.ScreenWidth, e.ScreenHeight = 1280, 800
			},
			wantScore: 85,
			wantKind:  models.EnvLocalDesktop,
			wantFlag:  "Uncommon screen resolution",
		},
	}

	a := newEnvironmentAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := desktopSignal()
			tt.mutate(env)

			res := a.Analyze(env)
			if res.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", res.Score, tt.wantScore)
			}
			if res.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", res.Kind, tt.wantKind)
			}
			if len(res.Flags) != 1 || res.Flags[0].Message != tt.wantFlag {
				t.Errorf("Flags = %v, want single %q", res.Flags, tt.wantFlag)
			}
		})
	}
}

func TestAnalyzeOddAspectRatio(t *testing.T) {
	a := newEnvironmentAnalyzer()

	env := desktopSignal()
	env.ScreenWidth, env.ScreenHeight = 1234, 999

	res := a.Analyze(env)

	// An odd window-like size trips both the aspect and resolution rules.
	if res.Score != 65 {
		t.Errorf("Score = %d, want 65", res.Score)
	}
	if res.Kind != models.EnvPossiblyRemote {
		t.Errorf("Kind = %v, want possibly_remote", res.Kind)
	}
	if len(res.Flags) != 2 {
		t.Fatalf("Flags = %v, want aspect + resolution", res.Flags)
	}
	if res.Flags[0].Message != "Unusual aspect ratio" || res.Flags[1].Message != "Uncommon screen resolution" {
		t.Errorf("flag order = %q, %q", res.Flags[0].Message, res.Flags[1].Message)
	}
}

func TestAnalyzeTouchSupportedAndroidNotFlagged(t *testing.T) {
	a := newEnvironmentAnalyzer()

	env := desktopSignal()
	env.Platform = "Android"
	env.TouchSupport = boolPtr(true)

	res := a.Analyze(env)
	for _, f := range res.Flags {
		if f.Message == "Mobile platform without touch" {
			t.Errorf("touch-capable Android flagged: %v", res.Flags)
		}
	}
}

func TestAnalyzeRemoteDesktopBand(t *testing.T) {
	a := newEnvironmentAnalyzer()

	// Window-sized screen, low depth, Android with no touch: score 10.
	env := &models.EnvironmentSignal{
		ScreenWidth:  1234,
		ScreenHeight: 999,
		ColorDepth:   16,
		Platform:     "Android",
	}

	res := a.Analyze(env)
	if res.Score != 10 {
		t.Errorf("Score = %d, want 10", res.Score)
	}
	if res.Kind != models.EnvRemoteDesktop {
		t.Errorf("Kind = %v, want remote_desktop", res.Kind)
	}
}

func TestIsVirtualGPU(t *testing.T) {
	tests := []struct {
		renderer string
		want     bool
	}{
		{"VMware SVGA 3D", true},
		{"ANGLE (NVIDIA GeForce GTX 1080)", false},
		{"Apple M2", false},
		{"llvmpipe", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsVirtualGPU(tt.renderer); got != tt.want {
			t.Errorf("IsVirtualGPU(%q) = %v, want %v", tt.renderer, got, tt.want)
		}
	}
}
