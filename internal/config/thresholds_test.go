package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	if s.Location.ResponseTime.Suspicious != 10 {
		t.Errorf("response time floor = %v, want 10", s.Location.ResponseTime.Suspicious)
	}
	if s.Location.Accuracy.Low != 1000 {
		t.Errorf("low accuracy radius = %v, want 1000", s.Location.Accuracy.Low)
	}
	if s.Location.Score.LikelySpoofed != 60 || s.Location.Score.Suspicious != 80 {
		t.Errorf("location score bands = %d/%d, want 60/80",
			s.Location.Score.LikelySpoofed, s.Location.Score.Suspicious)
	}
	if s.Environment.Score.LikelyRemote != 50 || s.Environment.Score.PossiblyRemote != 75 {
		t.Errorf("environment score bands = %d/%d, want 50/75",
			s.Environment.Score.LikelyRemote, s.Environment.Score.PossiblyRemote)
	}
	if s.Environment.ColorDepth.RDPIndicator != 24 {
		t.Errorf("RDP colour depth indicator = %d, want 24", s.Environment.ColorDepth.RDPIndicator)
	}
	if s.VPN.Confidence.Detected != 50 {
		t.Errorf("VPN consensus cutoff = %d, want 50", s.VPN.Confidence.Detected)
	}
	if s.PatternAnalysis.VPNDetected != 30 || s.PatternAnalysis.RiskyNeighbours != 20 {
		t.Errorf("pattern bonuses = %d/%d, want 30/20",
			s.PatternAnalysis.VPNDetected, s.PatternAnalysis.RiskyNeighbours)
	}
}

func TestRegistrySeedsDefaults(t *testing.T) {
	r := NewRegistry(nil)
	got := r.Get()
	want := Defaults()
	if *got != want {
		t.Errorf("fresh registry snapshot differs from defaults")
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry(nil)

	s := Defaults()
	s.VPN.Confidence.Detected = 75
	r.Replace(s)

	if got := r.Get().VPN.Confidence.Detected; got != 75 {
		t.Errorf("after replace, VPN cutoff = %d, want 75", got)
	}
	// Untouched fields survive the swap.
	if got := r.Get().Location.Accuracy.Low; got != 1000 {
		t.Errorf("after replace, accuracy radius = %v, want 1000", got)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.json")
	doc := `{"location": {"score": {"likelySpoofed": 40}}, "vpn": {"confidence": {"detected": 66}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(nil)
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	s := r.Get()
	if s.Location.Score.LikelySpoofed != 40 {
		t.Errorf("overridden likelySpoofed = %d, want 40", s.Location.Score.LikelySpoofed)
	}
	if s.VPN.Confidence.Detected != 66 {
		t.Errorf("overridden VPN cutoff = %d, want 66", s.VPN.Confidence.Detected)
	}
	// Keys absent from the document keep their defaults.
	if s.Location.Score.Suspicious != 80 {
		t.Errorf("unset suspicious band = %d, want default 80", s.Location.Score.Suspicious)
	}
	if s.Environment.ColorDepth.RDPIndicator != 24 {
		t.Errorf("unset colour depth = %d, want default 24", s.Environment.ColorDepth.RDPIndicator)
	}
}

func TestLoadFileKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(nil)
	custom := Defaults()
	custom.VPN.Confidence.Detected = 99
	r.Replace(custom)

	if err := r.LoadFile(path); err == nil {
		t.Fatal("expected parse error for malformed document")
	}
	if got := r.Get().VPN.Confidence.Detected; got != 99 {
		t.Errorf("snapshot changed after failed load: VPN cutoff = %d, want 99", got)
	}

	if err := r.LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected read error for missing file")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(cutoff int) {
			defer wg.Done()
			s := Defaults()
			s.VPN.Confidence.Detected = cutoff
			r.Replace(s)
		}(50 + i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := r.Get()
				// Every observed snapshot must be internally consistent.
				if s.Location.Accuracy.Low != 1000 {
					t.Errorf("torn snapshot observed")
					return
				}
			}
		}()
	}
	wg.Wait()
}
