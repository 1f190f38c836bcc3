package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "[session]\nlanes = 4\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path, ok, err := FindConfig(nested)
	if err != nil || !ok {
		t.Fatalf("FindConfig = %q, %v, %v", path, ok, err)
	}
	if path != filepath.Join(root, FileName) {
		t.Fatalf("found %q", path)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
[session]
program = "shader.sdp"
fixture = "res/fixture.toml"
lane = 2
lanes = 4
wave_size = 4
group_id = [1, 0, 0]
helpers = [3]

[trace]
level = "phase"
heartbeat = "250ms"

[log]
level = "debug"

[[input]]
lane = 1
element = 0
floats = [0.5, 1.5]

[[input]]
lane = 1
element = 2
words = [7]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Lane != 2 || cfg.Session.Lanes != 4 || cfg.Session.GroupID != [3]uint32{1, 0, 0} {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Trace.Level != "phase" || cfg.Trace.Mode != "stream" || cfg.Trace.Heartbeat.Duration != 250*time.Millisecond {
		t.Errorf("trace = %+v", cfg.Trace)
	}
	if got := cfg.Resolve(cfg.Session.Fixture); got != filepath.Join(dir, "res", "fixture.toml") {
		t.Errorf("fixture resolves to %q", got)
	}

	inputs := cfg.LaneInputs()
	if len(inputs) != 4 || len(inputs[1]) != 3 || len(inputs[0]) != 0 {
		t.Fatalf("inputs = %+v", inputs)
	}
	if got := inputs[1][0].Float(1); got != 1.5 {
		t.Errorf("input 1.0 component 1 = %v, want 1.5", got)
	}
	if got := inputs[1][2].Uint(0); got != 7 {
		t.Errorf("input 1.2 = %d, want 7", got)
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, `
[session]
lane = 5
lanes = 2
helpers = [9]

[[input]]
lane = 0
element = 0
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"[session].lane 5", "helpers: lane 9", "input 0: exactly one"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "[session]\nlanes = 1\nlane_count = 4\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "lane_count") {
		t.Fatalf("Load = %v, want unknown key error", err)
	}
}

func TestDiscoverWithoutFile(t *testing.T) {
	cfg, path, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if path != "" || cfg.Session.Lanes != 1 || cfg.Log.Level != "warn" {
		t.Fatalf("Discover = %+v, %q", cfg, path)
	}
}
