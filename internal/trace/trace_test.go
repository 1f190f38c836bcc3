package trace

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltersScopes(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeSession, false},
		{LevelPhase, ScopeSession, true},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeFunction, false},
		{LevelDetail, ScopeFunction, true},
		{LevelDetail, ScopeStep, false},
		{LevelDebug, ScopeStep, true},
		{LevelError, ScopeStep, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"off", "error", "phase", "detail", "debug"} {
		l, err := ParseLevel(strings.ToUpper(s))
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if l.String() != s {
			t.Errorf("ParseLevel(%q) = %s", s, l)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatNDJSON)

	s := Begin(tr, ScopePass, "validate", 0)
	s.WithExtra("instructions", "12").End("ok")
	// Filtered out at LevelPhase.
	Begin(tr, ScopeStep, "step", s.ID()).End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	var end struct {
		Kind   string            `json:"kind"`
		Name   string            `json:"name"`
		Detail string            `json:"detail"`
		Extra  map[string]string `json:"extra"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if end.Kind != "end" || end.Name != "validate" || end.Detail != "ok" || end.Extra["instructions"] != "12" {
		t.Fatalf("unexpected end event: %+v", end)
	}
}

func TestRingTracerKeepsNewest(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := 0; i < 5; i++ {
		Point(r, ScopeStep, "p", string(rune('a'+i)), 0)
	}
	got := r.Snapshot()
	if len(got) != 3 {
		t.Fatalf("snapshot has %d events, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Detail != want {
			t.Errorf("event %d detail = %q, want %q", i, got[i].Detail, want)
		}
	}

	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatText); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 3 {
		t.Fatalf("dump:\n%s", buf.String())
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("tracer at LevelOff is enabled")
	}
	if s := Begin(tr, ScopeSession, "x", 0); s != nil {
		t.Fatalf("Begin on disabled tracer returned a span")
	}
}

func TestNewBothFansOut(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelDebug, Mode: ModeBoth, Output: &buf, RingSize: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Point(tr, ScopeSession, "hello", "", 0)
	multi, ok := tr.(*MultiTracer)
	if !ok {
		t.Fatalf("got %T, want *MultiTracer", tr)
	}
	if n := len(multi.Ring().Snapshot()); n != 1 {
		t.Fatalf("ring has %d events, want 1", n)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("stream output missing event: %q", buf.String())
	}
}
