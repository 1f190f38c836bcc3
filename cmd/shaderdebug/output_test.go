package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"shaderdebug/internal/debugger"
	"shaderdebug/internal/interp"
	"shaderdebug/internal/value"
)

func TestFormatState(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	st := debugger.ShaderDebugState{
		Step:            3,
		NextInstruction: 7,
		Callstack:       []string{"main", "helper"},
		Flags:           interp.EventGeneratedNanOrInf,
		Changes: []interp.Change{
			{Id: 4, After: value.FromU32("", 5)},
			{Id: 12, Before: value.FromU32("", 1), After: value.FromU32("", 2)},
			{Id: 9, Before: value.FromU32("", 8)},
		},
	}
	var buf bytes.Buffer
	formatState(&buf, st)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "#3") || !strings.Contains(lines[0], "@7") || !strings.Contains(lines[0], "main > helper") {
		t.Errorf("header = %q", lines[0])
	}
	want := []string{
		"    %4  = 5",
		"    %12 = 1 -> 2",
		"    %9  out of scope",
	}
	for i, w := range want {
		if lines[i+1] != w {
			t.Errorf("line %d = %q, want %q", i+1, lines[i+1], w)
		}
	}
}

func TestFormatStateAtEnd(t *testing.T) {
	var buf bytes.Buffer
	formatState(&buf, debugger.ShaderDebugState{Step: 10, NextInstruction: -1})
	if !strings.Contains(buf.String(), "end") {
		t.Fatalf("finished state rendered as %q", buf.String())
	}
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"ON", uiModeOn, false},
		{" off ", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if !shouldUseTUI(uiModeOn, false) || shouldUseTUI(uiModeOff, true) {
		t.Errorf("explicit modes ignored")
	}
}
