package ui

import (
	"errors"
	"strings"
	"testing"
)

func TestProgressModelView(t *testing.T) {
	events := make(chan Event)
	m := NewProgressModel("loop.sdp lane 2", 4, events).(*progressModel)

	m.Update(eventMsg(Event{Steps: 12, GlobalSteps: 20, Finished: 1, Lanes: 4}))
	if got := m.percent(); got != 0.25 {
		t.Fatalf("percent = %v, want 0.25", got)
	}
	view := m.View()
	for _, want := range []string{"loop.sdp lane 2", "12", "1/4"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}

	m.Update(eventMsg(Event{Steps: 13, Finished: 1, Lanes: 4, Err: errors.New("SD1005")}))
	m.Update(doneMsg{})
	if view := m.View(); !strings.Contains(view, "failed:") || !strings.Contains(view, "SD1005") {
		t.Errorf("error view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"a long program name", 10, "a long ..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
