package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("load")
	time.Sleep(time.Millisecond)
	tm.End(idx, "4 functions")
	err := tm.Measure("run", func() error { return errors.New("boom") })
	if err == nil {
		t.Fatalf("Measure lost the error")
	}

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "load" || r.Phases[1].Note != "failed" {
		t.Fatalf("report = %+v", r)
	}
	if r.Phases[0].DurationMS <= 0 || r.TotalMS < r.Phases[0].DurationMS {
		t.Fatalf("durations = %+v", r)
	}
	s := tm.Summary()
	for _, want := range []string{"load", "// 4 functions", "run", "total"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary lacks %q:\n%s", want, s)
		}
	}
}

func TestEndIgnoresBadIndex(t *testing.T) {
	tm := NewTimer()
	tm.End(3, "x")
	if len(tm.Phases()) != 0 {
		t.Fatalf("phases = %v", tm.Phases())
	}
}
