package debugger

import (
	"context"
	"errors"
	"testing"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/tangle"
)

// stalled has live tangles but never lets any of them run.
type stalled struct{ updates int }

func (s *stalled) Done() bool               { return false }
func (s *stalled) Active() []*tangle.Tangle { return nil }
func (s *stalled) Update() error            { s.updates++; return nil }

func TestContinueFailsWhenNoLaneCanRun(t *testing.T) {
	b := ir.NewBuilder("stall", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p.ThreadsX = 2

	s, _, err := BeginSession(p, Reflection{}, 1, 2, Options{})
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	group := &stalled{}
	s.group = group

	acc := resource.NewFixture()
	states, err := s.Continue(context.Background(), acc)
	if !errors.Is(err, ErrScheduler) {
		t.Fatalf("Continue error = %v, want ErrScheduler", err)
	}
	if len(states) != 0 {
		t.Fatalf("got %d states, want none", len(states))
	}
	if group.updates != 1 {
		t.Fatalf("group updated %d times, want 1", group.updates)
	}
	if !s.lanes[1].Finished() {
		t.Fatalf("observed lane still running after the scheduler failed")
	}
	if s.lanes[0].Finished() {
		t.Fatalf("unobserved lane was ended")
	}
	if !s.Done() {
		t.Fatalf("session not done after a fatal error")
	}
	if _, again := s.Continue(context.Background(), acc); !errors.Is(again, ErrScheduler) {
		t.Fatalf("second Continue error = %v, want the first error again", again)
	}
}
