package interp

import (
	"testing"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
)

func TestTouchRecordsBindingOncePerStep(t *testing.T) {
	b := ir.NewBuilder("touch", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	g, err := NewGlobal(p, GlobalOptions{})
	if err != nil {
		t.Fatalf("NewGlobal: %v", err)
	}
	lane := NewThread(g, 0)

	buf := resource.ReferenceInfo{Class: ir.ClassSRV, Binding: resource.BindingSlot{Register: 2}}
	other := resource.ReferenceInfo{Class: ir.ClassSRV, Binding: resource.BindingSlot{Register: 3}}
	samp := resource.ReferenceInfo{Class: ir.ClassSampler, Binding: resource.BindingSlot{Register: 2}}
	lane.touch(buf)
	lane.touch(buf)
	lane.touch(other)
	lane.touch(samp)
	lane.touch(other)

	if len(lane.touched) != 3 {
		t.Fatalf("touched = %+v, want 3 distinct bindings", lane.touched)
	}
	if lane.touched[0] != buf || lane.touched[1] != other || lane.touched[2] != samp {
		t.Errorf("touched out of first-access order: %+v", lane.touched)
	}

	res, err := lane.Step(resource.NewFixture(), []*ThreadState{lane}, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(res.Resources) != 0 {
		t.Errorf("ret reported resources %+v", res.Resources)
	}
}
