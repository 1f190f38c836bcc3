package ir_test

import (
	"testing"

	"shaderdebug/internal/ir"
)

func TestDXOpTables(t *testing.T) {
	tests := []struct {
		op      ir.DXOp
		flushes bool
		sample  bool
		compare bool
	}{
		{ir.DXExp, true, false, false},
		{ir.DXSqrt, true, false, false},
		{ir.DXSample, true, true, false},
		{ir.DXSampleCmpLevel, true, true, true},
		{ir.DXSampleCmpGrad, true, true, true},
		{ir.DXSampleCmpBias, true, true, true},
		{ir.DXTextureGatherCmp, true, true, true},
		{ir.DXCalculateLOD, true, true, false},
		{ir.DXDerivCoarseX, true, false, false},
		{ir.DXDerivFineY, true, false, false},
		{ir.DXQuadOp, false, false, false},
		{ir.DXTextureLoad, false, false, false},
		{ir.DXCBufferLoad, false, false, false},
		{ir.DXFMax, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			if got := tt.op.Flushes(); got != tt.flushes {
				t.Errorf("Flushes = %v, want %v", got, tt.flushes)
			}
			if got := tt.op.IsSampleOrGather(); got != tt.sample {
				t.Errorf("IsSampleOrGather = %v, want %v", got, tt.sample)
			}
			if got := tt.op.IsCompareSample(); got != tt.compare {
				t.Errorf("IsCompareSample = %v, want %v", got, tt.compare)
			}
		})
	}
}
