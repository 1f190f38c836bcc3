package ir

import "fmt"

// DXOp is the opcode of a dx.op intrinsic call. Values match the DXIL
// opcode numbering so programs from an external parser map one to one.
type DXOp uint32

const (
	DXTempRegLoad                  DXOp = 0
	DXLoadInput                    DXOp = 4
	DXStoreOutput                  DXOp = 5
	DXFAbs                         DXOp = 6
	DXSaturate                     DXOp = 7
	DXIsNaN                        DXOp = 8
	DXIsInf                        DXOp = 9
	DXIsFinite                     DXOp = 10
	DXIsNormal                     DXOp = 11
	DXCos                          DXOp = 12
	DXSin                          DXOp = 13
	DXTan                          DXOp = 14
	DXAcos                         DXOp = 15
	DXAsin                         DXOp = 16
	DXAtan                         DXOp = 17
	DXHcos                         DXOp = 18
	DXHsin                         DXOp = 19
	DXHtan                         DXOp = 20
	DXExp                          DXOp = 21
	DXFrc                          DXOp = 22
	DXLog                          DXOp = 23
	DXSqrt                         DXOp = 24
	DXRsqrt                        DXOp = 25
	DXRoundNe                      DXOp = 26
	DXRoundNi                      DXOp = 27
	DXRoundPi                      DXOp = 28
	DXRoundZ                       DXOp = 29
	DXBfrev                        DXOp = 30
	DXCountbits                    DXOp = 31
	DXFirstbitLo                   DXOp = 32
	DXFirstbitHi                   DXOp = 33
	DXFirstbitSHi                  DXOp = 34
	DXFMax                         DXOp = 35
	DXFMin                         DXOp = 36
	DXIMax                         DXOp = 37
	DXIMin                         DXOp = 38
	DXUMax                         DXOp = 39
	DXUMin                         DXOp = 40
	DXFMad                         DXOp = 46
	DXFma                          DXOp = 47
	DXIMad                         DXOp = 48
	DXUMad                         DXOp = 49
	DXDot2                         DXOp = 54
	DXDot3                         DXOp = 55
	DXDot4                         DXOp = 56
	DXCreateHandle                 DXOp = 57
	DXCBufferLoad                  DXOp = 58
	DXCBufferLoadLegacy            DXOp = 59
	DXSample                       DXOp = 60
	DXSampleBias                   DXOp = 61
	DXSampleLevel                  DXOp = 62
	DXSampleGrad                   DXOp = 63
	DXSampleCmp                    DXOp = 64
	DXSampleCmpLevelZero           DXOp = 65
	DXTextureLoad                  DXOp = 66
	DXTextureStore                 DXOp = 67
	DXBufferLoad                   DXOp = 68
	DXBufferStore                  DXOp = 69
	DXGetDimensions                DXOp = 72
	DXTextureGather                DXOp = 73
	DXTextureGatherCmp             DXOp = 74
	DXTexture2DMSGetSamplePosition DXOp = 75
	DXRenderTargetGetSamplePos     DXOp = 76
	DXRenderTargetGetSampleCount   DXOp = 77
	DXAtomicBinOp                  DXOp = 78
	DXAtomicCompareExchange        DXOp = 79
	DXBarrier                      DXOp = 80
	DXCalculateLOD                 DXOp = 81
	DXDiscard                      DXOp = 82
	DXDerivCoarseX                 DXOp = 83
	DXDerivCoarseY                 DXOp = 84
	DXDerivFineX                   DXOp = 85
	DXDerivFineY                   DXOp = 86
	DXThreadId                     DXOp = 93
	DXGroupId                      DXOp = 94
	DXThreadIdInGroup              DXOp = 95
	DXFlattenedThreadIdInGroup     DXOp = 96
	DXWaveIsFirstLane              DXOp = 110
	DXWaveGetLaneIndex             DXOp = 111
	DXWaveGetLaneCount             DXOp = 112
	DXWaveAnyTrue                  DXOp = 113
	DXWaveAllTrue                  DXOp = 114
	DXWaveActiveAllEqual           DXOp = 115
	DXWaveActiveBallot             DXOp = 116
	DXWaveReadLaneAt               DXOp = 117
	DXWaveReadLaneFirst            DXOp = 118
	DXWaveActiveOp                 DXOp = 119
	DXWaveActiveBit                DXOp = 120
	DXWavePrefixOp                 DXOp = 121
	DXQuadReadLaneAt               DXOp = 122
	DXQuadOp                       DXOp = 123
	DXWaveAllBitCount              DXOp = 135
	DXWavePrefixBitCount           DXOp = 136
	DXRawBufferLoad                DXOp = 139
	DXRawBufferStore               DXOp = 140
	DXAnnotateHandle               DXOp = 216
	DXCreateHandleFromBinding      DXOp = 217
	DXCreateHandleFromHeap         DXOp = 218
	DXIsHelperLane                 DXOp = 221
	DXSampleCmpLevel               DXOp = 224
	DXSampleCmpGrad                DXOp = 254
	DXSampleCmpBias                DXOp = 255
)

var dxOpNames = map[DXOp]string{
	DXTempRegLoad:                  "TempRegLoad",
	DXLoadInput:                    "LoadInput",
	DXStoreOutput:                  "StoreOutput",
	DXFAbs:                         "FAbs",
	DXSaturate:                     "Saturate",
	DXIsNaN:                        "IsNaN",
	DXIsInf:                        "IsInf",
	DXIsFinite:                     "IsFinite",
	DXIsNormal:                     "IsNormal",
	DXCos:                          "Cos",
	DXSin:                          "Sin",
	DXTan:                          "Tan",
	DXAcos:                         "Acos",
	DXAsin:                         "Asin",
	DXAtan:                         "Atan",
	DXHcos:                         "Hcos",
	DXHsin:                         "Hsin",
	DXHtan:                         "Htan",
	DXExp:                          "Exp",
	DXFrc:                          "Frc",
	DXLog:                          "Log",
	DXSqrt:                         "Sqrt",
	DXRsqrt:                        "Rsqrt",
	DXRoundNe:                      "Round_ne",
	DXRoundNi:                      "Round_ni",
	DXRoundPi:                      "Round_pi",
	DXRoundZ:                       "Round_z",
	DXBfrev:                        "Bfrev",
	DXCountbits:                    "Countbits",
	DXFirstbitLo:                   "FirstbitLo",
	DXFirstbitHi:                   "FirstbitHi",
	DXFirstbitSHi:                  "FirstbitSHi",
	DXFMax:                         "FMax",
	DXFMin:                         "FMin",
	DXIMax:                         "IMax",
	DXIMin:                         "IMin",
	DXUMax:                         "UMax",
	DXUMin:                         "UMin",
	DXFMad:                         "FMad",
	DXFma:                          "Fma",
	DXIMad:                         "IMad",
	DXUMad:                         "UMad",
	DXDot2:                         "Dot2",
	DXDot3:                         "Dot3",
	DXDot4:                         "Dot4",
	DXCreateHandle:                 "CreateHandle",
	DXCBufferLoad:                  "CBufferLoad",
	DXCBufferLoadLegacy:            "CBufferLoadLegacy",
	DXSample:                       "Sample",
	DXSampleBias:                   "SampleBias",
	DXSampleLevel:                  "SampleLevel",
	DXSampleGrad:                   "SampleGrad",
	DXSampleCmp:                    "SampleCmp",
	DXSampleCmpLevelZero:           "SampleCmpLevelZero",
	DXTextureLoad:                  "TextureLoad",
	DXTextureStore:                 "TextureStore",
	DXBufferLoad:                   "BufferLoad",
	DXBufferStore:                  "BufferStore",
	DXGetDimensions:                "GetDimensions",
	DXTextureGather:                "TextureGather",
	DXTextureGatherCmp:             "TextureGatherCmp",
	DXTexture2DMSGetSamplePosition: "Texture2DMSGetSamplePosition",
	DXRenderTargetGetSamplePos:     "RenderTargetGetSamplePosition",
	DXRenderTargetGetSampleCount:   "RenderTargetGetSampleCount",
	DXAtomicBinOp:                  "AtomicBinOp",
	DXAtomicCompareExchange:        "AtomicCompareExchange",
	DXBarrier:                      "Barrier",
	DXCalculateLOD:                 "CalculateLOD",
	DXDiscard:                      "Discard",
	DXDerivCoarseX:                 "DerivCoarseX",
	DXDerivCoarseY:                 "DerivCoarseY",
	DXDerivFineX:                   "DerivFineX",
	DXDerivFineY:                   "DerivFineY",
	DXThreadId:                     "ThreadId",
	DXGroupId:                      "GroupId",
	DXThreadIdInGroup:              "ThreadIdInGroup",
	DXFlattenedThreadIdInGroup:     "FlattenedThreadIdInGroup",
	DXWaveIsFirstLane:              "WaveIsFirstLane",
	DXWaveGetLaneIndex:             "WaveGetLaneIndex",
	DXWaveGetLaneCount:             "WaveGetLaneCount",
	DXWaveAnyTrue:                  "WaveAnyTrue",
	DXWaveAllTrue:                  "WaveAllTrue",
	DXWaveActiveAllEqual:           "WaveActiveAllEqual",
	DXWaveActiveBallot:             "WaveActiveBallot",
	DXWaveReadLaneAt:               "WaveReadLaneAt",
	DXWaveReadLaneFirst:            "WaveReadLaneFirst",
	DXWaveActiveOp:                 "WaveActiveOp",
	DXWaveActiveBit:                "WaveActiveBit",
	DXWavePrefixOp:                 "WavePrefixOp",
	DXQuadReadLaneAt:               "QuadReadLaneAt",
	DXQuadOp:                       "QuadOp",
	DXWaveAllBitCount:              "WaveAllBitCount",
	DXWavePrefixBitCount:           "WavePrefixBitCount",
	DXRawBufferLoad:                "RawBufferLoad",
	DXRawBufferStore:               "RawBufferStore",
	DXAnnotateHandle:               "AnnotateHandle",
	DXCreateHandleFromBinding:      "CreateHandleFromBinding",
	DXCreateHandleFromHeap:         "CreateHandleFromHeap",
	DXIsHelperLane:                 "IsHelperLane",
	DXSampleCmpLevel:               "SampleCmpLevel",
	DXSampleCmpGrad:                "SampleCmpGrad",
	DXSampleCmpBias:                "SampleCmpBias",
}

func (d DXOp) String() string {
	if name, ok := dxOpNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DXOp(%d)", d)
}

// IsWaveOp reports whether d reads values from other lanes of the wave.
func (d DXOp) IsWaveOp() bool {
	switch d {
	case DXWaveIsFirstLane, DXWaveAnyTrue, DXWaveAllTrue, DXWaveActiveAllEqual,
		DXWaveActiveBallot, DXWaveReadLaneAt, DXWaveReadLaneFirst, DXWaveActiveOp,
		DXWaveActiveBit, DXWavePrefixOp, DXWaveAllBitCount, DXWavePrefixBitCount:
		return true
	default:
		return false
	}
}

// IsQuadOp reports whether d reads values from the other lanes of its quad.
// Implicit-derivative sampling counts as a quad operation.
func (d DXOp) IsQuadOp() bool {
	switch d {
	case DXQuadReadLaneAt, DXQuadOp, DXDerivCoarseX, DXDerivCoarseY, DXDerivFineX, DXDerivFineY,
		DXSample, DXSampleBias, DXSampleCmp, DXSampleCmpBias, DXCalculateLOD:
		return true
	default:
		return false
	}
}

// IsSampleOrGather reports whether d is serviced by the accessor's
// sample/gather entry point. CalculateLOD goes through it too.
func (d DXOp) IsSampleOrGather() bool {
	switch d {
	case DXSample, DXSampleBias, DXSampleLevel, DXSampleGrad, DXSampleCmp, DXSampleCmpLevelZero,
		DXSampleCmpLevel, DXSampleCmpGrad, DXSampleCmpBias,
		DXTextureGather, DXTextureGatherCmp, DXCalculateLOD:
		return true
	default:
		return false
	}
}

// IsCompareSample reports whether d filters the result of a depth
// comparison.
func (d DXOp) IsCompareSample() bool {
	switch d {
	case DXSampleCmp, DXSampleCmpLevelZero, DXSampleCmpLevel, DXSampleCmpGrad, DXSampleCmpBias,
		DXTextureGatherCmp:
		return true
	default:
		return false
	}
}

// IsMathIntrinsic reports whether d is computed by the accessor's math
// entry point.
func (d DXOp) IsMathIntrinsic() bool {
	switch d {
	case DXCos, DXSin, DXTan, DXAcos, DXAsin, DXAtan, DXHcos, DXHsin, DXHtan,
		DXExp, DXLog, DXSqrt, DXRsqrt:
		return true
	default:
		return false
	}
}

// Flushes reports whether 32-bit float results of d have denormals flushed
// to zero.
func (d DXOp) Flushes() bool {
	switch {
	case d.IsMathIntrinsic(), d.IsSampleOrGather():
		return true
	}
	switch d {
	case DXDerivCoarseX, DXDerivCoarseY, DXDerivFineX, DXDerivFineY:
		return true
	default:
		return false
	}
}

// WaveOpKind is the reduction of WaveActiveOp and WavePrefixOp.
type WaveOpKind uint8

const (
	WaveSum WaveOpKind = iota
	WaveProduct
	WaveMin
	WaveMax
)

// WaveBitKind is the reduction of WaveActiveBit.
type WaveBitKind uint8

const (
	WaveBitAnd WaveBitKind = iota
	WaveBitOr
	WaveBitXor
)

// QuadOpKind is the neighbour selected by QuadOp.
type QuadOpKind uint8

const (
	QuadReadAcrossX QuadOpKind = iota
	QuadReadAcrossY
	QuadReadAcrossDiagonal
)
