package interp_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// binI32Module builds a single function (i32, i32) -> i32 applying one
// opcode byte to its two locals.
func binI32Module(op byte) *asmModule {
	am := newModule()
	ft := am.addType([]wasmtype.ValType{wasmtype.I32, wasmtype.I32}, []wasmtype.ValType{wasmtype.I32})
	body := newAsm().localGet(0).localGet(1).b(op).end()
	idx := am.addFunc(ft, nil, body)
	am.export("run", wasmtype.ExternFunc, idx)
	return am
}

func binF32Module(op byte) *asmModule {
	am := newModule()
	ft := am.addType([]wasmtype.ValType{wasmtype.F32, wasmtype.F32}, []wasmtype.ValType{wasmtype.F32})
	body := newAsm().localGet(0).localGet(1).b(op).end()
	idx := am.addFunc(ft, nil, body)
	am.export("run", wasmtype.ExternFunc, idx)
	return am
}

func TestDivisionTraps(t *testing.T) {
	// i32.div_s(222, 0) traps DivideBy0.
	_, err := binI32Module(0x6d).invoke("run", wasmtype.I32Val(222), wasmtype.I32Val(0))
	require.Error(t, err)
	require.Equal(t, "DivideBy0", err.(*interp.Error).Kind)

	// i32.div_s(INT_MIN, -1) traps UnrepresentableResult.
	_, err = binI32Module(0x6d).invoke("run", wasmtype.I32Val(math.MinInt32), wasmtype.I32Val(-1))
	require.Error(t, err)
	require.Equal(t, "UnrepresentableResult", err.(*interp.Error).Kind)

	// i32.rem_s(INT_MIN, -1) = 0, no trap.
	results, err := binI32Module(0x6f).invoke("run", wasmtype.I32Val(math.MinInt32), wasmtype.I32Val(-1))
	require.NoError(t, err)
	require.Equal(t, int32(0), results[0].I32())
}

func TestFloatMinMaxNaNAndZeroSign(t *testing.T) {
	nan := math.Float32frombits(0x7fc00000)
	negNan := math.Float32frombits(0xffc00000)

	// f32.min(NaN, -NaN) = NaN.
	results, err := binF32Module(0x96).invoke("run", wasmtype.F32Val(nan), wasmtype.F32Val(negNan))
	require.NoError(t, err)
	require.True(t, math.IsNaN(float64(results[0].F32())))

	// f32.max(+0.0, -0.0) = +0.0.
	results, err = binF32Module(0x97).invoke("run", wasmtype.F32Val(0), wasmtype.F32Val(float32(math.Copysign(0, -1))))
	require.NoError(t, err)
	require.Equal(t, float32(0), results[0].F32())
	require.False(t, math.Signbit(float64(results[0].F32())))

	// f32.min(+0.0, -0.0) = -0.0.
	results, err = binF32Module(0x96).invoke("run", wasmtype.F32Val(0), wasmtype.F32Val(float32(math.Copysign(0, -1))))
	require.NoError(t, err)
	require.Equal(t, float32(0), results[0].F32())
	require.True(t, math.Signbit(float64(results[0].F32())))
}
