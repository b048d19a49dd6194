package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/wasmtype"
)

func TestTableGrowWithMax(t *testing.T) {
	am := newModule()
	ft := am.addType([]wasmtype.ValType{wasmtype.I32}, []wasmtype.ValType{wasmtype.I32})
	am.addTable(wasmtype.TableType{ElemType: wasmtype.FuncRef, Limits: wasmtype.Limits{Min: 0, Max: 10, HasMax: true}})

	body := newAsm().
		b(0xd0, 0x70). // ref.null funcref
		localGet(0).
		fc(15, 0). // table.grow 0
		end()
	growIdx := am.addFunc(ft, nil, body)
	am.export("grow", wasmtype.ExternFunc, growIdx)

	store, addr, err := am.instantiate()
	require.NoError(t, err)
	ev, ok := store.InstanceExport(addr, "grow")
	require.True(t, ok)

	grow := func(n int32) int32 {
		results, err := interp.Invoke(store, ev.Func, []wasmtype.Value{wasmtype.I32Val(n)})
		require.NoError(t, err)
		return results[0].I32()
	}

	require.Equal(t, int32(0), grow(0))
	require.Equal(t, int32(0), grow(1))
	require.Equal(t, int32(1), grow(1))
	require.Equal(t, int32(2), grow(2))
	require.Equal(t, int32(4), grow(6))
	require.Equal(t, int32(10), grow(0))
	require.Equal(t, int32(-1), grow(1))
	require.Equal(t, int32(-1), grow(0x10000))
}
