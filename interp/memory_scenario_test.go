package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// fc appends an FC-prefixed instruction: 0xfc, the sub-opcode as LEB128,
// then any raw bytes the sub-opcode itself requires (data/elem/table
// indices, reserved memory-index bytes).
func (a *asm) fc(subop uint32, rest ...byte) *asm {
	a.b(0xfc).uleb(uint64(subop))
	return a.b(rest...)
}

func TestMemoryInitAndCopy(t *testing.T) {
	am := newModule()
	ft := am.addType(nil, nil)

	am.addMemory(wasmtype.MemType{Limits: wasmtype.Limits{Min: 1}})
	am.addActiveData(2, []byte{3, 1, 4, 1})
	am.addPassiveData([]byte{2, 7, 1, 8})
	am.addActiveData(12, []byte{7, 5, 2, 3, 6})
	am.addPassiveData([]byte{5, 9, 2, 7, 6})
	dataCount := uint32(4)
	am.m.DataCount = &dataCount

	body := newAsm().
		i32Const(7).i32Const(0).i32Const(4).fc(8, 1, 0). // memory.init 1
		fc(9, 1).                                        // data.drop 1
		i32Const(15).i32Const(1).i32Const(3).fc(8, 3, 0). // memory.init 3
		fc(9, 3).                                         // data.drop 3
		i32Const(20).i32Const(15).i32Const(5).fc(10, 0, 0). // memory.copy
		i32Const(21).i32Const(29).i32Const(1).fc(10, 0, 0).
		i32Const(24).i32Const(10).i32Const(1).fc(10, 0, 0).
		i32Const(13).i32Const(11).i32Const(4).fc(10, 0, 0).
		i32Const(19).i32Const(20).i32Const(5).fc(10, 0, 0).
		end()

	setupIdx := am.addFunc(ft, nil, body)
	am.export("setup", wasmtype.ExternFunc, setupIdx)

	store, addr, err := am.instantiate()
	require.NoError(t, err)

	ev, ok := store.InstanceExport(addr, "setup")
	require.True(t, ok)
	_, err = interp.Invoke(store, ev.Func, nil)
	require.NoError(t, err)

	mod, ok := store.Module(addr)
	require.True(t, ok)
	memInst, ok := store.Mem(mod.MemAddrs[0])
	require.True(t, ok)

	bytes, err := memInst.Mem.Load(0, 30)
	require.NoError(t, err)

	want := []byte{0, 0, 3, 1, 4, 1, 0, 2, 7, 1, 8, 0, 7, 0, 7, 5, 2, 7, 0, 9, 0, 7, 0, 8, 8, 0, 0, 0, 0, 0}
	require.Equal(t, want, bytes)
}
