package wasmstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

func TestAllocAndFetch(t *testing.T) {
	s := wasmstore.New(nil, nil)
	addr := s.AllocGlobal(wasmstore.GlobalInst{
		Type:  wasmtype.GlobalType{ValType: wasmtype.I32, Mutability: wasmtype.Var},
		Value: wasmtype.I32Val(42),
	})
	g, ok := s.Global(addr)
	require.True(t, ok)
	require.Equal(t, int32(42), g.Value.I32())

	outOfRange := addr
	outOfRange.Addr += 999
	_, ok = s.Global(outOfRange)
	require.False(t, ok)
}

func TestForeignStoreHandleRejected(t *testing.T) {
	a := wasmstore.New(nil, nil)
	b := wasmstore.New(nil, nil)

	addr := a.AllocGlobal(wasmstore.GlobalInst{Type: wasmtype.GlobalType{ValType: wasmtype.I32}})

	_, ok := b.Global(addr)
	require.False(t, ok, "a handle minted by store a must be rejected by store b")

	_, ok = a.Global(addr)
	require.True(t, ok)
}
