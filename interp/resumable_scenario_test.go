package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/wasmtype"
)

func TestFuelBasedResumption(t *testing.T) {
	am := newModule()
	ft := am.addType(nil, nil)
	body := newAsm().
		b(0x03, 0x40). // loop (void)
		b(0x0c, 0x00). // br 0
		end().         // end loop
		end()          // end func
	idx := am.addFunc(ft, nil, body)
	am.export("spin", wasmtype.ExternFunc, idx)

	store, addr, err := am.instantiate()
	require.NoError(t, err)
	ev, ok := store.InstanceExport(addr, "spin")
	require.True(t, ok)

	dorm := interp.NewDormitory(store)
	ref, err := dorm.CreateResumable(ev.Func, nil, 40)
	require.NoError(t, err)

	result, err := dorm.Resume(ref)
	require.NoError(t, err)
	suspended, ok := result.(interp.Suspended)
	require.True(t, ok, "expected Suspended, got %#v", result)
	require.Greater(t, suspended.RequiredFuel, uint64(0))

	err = dorm.AccessFuelMut(suspended.Ref, func(remaining uint64) uint64 {
		return remaining + suspended.RequiredFuel
	})
	require.NoError(t, err)

	result, err = dorm.Resume(suspended.Ref)
	require.NoError(t, err)
	_, ok = result.(interp.Suspended)
	require.True(t, ok, "expected Suspended again, got %#v", result)
}
