package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/wasmtype"
)

// fibModule builds a single-function module computing the standard
// recursive Fibonacci sequence:
//
//	fib(n) = n < 2 ? n : fib(n-1) + fib(n-2)
func fibModule() *asmModule {
	am := newModule()
	ft := am.addType([]wasmtype.ValType{wasmtype.I32}, []wasmtype.ValType{wasmtype.I32})

	body := newAsm().
		localGet(0).
		i32Const(2).
		b(0x48). // i32.lt_s
		b(0x04, 0x7f). // if (result i32)
		localGet(0).
		b(0x05). // else
		localGet(0).i32Const(1).b(0x6b). // n - 1
		call(0).
		localGet(0).i32Const(2).b(0x6b). // n - 2
		call(0).
		b(0x6a). // i32.add
		end().   // end if
		end()    // end func

	fibIdx := am.addFunc(ft, nil, body)
	am.export("fib", wasmtype.ExternFunc, fibIdx)
	return am
}

func TestFibRecursive(t *testing.T) {
	am := fibModule()
	want := []int32{0, 1, 1, 2, 3, 5, 8, 13, 21, 34}
	for n, w := range want {
		results, err := am.invoke("fib", wasmtype.I32Val(int32(n)))
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equalf(t, w, results[0].I32(), "fib(%d)", n)
	}

	results, err := fibModule().invoke("fib", wasmtype.I32Val(10))
	require.NoError(t, err)
	require.Equal(t, int32(55), results[0].I32())
}
