package instantiate

import (
	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// evalConstExpr computes the runtime value of an already-validated constant
// expression. Validity (legal opcode set, type agreement) was established
// by package validate; this pass only needs to produce the value.
func evalConstExpr(m *wasmbin.Module, span wasmbin.CodeSpan, globalVal func(idx uint32) wasmtype.Value, funcAddr func(idx uint32) wasmstore.FuncAddr) wasmtype.Value {
	r := bufreader.New(span.Bytes(m.Bytecode))
	var stack []wasmtype.Value
	push := func(v wasmtype.Value) { stack = append(stack, v) }
	pop := func() wasmtype.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for r.Len() > 0 {
		b, _ := r.ReadByte()
		switch b {
		case 0x41:
			v, _ := leb128.ReadInt32(r)
			push(wasmtype.I32Val(v))
		case 0x42:
			v, _ := leb128.ReadInt64(r)
			push(wasmtype.I64Val(v))
		case 0x43:
			v, _ := r.ReadF32()
			push(wasmtype.F32Val(v))
		case 0x44:
			v, _ := r.ReadF64()
			push(wasmtype.F64Val(v))
		case 0x23:
			idx, _ := leb128.ReadUint32(r)
			push(globalVal(idx))
		case 0xd0:
			tb, _ := r.ReadByte()
			t := wasmtype.ExternRef
			if tb == 0x70 {
				t = wasmtype.FuncRef
			}
			push(wasmtype.RefVal(wasmtype.NullRef(t)))
		case 0xd2:
			idx, _ := leb128.ReadUint32(r)
			push(wasmtype.RefVal(wasmtype.FuncRefVal(uint32(funcAddr(idx).Addr))))
		case 0x6a: // i32.add
			y, x := pop(), pop()
			push(wasmtype.I32Val(x.I32() + y.I32()))
		case 0x6b: // i32.sub
			y, x := pop(), pop()
			push(wasmtype.I32Val(x.I32() - y.I32()))
		case 0x6c: // i32.mul
			y, x := pop(), pop()
			push(wasmtype.I32Val(x.I32() * y.I32()))
		case 0x7c: // i64.add
			y, x := pop(), pop()
			push(wasmtype.I64Val(x.I64() + y.I64()))
		case 0x7d: // i64.sub
			y, x := pop(), pop()
			push(wasmtype.I64Val(x.I64() - y.I64()))
		case 0x7e: // i64.mul
			y, x := pop(), pop()
			push(wasmtype.I64Val(x.I64() * y.I64()))
		case 0x0b: // end
			return stack[len(stack)-1]
		}
	}
	return stack[len(stack)-1]
}
