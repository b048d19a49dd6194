package validate

import (
	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// validateConstExpr type-checks a constant expression against the single
// expected result type, accepting the MVP const set plus the
// extended-const numeric proposal's i32/i64 add/sub/mul, per spec.md §4.D
// and §13's supplemented extended-const behavior.
func validateConstExpr(m *wasmbin.Module, span wasmbin.CodeSpan, want []wasmtype.ValType, declaredRefs map[uint32]bool) error {
	r := bufreader.New(span.Bytes(m.Bytecode))
	var stack []wasmtype.ValType

	push := func(t wasmtype.ValType) { stack = append(stack, t) }
	pop := func() (wasmtype.ValType, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t, true
	}

	for r.Len() > 0 {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case OpI32Const:
			if _, err := leb128.ReadInt32(r); err != nil {
				return err
			}
			push(wasmtype.I32)
		case OpI64Const:
			if _, err := leb128.ReadInt64(r); err != nil {
				return err
			}
			push(wasmtype.I64)
		case OpF32Const:
			if _, err := r.ReadF32(); err != nil {
				return err
			}
			push(wasmtype.F32)
		case OpF64Const:
			if _, err := r.ReadF64(); err != nil {
				return err
			}
			push(wasmtype.F64)
		case OpGlobalGet:
			idx, err := leb128.ReadUint32(r)
			if err != nil {
				return err
			}
			if int(idx) >= m.NumImportedGlobals() {
				return errf("ConstantExpressionRequiresImportedImmutableGlobal", "global.get in constant expression must reference an imported immutable global")
			}
			gt, ok := importedGlobalType(m, idx)
			if !ok || gt.Mutability != wasmtype.Const {
				return errf("ConstantExpressionRequiresImportedImmutableGlobal", "global.get in constant expression must reference an imported immutable global")
			}
			push(gt.ValType)
		case OpRefNull:
			t, err := decodeConstRefType(r)
			if err != nil {
				return err
			}
			push(t)
		case OpRefFunc:
			idx, err := leb128.ReadUint32(r)
			if err != nil {
				return err
			}
			if int(idx) >= m.NumImportedFuncs()+len(m.Functions) || !declaredRefs[idx] {
				return errInvalidFuncIdx(idx)
			}
			push(wasmtype.FuncRef)
		case 0x6a, 0x7c: // i32.add / i64.add
			t := extConstOperandType(b)
			b1, ok1 := pop()
			b2, ok2 := pop()
			if !ok1 || !ok2 || b1 != t || b2 != t {
				return errf("InvalidInstr", "extended-const arithmetic operand type mismatch")
			}
			push(t)
		case 0x6b, 0x7d: // sub
			t := extConstOperandType(b)
			b1, ok1 := pop()
			b2, ok2 := pop()
			if !ok1 || !ok2 || b1 != t || b2 != t {
				return errf("InvalidInstr", "extended-const arithmetic operand type mismatch")
			}
			push(t)
		case 0x6c, 0x7e: // mul
			t := extConstOperandType(b)
			b1, ok1 := pop()
			b2, ok2 := pop()
			if !ok1 || !ok2 || b1 != t || b2 != t {
				return errf("InvalidInstr", "extended-const arithmetic operand type mismatch")
			}
			push(t)
		case OpEnd:
			if r.Len() != 0 {
				return errCodeExprTrailing()
			}
			if len(stack) != len(want) {
				return errEndInvalidValueStack()
			}
			for i, w := range want {
				if stack[i] != w {
					return errTypeMismatch(w, stack[i])
				}
			}
			return nil
		default:
			return errInvalidInstr(b)
		}
	}
	return errEndInvalidValueStack()
}

func extConstOperandType(op byte) wasmtype.ValType {
	switch op {
	case 0x6a, 0x6b, 0x6c:
		return wasmtype.I32
	default:
		return wasmtype.I64
	}
}

func decodeConstRefType(r *bufreader.Reader) (wasmtype.ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x70:
		return wasmtype.FuncRef, nil
	case 0x6f:
		return wasmtype.ExternRef, nil
	default:
		return 0, errMismatchedRefType()
	}
}

func importedGlobalType(m *wasmbin.Module, idx uint32) (wasmtype.GlobalType, bool) {
	count := uint32(0)
	for _, im := range m.Imports {
		if im.Desc.Kind == wasmtype.ExternGlobal {
			if count == idx {
				return im.Desc.Global, true
			}
			count++
		}
	}
	return wasmtype.GlobalType{}, false
}
