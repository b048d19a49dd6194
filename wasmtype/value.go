package wasmtype

import "math"

// RefKind distinguishes the two reference value kinds.
type RefKind uint8

const (
	RefKindFunc RefKind = iota
	RefKindExtern
)

// Ref is a runtime reference value: either null (tagged with its static
// type so ref.is_null/validation can tell funcref-null from
// externref-null), or an opaque address into a Store's function or
// extern-object table. See spec.md §3 "Runtime values".
type Ref struct {
	Type   RefType
	IsNull bool
	Addr   uint32
}

// NullRef constructs the null reference of the given type.
func NullRef(t RefType) Ref { return Ref{Type: t, IsNull: true} }

// FuncRefVal constructs a non-null funcref to the given FuncAddr-shaped
// index.
func FuncRefVal(addr uint32) Ref { return Ref{Type: FuncRef, Addr: addr} }

// ExternRefVal constructs a non-null externref to the given address.
func ExternRefVal(addr uint32) Ref { return Ref{Type: ExternRef, Addr: addr} }

// Value is the tagged-union runtime value spec.md §3 describes: a numeric
// value (bits stored raw, reinterpreted per Type), or a Ref.
type Value struct {
	Type ValType
	num  uint64
	ref  Ref
}

// I32Val constructs an i32 value.
func I32Val(v int32) Value { return Value{Type: I32, num: uint64(uint32(v))} }

// I64Val constructs an i64 value.
func I64Val(v int64) Value { return Value{Type: I64, num: uint64(v)} }

// F32Val constructs an f32 value.
func F32Val(v float32) Value { return Value{Type: F32, num: uint64(math.Float32bits(v))} }

// F64Val constructs an f64 value.
func F64Val(v float64) Value { return Value{Type: F64, num: math.Float64bits(v)} }

// RefVal constructs a reference value.
func RefVal(r Ref) Value { return Value{Type: r.Type, ref: r} }

// Zero returns the default ("zero" for numerics, null for references)
// value of t, used to initialize declared locals per spec.md §4.I.
func Zero(t ValType) Value {
	switch t {
	case I32:
		return I32Val(0)
	case I64:
		return I64Val(0)
	case F32:
		return F32Val(0)
	case F64:
		return F64Val(0)
	case FuncRef, ExternRef:
		return RefVal(NullRef(t))
	default:
		return Value{Type: t}
	}
}

// I32 reinterprets the stored bits as an int32. Callers must have checked
// Type == I32 (the validator guarantees this for well-typed code).
func (v Value) I32() int32 { return int32(uint32(v.num)) }

// U32 reinterprets the stored bits as a uint32.
func (v Value) U32() uint32 { return uint32(v.num) }

// I64 reinterprets the stored bits as an int64.
func (v Value) I64() int64 { return int64(v.num) }

// U64 reinterprets the stored bits as a uint64.
func (v Value) U64() uint64 { return v.num }

// F32 reinterprets the stored bits as a float32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.num)) }

// F64 reinterprets the stored bits as a float64.
func (v Value) F64() float64 { return math.Float64frombits(v.num) }

// Ref returns the stored reference value.
func (v Value) Ref() Ref { return v.ref }

// Bits returns the raw 64-bit pattern backing a numeric value, used by the
// interpreter's memory stores and reinterpret operations and by the CLI's
// result printing.
func (v Value) Bits() uint64 { return v.num }

// FromBits constructs a numeric Value of type t from raw bits.
func FromBits(t ValType, bits uint64) Value { return Value{Type: t, num: bits} }
