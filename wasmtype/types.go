// Package wasmtype defines the Wasm type system: value/reference/function
// types, limits, table/memory/global types and the subtyping rules the
// instantiation engine (instantiate) checks supplied externs against.
// This is spec.md's component B.
package wasmtype

import "fmt"

// ValType is a Wasm value type: numeric, vector, or reference.
type ValType uint8

const (
	I32 ValType = iota
	I64
	F32
	F64
	V128
	FuncRef
	ExternRef
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	default:
		return fmt.Sprintf("valtype(%d)", uint8(v))
	}
}

// IsNumeric reports whether v is one of i32/i64/f32/f64.
func (v ValType) IsNumeric() bool {
	return v == I32 || v == I64 || v == F32 || v == F64
}

// IsRef reports whether v is funcref or externref.
func (v ValType) IsRef() bool {
	return v == FuncRef || v == ExternRef
}

// RefType narrows ValType to the two reference kinds, used wherever the
// binary format or the data model is explicit that only a reference type
// (never a numeric or vector type) is legal — element segments, ref.null,
// table element types.
type RefType = ValType

// FuncType is a function signature: zero or more parameter types mapped to
// zero or more result types. Two FuncTypes are equal (for call_indirect's
// SignatureMismatch check and for import subtyping) iff their param and
// result sequences are element-wise equal.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports structural equality, used by call_indirect's runtime type
// check and by import-matching during instantiation.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func (f FuncType) String() string {
	return fmt.Sprintf("%v -> %v", f.Params, f.Results)
}

// Limits bounds a table's or memory's size, in table-elements or pages
// respectively. Max is only meaningful when HasMax is true.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// ValidFor reports whether these limits are internally consistent
// (min<=max when a max is present) and within an absolute ceiling (e.g.
// 65536 pages for memories). A ceiling of 0 means "no absolute ceiling".
func (l Limits) ValidFor(ceiling uint32) bool {
	if l.HasMax && l.Min > l.Max {
		return false
	}
	if ceiling > 0 {
		if l.Min > ceiling {
			return false
		}
		if l.HasMax && l.Max > ceiling {
			return false
		}
	}
	return true
}

// MatchesImport reports whether the Limits of a supplied table/memory are a
// subtype of the Limits declared by an import: the supplied min must be at
// least the declared min, and if the declared type has a max, the supplied
// type must also have a max no larger than it.
// https://webassembly.github.io/spec/core/valid/types.html#limits
func (l Limits) MatchesImport(declared Limits) bool {
	if l.Min < declared.Min {
		return false
	}
	if !declared.HasMax {
		return true
	}
	if !l.HasMax {
		return false
	}
	return l.Max <= declared.Max
}

// TableType describes a table's element type and size limits.
type TableType struct {
	ElemType RefType
	Limits   Limits
}

// MemType describes a memory's size limits, in 64KiB pages.
type MemType struct {
	Limits Limits
}

// Mutability of a global.
type Mutability uint8

const (
	Const Mutability = iota
	Var
)

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType    ValType
	Mutability Mutability
}

// ExternKind tags which namespace an Import/Export descriptor belongs to.
type ExternKind uint8

const (
	ExternFunc ExternKind = iota
	ExternTable
	ExternMemory
	ExternGlobal
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	default:
		return "extern(?)"
	}
}

// PageSize is the fixed Wasm linear memory page size in bytes.
const PageSize = 65536

// MaxPages is the absolute ceiling on memory size (2^16 pages, i.e. a full
// 32-bit address space), per spec.md §3 invariant 3.
const MaxPages = 65536
