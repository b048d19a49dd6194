// Package wasmbin implements spec.md's component C: the module decoder. It
// walks a Wasm binary's header and sections in the fixed order the spec
// mandates and produces a Module — the immutable module artifact that
// package validate checks and augments with a sidetable, and that
// instantiate/wasmstore consume to allocate runtime instances.
package wasmbin

import "github.com/wasmstack/wasmstack/wasmtype"

// Magic is the 4-byte Wasm binary magic number, "\0asm".
const Magic uint32 = 0x6d736100

// Version is the Wasm 1.0 binary format version.
const Version uint32 = 0x1

// CodeSpan locates a byte range — an instruction sequence — within
// Module.Bytecode. Functions bodies, global/element/data offset
// expressions all reference the original binary this way rather than
// copying bytes out; the interpreter slices Bytecode to a function's span
// and its pc is an offset within that slice.
type CodeSpan struct {
	Start int
	Len   int
}

// Bytes slices the given backing buffer (normally Module.Bytecode) to this
// span.
func (s CodeSpan) Bytes(backing []byte) []byte { return backing[s.Start : s.Start+s.Len] }

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc tags which kind of import this is and carries the
// kind-specific declared type. Only the field matching Kind is valid.
type ImportDesc struct {
	Kind    wasmtype.ExternKind
	TypeIdx uint32 // Kind == ExternFunc
	Table   wasmtype.TableType
	Mem     wasmtype.MemType
	Global  wasmtype.GlobalType
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Kind wasmtype.ExternKind
	Idx  uint32
}

// Global is one entry of the global section: a declared type plus a
// constant initializer expression.
type Global struct {
	Type wasmtype.GlobalType
	Init CodeSpan
}

// ElementMode distinguishes the three element segment modes spec.md §3
// describes.
type ElementMode uint8

const (
	ElementActive ElementMode = iota
	ElementPassive
	ElementDeclarative
)

// ElementInit is either a list of function indices (the common
// `ref.func`-shortcut encoding) or a list of general constant-expression
// code spans, per spec.md's ElementSegment.init union.
type ElementInit struct {
	// Exactly one of FuncIndices or Exprs is populated, selected by
	// whether the binary encoding used the func-index-vector shorthand.
	FuncIndices []uint32
	Exprs       []CodeSpan
}

// ElementSegment is one entry of the element section.
type ElementSegment struct {
	Type     wasmtype.RefType
	Init     ElementInit
	Mode     ElementMode
	TableIdx uint32   // valid when Mode == ElementActive
	Offset   CodeSpan // valid when Mode == ElementActive
}

// DataMode distinguishes active and passive data segments.
type DataMode uint8

const (
	DataActive DataMode = iota
	DataPassive
)

// DataSegment is one entry of the data section.
type DataSegment struct {
	Bytes  []byte
	Mode   DataMode
	MemIdx uint32   // valid when Mode == DataActive; always 0 pre-multi-memory
	Offset CodeSpan // valid when Mode == DataActive
}

// FunctionBody is one entry of the code section, paired by index with the
// function section's declared type index.
type FunctionBody struct {
	TypeIdx        uint32
	DeclaredLocals []wasmtype.ValType
	Code           CodeSpan
}

// Module is the fully decoded, but not yet validated, module artifact:
// spec.md §3's per-section data plus the raw bytecode every CodeSpan
// indexes into. Structural and index-range checks happen here during
// decode; full type-checking and sidetable construction are
// package validate's job.
type Module struct {
	Version uint32

	Types     []wasmtype.FuncType
	Imports   []Import
	Functions []uint32 // type index per declared (non-imported) function
	Tables    []wasmtype.TableType
	Memories  []wasmtype.MemType
	Globals   []Global
	Exports   []Export
	HasStart  bool
	StartFunc uint32
	Elements  []ElementSegment
	Code      []FunctionBody
	Data      []DataSegment
	DataCount *uint32 // non-nil iff a DataCount section was present

	// Bytecode is the full input binary. CodeSpans above are offsets into
	// it, so the interpreter can slice a function's code out of it without
	// per-function copies.
	Bytecode []byte
}

// NumImportedFuncs returns how many of the module's imports are functions,
// i.e. the index-space offset at which declared (non-imported) functions
// begin.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, im := range m.Imports {
		if im.Desc.Kind == wasmtype.ExternFunc {
			n++
		}
	}
	return n
}

// NumImportedTables, NumImportedMemories, NumImportedGlobals mirror
// NumImportedFuncs for the other three index spaces.
func (m *Module) NumImportedTables() int   { return m.countImports(wasmtype.ExternTable) }
func (m *Module) NumImportedMemories() int { return m.countImports(wasmtype.ExternMemory) }
func (m *Module) NumImportedGlobals() int  { return m.countImports(wasmtype.ExternGlobal) }

func (m *Module) countImports(kind wasmtype.ExternKind) int {
	n := 0
	for _, im := range m.Imports {
		if im.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// FuncTypeIndex returns the type index of the func-index-space entry at i,
// accounting for imported functions occupying the low indices.
func (m *Module) FuncTypeIndex(i uint32) (uint32, bool) {
	nImported := uint32(m.NumImportedFuncs())
	if i < nImported {
		count := uint32(0)
		for _, im := range m.Imports {
			if im.Desc.Kind == wasmtype.ExternFunc {
				if count == i {
					return im.Desc.TypeIdx, true
				}
				count++
			}
		}
		return 0, false
	}
	idx := i - nImported
	if int(idx) >= len(m.Functions) {
		return 0, false
	}
	return m.Functions[idx], true
}
