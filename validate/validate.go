// Package validate implements component D: the per-function symbolic type
// checker and sidetable builder described in spec.md §4.D. It consumes a
// decoded wasmbin.Module and produces a ValidationInfo carrying the same
// module plus one shared, module-wide Sidetable that every WasmFunc
// instance created during instantiation slices a sub-range of.
package validate

import (
	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// anyType is the validator's internal "polymorphic" stack-slot marker, used
// only below the floor of an unreachable code region; it is never observed
// outside this package.
const anyType wasmtype.ValType = 0xff

// ValidationInfo is the output of Module: the checked module artifact plus
// its sidetable, ready for instantiation.
type ValidationInfo struct {
	Module *wasmbin.Module
	// SidetableStarts[i] is the offset within Sidetable at which function i
	// (declared, i.e. non-imported, 0-based) begins.
	SidetableStarts []int
	Sidetable       []wasmstore.SidetableEntry
	// DeclaredFuncRefs records the set of function indices that are
	// exported, listed in an element segment, or appear as an immediate to
	// ref.func anywhere in the module (globals, element segments, or code);
	// ref.func of any other index is InvalidFuncIdx
	// per the Wasm reference-types restriction that only referenced
	// functions may be taken as funcref constants.
	DeclaredFuncRefs map[uint32]bool
}

type ctrlKind int

const (
	ctrlBlock ctrlKind = iota
	ctrlLoop
	ctrlIf
	ctrlFunc
)

type ctrlFrame struct {
	kind           ctrlKind
	startTypes     []wasmtype.ValType
	endTypes       []wasmtype.ValType
	baseHeight     int
	unreachable    bool
	pendingPatches []int // sidetable indices to fill in when this frame closes
	ifJumpIdx      int   // sidetable index of the `if`'s conditional-false jump; -1 if not an if frame
	hasElse        bool
	loopInstrOff   int
	loopStp        int
}

type funcValidator struct {
	info     *ValidationInfo
	module   *wasmbin.Module
	locals   []wasmtype.ValType // params ++ declared locals
	valStack []wasmtype.ValType
	ctrl     []ctrlFrame
	table    []wasmstore.SidetableEntry
	steps    int // instructions seen since the last emitted sidetable entry
}

// Module validates every declared function body, every global/element/data
// constant expression, and the start function's signature, returning a
// ValidationInfo or the first Error encountered.
func Module(m *wasmbin.Module) (*ValidationInfo, error) {
	info := &ValidationInfo{
		Module:           m,
		SidetableStarts:  make([]int, len(m.Code)),
		DeclaredFuncRefs: make(map[uint32]bool),
	}

	collectFuncRefs(m, info.DeclaredFuncRefs)

	for _, g := range m.Globals {
		if err := validateConstExpr(m, g.Init, []wasmtype.ValType{g.Type.ValType}, info.DeclaredFuncRefs); err != nil {
			return nil, err
		}
	}
	for _, seg := range m.Elements {
		if seg.Mode == wasmbin.ElementActive {
			if err := validateConstExpr(m, seg.Offset, []wasmtype.ValType{wasmtype.I32}, info.DeclaredFuncRefs); err != nil {
				return nil, err
			}
		}
		for _, e := range seg.Init.Exprs {
			if err := validateConstExpr(m, e, []wasmtype.ValType{seg.Type}, info.DeclaredFuncRefs); err != nil {
				return nil, err
			}
		}
	}
	for _, seg := range m.Data {
		if seg.Mode == wasmbin.DataActive {
			if err := validateConstExpr(m, seg.Offset, []wasmtype.ValType{wasmtype.I32}, info.DeclaredFuncRefs); err != nil {
				return nil, err
			}
		}
	}
	if m.HasStart {
		ti, ok := m.FuncTypeIndex(m.StartFunc)
		if !ok {
			return nil, errInvalidFuncIdx(m.StartFunc)
		}
		ft := m.Types[ti]
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return nil, errInvalidStartSignature()
		}
	}

	var sidetable []wasmstore.SidetableEntry
	for i, fb := range m.Code {
		ft := m.Types[fb.TypeIdx]
		fv := &funcValidator{info: info, module: m}
		fv.locals = append(append([]wasmtype.ValType{}, ft.Params...), fb.DeclaredLocals...)
		info.SidetableStarts[i] = len(sidetable)
		entries, err := fv.validateFunc(ft, fb)
		if err != nil {
			return nil, err
		}
		sidetable = append(sidetable, entries...)
	}
	info.Sidetable = sidetable
	return info, nil
}

func collectFuncRefs(m *wasmbin.Module, out map[uint32]bool) {
	markExpr := func(span wasmbin.CodeSpan) {
		r := bufreader.New(span.Bytes(m.Bytecode))
		for r.Len() > 0 {
			b, _ := r.ReadByte()
			if b == OpRefFunc {
				idx, err := leb128.ReadUint32(r)
				if err == nil {
					out[idx] = true
				}
			}
		}
	}
	for _, ex := range m.Exports {
		if ex.Kind == wasmtype.ExternFunc {
			out[ex.Idx] = true
		}
	}
	for _, g := range m.Globals {
		markExpr(g.Init)
	}
	for _, seg := range m.Elements {
		if seg.Mode == wasmbin.ElementActive {
			markExpr(seg.Offset)
		}
		for _, idx := range seg.Init.FuncIndices {
			out[idx] = true
		}
		for _, e := range seg.Init.Exprs {
			markExpr(e)
		}
	}
	for _, fb := range m.Code {
		r := bufreader.New(fb.Code.Bytes(m.Bytecode))
		for r.Len() > 0 {
			b, _ := r.ReadByte()
			if b == OpRefFunc {
				idx, err := leb128.ReadUint32(r)
				if err == nil {
					out[idx] = true
				}
			}
		}
	}
}
