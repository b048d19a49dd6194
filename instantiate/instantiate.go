package instantiate

import (
	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmmem"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// Invoker runs a function instance to completion with no fuel budget; the
// root package wires this to interp.Invoke. Keeping it as an injected
// function value (rather than importing interp directly) keeps this
// package's dependency graph a straight line into wasmstore/validate,
// independent of the interpreter's own shape.
type Invoker func(store *wasmstore.Store, addr wasmstore.FuncAddr, args []wasmtype.Value) ([]wasmtype.Value, error)

// Module runs the ten-step instantiation algorithm spec.md §4.H describes:
// it checks externs against the module's declared imports, allocates every
// runtime instance, evaluates global/element/data initializers, installs
// active segments, and finally runs the start function (if any) via
// invoke. It returns the new ModuleInst's address.
func Module(store *wasmstore.Store, info *validate.ValidationInfo, externs []wasmstore.ExternVal, invoke Invoker) (wasmstore.ModuleAddr, error) {
	m := info.Module

	if len(externs) != len(m.Imports) {
		return wasmstore.ModuleAddr{}, errImportCountMismatch()
	}

	// Step 1: check every supplied extern against its declared import type.
	var importedFuncs []wasmstore.FuncAddr
	var importedTables []wasmstore.TableAddr
	var importedMems []wasmstore.MemAddr
	var importedGlobals []wasmstore.GlobalAddr
	for i, im := range m.Imports {
		ev := externs[i]
		if ev.Kind != im.Desc.Kind {
			return wasmstore.ModuleAddr{}, errInvalidImportType(im.Module, im.Name)
		}
		switch im.Desc.Kind {
		case wasmtype.ExternFunc:
			fi, ok := store.Func(ev.Func)
			if !ok || !fi.FuncType().Equal(m.Types[im.Desc.TypeIdx]) {
				return wasmstore.ModuleAddr{}, errInvalidImportType(im.Module, im.Name)
			}
			importedFuncs = append(importedFuncs, ev.Func)
		case wasmtype.ExternTable:
			ti, ok := store.Table(ev.Table)
			if !ok || ti.Type.ElemType != im.Desc.Table.ElemType || !ti.Type.Limits.MatchesImport(im.Desc.Table.Limits) {
				return wasmstore.ModuleAddr{}, errInvalidImportType(im.Module, im.Name)
			}
			importedTables = append(importedTables, ev.Table)
		case wasmtype.ExternMemory:
			mi, ok := store.Mem(ev.Mem)
			if !ok || !mi.Type.Limits.MatchesImport(im.Desc.Mem.Limits) {
				return wasmstore.ModuleAddr{}, errInvalidImportType(im.Module, im.Name)
			}
			importedMems = append(importedMems, ev.Mem)
		case wasmtype.ExternGlobal:
			gi, ok := store.Global(ev.Global)
			if !ok || gi.Type.ValType != im.Desc.Global.ValType || gi.Type.Mutability != im.Desc.Global.Mutability {
				return wasmstore.ModuleAddr{}, errInvalidImportType(im.Module, im.Name)
			}
			importedGlobals = append(importedGlobals, ev.Global)
		}
	}

	// Reserve the ModuleInst's address now so WasmFunc instances can record
	// it, breaking the func<->module self-reference per spec.md step 2.
	moduleAddr := store.AllocModule(wasmstore.ModuleInst{Types: m.Types})

	// Step 2: allocate function instances for declared functions.
	funcAddrs := append([]wasmstore.FuncAddr{}, importedFuncs...)
	for i, fb := range m.Code {
		ft := m.Types[fb.TypeIdx]
		addr := store.AllocFunc(wasmstore.FuncInst{Wasm: &wasmstore.WasmFunc{
			Type:           ft,
			DeclaredLocals: fb.DeclaredLocals,
			Code:           fb.Code,
			SidetableStart: info.SidetableStarts[i],
			ModuleAddr:     moduleAddr,
		}})
		funcAddrs = append(funcAddrs, addr)
	}
	funcAddrAt := func(idx uint32) wasmstore.FuncAddr { return funcAddrs[idx] }

	// Step 3: evaluate module-defined globals; only imported globals are
	// visible to global.get inside a const expr (validate enforced this).
	globalAddrs := append([]wasmstore.GlobalAddr{}, importedGlobals...)
	globalVal := func(idx uint32) wasmtype.Value {
		gi, _ := store.Global(globalAddrs[idx])
		return gi.Value
	}
	for _, g := range m.Globals {
		v := evalConstExpr(m, g.Init, globalVal, funcAddrAt)
		addr := store.AllocGlobal(wasmstore.GlobalInst{Type: g.Type, Value: v})
		globalAddrs = append(globalAddrs, addr)
	}

	// Step 4: evaluate element segments into ElemInst vectors.
	elemAddrs := make([]wasmstore.ElemAddr, len(m.Elements))
	for i, seg := range m.Elements {
		var refs []wasmtype.Ref
		for _, idx := range seg.Init.FuncIndices {
			refs = append(refs, wasmtype.FuncRefVal(uint32(funcAddrAt(idx).Addr)))
		}
		for _, span := range seg.Init.Exprs {
			refs = append(refs, evalConstExpr(m, span, globalVal, funcAddrAt).Ref())
		}
		elemAddrs[i] = store.AllocElem(wasmstore.ElemInst{Type: seg.Type, Refs: refs})
	}

	// Step 5: allocate tables, memories (each at their declared minimum),
	// and data instances.
	tableAddrs := append([]wasmstore.TableAddr{}, importedTables...)
	for _, tt := range m.Tables {
		elems := make([]wasmtype.Ref, tt.Limits.Min)
		for i := range elems {
			elems[i] = wasmtype.NullRef(tt.ElemType)
		}
		tableAddrs = append(tableAddrs, store.AllocTable(wasmstore.TableInst{Type: tt, Elems: elems}))
	}
	memAddrs := append([]wasmstore.MemAddr{}, importedMems...)
	for _, mt := range m.Memories {
		mem := wasmmem.NewWithInitialPages(mt.Limits.Min, mt.Limits.Max, mt.Limits.HasMax)
		memAddrs = append(memAddrs, store.AllocMem(wasmstore.MemInst{Type: mt, Mem: mem}))
	}
	dataAddrs := make([]wasmstore.DataAddr, len(m.Data))
	for i, seg := range m.Data {
		dataAddrs[i] = store.AllocData(wasmstore.DataInst{Bytes: seg.Bytes})
	}

	// Step 6: finalize the export map.
	exports := make(map[string]wasmstore.ExternVal, len(m.Exports))
	for _, ex := range m.Exports {
		switch ex.Kind {
		case wasmtype.ExternFunc:
			exports[ex.Name] = wasmstore.ExternVal{Kind: ex.Kind, Func: funcAddrs[ex.Idx]}
		case wasmtype.ExternTable:
			exports[ex.Name] = wasmstore.ExternVal{Kind: ex.Kind, Table: tableAddrs[ex.Idx]}
		case wasmtype.ExternMemory:
			exports[ex.Name] = wasmstore.ExternVal{Kind: ex.Kind, Mem: memAddrs[ex.Idx]}
		case wasmtype.ExternGlobal:
			exports[ex.Name] = wasmstore.ExternVal{Kind: ex.Kind, Global: globalAddrs[ex.Idx]}
		}
	}

	mod, _ := store.Module(moduleAddr)
	mod.FuncAddrs = funcAddrs
	mod.TableAddrs = tableAddrs
	mod.MemAddrs = memAddrs
	mod.GlobalAddrs = globalAddrs
	mod.ElemAddrs = elemAddrs
	mod.DataAddrs = dataAddrs
	mod.Exports = exports
	mod.Bytecode = m.Bytecode
	mod.Sidetable = info.Sidetable

	// Step 7 (module registration under a linker name) is the caller's
	// responsibility once Module returns successfully; see
	// wasmlink.Linker.DefineModuleInstance.

	// Step 8: active and declarative element segments.
	for i, seg := range m.Elements {
		elemInst, _ := store.Elem(elemAddrs[i])
		switch seg.Mode {
		case wasmbin.ElementActive:
			offset := evalConstExpr(m, seg.Offset, globalVal, funcAddrAt).U32()
			tbl, _ := store.Table(tableAddrs[seg.TableIdx])
			n := uint64(len(elemInst.Refs))
			if uint64(offset)+n > uint64(len(tbl.Elems)) {
				return moduleAddr, errf("TableOrElementAccessOutOfBounds", "out of bounds table access")
			}
			copy(tbl.Elems[offset:], elemInst.Refs)
			elemInst.Refs = nil
		case wasmbin.ElementDeclarative:
			elemInst.Refs = nil
		}
	}

	// Step 9: active data segments.
	for i, seg := range m.Data {
		if seg.Mode != wasmbin.DataActive {
			continue
		}
		dataInst, _ := store.Data(dataAddrs[i])
		offset := evalConstExpr(m, seg.Offset, globalVal, funcAddrAt).U32()
		memInst, _ := store.Mem(memAddrs[seg.MemIdx])
		n := uint64(len(dataInst.Bytes))
		if err := memInst.Mem.Init(uint64(offset), dataInst.Bytes, 0, n); err != nil {
			return moduleAddr, errf("MemoryOrDataAccessOutOfBounds", "out of bounds memory access")
		}
		dataInst.Bytes = nil
	}

	// Step 10: run the start function, if any.
	if m.HasStart {
		if _, err := invoke(store, funcAddrAt(m.StartFunc), nil); err != nil {
			return moduleAddr, err
		}
	}

	return moduleAddr, nil
}
