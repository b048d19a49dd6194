package validate

import (
	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// validateFunc walks one function body's instruction stream with a fresh,
// function-relative reader (pc 0 is this function's first opcode, matching
// spec.md §4.I's "pc indexes the current function's bytecode") and returns
// the sidetable entries it generated for this function alone; Module
// concatenates every function's entries into the module-wide table.
func (fv *funcValidator) validateFunc(ft wasmtype.FuncType, fb wasmbin.FunctionBody) ([]wasmstore.SidetableEntry, error) {
	fv.ctrl = []ctrlFrame{{kind: ctrlFunc, endTypes: ft.Results, baseHeight: 0, ifJumpIdx: -1}}

	// Every invocation consumes one leading sidetable entry representing
	// call overhead; stp starts past it, per spec.md §4.I.
	fv.table = append(fv.table, wasmstore.SidetableEntry{TargetStp: 1, DeltaFuel: 1})

	r := bufreader.New(fb.Code.Bytes(fv.module.Bytecode))
	for r.Len() > 0 {
		fv.steps++
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if err := fv.step(b, r); err != nil {
			return nil, err
		}
	}

	if len(fv.ctrl) != 1 {
		return nil, errEndInvalidValueStack()
	}
	top := fv.ctrl[0]
	if err := fv.popN(top.endTypes); err != nil {
		return nil, err
	}
	if len(fv.valStack) != top.baseHeight {
		return nil, errEndInvalidValueStack()
	}
	return fv.table, nil
}

func (fv *funcValidator) step(b byte, r *bufreader.Reader) error {
	switch b {
	case OpUnreachable:
		fv.setUnreachable()
	case OpNop:
	case OpBlock, OpLoop, OpIf:
		return fv.stepBlockLike(b, r)
	case OpElse:
		return fv.stepElse(r)
	case OpEnd:
		return fv.stepEnd(r)
	case OpBr:
		return fv.stepBr(r)
	case OpBrIf:
		return fv.stepBrIf(r)
	case OpBrTable:
		return fv.stepBrTable(r)
	case OpReturn:
		return fv.stepReturn()
	case OpCall:
		return fv.stepCall(r)
	case OpCallIndir:
		return fv.stepCallIndirect(r)
	case OpDrop:
		_, err := fv.pop()
		return err
	case OpSelect:
		return fv.stepSelect()
	case OpSelectT:
		return fv.stepSelectT(r)
	case OpLocalGet:
		return fv.stepLocalGet(r)
	case OpLocalSet:
		return fv.stepLocalSet(r)
	case OpLocalTee:
		return fv.stepLocalTee(r)
	case OpGlobalGet:
		return fv.stepGlobalGet(r)
	case OpGlobalSet:
		return fv.stepGlobalSet(r)
	case OpTableGet:
		return fv.stepTableGet(r)
	case OpTableSet:
		return fv.stepTableSet(r)
	case OpMemorySize:
		return fv.stepMemorySize(r)
	case OpMemoryGrow:
		return fv.stepMemoryGrow(r)
	case OpI32Const:
		_, err := leb128.ReadInt32(r)
		if err != nil {
			return err
		}
		fv.push(i32)
	case OpI64Const:
		_, err := leb128.ReadInt64(r)
		if err != nil {
			return err
		}
		fv.push(i64)
	case OpF32Const:
		if _, err := r.ReadF32(); err != nil {
			return err
		}
		fv.push(f32)
	case OpF64Const:
		if _, err := r.ReadF64(); err != nil {
			return err
		}
		fv.push(f64)
	case OpRefNull:
		t, err := decodeConstRefType(r)
		if err != nil {
			return err
		}
		fv.push(t)
	case OpRefIsNull:
		t, err := fv.pop()
		if err != nil {
			return err
		}
		if t != anyType && !t.IsRef() {
			return errMismatchedRefType()
		}
		fv.push(i32)
	case OpRefFunc:
		idx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		if int(idx) >= fv.module.NumImportedFuncs()+len(fv.module.Functions) || !fv.info.DeclaredFuncRefs[idx] {
			return errInvalidFuncIdx(idx)
		}
		fv.push(wasmtype.FuncRef)
	case OpPrefixFC:
		subop, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		return fv.stepFC(subop, r)
	default:
		if op, ok := memOps[b]; ok {
			return fv.stepMemOp(op, r)
		}
		if op, ok := numOps[b]; ok {
			if err := fv.popN(op.Pops); err != nil {
				return err
			}
			fv.pushN(op.Push)
			return nil
		}
		return errInvalidInstr(b)
	}
	return nil
}

func labelTypes(f ctrlFrame) []wasmtype.ValType {
	if f.kind == ctrlLoop {
		return f.startTypes
	}
	return f.endTypes
}

func (fv *funcValidator) stepBlockLike(op byte, r *bufreader.Reader) error {
	params, results, err := decodeBlockType(r, fv.module)
	if err != nil {
		return err
	}
	if op == OpIf {
		if err := fv.popExpect(i32); err != nil {
			return err
		}
	}
	if err := fv.popN(params); err != nil {
		return err
	}
	kind := ctrlBlock
	if op == OpLoop {
		kind = ctrlLoop
	} else if op == OpIf {
		kind = ctrlIf
	}
	fv.pushCtrl(kind, params, results)
	top := len(fv.ctrl) - 1
	switch kind {
	case ctrlLoop:
		fv.ctrl[top].loopInstrOff = r.Pos()
		fv.ctrl[top].loopStp = len(fv.table)
	case ctrlIf:
		idx := len(fv.table)
		fv.table = append(fv.table, wasmstore.SidetableEntry{TargetInstrOffset: -1, TargetStp: -1, DeltaFuel: fv.takeSteps()})
		fv.ctrl[top].ifJumpIdx = idx
	}
	return nil
}

func (fv *funcValidator) stepElse(r *bufreader.Reader) error {
	cur := fv.ctrl[len(fv.ctrl)-1]
	if cur.kind != ctrlIf || cur.hasElse {
		return errElseWithoutIf()
	}
	if err := fv.popN(cur.endTypes); err != nil {
		return err
	}
	if len(fv.valStack) != cur.baseHeight {
		return errEndInvalidValueStack()
	}
	if cur.ifJumpIdx >= 0 {
		fv.table[cur.ifJumpIdx].TargetInstrOffset = r.Pos()
		fv.table[cur.ifJumpIdx].TargetStp = len(fv.table) + 1 // past the skip entry appended below
	}
	// Falling through the "then" arm into this `else` opcode must skip the
	// else body entirely and land where `end` resolves its pending
	// patches; the then-arm's results already sit at the right height, so
	// this entry only moves pc/stp, matching the if-without-else identity
	// case handled by errIfWithoutElse.
	skipIdx := len(fv.table)
	fv.table = append(fv.table, wasmstore.SidetableEntry{ValsToKeep: len(cur.endTypes), DeltaFuel: fv.takeSteps()})
	cur.pendingPatches = append(cur.pendingPatches, skipIdx)
	fv.ctrl[len(fv.ctrl)-1] = ctrlFrame{
		kind:           ctrlIf,
		startTypes:     cur.startTypes,
		endTypes:       cur.endTypes,
		baseHeight:     cur.baseHeight,
		ifJumpIdx:      -1,
		hasElse:        true,
		pendingPatches: cur.pendingPatches,
	}
	fv.pushN(cur.startTypes)
	return nil
}

func (fv *funcValidator) stepEnd(r *bufreader.Reader) error {
	cur := fv.ctrl[len(fv.ctrl)-1]
	if cur.kind == ctrlIf && !cur.hasElse {
		if !sameTypes(cur.startTypes, cur.endTypes) {
			return errIfWithoutElse()
		}
	}
	popped, err := fv.popCtrl()
	if err != nil {
		return err
	}
	targetOff := r.Pos()
	targetStp := len(fv.table)
	for _, idx := range popped.pendingPatches {
		fv.table[idx].TargetInstrOffset = targetOff
		fv.table[idx].TargetStp = targetStp
	}
	if popped.kind == ctrlIf && !popped.hasElse && popped.ifJumpIdx >= 0 {
		fv.table[popped.ifJumpIdx].TargetInstrOffset = targetOff
		fv.table[popped.ifJumpIdx].TargetStp = targetStp
	}
	fv.pushN(popped.endTypes)
	return nil
}

func sameTypes(a, b []wasmtype.ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (fv *funcValidator) appendBranchEntry(targetIdx int, arityTypes []wasmtype.ValType, heightBefore int) {
	target := fv.ctrl[targetIdx]
	drop := (heightBefore - target.baseHeight) - len(arityTypes)
	if drop < 0 {
		drop = 0
	}
	entry := wasmstore.SidetableEntry{ValsToDrop: drop, ValsToKeep: len(arityTypes), DeltaFuel: fv.takeSteps()}
	switch target.kind {
	case ctrlFunc:
		entry.TargetInstrOffset = -1
		entry.TargetStp = -1
		fv.table = append(fv.table, entry)
	case ctrlLoop:
		entry.TargetInstrOffset = target.loopInstrOff
		entry.TargetStp = target.loopStp
		fv.table = append(fv.table, entry)
	default:
		idx := len(fv.table)
		fv.table = append(fv.table, entry)
		fv.ctrl[targetIdx].pendingPatches = append(fv.ctrl[targetIdx].pendingPatches, idx)
	}
}

func (fv *funcValidator) resolveLabel(idx uint32) (int, error) {
	if int(idx) >= len(fv.ctrl) {
		return 0, errf("InvalidLabelIdx", "unknown label %d", idx)
	}
	return len(fv.ctrl) - 1 - int(idx), nil
}

func (fv *funcValidator) stepBr(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	ti, err := fv.resolveLabel(idx)
	if err != nil {
		return err
	}
	arity := labelTypes(fv.ctrl[ti])
	heightBefore := len(fv.valStack)
	if err := fv.popN(arity); err != nil {
		return err
	}
	fv.appendBranchEntry(ti, arity, heightBefore)
	fv.setUnreachable()
	return nil
}

func (fv *funcValidator) stepBrIf(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	ti, err := fv.resolveLabel(idx)
	if err != nil {
		return err
	}
	arity := labelTypes(fv.ctrl[ti])
	heightBefore := len(fv.valStack)
	if err := fv.popN(arity); err != nil {
		return err
	}
	fv.pushN(arity)
	fv.appendBranchEntry(ti, arity, heightBefore)
	return nil
}

func (fv *funcValidator) stepBrTable(r *bufreader.Reader) error {
	targets, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
	if err != nil {
		return err
	}
	defIdx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	defTi, err := fv.resolveLabel(defIdx)
	if err != nil {
		return err
	}
	arity := labelTypes(fv.ctrl[defTi])
	heightBefore := len(fv.valStack)
	if err := fv.popN(arity); err != nil {
		return err
	}
	for _, t := range targets {
		ti, err := fv.resolveLabel(t)
		if err != nil {
			return err
		}
		if !sameTypes(labelTypes(fv.ctrl[ti]), arity) {
			return errf("TypeMismatch", "br_table target arity does not match default target arity")
		}
		fv.appendBranchEntry(ti, arity, heightBefore)
	}
	fv.appendBranchEntry(defTi, arity, heightBefore)
	fv.setUnreachable()
	return nil
}

func (fv *funcValidator) stepReturn() error {
	funcIdx := 0
	arity := fv.ctrl[funcIdx].endTypes
	heightBefore := len(fv.valStack)
	if err := fv.popN(arity); err != nil {
		return err
	}
	fv.appendBranchEntry(funcIdx, arity, heightBefore)
	fv.setUnreachable()
	return nil
}

func (fv *funcValidator) stepCall(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	ti, ok := fv.module.FuncTypeIndex(idx)
	if !ok {
		return errInvalidFuncIdx(idx)
	}
	ft := fv.module.Types[ti]
	if err := fv.popN(ft.Params); err != nil {
		return err
	}
	fv.pushN(ft.Results)
	return nil
}

func (fv *funcValidator) stepCallIndirect(r *bufreader.Reader) error {
	typeIdx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	tableIdx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	tt, ok := fv.tableTypeAt(tableIdx)
	if !ok {
		return errInvalidTableIdx(tableIdx)
	}
	if tt.ElemType != wasmtype.FuncRef {
		return errMismatchedRefType()
	}
	if int(typeIdx) >= len(fv.module.Types) {
		return errInvalidTypeIdx(typeIdx)
	}
	ft := fv.module.Types[typeIdx]
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	if err := fv.popN(ft.Params); err != nil {
		return err
	}
	fv.pushN(ft.Results)
	return nil
}

func (fv *funcValidator) stepSelect() error {
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	t2, err := fv.pop()
	if err != nil {
		return err
	}
	t1, err := fv.pop()
	if err != nil {
		return err
	}
	if t1 != anyType && t2 != anyType && t1 != t2 {
		return errTypeMismatch(t1, t2)
	}
	rt := t1
	if rt == anyType {
		rt = t2
	}
	if rt != anyType && rt.IsRef() {
		return errTypeMismatch(rt, rt)
	}
	fv.push(rt)
	return nil
}

func (fv *funcValidator) stepSelectT(r *bufreader.Reader) error {
	ts, err := bufreader.ReadVector(r, decodeSelectValType)
	if err != nil {
		return err
	}
	if len(ts) != 1 {
		return errf("InvalidResultArity", "select with explicit types must name exactly one result type")
	}
	want := ts[0]
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	if err := fv.popExpect(want); err != nil {
		return err
	}
	if err := fv.popExpect(want); err != nil {
		return err
	}
	fv.push(want)
	return nil
}

func (fv *funcValidator) stepLocalGet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if int(idx) >= len(fv.locals) {
		return errInvalidLocalIdx(idx)
	}
	fv.push(fv.locals[idx])
	return nil
}

func (fv *funcValidator) stepLocalSet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if int(idx) >= len(fv.locals) {
		return errInvalidLocalIdx(idx)
	}
	return fv.popExpect(fv.locals[idx])
}

func (fv *funcValidator) stepLocalTee(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if int(idx) >= len(fv.locals) {
		return errInvalidLocalIdx(idx)
	}
	t := fv.locals[idx]
	if err := fv.popExpect(t); err != nil {
		return err
	}
	fv.push(t)
	return nil
}

func (fv *funcValidator) stepGlobalGet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	gt, ok := fv.globalTypeAt(idx)
	if !ok {
		return errInvalidGlobalIdx(idx)
	}
	fv.push(gt.ValType)
	return nil
}

func (fv *funcValidator) stepGlobalSet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	gt, ok := fv.globalTypeAt(idx)
	if !ok {
		return errInvalidGlobalIdx(idx)
	}
	if gt.Mutability != wasmtype.Var {
		return errMutationOfConstGlobal()
	}
	return fv.popExpect(gt.ValType)
}

func (fv *funcValidator) stepTableGet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	tt, ok := fv.tableTypeAt(idx)
	if !ok {
		return errInvalidTableIdx(idx)
	}
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	fv.push(tt.ElemType)
	return nil
}

func (fv *funcValidator) stepTableSet(r *bufreader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	tt, ok := fv.tableTypeAt(idx)
	if !ok {
		return errInvalidTableIdx(idx)
	}
	if err := fv.popExpect(tt.ElemType); err != nil {
		return err
	}
	return fv.popExpect(i32)
}

func (fv *funcValidator) hasMemory() bool {
	return fv.module.NumImportedMemories()+len(fv.module.Memories) > 0
}

func (fv *funcValidator) stepMemorySize(r *bufreader.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 || !fv.hasMemory() {
		return errInvalidMemIdx()
	}
	fv.push(i32)
	return nil
}

func (fv *funcValidator) stepMemoryGrow(r *bufreader.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 || !fv.hasMemory() {
		return errInvalidMemIdx()
	}
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	fv.push(i32)
	return nil
}

func widthLog2(w int) uint32 {
	switch w {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

func (fv *funcValidator) stepMemOp(op memOp, r *bufreader.Reader) error {
	align, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	if _, err := leb128.ReadUint32(r); err != nil { // offset
		return err
	}
	if !fv.hasMemory() {
		return errInvalidMemIdx()
	}
	if align > widthLog2(op.Width) {
		return errErroneousAlignment()
	}
	if op.IsStore {
		if err := fv.popExpect(op.Valtype); err != nil {
			return err
		}
		return fv.popExpect(i32)
	}
	if err := fv.popExpect(i32); err != nil {
		return err
	}
	fv.push(op.Valtype)
	return nil
}

func (fv *funcValidator) stepFC(subop uint32, r *bufreader.Reader) error {
	if op, ok := satTruncOps[subop]; ok {
		if err := fv.popN(op.Pops); err != nil {
			return err
		}
		fv.pushN(op.Push)
		return nil
	}
	switch subop {
	case FcMemoryInit:
		dataIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0 || !fv.hasMemory() {
			return errInvalidMemIdx()
		}
		if fv.module.DataCount == nil || int(dataIdx) >= int(*fv.module.DataCount) {
			return errInvalidDataIdx(dataIdx)
		}
		return fv.popN([]wasmtype.ValType{i32, i32, i32})
	case FcDataDrop:
		dataIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		if fv.module.DataCount == nil || int(dataIdx) >= int(*fv.module.DataCount) {
			return errInvalidDataIdx(dataIdx)
		}
		return nil
	case FcMemoryCopy:
		d, err := r.ReadByte()
		if err != nil {
			return err
		}
		s, err := r.ReadByte()
		if err != nil {
			return err
		}
		if d != 0 || s != 0 || !fv.hasMemory() {
			return errInvalidMemIdx()
		}
		return fv.popN([]wasmtype.ValType{i32, i32, i32})
	case FcMemoryFill:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0 || !fv.hasMemory() {
			return errInvalidMemIdx()
		}
		return fv.popN([]wasmtype.ValType{i32, i32, i32})
	case FcTableInit:
		elemIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		if int(elemIdx) >= len(fv.module.Elements) {
			return errInvalidElemIdx(elemIdx)
		}
		tt, ok := fv.tableTypeAt(tableIdx)
		if !ok {
			return errInvalidTableIdx(tableIdx)
		}
		if tt.ElemType != fv.module.Elements[elemIdx].Type {
			return errMismatchedRefType()
		}
		return fv.popN([]wasmtype.ValType{i32, i32, i32})
	case FcElemDrop:
		elemIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		if int(elemIdx) >= len(fv.module.Elements) {
			return errInvalidElemIdx(elemIdx)
		}
		return nil
	case FcTableCopy:
		dst, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		src, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		dtt, ok := fv.tableTypeAt(dst)
		if !ok {
			return errInvalidTableIdx(dst)
		}
		stt, ok := fv.tableTypeAt(src)
		if !ok {
			return errInvalidTableIdx(src)
		}
		if dtt.ElemType != stt.ElemType {
			return errMismatchedRefType()
		}
		return fv.popN([]wasmtype.ValType{i32, i32, i32})
	case FcTableGrow:
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		tt, ok := fv.tableTypeAt(tableIdx)
		if !ok {
			return errInvalidTableIdx(tableIdx)
		}
		if err := fv.popExpect(i32); err != nil {
			return err
		}
		if err := fv.popExpect(tt.ElemType); err != nil {
			return err
		}
		fv.push(i32)
		return nil
	case FcTableSize:
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		if _, ok := fv.tableTypeAt(tableIdx); !ok {
			return errInvalidTableIdx(tableIdx)
		}
		fv.push(i32)
		return nil
	case FcTableFill:
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		tt, ok := fv.tableTypeAt(tableIdx)
		if !ok {
			return errInvalidTableIdx(tableIdx)
		}
		if err := fv.popExpect(i32); err != nil {
			return err
		}
		if err := fv.popExpect(tt.ElemType); err != nil {
			return err
		}
		return fv.popExpect(i32)
	default:
		return errInvalidInstr(OpPrefixFC)
	}
}

func (fv *funcValidator) tableTypeAt(idx uint32) (wasmtype.TableType, bool) {
	nImported := uint32(fv.module.NumImportedTables())
	if idx < nImported {
		count := uint32(0)
		for _, im := range fv.module.Imports {
			if im.Desc.Kind == wasmtype.ExternTable {
				if count == idx {
					return im.Desc.Table, true
				}
				count++
			}
		}
		return wasmtype.TableType{}, false
	}
	i := idx - nImported
	if int(i) >= len(fv.module.Tables) {
		return wasmtype.TableType{}, false
	}
	return fv.module.Tables[i], true
}

func (fv *funcValidator) globalTypeAt(idx uint32) (wasmtype.GlobalType, bool) {
	nImported := uint32(fv.module.NumImportedGlobals())
	if idx < nImported {
		count := uint32(0)
		for _, im := range fv.module.Imports {
			if im.Desc.Kind == wasmtype.ExternGlobal {
				if count == idx {
					return im.Desc.Global, true
				}
				count++
			}
		}
		return wasmtype.GlobalType{}, false
	}
	i := idx - nImported
	if int(i) >= len(fv.module.Globals) {
		return wasmtype.GlobalType{}, false
	}
	return fv.module.Globals[i].Type, true
}

// decodeBlockType reads the s33-encoded block type: 0x40 (empty), a
// single-byte valtype shorthand, or a non-negative type index.
func decodeBlockType(r *bufreader.Reader, m *wasmbin.Module) ([]wasmtype.ValType, []wasmtype.ValType, error) {
	v, err := leb128.ReadInt33AsOffset(r)
	if err != nil {
		return nil, nil, err
	}
	switch v {
	case -64:
		return nil, nil, nil
	case -1:
		return nil, []wasmtype.ValType{i32}, nil
	case -2:
		return nil, []wasmtype.ValType{i64}, nil
	case -3:
		return nil, []wasmtype.ValType{f32}, nil
	case -4:
		return nil, []wasmtype.ValType{f64}, nil
	case -16:
		return nil, []wasmtype.ValType{wasmtype.FuncRef}, nil
	case -17:
		return nil, []wasmtype.ValType{wasmtype.ExternRef}, nil
	}
	if v < 0 {
		return nil, nil, errI33IsNegative()
	}
	idx := uint32(v)
	if int(idx) >= len(m.Types) {
		return nil, nil, errInvalidTypeIdx(idx)
	}
	ft := m.Types[idx]
	return ft.Params, ft.Results, nil
}

func decodeSelectValType(r *bufreader.Reader) (wasmtype.ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x7f:
		return i32, nil
	case 0x7e:
		return i64, nil
	case 0x7d:
		return f32, nil
	case 0x7c:
		return f64, nil
	case 0x70:
		return wasmtype.FuncRef, nil
	case 0x6f:
		return wasmtype.ExternRef, nil
	default:
		return 0, errInvalidInstr(b)
	}
}
