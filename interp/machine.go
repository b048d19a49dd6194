package interp

import (
	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// frame is one call frame: a function-relative program counter (pc) and
// sidetable cursor (stp), the locals it owns, and the module-scoped data
// (bytecode, sidetable slice, module address) it runs against. Per
// spec.md §4.I, frame state is exactly { module_addr, func_addr, locals,
// pc, stp, return_arity }; func_addr itself is not needed after the frame
// is built (code/sidetable are captured directly), so it is omitted.
type frame struct {
	moduleAddr  wasmstore.ModuleAddr
	code        []byte
	sidetable   []wasmstore.SidetableEntry
	stBase      int
	pc          int
	stp         int
	locals      []wasmtype.Value
	resultArity int
}

// machine is one invocation's interpreter state: a single operand stack
// shared across every frame on the call stack (sidetable drop/keep counts
// are relative to the stack top and validated code only pops what its own
// frame pushed, so no per-frame base pointer is kept), the call stack itself,
// and an optional fuel budget.
type machine struct {
	store   *wasmstore.Store
	operand []wasmtype.Value
	frames  []*frame

	userData    any
	fuelLimited bool
	fuel        uint64
}

func (m *machine) push(v wasmtype.Value) { m.operand = append(m.operand, v) }

func (m *machine) pop() wasmtype.Value {
	v := m.operand[len(m.operand)-1]
	m.operand = m.operand[:len(m.operand)-1]
	return v
}

// popVals removes and returns the top n values in their original (push)
// order, e.g. for popping a callee's argument list or a bulk op's operand
// triple in source-declared order.
func (m *machine) popVals(n int) []wasmtype.Value {
	start := len(m.operand) - n
	vals := append([]wasmtype.Value{}, m.operand[start:]...)
	m.operand = m.operand[:start]
	return vals
}

func (m *machine) charge(e wasmstore.SidetableEntry) error {
	if !m.fuelLimited {
		return nil
	}
	if m.fuel < e.DeltaFuel {
		return errOutOfFuel(e.DeltaFuel - m.fuel)
	}
	m.fuel -= e.DeltaFuel
	return nil
}

// applySidetable drops ValsToDrop operands beneath the top ValsToKeep,
// per spec.md §4.I: "drops popcount operands beneath the top keepcount".
func (m *machine) applySidetable(e wasmstore.SidetableEntry) {
	n := len(m.operand)
	keepStart := n - e.ValsToKeep
	dropStart := keepStart - e.ValsToDrop
	copy(m.operand[dropStart:], m.operand[keepStart:])
	m.operand = m.operand[:dropStart+e.ValsToKeep]
}

// branchTo consults the sidetable entry at f's function-relative index
// localStp, charges its fuel, applies its stack adjustment, and either
// jumps within f or pops it (TargetStp == -1, the function-return
// sentinel).
func (m *machine) branchTo(f *frame, localStp int) error {
	e := f.sidetable[f.stBase+localStp]
	if err := m.charge(e); err != nil {
		return err
	}
	m.applySidetable(e)
	if e.TargetStp == -1 {
		m.frames = m.frames[:len(m.frames)-1]
		return nil
	}
	f.pc = e.TargetInstrOffset
	f.stp = e.TargetStp
	return nil
}

// call invokes addr, popping its arguments off the shared operand stack.
// A host function runs synchronously to completion here; a Wasm function
// instead pushes a new frame for run to execute.
func (m *machine) call(addr wasmstore.FuncAddr) error {
	fi, ok := m.store.Func(addr)
	if !ok {
		return errFunctionNotFound
	}
	ft := fi.FuncType()
	args := m.popVals(len(ft.Params))

	if fi.Host != nil {
		results, err := fi.Host.Callback(m.userData, args)
		if err != nil {
			return errHaltExecution(err)
		}
		if err := checkResultTypes(results, ft.Results); err != nil {
			return err
		}
		for _, v := range results {
			m.push(v)
		}
		return nil
	}

	wf := fi.Wasm
	locals := make([]wasmtype.Value, 0, len(ft.Params)+len(wf.DeclaredLocals))
	locals = append(locals, args...)
	for _, t := range wf.DeclaredLocals {
		locals = append(locals, wasmtype.Zero(t))
	}
	mod, _ := m.store.Module(wf.ModuleAddr)
	m.frames = append(m.frames, &frame{
		moduleAddr:  wf.ModuleAddr,
		code:        wf.Code.Bytes(mod.Bytecode),
		sidetable:   mod.Sidetable,
		stBase:      wf.SidetableStart,
		locals:      locals,
		resultArity: len(ft.Results),
	})
	return nil
}

func checkResultTypes(got []wasmtype.Value, want []wasmtype.ValType) error {
	if len(got) != len(want) {
		return errHostFunctionSignatureMismatch("wrong number of results")
	}
	for i, v := range got {
		if v.Type != want[i] {
			return errHostFunctionSignatureMismatch("result type mismatch")
		}
	}
	return nil
}

// run drives frames to completion: the topmost frame executes one opcode
// at a time until its code is exhausted (an implicit return, since
// wasmbin's decoder excludes a function's terminal `end` byte from its
// code span) or it explicitly returns/branches out of existence. run exits
// once the call stack empties, at which point the shared operand stack
// holds exactly the invocation's result values.
func (m *machine) run() ([]wasmtype.Value, error) {
	for len(m.frames) > 0 {
		f := m.frames[len(m.frames)-1]

		if f.stp == 0 {
			if err := m.charge(f.sidetable[f.stBase]); err != nil {
				return nil, err
			}
			f.stp = 1
		}

		if f.pc >= len(f.code) {
			m.frames = m.frames[:len(m.frames)-1]
			continue
		}

		opStart := f.pc
		op := f.code[f.pc]
		f.pc++
		if err := m.step(f, op); err != nil {
			if oe, ok := err.(*Error); ok && oe.Kind == "OutOfFuel" {
				f.pc = opStart
			}
			return nil, err
		}
	}
	return m.operand, nil
}

func skipBlockType(f *frame) error {
	r := bufreader.New(f.code[f.pc:])
	if _, err := leb128.ReadInt33AsOffset(r); err != nil {
		return err
	}
	f.pc += r.Pos()
	return nil
}

func readU32Imm(f *frame) (uint32, error) {
	r := bufreader.New(f.code[f.pc:])
	v, err := leb128.ReadUint32(r)
	if err != nil {
		return 0, err
	}
	f.pc += r.Pos()
	return v, nil
}

func readByteImm(f *frame) (byte, error) {
	r := bufreader.New(f.code[f.pc:])
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	f.pc += r.Pos()
	return b, nil
}

func (m *machine) step(f *frame, op byte) error {
	switch op {
	case validate.OpUnreachable:
		return errUnreachable
	case validate.OpNop:
		return nil
	case validate.OpBlock, validate.OpLoop:
		return skipBlockType(f)
	case validate.OpIf:
		return m.stepIf(f)
	case validate.OpElse:
		return m.branchTo(f, f.stp)
	case validate.OpEnd:
		return nil
	case validate.OpBr:
		if _, err := readU32Imm(f); err != nil {
			return err
		}
		return m.branchTo(f, f.stp)
	case validate.OpBrIf:
		return m.stepBrIf(f)
	case validate.OpBrTable:
		return m.stepBrTable(f)
	case validate.OpReturn:
		return m.branchTo(f, f.stp)
	case validate.OpCall:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		mod, _ := m.store.Module(f.moduleAddr)
		return m.call(mod.FuncAddrs[idx])
	case validate.OpCallIndir:
		return m.stepCallIndirect(f)
	case validate.OpDrop:
		m.pop()
		return nil
	case validate.OpSelect:
		return m.stepSelect()
	case validate.OpSelectT:
		return m.stepSelectT(f)
	case validate.OpLocalGet:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		m.push(f.locals[idx])
		return nil
	case validate.OpLocalSet:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		f.locals[idx] = m.pop()
		return nil
	case validate.OpLocalTee:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		f.locals[idx] = m.operand[len(m.operand)-1]
		return nil
	case validate.OpGlobalGet:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		mod, _ := m.store.Module(f.moduleAddr)
		gi, _ := m.store.Global(mod.GlobalAddrs[idx])
		m.push(gi.Value)
		return nil
	case validate.OpGlobalSet:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		mod, _ := m.store.Module(f.moduleAddr)
		gi, _ := m.store.Global(mod.GlobalAddrs[idx])
		gi.Value = m.pop()
		return nil
	case validate.OpTableGet:
		return m.stepTableGet(f)
	case validate.OpTableSet:
		return m.stepTableSet(f)
	case validate.OpMemorySize:
		return m.stepMemorySize(f)
	case validate.OpMemoryGrow:
		return m.stepMemoryGrow(f)
	case validate.OpI32Const:
		r := bufreader.New(f.code[f.pc:])
		v, err := leb128.ReadInt32(r)
		if err != nil {
			return err
		}
		f.pc += r.Pos()
		m.push(wasmtype.I32Val(v))
		return nil
	case validate.OpI64Const:
		r := bufreader.New(f.code[f.pc:])
		v, err := leb128.ReadInt64(r)
		if err != nil {
			return err
		}
		f.pc += r.Pos()
		m.push(wasmtype.I64Val(v))
		return nil
	case validate.OpF32Const:
		r := bufreader.New(f.code[f.pc:])
		v, err := r.ReadF32()
		if err != nil {
			return err
		}
		f.pc += r.Pos()
		m.push(wasmtype.F32Val(v))
		return nil
	case validate.OpF64Const:
		r := bufreader.New(f.code[f.pc:])
		v, err := r.ReadF64()
		if err != nil {
			return err
		}
		f.pc += r.Pos()
		m.push(wasmtype.F64Val(v))
		return nil
	case validate.OpRefNull:
		b, err := readByteImm(f)
		if err != nil {
			return err
		}
		t := wasmtype.ExternRef
		if b == 0x70 {
			t = wasmtype.FuncRef
		}
		m.push(wasmtype.RefVal(wasmtype.NullRef(t)))
		return nil
	case validate.OpRefIsNull:
		r := m.pop().Ref()
		if r.IsNull {
			m.push(wasmtype.I32Val(1))
		} else {
			m.push(wasmtype.I32Val(0))
		}
		return nil
	case validate.OpRefFunc:
		idx, err := readU32Imm(f)
		if err != nil {
			return err
		}
		mod, _ := m.store.Module(f.moduleAddr)
		m.push(wasmtype.RefVal(wasmtype.FuncRefVal(uint32(mod.FuncAddrs[idx].Addr))))
		return nil
	case validate.OpPrefixFC:
		subop, err := readU32Imm(f)
		if err != nil {
			return err
		}
		return m.execFC(f, subop)
	default:
		if op >= 0x28 && op <= 0x3e {
			return m.execMemOp(f, op)
		}
		return m.execNumOp(op)
	}
}

func (m *machine) stepIf(f *frame) error {
	if err := skipBlockType(f); err != nil {
		return err
	}
	cond := m.pop().I32()
	e := f.sidetable[f.stBase+f.stp]
	if err := m.charge(e); err != nil {
		return err
	}
	if cond != 0 {
		f.stp++
		return nil
	}
	m.applySidetable(e)
	if e.TargetStp == -1 {
		m.frames = m.frames[:len(m.frames)-1]
		return nil
	}
	f.pc = e.TargetInstrOffset
	f.stp = e.TargetStp
	return nil
}

func (m *machine) stepBrIf(f *frame) error {
	if _, err := readU32Imm(f); err != nil {
		return err
	}
	cond := m.pop().I32()
	if cond == 0 {
		e := f.sidetable[f.stBase+f.stp]
		if err := m.charge(e); err != nil {
			return err
		}
		f.stp++
		return nil
	}
	return m.branchTo(f, f.stp)
}

func (m *machine) stepBrTable(f *frame) error {
	r := bufreader.New(f.code[f.pc:])
	targets, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
	if err != nil {
		return err
	}
	if _, err := leb128.ReadUint32(r); err != nil { // default label, consumed for byte-width only
		return err
	}
	f.pc += r.Pos()

	selector := m.pop().U32()
	n := uint32(len(targets))
	if selector >= n {
		selector = n
	}
	return m.branchTo(f, f.stp+int(selector))
}

func (m *machine) stepCallIndirect(f *frame) error {
	typeIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	tableIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	idx := m.pop().U32()
	mod, _ := m.store.Module(f.moduleAddr)
	tbl, _ := m.store.Table(mod.TableAddrs[tableIdx])
	if idx >= uint32(len(tbl.Elems)) {
		return errUndefinedTableIndex
	}
	ref := tbl.Elems[idx]
	if ref.IsNull {
		return errUninitializedElement
	}
	funcAddr := m.store.ResolveFuncAddr(ref.Addr)
	fi, ok := m.store.Func(funcAddr)
	if !ok {
		return errUninitializedElement
	}
	if !fi.FuncType().Equal(mod.Types[typeIdx]) {
		return errSignatureMismatch
	}
	return m.call(funcAddr)
}

func (m *machine) stepSelect() error {
	cond := m.pop().I32()
	b := m.pop()
	a := m.pop()
	if cond != 0 {
		m.push(a)
	} else {
		m.push(b)
	}
	return nil
}

func (m *machine) stepSelectT(f *frame) error {
	// The explicit type vector doesn't affect runtime behavior (already
	// validated); only its byte width matters for advancing pc.
	r := bufreader.New(f.code[f.pc:])
	if _, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (byte, error) { return r.ReadByte() }); err != nil {
		return err
	}
	f.pc += r.Pos()
	return m.stepSelect()
}

func (m *machine) stepTableGet(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	ti, _ := m.store.Table(mod.TableAddrs[idx])
	i := m.pop().U32()
	if i >= uint32(len(ti.Elems)) {
		return errTableAccessOOB
	}
	m.push(wasmtype.RefVal(ti.Elems[i]))
	return nil
}

func (m *machine) stepTableSet(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	ti, _ := m.store.Table(mod.TableAddrs[idx])
	v := m.pop().Ref()
	i := m.pop().U32()
	if i >= uint32(len(ti.Elems)) {
		return errTableAccessOOB
	}
	ti.Elems[i] = v
	return nil
}

func (m *machine) stepMemorySize(f *frame) error {
	if _, err := readByteImm(f); err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	mi, _ := m.store.Mem(mod.MemAddrs[0])
	m.push(wasmtype.I32Val(int32(mi.Mem.Pages())))
	return nil
}

func (m *machine) stepMemoryGrow(f *frame) error {
	if _, err := readByteImm(f); err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	mi, _ := m.store.Mem(mod.MemAddrs[0])
	n := m.pop().U32()
	m.push(wasmtype.I32Val(int32(mi.Mem.Grow(n))))
	return nil
}
