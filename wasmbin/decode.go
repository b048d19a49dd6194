package wasmbin

import (
	"encoding/binary"

	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// section IDs, in the order spec.md §4.C mandates for non-custom sections.
const (
	secCustom byte = iota
	secType
	secImport
	secFunction
	secTable
	secMemory
	secGlobal
	secExport
	secStart
	secElement
	secCode
	secData
	secDataCount
)

// Decode parses a complete Wasm binary into a Module. It enforces the
// header, section-ordering, and vector-length invariants spec.md §4.C
// lists; it does not type-check instruction bodies (package validate does
// that as a second pass over the same Module).
func Decode(bin []byte) (*Module, error) {
	r := bufreader.New(bin)

	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errInvalidMagic()
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, errInvalidVersion()
	}

	m := &Module{Version: version, Bytecode: bin}
	d := &decoder{m: m, r: r}

	lastNonCustom := byte(0)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := leb128.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		sub, err := r.Sub(size)
		if err != nil {
			return nil, err
		}

		if id != secCustom {
			if id <= lastNonCustom {
				return nil, errSectionOutOfOrder()
			}
			lastNonCustom = id
		}

		if err := d.decodeSection(id, sub); err != nil {
			return nil, err
		}
	}

	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}

type decoder struct {
	m *Module
	r *bufreader.Reader
}

func (d *decoder) decodeSection(id byte, r *bufreader.Reader) error {
	switch id {
	case secCustom:
		return nil // contents are opaque and admitted anywhere
	case secType:
		types, err := bufreader.ReadVector(r, decodeFuncType)
		if err != nil {
			return err
		}
		d.m.Types = types
	case secImport:
		imports, err := bufreader.ReadVector(r, decodeImport)
		if err != nil {
			return err
		}
		d.m.Imports = imports
	case secFunction:
		fns, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) {
			return leb128.ReadUint32(r)
		})
		if err != nil {
			return err
		}
		d.m.Functions = fns
	case secTable:
		tables, err := bufreader.ReadVector(r, decodeTableType)
		if err != nil {
			return err
		}
		d.m.Tables = tables
	case secMemory:
		mems, err := bufreader.ReadVector(r, decodeMemType)
		if err != nil {
			return err
		}
		if len(mems) > 1 || len(d.m.Memories)+len(mems) > 1 {
			return errMultiMemory()
		}
		d.m.Memories = mems
	case secGlobal:
		globals, err := bufreader.ReadVector(r, decodeGlobal)
		if err != nil {
			return err
		}
		d.m.Globals = globals
	case secExport:
		exports, err := bufreader.ReadVector(r, decodeExport)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(exports))
		for _, e := range exports {
			if _, dup := seen[e.Name]; dup {
				return errDuplicateExportName()
			}
			seen[e.Name] = struct{}{}
		}
		d.m.Exports = exports
	case secStart:
		idx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		d.m.HasStart = true
		d.m.StartFunc = idx
	case secElement:
		elems, err := bufreader.ReadVector(r, decodeElementSegment)
		if err != nil {
			return err
		}
		d.m.Elements = elems
	case secCode:
		code, err := bufreader.ReadVector(r, d.decodeCode)
		if err != nil {
			return err
		}
		d.m.Code = code
	case secData:
		data, err := bufreader.ReadVector(r, decodeDataSegment)
		if err != nil {
			return err
		}
		d.m.Data = data
	case secDataCount:
		n, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		d.m.DataCount = &n
	default:
		return errUnknownSection(id)
	}
	return nil
}

func (d *decoder) finish() error {
	m := d.m
	if len(m.Functions) != len(m.Code) {
		return errFuncCodeMismatch()
	}
	for i := range m.Code {
		m.Code[i].TypeIdx = m.Functions[i]
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return errDataCountMismatch()
	}
	return nil
}

func readU32(r *bufreader.Reader) (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func decodeValType(r *bufreader.Reader) (wasmtype.ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x7f:
		return wasmtype.I32, nil
	case 0x7e:
		return wasmtype.I64, nil
	case 0x7d:
		return wasmtype.F32, nil
	case 0x7c:
		return wasmtype.F64, nil
	case 0x7b:
		return wasmtype.V128, nil
	case 0x70:
		return wasmtype.FuncRef, nil
	case 0x6f:
		return wasmtype.ExternRef, nil
	default:
		return 0, errInvalidValueType(b)
	}
}

func decodeRefType(r *bufreader.Reader) (wasmtype.RefType, error) {
	t, err := decodeValType(r)
	if err != nil {
		return 0, err
	}
	if !t.IsRef() {
		return 0, newDecodeError("MismatchedRefTypes", "malformed reference type: %s", t)
	}
	return t, nil
}

func decodeFuncType(r *bufreader.Reader) (wasmtype.FuncType, error) {
	var ft wasmtype.FuncType
	form, err := r.ReadByte()
	if err != nil {
		return ft, err
	}
	if form != 0x60 {
		return ft, newDecodeError("MalformedFuncTypeForm", "malformed functype signature byte: 0x%02x", form)
	}
	params, err := bufreader.ReadVector(r, decodeValType)
	if err != nil {
		return ft, err
	}
	results, err := bufreader.ReadVector(r, decodeValType)
	if err != nil {
		return ft, err
	}
	ft.Params, ft.Results = params, results
	return ft, nil
}

func decodeLimits(r *bufreader.Reader) (wasmtype.Limits, error) {
	var l wasmtype.Limits
	flag, err := r.ReadByte()
	if err != nil {
		return l, err
	}
	min, err := leb128.ReadUint32(r)
	if err != nil {
		return l, err
	}
	l.Min = min
	switch flag {
	case 0x00:
	case 0x01:
		max, err := leb128.ReadUint32(r)
		if err != nil {
			return l, err
		}
		l.Max, l.HasMax = max, true
	default:
		return l, newDecodeError("MalformedLimitsFlag", "integer too large: malformed limits flag 0x%02x", flag)
	}
	if l.HasMax && l.Min > l.Max {
		return l, errLimitsMinGTMax()
	}
	return l, nil
}

func decodeTableType(r *bufreader.Reader) (wasmtype.TableType, error) {
	var t wasmtype.TableType
	elem, err := decodeRefType(r)
	if err != nil {
		return t, err
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return t, err
	}
	t.ElemType, t.Limits = elem, limits
	return t, nil
}

func decodeMemType(r *bufreader.Reader) (wasmtype.MemType, error) {
	limits, err := decodeLimits(r)
	if err != nil {
		return wasmtype.MemType{}, err
	}
	if !limits.ValidFor(wasmtype.MaxPages) {
		return wasmtype.MemType{}, errMemoryTooLarge()
	}
	return wasmtype.MemType{Limits: limits}, nil
}

func decodeGlobalType(r *bufreader.Reader) (wasmtype.GlobalType, error) {
	var g wasmtype.GlobalType
	vt, err := decodeValType(r)
	if err != nil {
		return g, err
	}
	mutByte, err := r.ReadByte()
	if err != nil {
		return g, err
	}
	if mutByte != 0x00 && mutByte != 0x01 {
		return g, newDecodeError("MalformedMutability", "malformed mutability: 0x%02x", mutByte)
	}
	g.ValType = vt
	if mutByte == 0x01 {
		g.Mutability = wasmtype.Var
	}
	return g, nil
}

func decodeImport(r *bufreader.Reader) (Import, error) {
	var im Import
	mod, err := r.ReadName()
	if err != nil {
		return im, err
	}
	name, err := r.ReadName()
	if err != nil {
		return im, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return im, err
	}
	var desc ImportDesc
	switch kindByte {
	case 0x00:
		desc.Kind = wasmtype.ExternFunc
		desc.TypeIdx, err = leb128.ReadUint32(r)
	case 0x01:
		desc.Kind = wasmtype.ExternTable
		desc.Table, err = decodeTableType(r)
	case 0x02:
		desc.Kind = wasmtype.ExternMemory
		desc.Mem, err = decodeMemType(r)
	case 0x03:
		desc.Kind = wasmtype.ExternGlobal
		desc.Global, err = decodeGlobalType(r)
	default:
		return im, errInvalidImportKind(kindByte)
	}
	if err != nil {
		return im, err
	}
	im.Module, im.Name, im.Desc = mod, name, desc
	return im, nil
}

func decodeExport(r *bufreader.Reader) (Export, error) {
	var e Export
	name, err := r.ReadName()
	if err != nil {
		return e, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return e, err
	}
	var kind wasmtype.ExternKind
	switch kindByte {
	case 0x00:
		kind = wasmtype.ExternFunc
	case 0x01:
		kind = wasmtype.ExternTable
	case 0x02:
		kind = wasmtype.ExternMemory
	case 0x03:
		kind = wasmtype.ExternGlobal
	default:
		return e, errInvalidExportKind(kindByte)
	}
	e.Name, e.Kind, e.Idx = name, kind, idx
	return e, nil
}

func decodeGlobal(r *bufreader.Reader) (Global, error) {
	var g Global
	gt, err := decodeGlobalType(r)
	if err != nil {
		return g, err
	}
	expr, err := decodeConstExpr(r)
	if err != nil {
		return g, err
	}
	g.Type, g.Init = gt, expr
	return g, nil
}

// decodeConstExpr reads a constant expression body up to and including its
// terminating 0x0B (`end`) opcode, returning the span covering the whole
// expression including `end` — package validate re-walks these bytes to
// check they only use constant-expression-legal opcodes.
func decodeConstExpr(r *bufreader.Reader) (CodeSpan, error) {
	start := r.Pos()
	for {
		b, err := r.ReadByte()
		if err != nil {
			return CodeSpan{}, err
		}
		if b == 0x0b {
			return CodeSpan{Start: start, Len: r.Pos() - start}, nil
		}
		if err := skipImmediate(r, b); err != nil {
			return CodeSpan{}, err
		}
	}
}

// skipImmediate consumes the immediate operand (if any) of the instruction
// opcode b, which has already been read. Constant expressions only ever use
// a small fixed subset of the opcode space — MVP consts, global.get,
// ref.null/ref.func, and the extended-const numeric proposal's i32/i64
// add/sub/mul — so this does not need the interpreter's full opcode table.
func skipImmediate(r *bufreader.Reader, b byte) error {
	switch b {
	case 0x41: // i32.const
		_, err := leb128.ReadInt32(r)
		return err
	case 0x42: // i64.const
		_, err := leb128.ReadInt64(r)
		return err
	case 0x43: // f32.const
		_, err := r.ReadF32()
		return err
	case 0x44: // f64.const
		_, err := r.ReadF64()
		return err
	case 0x23: // global.get
		_, err := leb128.ReadUint32(r)
		return err
	case 0xd0: // ref.null
		_, err := decodeRefType(r)
		return err
	case 0xd2: // ref.func
		_, err := leb128.ReadUint32(r)
		return err
	case 0x6a, 0x6b, 0x6c, // i32.add/sub/mul
		0x7c, 0x7d, 0x7e: // i64.add/sub/mul
		return nil
	default:
		return newDecodeError("IllegalOpcodeInConstantExpression", "illegal opcode 0x%02x in constant expression", b)
	}
}

func decodeElementSegment(r *bufreader.Reader) (ElementSegment, error) {
	var e ElementSegment
	flag, err := leb128.ReadUint32(r)
	if err != nil {
		return e, err
	}
	switch flag {
	case 0: // active, table 0, func-index vector
		off, err := decodeConstExpr(r)
		if err != nil {
			return e, err
		}
		idxs, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
		if err != nil {
			return e, err
		}
		e.Mode, e.TableIdx, e.Offset, e.Type = ElementActive, 0, off, wasmtype.FuncRef
		e.Init = ElementInit{FuncIndices: idxs}
	case 1: // passive, func-index vector, elemkind
		kind, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		if kind != 0x00 {
			return e, newDecodeError("MalformedElemKind", "malformed elemkind")
		}
		idxs, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
		if err != nil {
			return e, err
		}
		e.Mode, e.Type = ElementPassive, wasmtype.FuncRef
		e.Init = ElementInit{FuncIndices: idxs}
	case 2: // active, explicit table, func-index vector, elemkind
		tidx, err := leb128.ReadUint32(r)
		if err != nil {
			return e, err
		}
		off, err := decodeConstExpr(r)
		if err != nil {
			return e, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		if kind != 0x00 {
			return e, newDecodeError("MalformedElemKind", "malformed elemkind")
		}
		idxs, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
		if err != nil {
			return e, err
		}
		e.Mode, e.TableIdx, e.Offset, e.Type = ElementActive, tidx, off, wasmtype.FuncRef
		e.Init = ElementInit{FuncIndices: idxs}
	case 3: // declarative, func-index vector, elemkind
		kind, err := r.ReadByte()
		if err != nil {
			return e, err
		}
		if kind != 0x00 {
			return e, newDecodeError("MalformedElemKind", "malformed elemkind")
		}
		idxs, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (uint32, error) { return leb128.ReadUint32(r) })
		if err != nil {
			return e, err
		}
		e.Mode, e.Type = ElementDeclarative, wasmtype.FuncRef
		e.Init = ElementInit{FuncIndices: idxs}
	case 4: // active, table 0, expr vector
		off, err := decodeConstExpr(r)
		if err != nil {
			return e, err
		}
		exprs, err := bufreader.ReadVector(r, decodeConstExpr)
		if err != nil {
			return e, err
		}
		e.Mode, e.TableIdx, e.Offset, e.Type = ElementActive, 0, off, wasmtype.FuncRef
		e.Init = ElementInit{Exprs: exprs}
	case 5: // passive, reftype, expr vector
		rt, err := decodeRefType(r)
		if err != nil {
			return e, err
		}
		exprs, err := bufreader.ReadVector(r, decodeConstExpr)
		if err != nil {
			return e, err
		}
		e.Mode, e.Type = ElementPassive, rt
		e.Init = ElementInit{Exprs: exprs}
	case 6: // active, explicit table, reftype, expr vector
		tidx, err := leb128.ReadUint32(r)
		if err != nil {
			return e, err
		}
		off, err := decodeConstExpr(r)
		if err != nil {
			return e, err
		}
		rt, err := decodeRefType(r)
		if err != nil {
			return e, err
		}
		exprs, err := bufreader.ReadVector(r, decodeConstExpr)
		if err != nil {
			return e, err
		}
		e.Mode, e.TableIdx, e.Offset, e.Type = ElementActive, tidx, off, rt
		e.Init = ElementInit{Exprs: exprs}
	case 7: // declarative, reftype, expr vector
		rt, err := decodeRefType(r)
		if err != nil {
			return e, err
		}
		exprs, err := bufreader.ReadVector(r, decodeConstExpr)
		if err != nil {
			return e, err
		}
		e.Mode, e.Type = ElementDeclarative, rt
		e.Init = ElementInit{Exprs: exprs}
	default:
		return e, newDecodeError("MalformedElemFlag", "malformed element segment flag %d", flag)
	}
	return e, nil
}

func decodeDataSegment(r *bufreader.Reader) (DataSegment, error) {
	var d DataSegment
	flag, err := leb128.ReadUint32(r)
	if err != nil {
		return d, err
	}
	switch flag {
	case 0:
		off, err := decodeConstExpr(r)
		if err != nil {
			return d, err
		}
		bytes, err := readByteVector(r)
		if err != nil {
			return d, err
		}
		d.Mode, d.MemIdx, d.Offset, d.Bytes = DataActive, 0, off, bytes
	case 1:
		bytes, err := readByteVector(r)
		if err != nil {
			return d, err
		}
		d.Mode, d.Bytes = DataPassive, bytes
	case 2:
		midx, err := leb128.ReadUint32(r)
		if err != nil {
			return d, err
		}
		off, err := decodeConstExpr(r)
		if err != nil {
			return d, err
		}
		bytes, err := readByteVector(r)
		if err != nil {
			return d, err
		}
		d.Mode, d.MemIdx, d.Offset, d.Bytes = DataActive, midx, off, bytes
	default:
		return d, newDecodeError("MalformedDataFlag", "malformed data segment flag %d", flag)
	}
	return d, nil
}

func readByteVector(r *bufreader.Reader) ([]byte, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}

// decodeCode reads one code section entry: a byte-length-prefixed body
// holding the local declarations followed by the instruction stream. The
// vector r passed in here is already a ReadVector element callback, so it
// reads the size prefix itself (code entries are the one vector whose
// elements are themselves length-prefixed, per spec.md §4.C).
func (d *decoder) decodeCode(r *bufreader.Reader) (FunctionBody, error) {
	var fb FunctionBody
	size, err := leb128.ReadUint32(r)
	if err != nil {
		return fb, err
	}
	body, err := r.Sub(size)
	if err != nil {
		return fb, err
	}
	localGroups, err := bufreader.ReadVector(body, decodeLocalGroup)
	if err != nil {
		return fb, err
	}
	var locals []wasmtype.ValType
	for _, g := range localGroups {
		for i := uint32(0); i < g.count; i++ {
			locals = append(locals, g.typ)
		}
	}
	// body.Pos() is already absolute into Module.Bytecode (Reader.Sub
	// threads the base offset through), so the instruction stream's
	// CodeSpan can be recorded directly without any manual arithmetic.
	codeStart := body.Pos()
	codeLen := body.Len()
	if codeLen == 0 {
		return fb, newDecodeError("MalformedFunctionBody", "function body must end with `end`")
	}
	// The final byte of a function body must be the terminal `end`
	// opcode; the instruction stream recorded in Code excludes it, since
	// the interpreter's sidetable-driven dispatch treats it as an
	// implicit control-flow target rather than a decoded instruction.
	raw := body.Bytes()
	if raw[len(raw)-1] != 0x0b {
		return fb, newDecodeError("MalformedFunctionBody", "function body must end with `end`")
	}
	fb.DeclaredLocals = locals
	fb.Code = CodeSpan{Start: codeStart, Len: codeLen - 1}
	return fb, nil
}

type localGroup struct {
	count uint32
	typ   wasmtype.ValType
}

func decodeLocalGroup(r *bufreader.Reader) (localGroup, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return localGroup{}, err
	}
	t, err := decodeValType(r)
	if err != nil {
		return localGroup{}, err
	}
	return localGroup{count: n, typ: t}, nil
}
