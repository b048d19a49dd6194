package interp

import (
	"encoding/binary"
	"math"

	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// readMemarg decodes a memarg's align hint (discarded; alignment is
// advisory, never a trap condition per the Wasm spec) followed by its
// offset.
func readMemarg(f *frame) (offset uint32, err error) {
	if _, err = readU32Imm(f); err != nil {
		return 0, err
	}
	return readU32Imm(f)
}

// execMemOp dispatches the literal load/store opcode byte rather than
// consulting validate's memOps table, since that table only records value
// type and width, not the sign-extension/truncation behavior each distinct
// opcode needs at runtime.
func (m *machine) execMemOp(f *frame, op byte) error {
	offset, err := readMemarg(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	mi, _ := m.store.Mem(mod.MemAddrs[0])

	ea := func() (uint64, error) {
		i := m.pop().U32()
		addr := uint64(i) + uint64(offset)
		if addr < uint64(i) {
			return 0, errMemoryAccessOOB
		}
		return addr, nil
	}

	switch op {
	case 0x28: // i32.load
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 4)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I32Val(int32(binary.LittleEndian.Uint32(b))))
	case 0x29: // i64.load
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 8)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(binary.LittleEndian.Uint64(b))))
	case 0x2a: // f32.load
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 4)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.FromBits(wasmtype.F32, uint64(binary.LittleEndian.Uint32(b))))
	case 0x2b: // f64.load
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 8)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.FromBits(wasmtype.F64, binary.LittleEndian.Uint64(b)))
	case 0x2c: // i32.load8_s
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 1)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I32Val(int32(int8(b[0]))))
	case 0x2d: // i32.load8_u
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 1)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I32Val(int32(b[0])))
	case 0x2e: // i32.load16_s
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 2)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I32Val(int32(int16(binary.LittleEndian.Uint16(b)))))
	case 0x2f: // i32.load16_u
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 2)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I32Val(int32(binary.LittleEndian.Uint16(b))))
	case 0x30: // i64.load8_s
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 1)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(int8(b[0]))))
	case 0x31: // i64.load8_u
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 1)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(b[0])))
	case 0x32: // i64.load16_s
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 2)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(int16(binary.LittleEndian.Uint16(b)))))
	case 0x33: // i64.load16_u
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 2)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(binary.LittleEndian.Uint16(b))))
	case 0x34: // i64.load32_s
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 4)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(int32(binary.LittleEndian.Uint32(b)))))
	case 0x35: // i64.load32_u
		addr, err := ea()
		if err != nil {
			return err
		}
		b, err := mi.Mem.Load(addr, 4)
		if err != nil {
			return errMemoryAccessOOB
		}
		m.push(wasmtype.I64Val(int64(binary.LittleEndian.Uint32(b))))
	case 0x36: // i32.store
		v := m.pop().U32()
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x37: // i64.store
		v := m.pop().U64()
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x38: // f32.store
		v := uint32(m.pop().Bits())
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x39: // f64.store
		v := m.pop().Bits()
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x3a: // i32.store8
		v := byte(m.pop().U32())
		addr, err := ea()
		if err != nil {
			return err
		}
		if mi.Mem.Store(addr, []byte{v}) != nil {
			return errMemoryAccessOOB
		}
	case 0x3b: // i32.store16
		v := uint16(m.pop().U32())
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x3c: // i64.store8
		v := byte(m.pop().U64())
		addr, err := ea()
		if err != nil {
			return err
		}
		if mi.Mem.Store(addr, []byte{v}) != nil {
			return errMemoryAccessOOB
		}
	case 0x3d: // i64.store16
		v := uint16(m.pop().U64())
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	case 0x3e: // i64.store32
		v := uint32(m.pop().U64())
		addr, err := ea()
		if err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		if mi.Mem.Store(addr, buf[:]) != nil {
			return errMemoryAccessOOB
		}
	default:
		return errf("InvalidInstr", "unhandled memory opcode")
	}
	return nil
}

// execFC dispatches the FC-prefixed sub-opcode space: saturating
// conversions (0-7) and bulk memory/table operations (8-17).
func (m *machine) execFC(f *frame, subop uint32) error {
	switch subop {
	case validate.FcI32TruncSatF32S:
		m.push(wasmtype.I32Val(satTruncToI32(float64(m.popF32()), true)))
	case validate.FcI32TruncSatF32U:
		m.push(wasmtype.I32Val(satTruncToI32(float64(m.popF32()), false)))
	case validate.FcI32TruncSatF64S:
		m.push(wasmtype.I32Val(satTruncToI32(m.popF64(), true)))
	case validate.FcI32TruncSatF64U:
		m.push(wasmtype.I32Val(satTruncToI32(m.popF64(), false)))
	case validate.FcI64TruncSatF32S:
		m.push(wasmtype.I64Val(satTruncToI64(float64(m.popF32()), true)))
	case validate.FcI64TruncSatF32U:
		m.push(wasmtype.I64Val(satTruncToI64(float64(m.popF32()), false)))
	case validate.FcI64TruncSatF64S:
		m.push(wasmtype.I64Val(satTruncToI64(m.popF64(), true)))
	case validate.FcI64TruncSatF64U:
		m.push(wasmtype.I64Val(satTruncToI64(m.popF64(), false)))

	case validate.FcMemoryInit:
		return m.execMemoryInit(f)
	case validate.FcDataDrop:
		return m.execDataDrop(f)
	case validate.FcMemoryCopy:
		return m.execMemoryCopy(f)
	case validate.FcMemoryFill:
		return m.execMemoryFill(f)
	case validate.FcTableInit:
		return m.execTableInit(f)
	case validate.FcElemDrop:
		return m.execElemDrop(f)
	case validate.FcTableCopy:
		return m.execTableCopy(f)
	case validate.FcTableGrow:
		return m.execTableGrow(f)
	case validate.FcTableSize:
		return m.execTableSize(f)
	case validate.FcTableFill:
		return m.execTableFill(f)
	default:
		return errf("InvalidInstr", "unhandled FC sub-opcode")
	}
	return nil
}

// memory.init dataidx:u32, followed by a single reserved memidx byte
// (always 0; multiple memories aren't supported), pops (dst, src, n) in
// push order.
func (m *machine) execMemoryInit(f *frame) error {
	dataIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	if _, err := readByteImm(f); err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, src, n := vals[0].U32(), vals[1].U32(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	mi, _ := m.store.Mem(mod.MemAddrs[0])
	di, _ := m.store.Data(mod.DataAddrs[dataIdx])
	if di.Dropped() && n != 0 {
		return errMemoryAccessOOB
	}
	if err := mi.Mem.Init(uint64(dst), di.Bytes, uint64(src), uint64(n)); err != nil {
		return errMemoryAccessOOB
	}
	return nil
}

func (m *machine) execDataDrop(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	di, _ := m.store.Data(mod.DataAddrs[idx])
	di.Bytes = nil
	return nil
}

// memory.copy takes two reserved memidx bytes (dst, src; both always 0).
func (m *machine) execMemoryCopy(f *frame) error {
	if _, err := readByteImm(f); err != nil {
		return err
	}
	if _, err := readByteImm(f); err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, src, n := vals[0].U32(), vals[1].U32(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	mem, _ := m.store.Mem(mod.MemAddrs[0])
	if err := mem.Mem.Copy(uint64(dst), mem.Mem, uint64(src), uint64(n)); err != nil {
		return errMemoryAccessOOB
	}
	return nil
}

// memory.fill takes a single reserved memidx byte (always 0).
func (m *machine) execMemoryFill(f *frame) error {
	if _, err := readByteImm(f); err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, val, n := vals[0].U32(), vals[1].U32(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	mi, _ := m.store.Mem(mod.MemAddrs[0])
	if err := mi.Mem.Fill(uint64(dst), byte(val), uint64(n)); err != nil {
		return errMemoryAccessOOB
	}
	return nil
}

func (m *machine) execTableInit(f *frame) error {
	elemIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	tableIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, src, n := vals[0].U32(), vals[1].U32(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	tbl, _ := m.store.Table(mod.TableAddrs[tableIdx])
	ei, _ := m.store.Elem(mod.ElemAddrs[elemIdx])
	if ei.Dropped() && n != 0 {
		return errTableAccessOOB
	}
	if uint64(src)+uint64(n) > uint64(len(ei.Refs)) || uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
		return errTableAccessOOB
	}
	copy(tbl.Elems[dst:uint64(dst)+uint64(n)], ei.Refs[src:uint64(src)+uint64(n)])
	return nil
}

func (m *machine) execElemDrop(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	ei, _ := m.store.Elem(mod.ElemAddrs[idx])
	ei.Refs = nil
	return nil
}

func (m *machine) execTableCopy(f *frame) error {
	dstIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	srcIdx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, src, n := vals[0].U32(), vals[1].U32(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	dstTbl, _ := m.store.Table(mod.TableAddrs[dstIdx])
	srcTbl, _ := m.store.Table(mod.TableAddrs[srcIdx])
	if uint64(src)+uint64(n) > uint64(len(srcTbl.Elems)) || uint64(dst)+uint64(n) > uint64(len(dstTbl.Elems)) {
		return errTableAccessOOB
	}
	moved := append([]wasmtype.Ref{}, srcTbl.Elems[src:uint64(src)+uint64(n)]...)
	copy(dstTbl.Elems[dst:uint64(dst)+uint64(n)], moved)
	return nil
}

// tableGrow appends n copies of init to t's element vector, capped by its
// declared max (if any) and the table's practical 2^32-1 ceiling. It
// returns the previous size, or -1 on failure, leaving the table
// completely unmutated on failure: the grow either fully succeeds or has
// no observable effect, per spec.md §8e's worked scenario.
func tableGrow(t *wasmstore.TableInst, n uint32, init wasmtype.Ref) int64 {
	prev := uint32(len(t.Elems))
	next := uint64(prev) + uint64(n)
	if next > math.MaxUint32 {
		return -1
	}
	if t.Type.Limits.HasMax && next > uint64(t.Type.Limits.Max) {
		return -1
	}
	grown := make([]wasmtype.Ref, next)
	copy(grown, t.Elems)
	for i := prev; i < uint32(next); i++ {
		grown[i] = init
	}
	t.Elems = grown
	return int64(prev)
}

func (m *machine) execTableGrow(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	n := m.pop().U32()
	init := m.pop().Ref()
	mod, _ := m.store.Module(f.moduleAddr)
	tbl, _ := m.store.Table(mod.TableAddrs[idx])
	m.push(wasmtype.I32Val(int32(tableGrow(tbl, n, init))))
	return nil
}

func (m *machine) execTableSize(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	mod, _ := m.store.Module(f.moduleAddr)
	tbl, _ := m.store.Table(mod.TableAddrs[idx])
	m.push(wasmtype.I32Val(int32(len(tbl.Elems))))
	return nil
}

func (m *machine) execTableFill(f *frame) error {
	idx, err := readU32Imm(f)
	if err != nil {
		return err
	}
	vals := m.popVals(3)
	dst, val, n := vals[0].U32(), vals[1].Ref(), vals[2].U32()

	mod, _ := m.store.Module(f.moduleAddr)
	tbl, _ := m.store.Table(mod.TableAddrs[idx])
	if uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
		return errTableAccessOOB
	}
	for i := dst; i < dst+n; i++ {
		tbl.Elems[i] = val
	}
	return nil
}
