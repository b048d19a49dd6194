package validate

import "github.com/wasmstack/wasmstack/wasmtype"

// Opcode bytes used by the validator and (via the same constants) by
// package interp's dispatch loop. Only the MVP set plus the post-MVP
// extensions spec.md §1 names (reference types, bulk memory, non-trapping
// float-to-int) are enumerated; SIMD opcodes (0xFD prefix) are out of scope
// per spec.md's Non-goals ("no SIMD execution") and are rejected as
// InvalidInstr rather than given a full type table.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0b
	OpBr          byte = 0x0c
	OpBrIf        byte = 0x0d
	OpBrTable     byte = 0x0e
	OpReturn      byte = 0x0f
	OpCall        byte = 0x10
	OpCallIndir   byte = 0x11

	OpDrop     byte = 0x1a
	OpSelect   byte = 0x1b
	OpSelectT  byte = 0x1c
	OpLocalGet byte = 0x20
	OpLocalSet byte = 0x21
	OpLocalTee byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
	OpTableGet byte = 0x25
	OpTableSet byte = 0x26

	OpI32Load byte = 0x28
	// ... all load/store variants 0x28-0x3e; see memOps below.
	OpMemorySize byte = 0x3f
	OpMemoryGrow byte = 0x40

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF32Const byte = 0x43
	OpF64Const byte = 0x44

	OpRefNull   byte = 0xd0
	OpRefIsNull byte = 0xd1
	OpRefFunc   byte = 0xd2

	OpPrefixFC byte = 0xfc
)

// FC-prefixed sub-opcodes (bulk memory + non-trapping float-to-int), read
// as a LEB128 u32 immediately after 0xFC.
const (
	FcI32TruncSatF32S uint32 = 0
	FcI32TruncSatF32U uint32 = 1
	FcI32TruncSatF64S uint32 = 2
	FcI32TruncSatF64U uint32 = 3
	FcI64TruncSatF32S uint32 = 4
	FcI64TruncSatF32U uint32 = 5
	FcI64TruncSatF64S uint32 = 6
	FcI64TruncSatF64U uint32 = 7
	FcMemoryInit      uint32 = 8
	FcDataDrop        uint32 = 9
	FcMemoryCopy      uint32 = 10
	FcMemoryFill      uint32 = 11
	FcTableInit       uint32 = 12
	FcElemDrop        uint32 = 13
	FcTableCopy       uint32 = 14
	FcTableGrow       uint32 = 15
	FcTableSize       uint32 = 16
	FcTableFill       uint32 = 17
)

// memOp describes a load or store opcode's value type and access width in
// bytes, keyed by opcode byte. Populated for the full 0x28-0x3e range.
type memOp struct {
	Valtype wasmtype.ValType
	Width   int // natural access width in bytes (for the alignment check)
	IsStore bool
}

var memOps = map[byte]memOp{
	0x28: {wasmtype.I32, 4, false}, // i32.load
	0x29: {wasmtype.I64, 8, false}, // i64.load
	0x2a: {wasmtype.F32, 4, false}, // f32.load
	0x2b: {wasmtype.F64, 8, false}, // f64.load
	0x2c: {wasmtype.I32, 1, false}, // i32.load8_s
	0x2d: {wasmtype.I32, 1, false}, // i32.load8_u
	0x2e: {wasmtype.I32, 2, false}, // i32.load16_s
	0x2f: {wasmtype.I32, 2, false}, // i32.load16_u
	0x30: {wasmtype.I64, 1, false}, // i64.load8_s
	0x31: {wasmtype.I64, 1, false}, // i64.load8_u
	0x32: {wasmtype.I64, 2, false}, // i64.load16_s
	0x33: {wasmtype.I64, 2, false}, // i64.load16_u
	0x34: {wasmtype.I64, 4, false}, // i64.load32_s
	0x35: {wasmtype.I64, 4, false}, // i64.load32_u
	0x36: {wasmtype.I32, 4, true},  // i32.store
	0x37: {wasmtype.I64, 8, true},  // i64.store
	0x38: {wasmtype.F32, 4, true},  // f32.store
	0x39: {wasmtype.F64, 8, true},  // f64.store
	0x3a: {wasmtype.I32, 1, true},  // i32.store8
	0x3b: {wasmtype.I32, 2, true},  // i32.store16
	0x3c: {wasmtype.I64, 1, true},  // i64.store8
	0x3d: {wasmtype.I64, 2, true},  // i64.store16
	0x3e: {wasmtype.I64, 4, true},  // i64.store32
}

// numOp is one non-control, non-memory instruction's monomorphic stack
// effect: pop len(Pops) values of the given types (checked top-to-bottom
// against Pops in reverse) and push Push.
type numOp struct {
	Pops []wasmtype.ValType
	Push []wasmtype.ValType
}

func unop(t wasmtype.ValType) numOp       { return numOp{Pops: []wasmtype.ValType{t}, Push: []wasmtype.ValType{t}} }
func binop(t wasmtype.ValType) numOp      { return numOp{Pops: []wasmtype.ValType{t, t}, Push: []wasmtype.ValType{t}} }
func testop(t wasmtype.ValType) numOp     { return numOp{Pops: []wasmtype.ValType{t}, Push: []wasmtype.ValType{wasmtype.I32}} }
func relop(t wasmtype.ValType) numOp      { return numOp{Pops: []wasmtype.ValType{t, t}, Push: []wasmtype.ValType{wasmtype.I32}} }
func cvtop(from, to wasmtype.ValType) numOp {
	return numOp{Pops: []wasmtype.ValType{from}, Push: []wasmtype.ValType{to}}
}

var i32, i64, f32, f64 = wasmtype.I32, wasmtype.I64, wasmtype.F32, wasmtype.F64

// numOps is the monomorphic numeric opcode table: comparisons, arithmetic,
// bitwise/shift/rotate, and conversions, covering the full MVP single-byte
// numeric instruction set (0x45-0xbf) plus the sign-extension operators
// (0xc0-0xc4). ref.is_null is not in this table; it is typed separately
// since its operand type varies.
var numOps = map[byte]numOp{
	0x45: testop(i32), // i32.eqz
	0x46: relop(i32), 0x47: relop(i32), 0x48: relop(i32), 0x49: relop(i32),
	0x4a: relop(i32), 0x4b: relop(i32), 0x4c: relop(i32), 0x4d: relop(i32),
	0x4e: relop(i32), 0x4f: relop(i32), // i32 eq..ge_u

	0x50: testop(i64), // i64.eqz
	0x51: relop(i64), 0x52: relop(i64), 0x53: relop(i64), 0x54: relop(i64),
	0x55: relop(i64), 0x56: relop(i64), 0x57: relop(i64), 0x58: relop(i64),
	0x59: relop(i64), 0x5a: relop(i64),

	0x5b: relop(f32), 0x5c: relop(f32), 0x5d: relop(f32), 0x5e: relop(f32),
	0x5f: relop(f32), 0x60: relop(f32),

	0x61: relop(f64), 0x62: relop(f64), 0x63: relop(f64), 0x64: relop(f64),
	0x65: relop(f64), 0x66: relop(f64),

	0x67: unop(i32), 0x68: unop(i32), 0x69: unop(i32), // clz/ctz/popcnt
	0x6a: binop(i32), 0x6b: binop(i32), 0x6c: binop(i32), // add/sub/mul
	0x6d: binop(i32), 0x6e: binop(i32), 0x6f: binop(i32), 0x70: binop(i32), // div_s/div_u/rem_s/rem_u
	0x71: binop(i32), 0x72: binop(i32), 0x73: binop(i32), // and/or/xor
	0x74: binop(i32), 0x75: binop(i32), 0x76: binop(i32), // shl/shr_s/shr_u
	0x77: binop(i32), 0x78: binop(i32), // rotl/rotr

	0x79: unop(i64), 0x7a: unop(i64), 0x7b: unop(i64),
	0x7c: binop(i64), 0x7d: binop(i64), 0x7e: binop(i64),
	0x7f: binop(i64), 0x80: binop(i64), 0x81: binop(i64), 0x82: binop(i64),
	0x83: binop(i64), 0x84: binop(i64), 0x85: binop(i64),
	0x86: binop(i64), 0x87: binop(i64), 0x88: binop(i64),
	0x89: binop(i64), 0x8a: binop(i64),

	0x8b: unop(f32), 0x8c: unop(f32), 0x8d: unop(f32), 0x8e: unop(f32), // abs/neg/ceil/floor
	0x8f: unop(f32), 0x90: unop(f32), // trunc/nearest
	0x91: unop(f32), // sqrt
	0x92: binop(f32), 0x93: binop(f32), 0x94: binop(f32), // add/sub/mul
	0x95: binop(f32), 0x96: binop(f32), 0x97: binop(f32), 0x98: binop(f32), // div/min/max/copysign

	0x99: unop(f64), 0x9a: unop(f64), 0x9b: unop(f64), 0x9c: unop(f64),
	0x9d: unop(f64), 0x9e: unop(f64),
	0x9f: unop(f64),
	0xa0: binop(f64), 0xa1: binop(f64), 0xa2: binop(f64),
	0xa3: binop(f64), 0xa4: binop(f64), 0xa5: binop(f64), 0xa6: binop(f64),

	0xa7: cvtop(i64, i32), // i32.wrap_i64
	0xa8: cvtop(f32, i32), 0xa9: cvtop(f32, i32), // i32.trunc_f32_s/u
	0xaa: cvtop(f64, i32), 0xab: cvtop(f64, i32), // i32.trunc_f64_s/u
	0xac: cvtop(i32, i64), 0xad: cvtop(i32, i64), // i64.extend_i32_s/u
	0xae: cvtop(f32, i64), 0xaf: cvtop(f32, i64),
	0xb0: cvtop(f64, i64), 0xb1: cvtop(f64, i64),
	0xb2: cvtop(i32, f32), 0xb3: cvtop(i32, f32), // f32.convert_i32_s/u
	0xb4: cvtop(i64, f32), 0xb5: cvtop(i64, f32),
	0xb6: cvtop(f64, f32), // f32.demote_f64
	0xb7: cvtop(i32, f64), 0xb8: cvtop(i32, f64),
	0xb9: cvtop(i64, f64), 0xba: cvtop(i64, f64),
	0xbb: cvtop(f32, f64), // f64.promote_f32
	0xbc: cvtop(f32, i32), // i32.reinterpret_f32
	0xbd: cvtop(f64, i64), // i64.reinterpret_f64
	0xbe: cvtop(i32, f32), // f32.reinterpret_i32
	0xbf: cvtop(i64, f64), // f64.reinterpret_i64

	0xc0: unop(i32), 0xc1: unop(i32), // i32.extend8_s/extend16_s
	0xc2: unop(i64), 0xc3: unop(i64), 0xc4: unop(i64), // i64.extend8_s/16_s/32_s
}

// satTruncOps maps an FC sub-opcode to its saturating-conversion signature.
var satTruncOps = map[uint32]numOp{
	FcI32TruncSatF32S: cvtop(f32, i32), FcI32TruncSatF32U: cvtop(f32, i32),
	FcI32TruncSatF64S: cvtop(f64, i32), FcI32TruncSatF64U: cvtop(f64, i32),
	FcI64TruncSatF32S: cvtop(f32, i64), FcI64TruncSatF32U: cvtop(f32, i64),
	FcI64TruncSatF64S: cvtop(f64, i64), FcI64TruncSatF64U: cvtop(f64, i64),
}
