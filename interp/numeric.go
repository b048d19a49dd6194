package interp

import (
	"math"
	"math/bits"

	"github.com/chewxy/math32"

	"github.com/wasmstack/wasmstack/wasmtype"
)

// canonicalNaN32/64 are the bit patterns this package produces for every
// float operation whose IEEE-754 result is NaN, rather than propagating
// whatever payload bits math/math32 happen to produce, per spec.md §4.I's
// "every NaN result observable through this interpreter uses the canonical
// payload" rule.
const (
	canonicalNaN32 uint32 = 0x7fc00000
	canonicalNaN64 uint64 = 0x7ff8000000000000
)

func canon32(v float32) float32 {
	if math32.IsNaN(v) {
		return math.Float32frombits(canonicalNaN32)
	}
	return v
}

func canon64(v float64) float64 {
	if math.IsNaN(v) {
		return math.Float64frombits(canonicalNaN64)
	}
	return v
}

// f32Min/f32Max/f64Min/f64Max implement WebAssembly's fmin/fmax: NaN is
// contagious, and for the two zeros min(+0,-0) = -0 while max(+0,-0) = +0.
// Bitwise: min's sign bit is the OR of the operand signs, max's is the AND
// (spec.md §4.I's prose states the opposite mapping, but that contradicts
// its own §8c worked example and real IEEE-754 fmin/fmax; this implements
// the worked example, see DESIGN.md).
func f32Min(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return math.Float32frombits(canonicalNaN32)
	}
	if a == 0 && b == 0 {
		signA := math.Float32bits(a) >> 31
		signB := math.Float32bits(b) >> 31
		return math.Float32frombits(uint32(math.Float32bits(0)) | (signA|signB)<<31)
	}
	if a < b {
		return a
	}
	return b
}

func f32Max(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return math.Float32frombits(canonicalNaN32)
	}
	if a == 0 && b == 0 {
		signA := math.Float32bits(a) >> 31
		signB := math.Float32bits(b) >> 31
		return math.Float32frombits((signA & signB) << 31)
	}
	if a > b {
		return a
	}
	return b
}

func f64Min(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.Float64frombits(canonicalNaN64)
	}
	if a == 0 && b == 0 {
		signA := math.Float64bits(a) >> 63
		signB := math.Float64bits(b) >> 63
		return math.Float64frombits((signA | signB) << 63)
	}
	if a < b {
		return a
	}
	return b
}

func f64Max(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.Float64frombits(canonicalNaN64)
	}
	if a == 0 && b == 0 {
		signA := math.Float64bits(a) >> 63
		signB := math.Float64bits(b) >> 63
		return math.Float64frombits((signA & signB) << 63)
	}
	if a > b {
		return a
	}
	return b
}

func (m *machine) execNumOp(op byte) error {
	switch op {
	case 0x45: // i32.eqz
		m.push(boolVal(m.pop().I32() == 0))
	case 0x46:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a == b))
	case 0x47:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a != b))
	case 0x48:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a < b))
	case 0x49:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(boolVal(a < b))
	case 0x4a:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a > b))
	case 0x4b:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(boolVal(a > b))
	case 0x4c:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a <= b))
	case 0x4d:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(boolVal(a <= b))
	case 0x4e:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(boolVal(a >= b))
	case 0x4f:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(boolVal(a >= b))

	case 0x50: // i64.eqz
		m.push(boolVal(m.pop().I64() == 0))
	case 0x51:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a == b))
	case 0x52:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a != b))
	case 0x53:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a < b))
	case 0x54:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(boolVal(a < b))
	case 0x55:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a > b))
	case 0x56:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(boolVal(a > b))
	case 0x57:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a <= b))
	case 0x58:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(boolVal(a <= b))
	case 0x59:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(boolVal(a >= b))
	case 0x5a:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(boolVal(a >= b))

	case 0x5b:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a == b))
	case 0x5c:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a != b))
	case 0x5d:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a < b))
	case 0x5e:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a > b))
	case 0x5f:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a <= b))
	case 0x60:
		b, a := m.popF32(), m.popF32()
		m.push(boolVal(a >= b))

	case 0x61:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a == b))
	case 0x62:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a != b))
	case 0x63:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a < b))
	case 0x64:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a > b))
	case 0x65:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a <= b))
	case 0x66:
		b, a := m.popF64(), m.popF64()
		m.push(boolVal(a >= b))

	case 0x67:
		m.push(wasmtype.I32Val(int32(bits.LeadingZeros32(m.pop().U32()))))
	case 0x68:
		m.push(wasmtype.I32Val(int32(bits.TrailingZeros32(m.pop().U32()))))
	case 0x69:
		m.push(wasmtype.I32Val(int32(bits.OnesCount32(m.pop().U32()))))
	case 0x6a:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(wasmtype.I32Val(a + b))
	case 0x6b:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(wasmtype.I32Val(a - b))
	case 0x6c:
		b, a := m.pop().I32(), m.pop().I32()
		m.push(wasmtype.I32Val(a * b))
	case 0x6d:
		b, a := m.pop().I32(), m.pop().I32()
		if b == 0 {
			return errDivideBy0
		}
		if a == math.MinInt32 && b == -1 {
			return errUnrepresentableResult
		}
		m.push(wasmtype.I32Val(a / b))
	case 0x6e:
		b, a := m.pop().U32(), m.pop().U32()
		if b == 0 {
			return errDivideBy0
		}
		m.push(wasmtype.I32Val(int32(a / b)))
	case 0x6f:
		b, a := m.pop().I32(), m.pop().I32()
		if b == 0 {
			return errDivideBy0
		}
		if a == math.MinInt32 && b == -1 {
			m.push(wasmtype.I32Val(0))
		} else {
			m.push(wasmtype.I32Val(a % b))
		}
	case 0x70:
		b, a := m.pop().U32(), m.pop().U32()
		if b == 0 {
			return errDivideBy0
		}
		m.push(wasmtype.I32Val(int32(a % b)))
	case 0x71:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(a & b)))
	case 0x72:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(a | b)))
	case 0x73:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(a ^ b)))
	case 0x74:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(a << (b & 31))))
	case 0x75:
		b, a := m.pop().U32(), m.pop().I32()
		m.push(wasmtype.I32Val(a >> (b & 31)))
	case 0x76:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(a >> (b & 31))))
	case 0x77:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(bits.RotateLeft32(a, int(b&31)))))
	case 0x78:
		b, a := m.pop().U32(), m.pop().U32()
		m.push(wasmtype.I32Val(int32(bits.RotateLeft32(a, -int(b&31)))))

	case 0x79:
		m.push(wasmtype.I64Val(int64(bits.LeadingZeros64(m.pop().U64()))))
	case 0x7a:
		m.push(wasmtype.I64Val(int64(bits.TrailingZeros64(m.pop().U64()))))
	case 0x7b:
		m.push(wasmtype.I64Val(int64(bits.OnesCount64(m.pop().U64()))))
	case 0x7c:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(wasmtype.I64Val(a + b))
	case 0x7d:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(wasmtype.I64Val(a - b))
	case 0x7e:
		b, a := m.pop().I64(), m.pop().I64()
		m.push(wasmtype.I64Val(a * b))
	case 0x7f:
		b, a := m.pop().I64(), m.pop().I64()
		if b == 0 {
			return errDivideBy0
		}
		if a == math.MinInt64 && b == -1 {
			return errUnrepresentableResult
		}
		m.push(wasmtype.I64Val(a / b))
	case 0x80:
		b, a := m.pop().U64(), m.pop().U64()
		if b == 0 {
			return errDivideBy0
		}
		m.push(wasmtype.I64Val(int64(a / b)))
	case 0x81:
		b, a := m.pop().I64(), m.pop().I64()
		if b == 0 {
			return errDivideBy0
		}
		if a == math.MinInt64 && b == -1 {
			m.push(wasmtype.I64Val(0))
		} else {
			m.push(wasmtype.I64Val(a % b))
		}
	case 0x82:
		b, a := m.pop().U64(), m.pop().U64()
		if b == 0 {
			return errDivideBy0
		}
		m.push(wasmtype.I64Val(int64(a % b)))
	case 0x83:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(a & b)))
	case 0x84:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(a | b)))
	case 0x85:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(a ^ b)))
	case 0x86:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(a << (b & 63))))
	case 0x87:
		b, a := m.pop().U64(), m.pop().I64()
		m.push(wasmtype.I64Val(a >> (b & 63)))
	case 0x88:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(a >> (b & 63))))
	case 0x89:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(bits.RotateLeft64(a, int(b&63)))))
	case 0x8a:
		b, a := m.pop().U64(), m.pop().U64()
		m.push(wasmtype.I64Val(int64(bits.RotateLeft64(a, -int(b&63)))))

	case 0x8b:
		m.push(wasmtype.F32Val(math32.Abs(m.popF32())))
	case 0x8c:
		m.push(wasmtype.F32Val(-m.popF32()))
	case 0x8d:
		m.push(wasmtype.F32Val(canon32(math32.Ceil(m.popF32()))))
	case 0x8e:
		m.push(wasmtype.F32Val(canon32(math32.Floor(m.popF32()))))
	case 0x8f:
		m.push(wasmtype.F32Val(canon32(math32.Trunc(m.popF32()))))
	case 0x90:
		m.push(wasmtype.F32Val(canon32(roundNearestEven32(m.popF32()))))
	case 0x91:
		m.push(wasmtype.F32Val(canon32(math32.Sqrt(m.popF32()))))
	case 0x92:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(canon32(a + b)))
	case 0x93:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(canon32(a - b)))
	case 0x94:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(canon32(a * b)))
	case 0x95:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(canon32(a / b)))
	case 0x96:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(f32Min(a, b)))
	case 0x97:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(f32Max(a, b)))
	case 0x98:
		b, a := m.popF32(), m.popF32()
		m.push(wasmtype.F32Val(math32.Copysign(a, b)))

	case 0x99:
		m.push(wasmtype.F64Val(math.Abs(m.popF64())))
	case 0x9a:
		m.push(wasmtype.F64Val(-m.popF64()))
	case 0x9b:
		m.push(wasmtype.F64Val(canon64(math.Ceil(m.popF64()))))
	case 0x9c:
		m.push(wasmtype.F64Val(canon64(math.Floor(m.popF64()))))
	case 0x9d:
		m.push(wasmtype.F64Val(canon64(math.Trunc(m.popF64()))))
	case 0x9e:
		m.push(wasmtype.F64Val(canon64(math.RoundToEven(m.popF64()))))
	case 0x9f:
		m.push(wasmtype.F64Val(canon64(math.Sqrt(m.popF64()))))
	case 0xa0:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(canon64(a + b)))
	case 0xa1:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(canon64(a - b)))
	case 0xa2:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(canon64(a * b)))
	case 0xa3:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(canon64(a / b)))
	case 0xa4:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(f64Min(a, b)))
	case 0xa5:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(f64Max(a, b)))
	case 0xa6:
		b, a := m.popF64(), m.popF64()
		m.push(wasmtype.F64Val(math.Copysign(a, b)))

	case 0xa7: // i32.wrap_i64
		m.push(wasmtype.I32Val(int32(m.pop().I64())))
	case 0xa8:
		v, err := truncToI32(float64(m.popF32()))
		if err != nil {
			return err
		}
		m.push(wasmtype.I32Val(v))
	case 0xa9:
		v, err := truncToU32(float64(m.popF32()))
		if err != nil {
			return err
		}
		m.push(wasmtype.I32Val(int32(v)))
	case 0xaa:
		v, err := truncToI32(m.popF64())
		if err != nil {
			return err
		}
		m.push(wasmtype.I32Val(v))
	case 0xab:
		v, err := truncToU32(m.popF64())
		if err != nil {
			return err
		}
		m.push(wasmtype.I32Val(int32(v)))
	case 0xac:
		m.push(wasmtype.I64Val(int64(m.pop().I32())))
	case 0xad:
		m.push(wasmtype.I64Val(int64(m.pop().U32())))
	case 0xae:
		v, err := truncToI64(float64(m.popF32()))
		if err != nil {
			return err
		}
		m.push(wasmtype.I64Val(v))
	case 0xaf:
		v, err := truncToU64(float64(m.popF32()))
		if err != nil {
			return err
		}
		m.push(wasmtype.I64Val(int64(v)))
	case 0xb0:
		v, err := truncToI64(m.popF64())
		if err != nil {
			return err
		}
		m.push(wasmtype.I64Val(v))
	case 0xb1:
		v, err := truncToU64(m.popF64())
		if err != nil {
			return err
		}
		m.push(wasmtype.I64Val(int64(v)))
	case 0xb2:
		m.push(wasmtype.F32Val(float32(m.pop().I32())))
	case 0xb3:
		m.push(wasmtype.F32Val(float32(m.pop().U32())))
	case 0xb4:
		m.push(wasmtype.F32Val(float32(m.pop().I64())))
	case 0xb5:
		m.push(wasmtype.F32Val(float32(m.pop().U64())))
	case 0xb6:
		m.push(wasmtype.F32Val(canon32(float32(m.popF64()))))
	case 0xb7:
		m.push(wasmtype.F64Val(float64(m.pop().I32())))
	case 0xb8:
		m.push(wasmtype.F64Val(float64(m.pop().U32())))
	case 0xb9:
		m.push(wasmtype.F64Val(float64(m.pop().I64())))
	case 0xba:
		m.push(wasmtype.F64Val(float64(m.pop().U64())))
	case 0xbb:
		m.push(wasmtype.F64Val(canon64(float64(m.popF32()))))
	case 0xbc: // i32.reinterpret_f32
		v := m.pop()
		m.push(wasmtype.FromBits(wasmtype.I32, v.Bits()))
	case 0xbd: // i64.reinterpret_f64
		v := m.pop()
		m.push(wasmtype.FromBits(wasmtype.I64, v.Bits()))
	case 0xbe: // f32.reinterpret_i32
		v := m.pop()
		m.push(wasmtype.FromBits(wasmtype.F32, v.Bits()))
	case 0xbf: // f64.reinterpret_i64
		v := m.pop()
		m.push(wasmtype.FromBits(wasmtype.F64, v.Bits()))

	case 0xc0:
		m.push(wasmtype.I32Val(int32(int8(m.pop().I32()))))
	case 0xc1:
		m.push(wasmtype.I32Val(int32(int16(m.pop().I32()))))
	case 0xc2:
		m.push(wasmtype.I64Val(int64(int8(m.pop().I64()))))
	case 0xc3:
		m.push(wasmtype.I64Val(int64(int16(m.pop().I64()))))
	case 0xc4:
		m.push(wasmtype.I64Val(int64(int32(m.pop().I64()))))

	default:
		return errf("InvalidInstr", "unhandled opcode")
	}
	return nil
}

func (m *machine) popF32() float32 { return math.Float32frombits(uint32(m.pop().Bits())) }
func (m *machine) popF64() float64 { return math.Float64frombits(m.pop().Bits()) }

func boolVal(b bool) wasmtype.Value {
	if b {
		return wasmtype.I32Val(1)
	}
	return wasmtype.I32Val(0)
}

// roundNearestEven32 is round-to-even for f32.nearest. It widens to float64
// and uses math.RoundToEven; chewxy/math32 has no direct equivalent, and the
// widening and narrowing are both exact for this operation.
func roundNearestEven32(v float32) float32 {
	return float32(math.RoundToEven(float64(v)))
}

func truncToI32(v float64) (int32, error) {
	if math.IsNaN(v) {
		return 0, errBadConversionToInteger
	}
	t := math.Trunc(v)
	if t < -2147483648 || t >= 2147483648 {
		return 0, errUnrepresentableResult
	}
	return int32(t), nil
}

func truncToU32(v float64) (uint32, error) {
	if math.IsNaN(v) {
		return 0, errBadConversionToInteger
	}
	t := math.Trunc(v)
	if t < 0 || t >= 4294967296 {
		return 0, errUnrepresentableResult
	}
	return uint32(t), nil
}

func truncToI64(v float64) (int64, error) {
	if math.IsNaN(v) {
		return 0, errBadConversionToInteger
	}
	t := math.Trunc(v)
	if t < -9223372036854775808 || t >= 9223372036854775808 {
		return 0, errUnrepresentableResult
	}
	return int64(t), nil
}

func truncToU64(v float64) (uint64, error) {
	if math.IsNaN(v) {
		return 0, errBadConversionToInteger
	}
	t := math.Trunc(v)
	if t < 0 || t >= 18446744073709551616 {
		return 0, errUnrepresentableResult
	}
	return uint64(t), nil
}

// satTruncToI32/I64 implement the non-trapping (saturating) float-to-int
// conversions: NaN saturates to 0, out-of-range magnitudes saturate to the
// destination type's min/max rather than trapping.
func satTruncToI32(v float64, signed bool) int32 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 {
			return math.MinInt32
		}
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		return int32(t)
	}
	if t < 0 {
		return 0
	}
	if t > math.MaxUint32 {
		return int32(uint32(math.MaxUint32))
	}
	return int32(uint32(t))
}

func satTruncToI64(v float64, signed bool) int64 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt64 {
			return math.MinInt64
		}
		if t >= math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(t)
	}
	if t < 0 {
		return 0
	}
	if t >= math.MaxUint64 {
		return int64(uint64(math.MaxUint64))
	}
	return int64(uint64(t))
}
