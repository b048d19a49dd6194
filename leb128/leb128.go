// Package leb128 decodes the LEB128 variable-length integer encoding used
// throughout the Wasm binary format.
//
// https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import "errors"

// ErrOverflow is returned when a LEB128 sequence would require more bytes
// than the target width allows, or when its final byte sets bits that
// would shift out of range for that width.
var ErrOverflow = errors.New("malformed LEB128 integer: overflow")

// byteSource is satisfied by any cursor capable of handing out one byte at
// a time; bufreader.Reader implements it.
type byteSource interface {
	ReadByte() (byte, error)
}

func maxBytes(bits uint) int {
	return int((bits + 6) / 7)
}

// ReadUint32 decodes an unsigned 32-bit LEB128 integer.
func ReadUint32(r byteSource) (uint32, error) {
	v, err := readUnsigned(r, 32)
	return uint32(v), err
}

// ReadUint64 decodes an unsigned 64-bit LEB128 integer.
func ReadUint64(r byteSource) (uint64, error) {
	return readUnsigned(r, 64)
}

// ReadInt32 decodes a signed 32-bit LEB128 integer.
func ReadInt32(r byteSource) (int32, error) {
	v, err := readSigned(r, 32)
	return int32(v), err
}

// ReadInt64 decodes a signed 64-bit LEB128 integer.
func ReadInt64(r byteSource) (int64, error) {
	return readSigned(r, 64)
}

// ReadInt33AsOffset decodes the 33-bit signed LEB128 used by block type
// encodings where the spec calls for "s33",
// returning it widened to int64. The caller checks sign per spec.md's
// I33IsNegative rule where required.
func ReadInt33AsOffset(r byteSource) (int64, error) {
	return readSigned(r, 33)
}

func readUnsigned(r byteSource, bits uint) (uint64, error) {
	var result uint64
	var shift uint
	limit := maxBytes(bits)
	for i := 0; ; i++ {
		if i >= limit {
			return 0, ErrOverflow
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		chunk := uint64(b & 0x7f)
		if shift >= 64 {
			if chunk != 0 {
				return 0, ErrOverflow
			}
		} else {
			result |= chunk << shift
		}
		if b&0x80 == 0 {
			// Final byte: any bits beyond `bits` must be zero.
			if shift+7 > bits && chunk>>(bits-shift) != 0 {
				return 0, ErrOverflow
			}
			return result, nil
		}
		shift += 7
	}
}

func readSigned(r byteSource, bits uint) (int64, error) {
	var result int64
	var shift uint
	limit := maxBytes(bits)
	var b byte
	var err error
	for i := 0; ; i++ {
		if i >= limit {
			return 0, ErrOverflow
		}
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		chunk := int64(b & 0x7f)
		if shift < 64 {
			result |= chunk << shift
		}
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	// Sign-extend if the sign bit of the final group is set and there are
	// remaining bits in the target width.
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if bits < 64 {
		// Final byte must not encode bits that would overflow the target
		// width once sign-extended.
		signExtended := result >> (bits - 1)
		if signExtended != 0 && signExtended != -1 {
			return 0, ErrOverflow
		}
	} else if shift > 63 && b != 0x00 && b != 0x7f {
		// A tenth byte carries only bit 63; its other bits must repeat it.
		return 0, ErrOverflow
	}
	return result, nil
}
