// Package bufreader implements the byte-level cursor component A of the
// interpretation pipeline: a stateful reader over an in-memory byte slice
// with the primitives the module decoder (wasmbin) and the validator's
// code walker need, plus bounded sub-reads so a section's declared length
// is enforced structurally rather than by convention.
package bufreader

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/wasmstack/wasmstack/leb128"
)

// ErrEOF is returned once the cursor has been read past the end of its
// backing slice.
var ErrEOF = errors.New("unexpected end of input")

// ErrMalformedUTF8 is returned by ReadName when the declared name bytes are
// not valid UTF-8.
var ErrMalformedUTF8 = errors.New("malformed UTF-8 encoding")

// Reader is a forward-only cursor over a byte slice. It is not safe for
// concurrent use; callers construct one per decode.
type Reader struct {
	b    []byte
	pos  int
	base int // absolute offset of b[0] within the original top-level buffer
}

// New constructs a Reader positioned at the start of b. b is not copied;
// the caller must not mutate it while decoding is in progress.
func New(b []byte) *Reader {
	return &Reader{b: b}
}

// Pos returns the current absolute byte offset, measured from the start of
// the original top-level buffer this Reader (or an ancestor it was carved
// from via Sub) was constructed over. wasmbin.CodeSpan offsets are recorded
// in this coordinate space so they index Module.Bytecode directly.
func (r *Reader) Pos() int { return r.base + r.pos }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.b) - r.pos }

// Bytes returns the full backing slice, for callers (the validator) that
// need to re-slice code spans after the fact.
func (r *Reader) Bytes() []byte { return r.b }

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, ErrEOF
	}
	return r.b[r.pos], nil
}

// ReadByte consumes and returns the next byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, ErrEOF
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes consumes and returns the next n bytes.
func (r *Reader) ReadBytes(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.b)) {
		return nil, ErrEOF
	}
	out := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

// ReadF32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) ReadF32() (float32, error) {
	raw, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
}

// ReadF64 reads a little-endian IEEE-754 double-precision float.
func (r *Reader) ReadF64() (float64, error) {
	raw, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

// ReadName reads a length-prefixed UTF-8 string: a LEB128 byte count
// followed by that many bytes. It is defined here (rather than in leb128)
// because it composes a vector read with a UTF-8 validity check.
func (r *Reader) ReadName() (string, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return "", err
	}
	raw, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrMalformedUTF8
	}
	return string(raw), nil
}

// ReadVector reads a LEB128-prefixed count followed by count elements,
// each parsed by parse. It is generic over the element type so every
// section decoder (wasmbin) can reuse one bounded-vector-read primitive
// instead of hand rolling the count/loop pattern per section.
func ReadVector[T any](r *Reader, parse func(*Reader) (T, error)) ([]T, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MeasureNumReadBytes runs parse starting at the reader's current position
// and reports both its result and how many bytes it consumed, so a caller
// can record a span's length without a second pass over the bytes.
func MeasureNumReadBytes[T any](r *Reader, parse func(*Reader) (T, error)) (T, int, error) {
	start := r.pos
	v, err := parse(r)
	return v, r.pos - start, err
}

// Sub returns a bounded Reader over exactly n bytes starting at the
// current position, and advances the parent past them. Used to scope a
// section's decode to its declared length (wasmbin.decodeSections).
func (r *Reader) Sub(n uint32) (*Reader, error) {
	absStart := r.Pos()
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &Reader{b: b, base: absStart}, nil
}
