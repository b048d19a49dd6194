package leb128_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/bufreader"
	"github.com/wasmstack/wasmstack/leb128"
)

func cursor(b ...byte) *bufreader.Reader {
	return bufreader.New(bytes.Join([][]byte{b}, nil))
}

func TestReadUint32(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte", []byte{0x7f}, 127},
		{"two bytes", []byte{0xe5, 0x8e, 0x26}, 624485},
		{"max u32", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := leb128.ReadUint32(cursor(c.in...))
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestReadInt32(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want int32
	}{
		{"zero", []byte{0x00}, 0},
		{"neg one", []byte{0x7f}, -1},
		{"neg 624485", []byte{0x9b, 0xf1, 0x59}, -624485},
		{"min i32", []byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := leb128.ReadInt32(cursor(c.in...))
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestReadOverflow(t *testing.T) {
	// 6 bytes for a 32-bit integer is one byte too many.
	_, err := leb128.ReadUint32(cursor(0x80, 0x80, 0x80, 0x80, 0x80, 0x00))
	require.ErrorIs(t, err, leb128.ErrOverflow)
}

func TestReadUint64RoundTrip(t *testing.T) {
	got, err := leb128.ReadUint64(cursor(0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01))
	require.NoError(t, err)
	require.Equal(t, uint64(0xffffffffffffffff), got)
}
