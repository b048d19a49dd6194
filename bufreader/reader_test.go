package bufreader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/bufreader"
)

func TestReadName(t *testing.T) {
	r := bufreader.New([]byte{0x05, 'h', 'e', 'l', 'l', 'o'})
	name, err := r.ReadName()
	require.NoError(t, err)
	require.Equal(t, "hello", name)
	require.Equal(t, 0, r.Len())
}

func TestReadNameInvalidUTF8(t *testing.T) {
	r := bufreader.New([]byte{0x02, 0xff, 0xfe})
	_, err := r.ReadName()
	require.ErrorIs(t, err, bufreader.ErrMalformedUTF8)
}

func TestReadBytesEOF(t *testing.T) {
	r := bufreader.New([]byte{0x01, 0x02})
	_, err := r.ReadBytes(5)
	require.ErrorIs(t, err, bufreader.ErrEOF)
}

func TestReadVector(t *testing.T) {
	r := bufreader.New([]byte{0x03, 0x01, 0x02, 0x03})
	got, err := bufreader.ReadVector(r, func(r *bufreader.Reader) (byte, error) {
		return r.ReadByte()
	})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestMeasureNumReadBytes(t *testing.T) {
	r := bufreader.New([]byte{0xAA, 0xBB, 0xCC})
	v, n, err := bufreader.MeasureNumReadBytes(r, func(r *bufreader.Reader) (byte, error) {
		return r.ReadByte()
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0xAA), v)
}

func TestSubPosIsAbsolute(t *testing.T) {
	r := bufreader.New([]byte{0x00, 0x00, 0x11, 0x22, 0x33})
	_, err := r.ReadBytes(2)
	require.NoError(t, err)

	sub, err := r.Sub(3)
	require.NoError(t, err)
	require.Equal(t, 2, sub.Pos())

	_, err = sub.ReadBytes(1)
	require.NoError(t, err)
	require.Equal(t, 3, sub.Pos())

	require.Equal(t, 5, r.Pos())
}
