package wasmmem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/wasmmem"
)

func TestLoadStoreRoundTrip(t *testing.T) {
	m := wasmmem.NewWithInitialPages(1, 0, false)
	require.NoError(t, m.Store(100, []byte{1, 2, 3, 4}))
	got, err := m.Load(100, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestZeroLengthOutOfBoundsStillTraps(t *testing.T) {
	m := wasmmem.NewWithInitialPages(1, 0, false)
	_, err := m.Load(wasmmem.PageSize+1, 0)
	require.ErrorIs(t, err, wasmmem.ErrOutOfBounds)
}

func TestFillNoOpWithinBounds(t *testing.T) {
	m := wasmmem.NewWithInitialPages(1, 0, false)
	require.NoError(t, m.Fill(10, 0xff, 0))
	got, err := m.Load(10, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, got)
}

func TestCopyOverlapForwardAndBackward(t *testing.T) {
	m := wasmmem.NewWithInitialPages(1, 0, false)
	require.NoError(t, m.Store(0, []byte{1, 2, 3, 4, 5}))

	// dst > src: must copy backward to avoid clobbering source before read.
	require.NoError(t, m.Copy(2, m, 0, 3))
	got, _ := m.Load(0, 5)
	require.Equal(t, []byte{1, 2, 1, 2, 3}, got)

	require.NoError(t, m.Store(0, []byte{1, 2, 3, 4, 5}))
	// dst < src: forward copy.
	require.NoError(t, m.Copy(0, m, 2, 3))
	got, _ = m.Load(0, 5)
	require.Equal(t, []byte{3, 4, 5, 4, 5}, got)
}

func TestGrowRespectsDeclaredMaxAndAbsoluteCeiling(t *testing.T) {
	m := wasmmem.NewWithInitialPages(0, 10, true)
	require.EqualValues(t, 0, m.Grow(0))
	require.EqualValues(t, 0, m.Grow(1))
	require.EqualValues(t, 1, m.Grow(1))
	require.EqualValues(t, 2, m.Grow(2))
	require.EqualValues(t, 4, m.Grow(6))
	require.EqualValues(t, 10, m.Grow(0))
	require.EqualValues(t, -1, m.Grow(1))
	require.EqualValues(t, -1, m.Grow(0x10000))
}

func TestInitFromDataSegment(t *testing.T) {
	m := wasmmem.NewWithInitialPages(1, 0, false)
	data := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	require.NoError(t, m.Init(5, data, 1, 2))
	got, err := m.Load(5, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xbb, 0xcc}, got)
}
