// Package wasmmem implements a page-addressed linear memory: component E of
// the interpretation pipeline. Its bounds-check ordering and growth
// semantics follow the Wasm specification rather than the teacher's bare
// `[]byte` (vertexvm's `vm.memory` slice, see `vm/mem_test.go`), extended
// with the grow-exclusive locking the spec calls for.
package wasmmem

import (
	"errors"
	"sync"
)

// PageSize is the fixed Wasm linear memory page size in bytes.
const PageSize = 65536

// MaxPages is the absolute ceiling on memory size (a full 32-bit address
// space).
const MaxPages = 65536

// ErrOutOfBounds is the trap condition for any access whose range falls
// outside the memory's current size, including zero-length accesses whose
// start is out of range.
var ErrOutOfBounds = errors.New("out of bounds memory access")

// Memory is a growable, page-addressed byte buffer. Grow takes an exclusive
// lock (spec.md §4.E: "writer-exclusive"), as do Store, Fill, Copy and
// Init; Load, Size and Pages take a shared lock. Either way no read or
// write observes a buffer mid-reallocation during a concurrent grow.
type Memory struct {
	mu       sync.RWMutex
	buf      []byte
	maxPages uint32
	hasMax   bool
}

// NewWithInitialPages allocates a zero-initialized memory of exactly p
// pages. max/hasMax come from the declared MemType and cap future growth.
func NewWithInitialPages(p uint32, max uint32, hasMax bool) *Memory {
	return &Memory{
		buf:      make([]byte, uint64(p)*PageSize),
		maxPages: max,
		hasMax:   hasMax,
	}
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.buf) / PageSize)
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.buf))
}

// Grow appends n pages of zero bytes, capped by the declared max and the
// absolute 65536-page ceiling. Returns the previous page count, or -1 if
// growth would exceed either cap.
func (m *Memory) Grow(n uint32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := uint32(len(m.buf) / PageSize)
	next := uint64(prev) + uint64(n)
	if next > MaxPages {
		return -1
	}
	if m.hasMax && next > uint64(m.maxPages) {
		return -1
	}
	grown := make([]byte, next*PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return int64(prev)
}

// checkBounds implements spec.md §4.E's normative order: first n <= size,
// then start <= size - n. This ordering avoids the integer overflow a naive
// `start+n <= size` check would suffer for a start near the top of the
// address space.
func checkBounds(size uint64, start uint64, n uint64) bool {
	if n > size {
		return false
	}
	return start <= size-n
}

// Load reads n bytes starting at start.
func (m *Memory) Load(start uint64, n uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !checkBounds(uint64(len(m.buf)), start, n) {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, n)
	copy(out, m.buf[start:start+n])
	return out, nil
}

// Store writes data starting at start.
func (m *Memory) Store(start uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := uint64(len(data))
	if !checkBounds(uint64(len(m.buf)), start, n) {
		return ErrOutOfBounds
	}
	copy(m.buf[start:start+n], data)
	return nil
}

// Fill sets n bytes starting at start to the byte value b.
func (m *Memory) Fill(start uint64, b byte, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !checkBounds(uint64(len(m.buf)), start, n) {
		return ErrOutOfBounds
	}
	region := m.buf[start : start+n]
	for i := range region {
		region[i] = b
	}
	return nil
}

// Copy copies n bytes from src in srcMem to dst in m, safe under overlap
// when srcMem == m: a forward copy is used when dst <= src, and an explicit
// backward byte loop otherwise.
func (m *Memory) Copy(dst uint64, srcMem *Memory, src uint64, n uint64) error {
	if srcMem == m {
		m.mu.Lock()
		defer m.mu.Unlock()
		size := uint64(len(m.buf))
		if !checkBounds(size, dst, n) || !checkBounds(size, src, n) {
			return ErrOutOfBounds
		}
		if n == 0 {
			return nil
		}
		if dst <= src {
			copy(m.buf[dst:dst+n], m.buf[src:src+n])
		} else {
			for i := n; i > 0; i-- {
				m.buf[dst+i-1] = m.buf[src+i-1]
			}
		}
		return nil
	}

	srcMem.mu.RLock()
	if !checkBounds(uint64(len(srcMem.buf)), src, n) {
		srcMem.mu.RUnlock()
		return ErrOutOfBounds
	}
	data := make([]byte, n)
	copy(data, srcMem.buf[src:src+n])
	srcMem.mu.RUnlock()

	return m.Store(dst, data)
}

// Init copies n bytes from a non-memory byte slice (a data segment) into m
// starting at dst.
func (m *Memory) Init(dst uint64, srcData []byte, src uint64, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !checkBounds(uint64(len(m.buf)), dst, n) {
		return ErrOutOfBounds
	}
	if !checkBounds(uint64(len(srcData)), src, n) {
		return ErrOutOfBounds
	}
	copy(m.buf[dst:dst+n], srcData[src:src+n])
	return nil
}
