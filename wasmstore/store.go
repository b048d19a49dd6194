// Package wasmstore implements component F: the runtime state container.
// It owns flat vectors of every instance kind and hands every address back
// to callers as a StoreId-tagged "stored" handle, grounded on the
// checked-handle pattern described in spec.md §4.F and §9 ("Handle
// identity") and on the inkeliz wazero fork's store.go naming for
// FuncInstance/TableInstance/MemoryInstance/GlobalInstance/ModuleInstance.
package wasmstore

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmmem"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// StoreId uniquely tags a Store for the lifetime of the process, minted via
// google/uuid rather than a bare counter so that handles accidentally
// carried across independently-created stores fail loudly instead of
// silently colliding with a reused small integer.
type StoreId uuid.UUID

func newStoreId() StoreId { return StoreId(uuid.New()) }

func (id StoreId) String() string { return uuid.UUID(id).String() }

// ErrStoreIdMismatch is returned by every Stored-handle operation when the
// handle's tag does not match the Store it is presented to.
var ErrStoreIdMismatch = fmt.Errorf("store id mismatch")

// raw index types: bare indices into the Store's flat instance vectors.
// None of these are exported; every address handed across a package
// boundary is a Stored[T] tagging one of these with its minting Store's id,
// so a handle from one Store can never be mistaken for a valid index into
// another.
type (
	rawFuncIdx   uint32
	rawTableIdx  uint32
	rawMemIdx    uint32
	rawGlobalIdx uint32
	rawElemIdx   uint32
	rawDataIdx   uint32
	rawModuleIdx uint32
)

// Stored wraps a raw address with the StoreId of the Store it was minted
// from. It is the "checked" handle flavor spec.md §4.F and §9 ask for: an
// equivalent to the source's generic `Stored<T>` over a StoreId-tagged
// address, implemented here with a Go generic parameterized over the raw
// address type. FuncAddr, TableAddr, and the rest of the exported address
// types below are all instantiations of Stored, so every one of the
// Store's accessors can reject a handle minted by a different Store
// instead of silently indexing its own vector with a foreign index.
type Stored[T ~uint32] struct {
	id   StoreId
	Addr T
}

// NewStored tags addr with id. Stores call this on every constructing
// operation (module_instantiate, table_alloc, ...) before handing an
// address back to the embedder.
func NewStored[T ~uint32](id StoreId, addr T) Stored[T] {
	return Stored[T]{id: id, Addr: addr}
}

// Check verifies s was minted by the given store, returning
// ErrStoreIdMismatch otherwise.
func (s Stored[T]) Check(id StoreId) error {
	if s.id != id {
		return ErrStoreIdMismatch
	}
	return nil
}

// Exported address types: StoreId-tagged handles into the Store's flat
// instance vectors. Every Store accessor that takes one of these checks
// its tag before indexing.
type (
	FuncAddr   = Stored[rawFuncIdx]
	TableAddr  = Stored[rawTableIdx]
	MemAddr    = Stored[rawMemIdx]
	GlobalAddr = Stored[rawGlobalIdx]
	ElemAddr   = Stored[rawElemIdx]
	DataAddr   = Stored[rawDataIdx]
	ModuleAddr = Stored[rawModuleIdx]
)

// WasmFunc is a function instance backed by module bytecode.
type WasmFunc struct {
	Type           wasmtype.FuncType
	DeclaredLocals []wasmtype.ValType
	Code           wasmbin.CodeSpan
	SidetableStart int
	ModuleAddr     ModuleAddr
}

// HostCallback is the signature every host function instance invokes:
// arbitrary embedder user data, positional arguments, and a result vector
// or a HaltExecutionError-style failure that the interpreter surfaces as a
// trap (spec.md §6, §13 "HaltExecutionError as a first-class trap").
type HostCallback func(userData any, args []wasmtype.Value) ([]wasmtype.Value, error)

// HostFunc is a function instance backed by a native Go callback.
type HostFunc struct {
	Type     wasmtype.FuncType
	Callback HostCallback
}

// FuncInst is either a WasmFunc or a HostFunc; exactly one of the two
// pointer fields is non-nil.
type FuncInst struct {
	Wasm *WasmFunc
	Host *HostFunc
}

func (f *FuncInst) FuncType() wasmtype.FuncType {
	if f.Wasm != nil {
		return f.Wasm.Type
	}
	return f.Host.Type
}

// TableInst is a mutable vector of references.
type TableInst struct {
	Type  wasmtype.TableType
	Elems []wasmtype.Ref
}

// MemInst pairs a memory's declared type with its backing linear memory.
type MemInst struct {
	Type wasmtype.MemType
	Mem  *wasmmem.Memory
}

// GlobalInst is a mutable (if declared `mut`) global cell.
type GlobalInst struct {
	Type  wasmtype.GlobalType
	Value wasmtype.Value
}

// ElemInst holds an element segment's evaluated references; becomes empty
// (not removed) after elem.drop.
type ElemInst struct {
	Type wasmtype.RefType
	Refs []wasmtype.Ref
}

// Dropped reports whether elem.drop has already emptied this instance.
func (e *ElemInst) Dropped() bool { return e.Refs == nil }

// DataInst holds a data segment's bytes; becomes empty (not removed) after
// data.drop.
type DataInst struct {
	Bytes []byte
}

// Dropped reports whether data.drop has already emptied this instance.
func (d *DataInst) Dropped() bool { return d.Bytes == nil }

// ModuleInst is the per-instantiation index space: every address a module's
// instructions can reference, plus its export map and the bytecode/
// sidetable the interpreter dispatches against.
type ModuleInst struct {
	Types       []wasmtype.FuncType
	FuncAddrs   []FuncAddr
	TableAddrs  []TableAddr
	MemAddrs    []MemAddr
	GlobalAddrs []GlobalAddr
	ElemAddrs   []ElemAddr
	DataAddrs   []DataAddr
	Exports     map[string]ExternVal
	Bytecode    []byte
	Sidetable   []SidetableEntry
}

// SidetableEntry is one precomputed branch-resolution record, shared
// between package validate (which builds it) and package interp (which
// consumes it); it lives here so both packages can reference it without an
// import cycle.
type SidetableEntry struct {
	TargetInstrOffset int
	TargetStp         int
	ValsToDrop        int
	ValsToKeep        int
	DeltaFuel         uint64
}

// ExternVal is a tagged external value: Kind (a wasmtype.ExternKind)
// selects which one of the address fields is meaningful.
type ExternVal struct {
	Kind   wasmtype.ExternKind
	Func   FuncAddr
	Table  TableAddr
	Mem    MemAddr
	Global GlobalAddr
}

// Store owns every runtime instance created across every module instance
// instantiated against it. It is not safe for concurrent mutation from
// multiple goroutines without external synchronization, matching spec.md
// §5's "not required to be concurrency-safe across threads".
type Store struct {
	id StoreId

	funcs   []FuncInst
	tables  []TableInst
	mems    []MemInst
	globals []GlobalInst
	elems   []ElemInst
	datas   []DataInst
	modules []ModuleInst

	Log *logrus.Entry

	// UserData is handed to every HostCallback invoked against this store,
	// per spec.md §6's `Store::new(user_data)` / `fn(&mut UserData, ...)`
	// host function contract.
	UserData any
}

// New constructs an empty Store bound to userData, which every host
// function call against it receives as its first argument.
func New(log *logrus.Entry, userData any) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	id := newStoreId()
	return &Store{
		id:       id,
		Log:      log.WithField("store_id", id.String()),
		UserData: userData,
	}
}

// Id returns this store's StoreId.
func (s *Store) Id() StoreId { return s.id }

func (s *Store) AllocFunc(f FuncInst) FuncAddr {
	s.funcs = append(s.funcs, f)
	return NewStored(s.id, rawFuncIdx(len(s.funcs)-1))
}

func (s *Store) AllocTable(t TableInst) TableAddr {
	s.tables = append(s.tables, t)
	return NewStored(s.id, rawTableIdx(len(s.tables)-1))
}

func (s *Store) AllocMem(m MemInst) MemAddr {
	s.mems = append(s.mems, m)
	return NewStored(s.id, rawMemIdx(len(s.mems)-1))
}

func (s *Store) AllocGlobal(g GlobalInst) GlobalAddr {
	s.globals = append(s.globals, g)
	return NewStored(s.id, rawGlobalIdx(len(s.globals)-1))
}

func (s *Store) AllocElem(e ElemInst) ElemAddr {
	s.elems = append(s.elems, e)
	return NewStored(s.id, rawElemIdx(len(s.elems)-1))
}

func (s *Store) AllocData(d DataInst) DataAddr {
	s.datas = append(s.datas, d)
	return NewStored(s.id, rawDataIdx(len(s.datas)-1))
}

func (s *Store) AllocModule(m ModuleInst) ModuleAddr {
	s.modules = append(s.modules, m)
	return NewStored(s.id, rawModuleIdx(len(s.modules)-1))
}

// ResolveFuncAddr tags a raw function index, such as one read back out of a
// table element populated by an earlier table.set or active element
// segment, with this Store's id. It is the inverse of the bare uint32 a
// funcref's Addr field carries: table contents are never StoreId-tagged
// themselves (wasmtype cannot import wasmstore), so reconstructing a
// checked FuncAddr from one requires the Store that owns the table.
func (s *Store) ResolveFuncAddr(idx uint32) FuncAddr {
	return NewStored(s.id, rawFuncIdx(idx))
}

// Func, Table, Mem, Global, Elem, Data, Module return a pointer into the
// store's backing vector for in-place mutation, or ok=false if addr was not
// minted by this store or is out of range ("additionally bounds-checked
// against the store's live slots", spec.md §4.F; cross-store handles must
// fail the same way as an out-of-range one, never silently index the wrong
// vector).
func (s *Store) Func(addr FuncAddr) (*FuncInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.funcs) {
		return nil, false
	}
	return &s.funcs[addr.Addr], true
}

func (s *Store) Table(addr TableAddr) (*TableInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.tables) {
		return nil, false
	}
	return &s.tables[addr.Addr], true
}

func (s *Store) Mem(addr MemAddr) (*MemInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.mems) {
		return nil, false
	}
	return &s.mems[addr.Addr], true
}

func (s *Store) Global(addr GlobalAddr) (*GlobalInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.globals) {
		return nil, false
	}
	return &s.globals[addr.Addr], true
}

func (s *Store) Elem(addr ElemAddr) (*ElemInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.elems) {
		return nil, false
	}
	return &s.elems[addr.Addr], true
}

func (s *Store) Data(addr DataAddr) (*DataInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.datas) {
		return nil, false
	}
	return &s.datas[addr.Addr], true
}

func (s *Store) Module(addr ModuleAddr) (*ModuleInst, bool) {
	if addr.Check(s.id) != nil || int(addr.Addr) >= len(s.modules) {
		return nil, false
	}
	return &s.modules[addr.Addr], true
}

// InstanceExport looks up a named export of a module instance.
func (s *Store) InstanceExport(addr ModuleAddr, name string) (ExternVal, bool) {
	mod, ok := s.Module(addr)
	if !ok {
		return ExternVal{}, false
	}
	ev, ok := mod.Exports[name]
	return ev, ok
}
