package interp_test

// A tiny hand-assembler for building wasmbin.Module values directly,
// bypassing the binary section format entirely: tests construct the
// decoded struct tree that wasmbin.Decode would otherwise have produced,
// then run it through the same validate -> wasmstore -> instantiate ->
// interp pipeline a real embedder would drive.

import (
	"github.com/wasmstack/wasmstack/instantiate"
	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// asm accumulates opcode bytes for one function body or const expression.
type asm struct {
	buf []byte
}

func newAsm() *asm { return &asm{} }

func (a *asm) b(bs ...byte) *asm {
	a.buf = append(a.buf, bs...)
	return a
}

// uleb appends n LEB128-encoded as unsigned.
func (a *asm) uleb(n uint64) *asm {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			a.buf = append(a.buf, b|0x80)
		} else {
			a.buf = append(a.buf, b)
			return a
		}
	}
}

// sleb appends n LEB128-encoded as signed.
func (a *asm) sleb(n int64) *asm {
	more := true
	for more {
		b := byte(n & 0x7f)
		n >>= 7
		signBitSet := b&0x40 != 0
		if (n == 0 && !signBitSet) || (n == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		a.buf = append(a.buf, b)
	}
	return a
}

func (a *asm) i32Const(v int32) *asm { return a.b(0x41).sleb(int64(v)) }
func (a *asm) i64Const(v int64) *asm { return a.b(0x42).sleb(v) }
func (a *asm) localGet(i uint32) *asm  { return a.b(0x20).uleb(uint64(i)) }
func (a *asm) localSet(i uint32) *asm  { return a.b(0x21).uleb(uint64(i)) }
func (a *asm) call(i uint32) *asm      { return a.b(0x10).uleb(uint64(i)) }
func (a *asm) end() *asm               { return a.b(0x0b) }

// voidBlockType is the one-byte empty block type (0x40).
const voidBlockType = 0x40

// asmModule incrementally builds a wasmbin.Module, writing every function
// body and const expression into one shared backing buffer so CodeSpans
// can address it directly, exactly as a real decode would.
type asmModule struct {
	m    wasmbin.Module
	code []byte
}

func newModule() *asmModule {
	return &asmModule{m: wasmbin.Module{Version: wasmbin.Version}}
}

// addType registers a function type and returns its index.
func (am *asmModule) addType(params, results []wasmtype.ValType) uint32 {
	am.m.Types = append(am.m.Types, wasmtype.FuncType{Params: params, Results: results})
	return uint32(len(am.m.Types) - 1)
}

// span appends a's bytes to the shared bytecode buffer and returns the
// span locating them.
func (am *asmModule) span(a *asm) wasmbin.CodeSpan {
	start := len(am.code)
	am.code = append(am.code, a.buf...)
	return wasmbin.CodeSpan{Start: start, Len: len(a.buf)}
}

// addFunc declares a function of the given type index with the given
// locals and body, returning its function-index-space index. body ends
// with the function's terminal `end`, which the recorded code span leaves
// out just as wasmbin.Decode does.
func (am *asmModule) addFunc(typeIdx uint32, locals []wasmtype.ValType, body *asm) uint32 {
	code := am.span(body)
	code.Len--
	am.m.Functions = append(am.m.Functions, typeIdx)
	am.m.Code = append(am.m.Code, wasmbin.FunctionBody{
		TypeIdx:        typeIdx,
		DeclaredLocals: locals,
		Code:           code,
	})
	return uint32(am.m.NumImportedFuncs()) + uint32(len(am.m.Code)) - 1
}

func (am *asmModule) export(name string, kind wasmtype.ExternKind, idx uint32) {
	am.m.Exports = append(am.m.Exports, wasmbin.Export{Name: name, Kind: kind, Idx: idx})
}

func (am *asmModule) addTable(tt wasmtype.TableType) uint32 {
	am.m.Tables = append(am.m.Tables, tt)
	return uint32(len(am.m.Tables) - 1)
}

func (am *asmModule) addMemory(mt wasmtype.MemType) uint32 {
	am.m.Memories = append(am.m.Memories, mt)
	return uint32(len(am.m.Memories) - 1)
}

// addActiveData appends a data segment active at the given i32 offset.
func (am *asmModule) addActiveData(offset int32, bytes []byte) uint32 {
	am.m.Data = append(am.m.Data, wasmbin.DataSegment{
		Bytes:  bytes,
		Mode:   wasmbin.DataActive,
		MemIdx: 0,
		Offset: am.span(newAsm().i32Const(offset).end()),
	})
	return uint32(len(am.m.Data) - 1)
}

// addPassiveData appends a passive data segment.
func (am *asmModule) addPassiveData(bytes []byte) uint32 {
	am.m.Data = append(am.m.Data, wasmbin.DataSegment{Bytes: bytes, Mode: wasmbin.DataPassive})
	return uint32(len(am.m.Data) - 1)
}

// build finalizes the module (stamping the shared bytecode buffer into
// every recorded span's backing array) and runs it through
// validate.Module.
func (am *asmModule) build() (*validate.ValidationInfo, error) {
	am.m.Bytecode = am.code
	return validate.Module(&am.m)
}

// instantiate validates and instantiates am with no imports, returning a
// ready store and module address.
func (am *asmModule) instantiate() (*wasmstore.Store, wasmstore.ModuleAddr, error) {
	info, err := am.build()
	if err != nil {
		return nil, wasmstore.ModuleAddr{}, err
	}
	store := wasmstore.New(nil, nil)
	addr, err := instantiate.Module(store, info, nil, interp.Invoke)
	if err != nil {
		return nil, wasmstore.ModuleAddr{}, err
	}
	return store, addr, nil
}

// invoke instantiates am and calls its export name with args, running to
// completion with no fuel budget.
func (am *asmModule) invoke(name string, args ...wasmtype.Value) ([]wasmtype.Value, error) {
	store, addr, err := am.instantiate()
	if err != nil {
		return nil, err
	}
	ev, ok := store.InstanceExport(addr, name)
	if !ok {
		panic("export not found: " + name)
	}
	return interp.Invoke(store, ev.Func, args)
}
