// Package wasmlink implements component G: the import-resolution registry
// that sits between a Store and the instantiation engine. It mirrors the
// (module_name, export_name) -> extern registry spec.md §4.G describes.
package wasmlink

import (
	"fmt"

	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmstore"
)

// ErrUnableToResolve is returned by InstantiatePre when a module's declared
// import has no matching registration.
var ErrUnableToResolve = fmt.Errorf("unable to resolve extern lookup")

// ErrStoreIdMismatch mirrors wasmstore.ErrStoreIdMismatch: returned once a
// Linker has been bound to a Store and a later operation presents a
// different one.
var ErrStoreIdMismatch = wasmstore.ErrStoreIdMismatch

type key struct {
	module string
	name   string
}

// Linker resolves imports by (module, name). The first Define or
// DefineModuleInstance call binds it to the caller's StoreId; every later
// Define or DefineModuleInstance is checked against that binding, per
// spec.md §4.G. Get and InstantiatePre take no StoreId and are not checked.
type Linker struct {
	bound   bool
	storeID wasmstore.StoreId
	entries map[key]wasmstore.ExternVal
}

// New constructs an empty, as-yet-unbound Linker.
func New() *Linker {
	return &Linker{entries: make(map[key]wasmstore.ExternVal)}
}

func (l *Linker) bind(id wasmstore.StoreId) error {
	if !l.bound {
		l.bound = true
		l.storeID = id
		return nil
	}
	if l.storeID != id {
		return ErrStoreIdMismatch
	}
	return nil
}

// Define registers a single extern under (moduleName, name).
func (l *Linker) Define(storeID wasmstore.StoreId, moduleName, name string, ev wasmstore.ExternVal) error {
	if err := l.bind(storeID); err != nil {
		return err
	}
	l.entries[key{moduleName, name}] = ev
	return nil
}

// DefineModuleInstance copies every export of an already-instantiated
// module instance into the registry under moduleName, so other modules can
// import from it by name the same way they would import from a native host
// registration.
func (l *Linker) DefineModuleInstance(storeID wasmstore.StoreId, store *wasmstore.Store, moduleName string, addr wasmstore.ModuleAddr) error {
	if err := l.bind(storeID); err != nil {
		return err
	}
	mod, ok := store.Module(addr)
	if !ok {
		return fmt.Errorf("module not found")
	}
	for name, ev := range mod.Exports {
		l.entries[key{moduleName, name}] = ev
	}
	return nil
}

// Get looks up a single registered extern.
func (l *Linker) Get(moduleName, name string) (wasmstore.ExternVal, bool) {
	ev, ok := l.entries[key{moduleName, name}]
	return ev, ok
}

// InstantiatePre resolves every import declared by info, in declaration
// order, against the registry. It does not check type compatibility — that
// subtype check happens in package instantiate's step 1, which has the
// declared import type in hand; this resolves names only.
func (l *Linker) InstantiatePre(info *validate.ValidationInfo) ([]wasmstore.ExternVal, error) {
	out := make([]wasmstore.ExternVal, 0, len(info.Module.Imports))
	for _, im := range info.Module.Imports {
		ev, ok := l.Get(im.Module, im.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnableToResolve, im.Module, im.Name)
		}
		out = append(out, ev)
	}
	return out, nil
}
