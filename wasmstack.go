// Package wasmstack is the top-level embedder API: validate a binary once,
// instantiate it any number of times against a Store and a Linker, and
// invoke its exports. It composes the lower components (wasmbin, validate,
// wasmstore, wasmlink, instantiate, interp) into the shape spec.md §6
// names: Runtime/Store/Linker/Module/Instance.
package wasmstack

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wasmstack/wasmstack/instantiate"
	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/validate"
	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmlink"
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// RuntimeConfig configures a Runtime. UserData is handed to every host
// function call; Log defaults to logrus's standard logger when nil.
type RuntimeConfig struct {
	UserData any
	Log      *logrus.Entry
}

// Runtime owns one Store, one Linker and the Dormitory for resumable
// invocations. It keeps no cache of compiled modules: every CompileModule
// call decodes and validates its input again, while one returned Module
// can be instantiated any number of times.
type Runtime struct {
	store  *wasmstore.Store
	linker *wasmlink.Linker
	dorm   *interp.Dormitory
}

// NewRuntime constructs a Runtime bound to one Store, per spec.md §6's
// `Store::new(user_data)`.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	store := wasmstore.New(cfg.Log, cfg.UserData)
	return &Runtime{
		store:  store,
		linker: wasmlink.New(),
		dorm:   interp.NewDormitory(store),
	}
}

// Store exposes the underlying store for direct host-function/table/memory
// registration (Linker.Define, Store.AllocFunc, ...).
func (rt *Runtime) Store() *wasmstore.Store { return rt.store }

// Linker exposes the import-resolution registry.
func (rt *Runtime) Linker() *wasmlink.Linker { return rt.linker }

// Module is a validated, not-yet-instantiated binary: spec.md §6's
// `validate(bytes) -> ValidationInfo`.
type Module struct {
	info *validate.ValidationInfo
}

// CompileModule decodes and validates bin, returning a reusable Module.
func (rt *Runtime) CompileModule(bin []byte) (*Module, error) {
	m, err := wasmbin.Decode(bin)
	if err != nil {
		return nil, err
	}
	info, err := validate.Module(m)
	if err != nil {
		return nil, err
	}
	return &Module{info: info}, nil
}

// Instance is one instantiation of a Module against this Runtime's Store.
type Instance struct {
	rt   *Runtime
	addr wasmstore.ModuleAddr
}

// DefineHostFunc registers a host function under (moduleName, name) in
// this Runtime's Linker, backed by a native Go callback.
func (rt *Runtime) DefineHostFunc(moduleName, name string, ft wasmtype.FuncType, cb wasmstore.HostCallback) error {
	addr := rt.store.AllocFunc(wasmstore.FuncInst{Host: &wasmstore.HostFunc{Type: ft, Callback: cb}})
	return rt.linker.Define(rt.store.Id(), moduleName, name, wasmstore.ExternVal{Kind: wasmtype.ExternFunc, Func: addr})
}

// Instantiate resolves m's imports against the Linker, instantiates it
// (running active segments and any start function), and registers its
// exports under instanceName for later imports to resolve by name.
func (rt *Runtime) Instantiate(m *Module, instanceName string) (*Instance, error) {
	externs, err := rt.linker.InstantiatePre(m.info)
	if err != nil {
		return nil, err
	}
	addr, err := instantiate.Module(rt.store, m.info, externs, interp.Invoke)
	if err != nil {
		return nil, err
	}
	if err := rt.linker.DefineModuleInstance(rt.store.Id(), rt.store, instanceName, addr); err != nil {
		return nil, err
	}
	return &Instance{rt: rt, addr: addr}, nil
}

// NamedModule pairs a compiled Module with the instance name InstantiateAll
// registers it under.
type NamedModule struct {
	Module *Module
	Name   string
}

// InstantiateAll instantiates every (module, name) pair, one errgroup
// worker per module, and returns the instances in input order. The Store
// and Linker are not safe for concurrent mutation, so each worker holds one
// shared lock for its whole instantiation and registration: the
// instantiations run one at a time, in no fixed order.
func (rt *Runtime) InstantiateAll(ctx context.Context, mods []NamedModule) ([]*Instance, error) {
	instances := make([]*Instance, len(mods))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for i, nm := range mods {
		i, nm := i, nm
		g.Go(func() error {
			mu.Lock()
			inst, err := rt.Instantiate(nm.Module, nm.Name)
			mu.Unlock()
			if err != nil {
				return err
			}
			instances[i] = inst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return instances, nil
}

// Export looks up a named export of this instance.
func (inst *Instance) Export(name string) (wasmstore.ExternVal, bool) {
	return inst.rt.store.InstanceExport(inst.addr, name)
}

// Invoke runs an exported function to completion with no fuel budget.
func (inst *Instance) Invoke(name string, args ...wasmtype.Value) ([]wasmtype.Value, error) {
	ev, ok := inst.Export(name)
	if !ok || ev.Kind != wasmtype.ExternFunc {
		return nil, &interp.Error{Kind: "FunctionNotFound", Message: "no exported function named " + name}
	}
	return interp.Invoke(inst.rt.store, ev.Func, args)
}

// CreateResumable prepares a fuel-limited, not-yet-run invocation of an
// exported function.
func (inst *Instance) CreateResumable(name string, fuel uint64, args ...wasmtype.Value) (interp.ResumableRef, error) {
	ev, ok := inst.Export(name)
	if !ok || ev.Kind != wasmtype.ExternFunc {
		return interp.ResumableRef{}, &interp.Error{Kind: "FunctionNotFound", Message: "no exported function named " + name}
	}
	return inst.rt.dorm.CreateResumable(ev.Func, args, fuel)
}

// Resume drives a suspended invocation forward.
func (rt *Runtime) Resume(ref interp.ResumableRef) (any, error) {
	return rt.dorm.Resume(ref)
}

// AccessFuelMut inspects or tops up a suspended invocation's fuel budget.
func (rt *Runtime) AccessFuelMut(ref interp.ResumableRef, f func(remaining uint64) uint64) error {
	return rt.dorm.AccessFuelMut(ref, f)
}
