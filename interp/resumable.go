package interp

import (
	"github.com/wasmstack/wasmstack/wasmstore"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// ResumableRef names a suspended invocation parked in a Dormitory. Like
// every other handle described in spec.md §4.F, it carries the minting
// Store's id so a ref from one Store can never be resumed against another.
type ResumableRef struct {
	id    uint64
	store wasmstore.StoreId
}

func (r ResumableRef) check(id wasmstore.StoreId) error {
	if r.store != id {
		return wasmstore.ErrStoreIdMismatch
	}
	return nil
}

// Finished is Resume's result when the invocation ran to completion.
type Finished struct {
	Values        []wasmtype.Value
	RemainingFuel uint64
}

// Suspended is Resume's result when the fuel budget ran out before
// completion; Ref resumes exactly where execution left off.
type Suspended struct {
	Ref          ResumableRef
	RequiredFuel uint64
}

// Dormitory maps ResumableRefs to their parked machine state, per spec.md
// §4.J. It holds no Store-independent state of its own: every ref it mints
// is tagged with the owning Store's id.
type Dormitory struct {
	store   *wasmstore.Store
	next    uint64
	pending map[uint64]*machine
}

// NewDormitory creates a Dormitory bound to store.
func NewDormitory(store *wasmstore.Store) *Dormitory {
	return &Dormitory{store: store, pending: map[uint64]*machine{}}
}

func checkArgTypes(args []wasmtype.Value, want []wasmtype.ValType) error {
	if len(args) != len(want) {
		return errFunctionInvocationSignatureMismatch("wrong number of arguments")
	}
	for i, v := range args {
		if v.Type != want[i] {
			return errFunctionInvocationSignatureMismatch("argument type mismatch")
		}
	}
	return nil
}

// CreateResumable validates args against addr's declared signature and
// prepares the first call frame, without running any of it; the caller
// drives progress via Resume.
func (d *Dormitory) CreateResumable(addr wasmstore.FuncAddr, args []wasmtype.Value, fuel uint64) (ResumableRef, error) {
	fi, ok := d.store.Func(addr)
	if !ok {
		return ResumableRef{}, errFunctionNotFound
	}
	if err := checkArgTypes(args, fi.FuncType().Params); err != nil {
		return ResumableRef{}, err
	}

	m := &machine{store: d.store, userData: d.store.UserData, fuelLimited: true, fuel: fuel}
	for _, v := range args {
		m.push(v)
	}
	if err := m.call(addr); err != nil {
		return ResumableRef{}, err
	}

	id := d.next
	d.next++
	d.pending[id] = m
	return ResumableRef{id: id, store: d.store.Id()}, nil
}

// Resume runs the invocation parked at ref until it either completes or
// exhausts its fuel budget again. Per spec.md §4.J, cancellation is
// implicit: a ref that is never resumed again simply leaks no further work
// and its parked state is reclaimed only when the Dormitory itself is
// discarded.
func (d *Dormitory) Resume(ref ResumableRef) (any, error) {
	if err := ref.check(d.store.Id()); err != nil {
		return nil, err
	}
	m, ok := d.pending[ref.id]
	if !ok {
		return nil, errf("RuntimeError", "resumable ref not found")
	}
	delete(d.pending, ref.id)

	values, err := m.run()
	if err != nil {
		if oe, isErr := err.(*Error); isErr && oe.Kind == "OutOfFuel" {
			d.pending[ref.id] = m
			return Suspended{Ref: ref, RequiredFuel: oe.Required}, nil
		}
		return nil, err
	}
	return Finished{Values: values, RemainingFuel: m.fuel}, nil
}

// AccessFuelMut lets the caller inspect or top up a suspended invocation's
// remaining fuel budget; f receives the current value and returns the new
// one.
func (d *Dormitory) AccessFuelMut(ref ResumableRef, f func(remaining uint64) uint64) error {
	if err := ref.check(d.store.Id()); err != nil {
		return err
	}
	m, ok := d.pending[ref.id]
	if !ok {
		return errf("RuntimeError", "resumable ref not found")
	}
	m.fuel = f(m.fuel)
	return nil
}

// Invoke runs addr to completion with no fuel budget, matching
// instantiate.Invoker's shape so the root package can wire this directly
// into instantiate.Module's start-function step.
func Invoke(store *wasmstore.Store, addr wasmstore.FuncAddr, args []wasmtype.Value) ([]wasmtype.Value, error) {
	fi, ok := store.Func(addr)
	if !ok {
		return nil, errFunctionNotFound
	}
	if err := checkArgTypes(args, fi.FuncType().Params); err != nil {
		return nil, err
	}

	m := &machine{store: store, userData: store.UserData}
	for _, v := range args {
		m.push(v)
	}
	if err := m.call(addr); err != nil {
		return nil, err
	}
	return m.run()
}
