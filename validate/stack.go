package validate

import "github.com/wasmstack/wasmstack/wasmtype"

// push, pushN, pop, popExpect and popN implement the symbolic operand
// stack with the polymorphic "unreachable" floor from the Wasm validation
// algorithm appendix: once a frame is marked unreachable, popping past its
// base height yields the wildcard anyType instead of an error, and any
// type checks against anyType trivially succeed.
func (fv *funcValidator) push(t wasmtype.ValType) {
	fv.valStack = append(fv.valStack, t)
}

func (fv *funcValidator) pushN(ts []wasmtype.ValType) {
	for _, t := range ts {
		fv.push(t)
	}
}

func (fv *funcValidator) pop() (wasmtype.ValType, error) {
	cur := &fv.ctrl[len(fv.ctrl)-1]
	if len(fv.valStack) == cur.baseHeight {
		if cur.unreachable {
			return anyType, nil
		}
		return 0, errExpectedOperand()
	}
	t := fv.valStack[len(fv.valStack)-1]
	fv.valStack = fv.valStack[:len(fv.valStack)-1]
	return t, nil
}

func (fv *funcValidator) popExpect(want wasmtype.ValType) error {
	got, err := fv.pop()
	if err != nil {
		return err
	}
	if got == anyType || want == anyType {
		return nil
	}
	if got != want {
		return errTypeMismatch(want, got)
	}
	return nil
}

func (fv *funcValidator) popN(wants []wasmtype.ValType) error {
	for i := len(wants) - 1; i >= 0; i-- {
		if err := fv.popExpect(wants[i]); err != nil {
			return err
		}
	}
	return nil
}

func (fv *funcValidator) setUnreachable() {
	cur := &fv.ctrl[len(fv.ctrl)-1]
	fv.valStack = fv.valStack[:cur.baseHeight]
	cur.unreachable = true
}

// pushCtrl opens a new control frame, consuming ins (already popped by the
// caller) back onto the stack as the body's visible inputs.
func (fv *funcValidator) pushCtrl(kind ctrlKind, ins, outs []wasmtype.ValType) {
	fv.ctrl = append(fv.ctrl, ctrlFrame{
		kind:       kind,
		startTypes: ins,
		endTypes:   outs,
		baseHeight: len(fv.valStack),
		ifJumpIdx:  -1,
	})
	fv.pushN(ins)
}

// popCtrl closes the innermost control frame after checking its declared
// outputs are present and nothing else remains above its base height.
func (fv *funcValidator) popCtrl() (ctrlFrame, error) {
	cur := &fv.ctrl[len(fv.ctrl)-1]
	if err := fv.popN(cur.endTypes); err != nil {
		return ctrlFrame{}, err
	}
	if len(fv.valStack) != cur.baseHeight {
		return ctrlFrame{}, errEndInvalidValueStack()
	}
	popped := *cur
	fv.ctrl = fv.ctrl[:len(fv.ctrl)-1]
	return popped, nil
}

// takeSteps returns the instruction count accumulated since the last
// sidetable entry (at least 1) and resets the counter, implementing the
// per-sidetable-region fuel granularity spec.md §9 describes.
func (fv *funcValidator) takeSteps() uint64 {
	n := fv.steps
	if n == 0 {
		n = 1
	}
	fv.steps = 0
	return uint64(n)
}
