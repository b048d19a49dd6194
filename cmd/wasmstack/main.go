package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmstack/wasmstack"
	"github.com/wasmstack/wasmstack/interp"
	"github.com/wasmstack/wasmstack/wasmtype"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wasmstack",
		Short: "Validate, instantiate, and invoke WebAssembly modules",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var fuel uint64
	cmd := &cobra.Command{
		Use:   "run <module.wasm> <function> [i32-args...]",
		Short: "Instantiate a module and invoke one of its exports",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(args[0], args[1], args[2:], fuel)
		},
	}
	cmd.Flags().Uint64Var(&fuel, "fuel", 0, "fuel budget; 0 means unlimited")
	return cmd
}

func runModule(path, fn string, rawArgs []string, fuel uint64) error {
	bin, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	rt := wasmstack.NewRuntime(wasmstack.RuntimeConfig{Log: logrus.NewEntry(logrus.StandardLogger())})
	mod, err := rt.CompileModule(bin)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	inst, err := rt.Instantiate(mod, "main")
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}

	args := make([]wasmtype.Value, len(rawArgs))
	for i, a := range rawArgs {
		n, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = wasmtype.I32Val(int32(n))
	}

	if fuel == 0 {
		results, err := inst.Invoke(fn, args...)
		if err != nil {
			return err
		}
		printResults(results)
		return nil
	}

	ref, err := inst.CreateResumable(fn, fuel, args...)
	if err != nil {
		return err
	}
	for {
		result, err := rt.Resume(ref)
		if err != nil {
			return err
		}
		switch r := result.(type) {
		case interp.Finished:
			printResults(r.Values)
			return nil
		case interp.Suspended:
			fmt.Printf("suspended: required %d more fuel\n", r.RequiredFuel)
			if err := rt.AccessFuelMut(r.Ref, func(remaining uint64) uint64 { return remaining + r.RequiredFuel }); err != nil {
				return err
			}
			ref = r.Ref
		}
	}
}

func printResults(values []wasmtype.Value) {
	for _, v := range values {
		fmt.Printf("%s:%#x\n", v.Type, v.Bits())
	}
}
