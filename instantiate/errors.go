// Package instantiate implements component H: the ten-step instantiation
// algorithm that links a validated module against supplied imports,
// allocates its runtime instances in a Store, and runs its active
// element/data segments and start function.
package instantiate

import "fmt"

// Error is the RuntimeError family this package raises: import
// type-checking failures and the traps that can occur while running active
// segments or the start function during instantiation, per spec.md §7.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func errf(kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errInvalidImportType(moduleName, name string) error {
	return errf("InvalidImportType", "incompatible import type for %s.%s", moduleName, name)
}

func errImportCountMismatch() error {
	return errf("InvalidImportType", "wrong number of externs supplied for module imports")
}
