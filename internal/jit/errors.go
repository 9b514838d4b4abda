package jit

import "errors"

// Errors that disqualify a function permanently. See IsUnsupported.
var (
	// ErrUnsupportedOpcode is returned when the bytecode uses an opcode without a native translation.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrUnsupportedCall is returned when the bytecode calls another function.
	ErrUnsupportedCall = errors.New("function calls are not compiled")
	// ErrInvalidBytecode is returned when the bytecode does not decode or branches outside the function body.
	ErrInvalidBytecode = errors.New("invalid bytecode")
	// ErrStackMismatch is returned when the static stack depth underflows, exceeds the declared stack size or
	// differs between two paths reaching the same offset.
	ErrStackMismatch = errors.New("stack depth mismatch")
)

// Ordinary compile failures. The function stays eligible and is retried later.
var (
	// ErrTargetTableFull is returned when the bytecode has more distinct branch targets than the target table holds.
	ErrTargetTableFull = errors.New("branch target table is full")
	// ErrPendingJumpsFull is returned when the bytecode has more branches than the pending jump list holds.
	ErrPendingJumpsFull = errors.New("pending jump list is full")
	// ErrUnresolvedJump is returned when a branch has no label at its target offset.
	ErrUnresolvedJump = errors.New("unresolved jump")
	// ErrBackend is returned when the code emission backend fails.
	ErrBackend = errors.New("backend failure")
)

var (
	// ErrNotCompiled is returned by Invoke when the function has no native code.
	ErrNotCompiled = errors.New("function is not compiled")
	// ErrDisqualified is returned by Compile for a function that previously failed with an unsupported construct.
	ErrDisqualified = errors.New("function is disqualified from compilation")
)

// IsUnsupported returns true if err means the function can never be compiled.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOpcode) ||
		errors.Is(err, ErrUnsupportedCall) ||
		errors.Is(err, ErrInvalidBytecode) ||
		errors.Is(err, ErrStackMismatch)
}
