// Package api includes constants and types used by both end-users and internal implementations.
package api

import (
	"fmt"
	"strconv"
)

// ValueKind classifies a Value.
type ValueKind byte

const (
	// ValueKindInt is a 32-bit signed integer. Booleans are represented as 0 and 1.
	ValueKindInt ValueKind = iota
	// ValueKindException marks a call that raised instead of returning a value.
	ValueKindException
)

// ValueKindName returns the name of the given kind.
func ValueKindName(k ValueKind) string {
	switch k {
	case ValueKindInt:
		return "int"
	case ValueKindException:
		return "exception"
	}
	return fmt.Sprintf("%#x", byte(k))
}

// Value is a tagged value as seen by the host: either an int32 or the exception marker.
//
// The zero value is NewInt(0).
type Value struct {
	kind ValueKind
	i    int32
}

// Exception is the value returned by a call that failed. Callers must consult the accompanying error.
var Exception = Value{kind: ValueKindException}

// NewInt returns an integer Value.
func NewInt(v int32) Value {
	return Value{kind: ValueKindInt, i: v}
}

// NewBool returns 1 for true and 0 for false.
func NewBool(b bool) Value {
	if b {
		return NewInt(1)
	}
	return NewInt(0)
}

// Kind returns the kind of this value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsException returns true if this is the Exception marker.
func (v Value) IsException() bool {
	return v.kind == ValueKindException
}

// Int returns the integer payload. The Exception marker has no payload and returns zero.
func (v Value) Int() int32 {
	return v.i
}

// Truthy returns false for integer zero and the Exception marker.
func (v Value) Truthy() bool {
	return v.kind == ValueKindInt && v.i != 0
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == ValueKindException {
		return "<exception>"
	}
	return strconv.FormatInt(int64(v.i), 10)
}

// EncodeInt returns the machine word handed to native code for the given integer. The sign is extended so that
// 64-bit arithmetic on the word agrees with 32-bit arithmetic in its low half.
func EncodeInt(v int32) uint64 {
	return uint64(int64(v))
}

// DecodeInt interprets the low 32 bits of a native machine word as a signed integer.
func DecodeInt(w uint64) int32 {
	return int32(uint32(w))
}

// Phase is the observable compilation phase of a function.
type Phase byte

const (
	// PhaseUncompiled is the phase of an attached function whose counter is below the threshold.
	PhaseUncompiled Phase = iota
	// PhaseEligible means the counter reached the threshold and compilation will be attempted.
	PhaseEligible
	// PhaseCompiling is only observable while the code generator runs.
	PhaseCompiling
	// PhaseCompiled means native code exists and calls are routed to it.
	PhaseCompiled
	// PhaseDisqualified means the function can never be compiled and stays interpreted.
	PhaseDisqualified
)

// PhaseName returns the name of the given phase.
func PhaseName(p Phase) string {
	switch p {
	case PhaseUncompiled:
		return "uncompiled"
	case PhaseEligible:
		return "eligible"
	case PhaseCompiling:
		return "compiling"
	case PhaseCompiled:
		return "compiled"
	case PhaseDisqualified:
		return "disqualified"
	}
	return fmt.Sprintf("%#x", byte(p))
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	return PhaseName(p)
}
