package jit

import (
	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
	"github.com/stackjit/stackjit/internal/asm"
)

// DisqualifiedHotness is the hotness of a function that must never be compiled again.
const DisqualifiedHotness int32 = -1

// State is the compiled state of one bytecode function. It is created by Engine.Attach and owned by the Engine.
//
// Note: State is not safe for concurrent use. The host calls a function from one goroutine at a time.
type State struct {
	// fn is not owned.
	fn *bytecode.Function

	// hotness counts interpreted invocations, or is DisqualifiedHotness.
	hotness int32
	// retryAt is the hotness the next attempt waits for after an ordinary failure.
	retryAt int32

	// code is non-nil iff compiled is true.
	code     asm.Code
	compiled bool

	// assembler is only set while Engine.Compile runs.
	assembler asm.Assembler
}

// Function returns the bytecode function this state belongs to.
func (s *State) Function() *bytecode.Function {
	return s.fn
}

// Hotness returns the invocation counter, or DisqualifiedHotness.
func (s *State) Hotness() int32 {
	return s.hotness
}

// Compiled returns true if native code is available.
func (s *State) Compiled() bool {
	return s.compiled
}

// Disqualified returns true if the function will never be compiled.
func (s *State) Disqualified() bool {
	return s.hotness == DisqualifiedHotness
}

// NativeCode returns the materialized code, or nil if the function is not compiled.
func (s *State) NativeCode() []byte {
	if s.code == nil {
		return nil
	}
	return s.code.Bytes()
}

// phase reports the lifecycle phase given the engine's threshold.
func (s *State) phase(threshold int32) api.Phase {
	switch {
	case s.compiled:
		return api.PhaseCompiled
	case s.assembler != nil:
		return api.PhaseCompiling
	case s.Disqualified():
		return api.PhaseDisqualified
	case shouldCompile(s, threshold):
		return api.PhaseEligible
	}
	return api.PhaseUncompiled
}
