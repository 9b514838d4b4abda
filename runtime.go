// Package stackjit runs bytecode functions, interpreting them until they are hot and then executing them as
// compiled code.
//
// Ex.
//
//	p, _ := bytecode.ParseProgramString(source)
//	r := stackjit.NewRuntime()
//	defer r.Close()
//	v, _ := r.Call(p.Function("simple_add"), api.NewInt(5))
package stackjit

import (
	"errors"
	"fmt"

	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
	"github.com/stackjit/stackjit/internal/interpreter"
	"github.com/stackjit/stackjit/internal/jit"
)

// ErrNilFunction is returned when a nil function is called or compiled.
var ErrNilFunction = errors.New("nil function")

// Runtime is the host side of the compiler. It owns the compiled state of every function it has called.
//
// Note: Runtime is not goroutine-safe. Callers must not call it from multiple goroutines at once.
type Runtime interface {
	// Call runs f with args. Each interpreted call makes f hotter. Once f is hot it is compiled, and if that succeeds
	// this and later calls run compiled code. Calls from f to other functions go through Call as well.
	Call(f *bytecode.Function, args ...api.Value) (api.Value, error)

	// RecordInvocation counts one interpreted invocation of f without running it.
	RecordInvocation(f *bytecode.Function)

	// ShouldCompile returns true if f is hot enough to compile and neither compiled nor disqualified.
	ShouldCompile(f *bytecode.Function) bool

	// Compile compiles f regardless of its hotness. Compiling a compiled function does nothing.
	Compile(f *bytecode.Function) error

	// Invoke runs the compiled code of f. It returns api.Exception and an error if f is not compiled.
	Invoke(f *bytecode.Function, args ...api.Value) (api.Value, error)

	// Teardown releases the compiled code of f. f keeps its hotness and may be compiled again.
	Teardown(f *bytecode.Function) error

	// Phase returns where f is in its compilation lifecycle.
	Phase(f *bytecode.Function) api.Phase

	// Hotness returns the invocation counter of f, or a negative value if f is disqualified.
	Hotness(f *bytecode.Function) int32

	// NativeCode returns the compiled code of f, or nil if f is not compiled.
	NativeCode(f *bytecode.Function) []byte

	// Stats returns compile counters.
	Stats() Stats

	// Backend returns the backend in use. It is never BackendAuto.
	Backend() Backend

	// Close releases all compiled code. The Runtime may be used afterwards and starts cold.
	Close() error
}

// Stats counts compile attempts of a Runtime.
type Stats struct {
	// Attempts is the number of compilations started.
	Attempts int
	// Compiled is the number of successful compilations.
	Compiled int
	// Failed is the number of failed compilations, including disqualifications.
	Failed int
	// Disqualified is the number of functions that will never be compiled.
	Disqualified int
}

// NewRuntime returns a runtime with NewRuntimeConfig.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(config *RuntimeConfig) Runtime {
	return &runtime{
		engine:  jit.NewEngine(config.engineConfig()),
		interp:  interpreter.New(config.callStackCeiling),
		backend: config.resolvedBackend(),
	}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	engine  *jit.Engine
	interp  *interpreter.Interpreter
	backend Backend
}

// Call implements Runtime.Call
func (r *runtime) Call(f *bytecode.Function, args ...api.Value) (api.Value, error) {
	if f == nil {
		return api.Exception, ErrNilFunction
	}
	for i, arg := range args {
		if arg.IsException() {
			return api.Exception, fmt.Errorf("%s: argument %d is an exception", f, i)
		}
	}

	s := r.engine.Attach(f)
	if !s.Compiled() {
		r.engine.RecordInvocation(s)
		if r.engine.ShouldCompile(s) {
			// Failures are logged by the engine and the call falls back to the interpreter.
			_ = r.engine.Compile(s)
		}
	}
	if s.Compiled() {
		return r.engine.Invoke(s, args)
	}
	return r.interp.Run(f, args, r.call)
}

// call is the interpreter's route for calls made by bytecode.
func (r *runtime) call(callee *bytecode.Function, args []api.Value) (api.Value, error) {
	return r.Call(callee, args...)
}

// RecordInvocation implements Runtime.RecordInvocation
func (r *runtime) RecordInvocation(f *bytecode.Function) {
	if f == nil {
		return
	}
	r.engine.RecordInvocation(r.engine.Attach(f))
}

// ShouldCompile implements Runtime.ShouldCompile
func (r *runtime) ShouldCompile(f *bytecode.Function) bool {
	if f == nil {
		return false
	}
	return r.engine.ShouldCompile(r.engine.Attach(f))
}

// Compile implements Runtime.Compile
func (r *runtime) Compile(f *bytecode.Function) error {
	if f == nil {
		return ErrNilFunction
	}
	return r.engine.Compile(r.engine.Attach(f))
}

// Invoke implements Runtime.Invoke
func (r *runtime) Invoke(f *bytecode.Function, args ...api.Value) (api.Value, error) {
	return r.engine.Invoke(r.engine.Lookup(f), args)
}

// Teardown implements Runtime.Teardown
func (r *runtime) Teardown(f *bytecode.Function) error {
	return r.engine.Teardown(r.engine.Lookup(f))
}

// Phase implements Runtime.Phase
func (r *runtime) Phase(f *bytecode.Function) api.Phase {
	if s := r.engine.Lookup(f); s != nil {
		return r.engine.Phase(s)
	}
	return api.PhaseUncompiled
}

// Hotness implements Runtime.Hotness
func (r *runtime) Hotness(f *bytecode.Function) int32 {
	if s := r.engine.Lookup(f); s != nil {
		return s.Hotness()
	}
	return 0
}

// NativeCode implements Runtime.NativeCode
func (r *runtime) NativeCode(f *bytecode.Function) []byte {
	if s := r.engine.Lookup(f); s != nil {
		return s.NativeCode()
	}
	return nil
}

// Stats implements Runtime.Stats
func (r *runtime) Stats() Stats {
	s := r.engine.Stats()
	return Stats{Attempts: s.Attempts, Compiled: s.Compiled, Failed: s.Failed, Disqualified: s.Disqualified}
}

// Backend implements Runtime.Backend
func (r *runtime) Backend() Backend {
	return r.backend
}

// Close implements Runtime.Close
func (r *runtime) Close() error {
	return r.engine.Close()
}
