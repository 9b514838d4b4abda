// Package jit compiles hot bytecode functions into native code and runs them.
//
// An Engine owns one State per attached function in a side table. The host records every interpreted invocation,
// asks ShouldCompile, and once that is true calls Compile. A successful compile makes Invoke available until the
// state is torn down. A function using a construct the generator cannot translate is disqualified and runs
// interpreted for the lifetime of the Engine.
package jit

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
	"github.com/stackjit/stackjit/internal/asm"
)

const (
	// DefaultThreshold is the number of interpreted invocations after which a function is compiled.
	DefaultThreshold int32 = 10
	// DefaultTargetCapacity is the default number of distinct branch targets per function.
	DefaultTargetCapacity = 64
	// DefaultPendingCapacity is the default number of branches per function.
	DefaultPendingCapacity = 128
)

// Config configures an Engine.
type Config struct {
	// Threshold is the hotness at which a function becomes eligible. Values below one mean one.
	Threshold int32
	// TargetCapacity bounds the target table. Zero means DefaultTargetCapacity.
	TargetCapacity int
	// PendingCapacity bounds the pending jump list. Zero means DefaultPendingCapacity.
	PendingCapacity int
	// NewAssembler returns a fresh assembler for each compile attempt. Nil means the portable backend.
	NewAssembler func() (asm.Assembler, error)
	// BackendName is used in log events.
	BackendName string
	// Logger receives compile events. The zero value logs nothing.
	Logger zerolog.Logger
}

// Stats counts compile attempts since the Engine was created.
type Stats struct {
	Attempts, Compiled, Failed, Disqualified int
}

// Engine is the compiled-state lifecycle manager.
//
// Note: Engine is not goroutine-safe. Compilation and execution run to completion on the calling goroutine.
type Engine struct {
	config Config
	states map[*bytecode.Function]*State
	stats  Stats
	logger zerolog.Logger
}

// NewEngine returns an Engine with defaults applied to config.
func NewEngine(config Config) *Engine {
	if config.Threshold < 1 {
		config.Threshold = 1
	}
	if config.TargetCapacity <= 0 {
		config.TargetCapacity = DefaultTargetCapacity
	}
	if config.PendingCapacity <= 0 {
		config.PendingCapacity = DefaultPendingCapacity
	}
	if config.NewAssembler == nil {
		config.NewAssembler, config.BackendName = PortableAssembler, BackendPortable
	}
	return &Engine{
		config: config,
		states: map[*bytecode.Function]*State{},
		logger: config.Logger.With().Str("backend", config.BackendName).Logger(),
	}
}

// Threshold returns the hotness at which functions become eligible.
func (e *Engine) Threshold() int32 {
	return e.config.Threshold
}

// Attach returns the state of fn, creating it on first use. It never compiles.
func (e *Engine) Attach(fn *bytecode.Function) *State {
	if s, ok := e.states[fn]; ok {
		return s
	}
	s := &State{fn: fn}
	e.states[fn] = s
	return s
}

// Lookup returns the state of fn or nil if fn was never attached.
func (e *Engine) Lookup(fn *bytecode.Function) *State {
	return e.states[fn]
}

// Len returns the number of attached functions.
func (e *Engine) Len() int {
	return len(e.states)
}

// RecordInvocation counts one interpreted invocation of s.
func (e *Engine) RecordInvocation(s *State) {
	recordInvocation(s)
}

// ShouldCompile returns true if s is hot enough and neither compiled nor disqualified.
func (e *Engine) ShouldCompile(s *State) bool {
	return shouldCompile(s, e.config.Threshold)
}

// Phase returns where s is in its lifecycle.
func (e *Engine) Phase(s *State) api.Phase {
	return s.phase(e.config.Threshold)
}

// Stats returns the compile counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Compile translates the function of s into native code. Compiling a compiled state does nothing.
//
// On failure s stays uncompiled. If IsUnsupported(err), s is disqualified. Otherwise the next attempt is deferred
// until the hotness doubles. The assembler is released on every path.
func (e *Engine) Compile(s *State) (err error) {
	if s.compiled {
		return nil
	}
	if s.Disqualified() {
		return fmt.Errorf("%s: %w", s.fn, ErrDisqualified)
	}

	e.stats.Attempts++
	e.logger.Debug().Str("function", s.fn.String()).Int("size", len(s.fn.Code)).Int32("hotness", s.hotness).
		Msg("compiling")

	var code asm.Code
	code, err = e.compile(s)
	if err != nil {
		err = fmt.Errorf("%s: %w", s.fn, err)
		e.stats.Failed++
		if IsUnsupported(err) {
			disqualify(s)
			e.stats.Disqualified++
			e.logger.Warn().Err(err).Str("function", s.fn.String()).Msg("disqualified from compilation")
		} else {
			backOff(s)
			e.logger.Warn().Err(err).Str("function", s.fn.String()).Int32("retry_at", s.retryAt).Msg("compile failed")
		}
		return err
	}

	s.code, s.compiled = code, true
	e.stats.Compiled++
	e.logger.Info().Str("function", s.fn.String()).Int("native_size", len(code.Bytes())).Msg("compiled")
	return nil
}

// compile runs prescan, generation, resolution and materialization with an assembler owned by s for the duration.
func (e *Engine) compile(s *State) (asm.Code, error) {
	targets, err := prescan(s.fn.Code, e.config.TargetCapacity)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("function", s.fn.String()).Int("targets", targets.len()).Msg("prescan done")

	a, err := e.config.NewAssembler()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	s.assembler = a
	defer func() {
		// Teardown may already have released it.
		if s.assembler != nil {
			s.assembler.Release()
			s.assembler = nil
		}
	}()

	g := newGenerator(a, s.fn, targets, e.config.PendingCapacity)
	if err = g.generate(); err != nil {
		return nil, err
	}
	code, err := a.Assemble()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return code, nil
}

// Teardown releases the native code of s and any in-flight assembler. A nil state or a second call does nothing.
// The state stays attached and keeps its hotness.
func (e *Engine) Teardown(s *State) error {
	if s == nil {
		return nil
	}
	if s.assembler != nil {
		s.assembler.Release()
		s.assembler = nil
	}
	if s.code == nil {
		return nil
	}
	err := s.code.Close()
	s.code, s.compiled = nil, false
	if err != nil {
		e.logger.Error().Err(err).Str("function", s.fn.String()).Msg("failed to release native code")
	}
	return err
}

// Detach tears down the state of fn and removes it from the side table.
func (e *Engine) Detach(fn *bytecode.Function) error {
	s, ok := e.states[fn]
	if !ok {
		return nil
	}
	delete(e.states, fn)
	return e.Teardown(s)
}

// Close tears down every state. The Engine is empty afterwards and may be reused.
func (e *Engine) Close() error {
	var result *multierror.Error
	for fn, s := range e.states {
		if err := e.Teardown(s); err != nil {
			result = multierror.Append(result, err)
		}
		delete(e.states, fn)
	}
	return result.ErrorOrNil()
}
