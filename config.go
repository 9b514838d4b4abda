package stackjit

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stackjit/stackjit/internal/interpreter"
	"github.com/stackjit/stackjit/internal/jit"
)

// Backend selects how compiled functions are materialized and executed.
type Backend byte

const (
	// BackendAuto uses BackendNative when NativeSupported, otherwise BackendPortable.
	BackendAuto Backend = iota
	// BackendPortable runs compiled functions on a portable register machine. It works on every platform.
	BackendPortable
	// BackendNative emits amd64 machine code into executable memory.
	BackendNative
)

// String implements fmt.Stringer.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendPortable:
		return "portable"
	case BackendNative:
		return "native"
	}
	return fmt.Sprintf("Backend(%d)", b)
}

// ParseBackend returns the Backend named by s, as printed by Backend.String.
func ParseBackend(s string) (Backend, error) {
	for _, b := range []Backend{BackendAuto, BackendPortable, BackendNative} {
		if b.String() == s {
			return b, nil
		}
	}
	return BackendAuto, fmt.Errorf("unknown backend %q", s)
}

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig
type RuntimeConfig struct {
	hotnessThreshold int32
	targetCapacity   int
	pendingCapacity  int
	backend          Backend
	logger           zerolog.Logger
	callStackCeiling int
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &RuntimeConfig{
	hotnessThreshold: jit.DefaultThreshold,
	targetCapacity:   jit.DefaultTargetCapacity,
	pendingCapacity:  jit.DefaultPendingCapacity,
	logger:           zerolog.Nop(),
	callStackCeiling: interpreter.DefaultCallStackCeiling,
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// NewRuntimeConfig returns the default configuration, which compiles natively where NativeSupported.
func NewRuntimeConfig() *RuntimeConfig {
	return engineLessConfig.clone()
}

// NewRuntimeConfigPortable compiles hot functions for the portable backend, which runs on every platform.
func NewRuntimeConfigPortable() *RuntimeConfig {
	ret := engineLessConfig.clone()
	ret.backend = BackendPortable
	return ret
}

// NewRuntimeConfigNative compiles hot functions into amd64 machine code.
//
// Note: NewRuntimeWithConfig panics if runtime.GOOS or runtime.GOARCH does not support native code. Use
// NewRuntimeConfig to safely detect and fallback to NewRuntimeConfigPortable if needed.
func NewRuntimeConfigNative() *RuntimeConfig {
	ret := engineLessConfig.clone()
	ret.backend = BackendNative
	return ret
}

// WithHotnessThreshold sets the number of interpreted invocations after which a function is compiled. Defaults to
// 10. Values below one compile on the first invocation.
func (c *RuntimeConfig) WithHotnessThreshold(threshold int32) *RuntimeConfig {
	ret := c.clone()
	ret.hotnessThreshold = threshold
	return ret
}

// WithTargetTableCapacity bounds the distinct branch targets of a compiled function. Functions with more targets
// stay interpreted. Defaults to 64.
func (c *RuntimeConfig) WithTargetTableCapacity(capacity int) *RuntimeConfig {
	ret := c.clone()
	ret.targetCapacity = capacity
	return ret
}

// WithPendingJumpCapacity bounds the number of branches of a compiled function. Functions with more branches stay
// interpreted. Defaults to 128.
func (c *RuntimeConfig) WithPendingJumpCapacity(capacity int) *RuntimeConfig {
	ret := c.clone()
	ret.pendingCapacity = capacity
	return ret
}

// WithBackend selects the backend. Defaults to BackendAuto.
func (c *RuntimeConfig) WithBackend(backend Backend) *RuntimeConfig {
	ret := c.clone()
	ret.backend = backend
	return ret
}

// WithLogger sets the logger receiving compile events. Defaults to zerolog.Nop.
func (c *RuntimeConfig) WithLogger(logger zerolog.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithCallStackCeiling limits the depth of nested interpreted calls. Defaults to 2000.
func (c *RuntimeConfig) WithCallStackCeiling(ceiling int) *RuntimeConfig {
	ret := c.clone()
	ret.callStackCeiling = ceiling
	return ret
}

// resolvedBackend replaces BackendAuto with the backend used on this platform.
func (c *RuntimeConfig) resolvedBackend() Backend {
	if c.backend == BackendAuto {
		if NativeSupported {
			return BackendNative
		}
		return BackendPortable
	}
	return c.backend
}

// engineConfig returns the jit.Config for this configuration.
func (c *RuntimeConfig) engineConfig() jit.Config {
	config := jit.Config{
		Threshold:       c.hotnessThreshold,
		TargetCapacity:  c.targetCapacity,
		PendingCapacity: c.pendingCapacity,
		Logger:          c.logger,
	}
	switch c.resolvedBackend() {
	case BackendNative:
		if !NativeSupported {
			panic(errors.New("native backend is not supported on this platform"))
		}
		config.NewAssembler, config.BackendName = jit.NativeAssembler, jit.BackendAMD64
	default:
		config.NewAssembler, config.BackendName = jit.PortableAssembler, jit.BackendPortable
	}
	return config
}
