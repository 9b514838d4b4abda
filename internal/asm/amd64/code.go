package asm_amd64

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/stackjit/stackjit/internal/asm"
	"github.com/stackjit/stackjit/internal/platform"
)

// ErrUnsupportedPlatform is returned when native code is called on a host that cannot run it.
var ErrUnsupportedPlatform = fmt.Errorf("native code cannot run on %s/%s", runtime.GOOS, runtime.GOARCH)

// code implements asm.Code for machine code in an executable mapping.
type code struct {
	bytes []byte
	// seg is nil when the host cannot execute amd64 code.
	seg    *asm.CodeSegment
	closed bool
}

func newCode(b []byte) (*code, error) {
	if len(b) == 0 {
		return nil, errors.New("no instructions to assemble")
	}
	c := &code{bytes: b}
	if platform.CompilerSupported() {
		seg, err := asm.MapCodeSegment(b)
		if err != nil {
			return nil, fmt.Errorf("failed to map code segment: %w", err)
		}
		c.seg = seg
	}
	return c, nil
}

// Bytes implements asm.Code.Bytes
func (c *code) Bytes() []byte {
	return c.bytes
}

// Close implements asm.Code.Close
func (c *code) Close() (err error) {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.seg != nil {
		err = c.seg.Unmap()
		c.seg = nil
	}
	return
}

// Call implements asm.Code.Call
//
// The frame, the arguments and the virtual stack share one heap allocation laid out like the portable backend's
// arena, so generated code sees the same addresses relative to the frame on every backend.
func (c *code) Call(args []uint64, stackSlots int) (uint64, error) {
	if c.closed {
		return 0, asm.ErrClosed
	}
	if c.seg == nil {
		return 0, ErrUnsupportedPlatform
	}
	if stackSlots < 0 {
		return 0, fmt.Errorf("invalid stack size %d", stackSlots)
	}

	const headerWords = asm.CallFrameSize / 8
	mem := make([]uint64, headerWords+len(args)+stackSlots+1)
	base := uintptr(unsafe.Pointer(&mem[0]))
	frame := (*asm.CallFrame)(unsafe.Pointer(&mem[0]))
	frame.Argc = uint64(len(args))
	frame.Argv = uint64(base + asm.CallFrameSize)
	frame.Stack = uint64(base + asm.CallFrameSize + uintptr(len(args))*8)
	copy(mem[headerWords:], args)

	nativecall(c.seg.Addr(), base)
	runtime.KeepAlive(mem)
	return frame.Result, nil
}
