package asm

import (
	"unsafe"

	"github.com/stackjit/stackjit/internal/platform"
)

// CodeSegment represents a memory mapped segment holding native CPU instructions.
//
// Instances of CodeSegment hold references to memory which is NOT managed by
// the garbage collector and therefore must be released *manually* by calling
// their Unmap method to prevent memory leaks.
//
// The zero value is a valid, empty code segment.
type CodeSegment struct {
	code []byte
}

// MapCodeSegment copies code into a new executable mapping.
func MapCodeSegment(code []byte) (*CodeSegment, error) {
	b, err := platform.MmapCodeSegment(code)
	if err != nil {
		return nil, err
	}
	return &CodeSegment{code: b}, nil
}

// Unmap unmaps the underlying memory region held by the code segment, clearing
// its state back to an empty code segment.
func (seg *CodeSegment) Unmap() error {
	if seg.code != nil {
		if err := platform.MunmapCodeSegment(seg.code[:cap(seg.code)]); err != nil {
			return err
		}
		seg.code = nil
	}
	return nil
}

// Addr returns the address of the beginning of the code segment as a uintptr.
func (seg *CodeSegment) Addr() uintptr {
	if len(seg.code) > 0 {
		return uintptr(unsafe.Pointer(&seg.code[0]))
	}
	return 0
}

// Len returns the length of the mapped code.
func (seg *CodeSegment) Len() int {
	return len(seg.code)
}

// Bytes returns a byte slice to the memory mapping of the code segment.
//
// The returned slice remains valid until Unmap is called.
func (seg *CodeSegment) Bytes() []byte {
	return seg.code
}
