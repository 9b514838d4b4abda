// Package platform includes runtime-specific code needed to map native code into executable memory.
//
// Note: This is a dependency-free alternative to depending on parts of Go's x/sys.
package platform

import (
	"errors"
	"runtime"
)

// CompilerSupported returns true if native code can be generated, mapped and entered on this host.
func CompilerSupported() bool {
	if runtime.GOARCH != "amd64" {
		return false
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return true
	}
	return false
}

// MmapCodeSegment copies code into a fresh anonymous mapping and makes it executable. The mapping is never writable
// and executable at the same time.
//
// See https://man7.org/linux/man-pages/man2/mmap.2.html for mmap API and flags.
func MmapCodeSegment(code []byte) ([]byte, error) {
	if len(code) == 0 {
		panic(errors.New("BUG: MmapCodeSegment with zero length"))
	}
	mapped, err := mmapCodeSegment(len(code))
	if err != nil {
		return nil, err
	}
	copy(mapped, code)
	if err = mprotectRX(mapped); err != nil {
		_ = munmapCodeSegment(mapped)
		return nil, err
	}
	return mapped, nil
}

// MunmapCodeSegment unmaps the given memory region.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic(errors.New("BUG: MunmapCodeSegment with zero length"))
	}
	return munmapCodeSegment(code)
}
