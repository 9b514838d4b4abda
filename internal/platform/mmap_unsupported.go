//go:build !(linux || darwin || freebsd)

package platform

import (
	"fmt"
	"runtime"
)

var errUnsupported = fmt.Errorf("mmap unsupported on GOOS=%s. Use the portable backend instead.", runtime.GOOS)

func mmapCodeSegment(int) ([]byte, error) {
	return nil, errUnsupported
}

func mprotectRX([]byte) error {
	return errUnsupported
}

func munmapCodeSegment([]byte) error {
	return errUnsupported
}
