//go:build !amd64

package asm_amd64

// nativecall is never reached on other architectures since platform.CompilerSupported is false there.
func nativecall(codeSegment, frame uintptr) {
	panic(ErrUnsupportedPlatform)
}
