package jit

import (
	"github.com/stackjit/stackjit/internal/asm"
	asm_amd64 "github.com/stackjit/stackjit/internal/asm/amd64"
	"github.com/stackjit/stackjit/internal/asm/portable"
	"github.com/stackjit/stackjit/internal/platform"
)

// Backend names reported in logs.
const (
	BackendPortable = "portable"
	BackendAMD64    = "amd64"
)

// PortableAssembler returns an assembler whose code runs on every platform.
func PortableAssembler() (asm.Assembler, error) {
	return portable.NewAssembler(), nil
}

// NativeAssembler returns an amd64 assembler. Its code only runs when NativeSupported is true, but it encodes
// everywhere, which lets tooling show machine code on any host.
func NativeAssembler() (asm.Assembler, error) {
	return asm_amd64.NewAssembler()
}

// NativeSupported returns true if NativeAssembler code can run on this host.
func NativeSupported() bool {
	return platform.CompilerSupported()
}
