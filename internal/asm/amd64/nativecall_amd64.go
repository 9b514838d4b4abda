package asm_amd64

// nativecall jumps to codeSegment with frame in R12. The generated code returns directly to the caller of nativecall.
//
//go:noescape
func nativecall(codeSegment, frame uintptr)
