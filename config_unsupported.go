//go:build !amd64 || !(linux || darwin || freebsd)

package stackjit

// NativeSupported is true when BackendNative can run on this platform.
const NativeSupported = false
