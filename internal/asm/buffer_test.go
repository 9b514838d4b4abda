package asm_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackjit/stackjit/internal/asm"
)

func TestCodeSegmentZeroValue(t *testing.T) {
	var code asm.CodeSegment
	require.Equal(t, uintptr(0), code.Addr())
	require.Equal(t, 0, code.Len())
	require.Equal(t, ([]byte)(nil), code.Bytes())
	require.NoError(t, code.Unmap())
}

func TestCodeSegmentMapUnmap(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "freebsd" {
		t.Skip()
	}

	src := []byte{0xc3, 0x90, 0x90, 0x90}
	code, err := asm.MapCodeSegment(src)
	require.NoError(t, err)
	require.NotEqual(t, uintptr(0), code.Addr())
	require.Equal(t, len(src), code.Len())
	require.Equal(t, src, code.Bytes())

	for i := 0; i < 3; i++ {
		require.NoError(t, code.Unmap())
		require.Equal(t, uintptr(0), code.Addr())
		require.Equal(t, 0, code.Len())
		require.Equal(t, ([]byte)(nil), code.Bytes())
	}
}
