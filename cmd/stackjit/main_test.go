package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackjit/stackjit"
)

const programsPath = "testdata/programs.sjasm"

// runMain runs the command line with colors disabled and returns the exit code and what was written.
func runMain(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdOut, stdErr bytes.Buffer
	exitCode := -1
	doMain(append([]string{"--no-color"}, args...), &stdOut, &stdErr, func(code int) {
		exitCode = code
	})
	return exitCode, stdOut.String(), stdErr.String()
}

func TestRun(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, "run", "--backend", "portable", "--calls", "10", programsPath, "simple_add", "5")
	require.Equal(t, 0, exitCode, stdErr)

	lines := strings.Split(strings.TrimSpace(stdOut), "\n")
	require.Len(t, lines, 11)
	for i := 0; i < 9; i++ {
		require.Contains(t, lines[i], ": 7 (interpreted)")
	}
	require.Equal(t, "call 10: 7 (compiled, portable)", lines[9])
	require.Equal(t, "simple_add: phase=compiled hotness=10 attempts=1 compiled=1 failed=0 disqualified=0", lines[10])
}

func TestRun_Disqualified(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, "run", "--backend", "portable", "--threshold", "1", programsPath, "fib", "10")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "call 1: 55 (interpreted)")
	require.Contains(t, stdOut, "fib: phase=disqualified")
}

func TestRun_Env(t *testing.T) {
	t.Setenv("STACKJIT_BACKEND", "portable")
	t.Setenv("STACKJIT_THRESHOLD", "1")
	t.Setenv("STACKJIT_LOG_LEVEL", "info")

	exitCode, stdOut, stdErr := runMain(t, "run", programsPath, "simple_add", "1")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "call 1: 1 (compiled, portable)")
	require.Contains(t, stdErr, "compiled")
	require.Contains(t, stdErr, "function=simple_add")
}

func TestDump(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, "dump", "--backend", "portable", programsPath, "simple_add")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "simple_add args=1 stack=2 size=12\n")
	require.Contains(t, stdOut, "targets: [7]\n")
	require.Contains(t, stdOut, "phase: compiled\n")
	require.Contains(t, stdOut, "bytes (portable)\n")
}

func TestDump_Native(t *testing.T) {
	if !stackjit.NativeSupported {
		t.Skip()
	}
	exitCode, stdOut, stdErr := runMain(t, "dump", "--backend", "native", programsPath, "simple_add")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "bytes (native)\n")
}

func TestDisasm(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, "disasm", programsPath)
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, ".func simple_add args=1 stack=2\n")
	require.Contains(t, stdOut, "if_false8 L0007")
	require.Contains(t, stdOut, "L0007:\n")
	require.Contains(t, stdOut, "call fib 1")
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectedErr string
	}{
		{
			name:        "missing function",
			args:        []string{"run", programsPath, "nope"},
			expectedErr: `function "nope" not found in testdata/programs.sjasm (have fib, simple_add)`,
		},
		{
			name:        "bad argument",
			args:        []string{"run", programsPath, "simple_add", "x"},
			expectedErr: `argument 0: "x" is not a 32-bit integer`,
		},
		{
			name:        "unknown backend",
			args:        []string{"run", "--backend", "jet", programsPath, "simple_add", "1"},
			expectedErr: `unknown backend "jet"`,
		},
		{
			name:        "bad log level",
			args:        []string{"disasm", "--log-level", "loud", programsPath},
			expectedErr: "loud",
		},
		{
			name:        "disqualified",
			args:        []string{"dump", "--backend", "portable", programsPath, "fib"},
			expectedErr: "function calls are not compiled",
		},
		{
			name:        "invalid branch",
			args:        []string{"disasm", "testdata/bad_target.sjasm"},
			expectedErr: "invalid branch target",
		},
		{
			name:        "missing file",
			args:        []string{"disasm", "testdata/missing.sjasm"},
			expectedErr: "no such file or directory",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tc.args...)
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tc.expectedErr)
		})
	}
}
