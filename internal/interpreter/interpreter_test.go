package interpreter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
)

const programs = `
.func fib args=1
    get_arg0
    push_1
    lte
    if_false8 recurse
    get_arg0
    return
recurse:
    get_arg0
    push_1
    sub
    call fib 1
    get_arg0
    push_i8 2
    sub
    call fib 1
    add
    return

.func simple_add args=1
    get_arg0
    push_1
    lte
    if_false8 else
    get_arg0
    return
else:
    get_arg0
    push_i8 2
    add
    return

.func add_if_nonzero args=1
    push_0
    get_arg0
    if_false done
    get_arg0
    add
    get_arg0
    push_1
    sub
    drop
    goto done
done:
    return

.func compare args=2
    get_arg0
    get_arg 1
    lt
    get_arg0
    get_arg 1
    eq
    push_i8 10
    mul
    add
    return

.func recurse_forever
    call recurse_forever 0
    return
`

func mustParse(t *testing.T) *bytecode.Program {
	p, err := bytecode.ParseProgramString(programs)
	require.NoError(t, err)
	return p
}

func TestInterpreter_Run(t *testing.T) {
	p := mustParse(t)

	tests := []struct {
		name     string
		fn       string
		args     []api.Value
		expected int32
	}{
		{name: "fib(0)", fn: "fib", args: []api.Value{api.NewInt(0)}, expected: 0},
		{name: "fib(1)", fn: "fib", args: []api.Value{api.NewInt(1)}, expected: 1},
		{name: "fib(10)", fn: "fib", args: []api.Value{api.NewInt(10)}, expected: 55},
		{name: "fib(20)", fn: "fib", args: []api.Value{api.NewInt(20)}, expected: 6765},
		{name: "simple_add(1)", fn: "simple_add", args: []api.Value{api.NewInt(1)}, expected: 1},
		{name: "simple_add(5)", fn: "simple_add", args: []api.Value{api.NewInt(5)}, expected: 7},
		{name: "simple_add(-7)", fn: "simple_add", args: []api.Value{api.NewInt(-7)}, expected: -7},
		{name: "simple_add missing argument", fn: "simple_add", expected: 0},
		{name: "simple_add extra argument", fn: "simple_add", args: []api.Value{api.NewInt(3), api.NewInt(99)}, expected: 5},
		{name: "simple_add wraps", fn: "simple_add", args: []api.Value{api.NewInt(math.MaxInt32)}, expected: math.MinInt32 + 1},
		{name: "add_if_nonzero(4)", fn: "add_if_nonzero", args: []api.Value{api.NewInt(4)}, expected: 4},
		{name: "add_if_nonzero(0)", fn: "add_if_nonzero", args: []api.Value{api.NewInt(0)}, expected: 0},
		{name: "compare less", fn: "compare", args: []api.Value{api.NewInt(1), api.NewInt(2)}, expected: 1},
		{name: "compare equal", fn: "compare", args: []api.Value{api.NewInt(2), api.NewInt(2)}, expected: 10},
		{name: "compare greater", fn: "compare", args: []api.Value{api.NewInt(3), api.NewInt(2)}, expected: 0},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			it := New(0)
			actual, err := it.Run(p.Function(tc.fn), tc.args, nil)
			require.NoError(t, err)
			require.Equal(t, api.NewInt(tc.expected), actual)
			require.Zero(t, it.Depth())
		})
	}
}

func TestInterpreter_Run_ImplicitReturn(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		expected int32
	}{
		{name: "empty body", code: nil, expected: 0},
		{name: "return on empty stack", code: []byte{byte(bytecode.OpReturn)}, expected: 0},
		{name: "fall off the end", code: []byte{byte(bytecode.OpPushI8), 42}, expected: 42},
		{name: "branch to the end", code: []byte{byte(bytecode.OpPush1), byte(bytecode.OpGoto8), 1, byte(bytecode.OpNop)}, expected: 1},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			f := &bytecode.Function{Name: tc.name, Code: tc.code, StackSize: 1}
			actual, err := New(0).Run(f, nil, nil)
			require.NoError(t, err)
			require.Equal(t, api.NewInt(tc.expected), actual)
		})
	}
}

func TestInterpreter_Run_Caller(t *testing.T) {
	p := mustParse(t)
	var calls []int32
	caller := func(callee *bytecode.Function, args []api.Value) (api.Value, error) {
		require.Equal(t, "fib", callee.Name)
		require.Len(t, args, 1)
		calls = append(calls, args[0].Int())
		return api.NewInt(100), nil
	}

	actual, err := New(0).Run(p.Function("fib"), []api.Value{api.NewInt(5)}, caller)
	require.NoError(t, err)
	require.Equal(t, api.NewInt(200), actual)
	require.Equal(t, []int32{4, 3}, calls)
}

func TestInterpreter_Run_Errors(t *testing.T) {
	p := mustParse(t)

	tests := []struct {
		name        string
		f           *bytecode.Function
		expectedErr error
	}{
		{
			name:        "call stack exhausted",
			f:           p.Function("recurse_forever"),
			expectedErr: ErrCallStackOverflow,
		},
		{
			name:        "stack underflow",
			f:           &bytecode.Function{Code: []byte{byte(bytecode.OpAdd)}, StackSize: 2},
			expectedErr: ErrStackUnderflow,
		},
		{
			name:        "stack overflow",
			f:           &bytecode.Function{Code: []byte{byte(bytecode.OpPush1), byte(bytecode.OpPush1)}, StackSize: 1},
			expectedErr: ErrStackOverflow,
		},
		{
			name:        "invalid callee",
			f:           &bytecode.Function{Code: []byte{byte(bytecode.OpCall), 0, 0, 3, 0}, StackSize: 1},
			expectedErr: ErrInvalidCallee,
		},
		{
			name:        "branch outside body",
			f:           &bytecode.Function{Code: []byte{byte(bytecode.OpGoto8), 9}},
			expectedErr: ErrInvalidBranch,
		},
		{
			name:        "truncated",
			f:           &bytecode.Function{Code: []byte{byte(bytecode.OpPushI32), 1}, StackSize: 1},
			expectedErr: bytecode.ErrTruncated,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			it := New(100)
			actual, err := it.Run(tc.f, nil, nil)
			require.ErrorIs(t, err, tc.expectedErr)
			require.Equal(t, api.Exception, actual)
			require.Zero(t, it.Depth())
		})
	}
}

func TestInterpreter_Run_Backtrace(t *testing.T) {
	p := mustParse(t)
	_, err := New(3).Run(p.Function("recurse_forever"), nil, nil)
	require.EqualError(t, err, `runtime error: call stack exhausted
backtrace:
	0: recurse_forever (pc 0)
	1: recurse_forever (pc 0)
	2: recurse_forever (pc 0)`)
}

func TestInterpreter_Run_CallerError(t *testing.T) {
	p := mustParse(t)
	caller := func(*bytecode.Function, []api.Value) (api.Value, error) {
		return api.Exception, ErrInvalidCallee
	}
	it := New(0)
	_, err := it.Run(p.Function("fib"), []api.Value{api.NewInt(3)}, caller)
	require.ErrorIs(t, err, ErrInvalidCallee)
	require.Zero(t, it.Depth())
}
