package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op                 Opcode
		name               string
		operandSize        int
		pops, pushes       int
		branch, terminator bool
	}{
		{op: OpNop, name: "nop"},
		{op: OpPush0, name: "push_0", pushes: 1},
		{op: OpPush1, name: "push_1", pushes: 1},
		{op: OpPushI8, name: "push_i8", operandSize: 1, pushes: 1},
		{op: OpPushI32, name: "push_i32", operandSize: 4, pushes: 1},
		{op: OpAdd, name: "add", pops: 2, pushes: 1},
		{op: OpSub, name: "sub", pops: 2, pushes: 1},
		{op: OpMul, name: "mul", pops: 2, pushes: 1},
		{op: OpLte, name: "lte", pops: 2, pushes: 1},
		{op: OpLt, name: "lt", pops: 2, pushes: 1},
		{op: OpEq, name: "eq", pops: 2, pushes: 1},
		{op: OpDup, name: "dup", pops: 1, pushes: 2},
		{op: OpDrop, name: "drop", pops: 1},
		{op: OpIfFalse, name: "if_false", operandSize: 4, pops: 1, branch: true},
		{op: OpIfFalse8, name: "if_false8", operandSize: 1, pops: 1, branch: true},
		{op: OpGoto, name: "goto", operandSize: 4, branch: true, terminator: true},
		{op: OpGoto8, name: "goto8", operandSize: 1, branch: true, terminator: true},
		{op: OpGetArg0, name: "get_arg0", pushes: 1},
		{op: OpGetArg, name: "get_arg", operandSize: 2, pushes: 1},
		{op: OpCall, name: "call", operandSize: 4, pushes: 1},
		{op: OpReturn, name: "return", pops: 1, terminator: true},
	}

	require.Equal(t, len(tests), len(Opcodes()), "every opcode needs a case")
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			info := tc.op.Info()
			require.Equal(t, tc.op, info.Op)
			require.Equal(t, tc.name, info.Name)
			require.Equal(t, tc.name, tc.op.String())
			require.Equal(t, tc.operandSize, info.OperandSize)
			require.Equal(t, tc.operandSize+1, info.Size())
			require.Equal(t, tc.pops, info.Pops)
			require.Equal(t, tc.pushes, info.Pushes)
			require.Equal(t, tc.branch, info.Branch)
			require.Equal(t, tc.terminator, info.Terminator)

			op, ok := LookupOpcode(tc.name)
			require.True(t, ok)
			require.Equal(t, tc.op, op)
		})
	}
}

func TestOpcode_Invalid(t *testing.T) {
	for _, op := range []Opcode{OpInvalid, opcodeEnd, 0xff} {
		require.False(t, op.Valid())
		require.Equal(t, Info{}, op.Info())
		require.Contains(t, op.String(), "invalid")
	}
	_, ok := LookupOpcode("jsr")
	require.False(t, ok)
}
