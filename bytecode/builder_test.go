package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_PushInt(t *testing.T) {
	tests := []struct {
		value    int32
		expected []byte
	}{
		{0, []byte{byte(OpPush0)}},
		{1, []byte{byte(OpPush1)}},
		{2, []byte{byte(OpPushI8), 2}},
		{-128, []byte{byte(OpPushI8), 0x80}},
		{127, []byte{byte(OpPushI8), 0x7f}},
		{128, []byte{byte(OpPushI32), 0x80, 0, 0, 0}},
		{-1 << 31, []byte{byte(OpPushI32), 0, 0, 0, 0x80}},
	}

	for _, tc := range tests {
		code, err := NewBuilder().PushInt(tc.value).Bytes()
		require.NoError(t, err)
		require.Equal(t, tc.expected, code, tc.value)
	}
}

func TestBuilder_Branch(t *testing.T) {
	code, err := NewBuilder().
		Label("top").
		GetArg(0).                 // 0
		Branch(OpIfFalse8, "end"). // 1
		Branch(OpGoto, "top").     // 3
		Label("end").
		Op(OpReturn). // 8
		Bytes()
	require.NoError(t, err)

	ifFalse, err := Decode(code, 1)
	require.NoError(t, err)
	require.Equal(t, 8, ifFalse.Target())

	jmp, err := Decode(code, 3)
	require.NoError(t, err)
	require.Equal(t, int32(-8), jmp.Operand)
	require.Equal(t, 0, jmp.Target())
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name        string
		build       func(b *Builder)
		expectedErr string
	}{
		{
			name:        "undefined label",
			build:       func(b *Builder) { b.Branch(OpGoto, "nowhere") },
			expectedErr: `undefined label "nowhere"`,
		},
		{
			name:        "redefined label",
			build:       func(b *Builder) { b.Label("a").Op(OpNop).Label("a") },
			expectedErr: `label "a" redefined`,
		},
		{
			name:        "operands required",
			build:       func(b *Builder) { b.Op(OpPushI8) },
			expectedErr: "push_i8 at 0 requires operands",
		},
		{
			name:        "not a branch",
			build:       func(b *Builder) { b.Branch(OpAdd, "x") },
			expectedErr: "add is not a branch",
		},
		{
			name: "narrow offset overflow",
			build: func(b *Builder) {
				b.Branch(OpGoto8, "far")
				for i := 0; i < 200; i++ {
					b.Op(OpNop)
				}
				b.Label("far")
			},
			expectedErr: `goto8 at 0: offset 200 to "far" does not fit in 8 bits`,
		},
		{
			name:        "narrow raw offset overflow",
			build:       func(b *Builder) { b.BranchOffset(OpIfFalse8, 300) },
			expectedErr: "if_false8 offset 300 does not fit in 8 bits",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			_, err := b.Bytes()
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestBuilder_Function(t *testing.T) {
	f, err := NewBuilder().GetArg(0).PushInt(2).Op(OpAdd).Op(OpReturn).Function("add2", 1)
	require.NoError(t, err)
	require.Equal(t, "add2", f.Name)
	require.Equal(t, 1, f.ArgCount)
	require.Equal(t, 2, f.StackSize)
	require.Equal(t, []byte{byte(OpGetArg0), byte(OpPushI8), 2, byte(OpAdd), byte(OpReturn)}, f.Code)
}
