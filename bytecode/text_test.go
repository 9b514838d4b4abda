package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

const fibAndSimpleAdd = `
# Recursive fibonacci.
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

.func simple_add args=1 ; n <= 1 ? n : n + 2
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
`

func TestParseProgram(t *testing.T) {
	p, err := ParseProgramString(fibAndSimpleAdd)
	require.NoError(t, err)
	require.Equal(t, []string{"fib", "simple_add"}, p.Names())
	require.NoError(t, p.Validate())

	simpleAdd := p.Function("simple_add")
	require.Equal(t, 1, simpleAdd.ArgCount)
	require.Equal(t, 2, simpleAdd.StackSize)
	require.Equal(t, []byte{
		byte(OpGetArg0), byte(OpPush1), byte(OpLte), byte(OpIfFalse8), 2,
		byte(OpGetArg0), byte(OpReturn),
		byte(OpGetArg0), byte(OpPushI8), 2, byte(OpAdd), byte(OpReturn),
	}, simpleAdd.Code)
	require.Empty(t, simpleAdd.Callees)

	fib := p.Function("fib")
	require.Equal(t, 3, fib.StackSize)
	require.Equal(t, []*Function{fib}, fib.Callees)
}

func TestParseProgram_Attributes(t *testing.T) {
	p, err := ParseProgramString(`
.func f stack=9
    push 1000
    push -5
    get_arg 3
    return
`)
	require.NoError(t, err)
	f := p.Function("f")
	require.Equal(t, 9, f.StackSize)
	require.Equal(t, []byte{
		byte(OpPushI32), 0xe8, 0x03, 0, 0,
		byte(OpPushI8), 0xfb,
		byte(OpGetArg), 3, 0,
		byte(OpReturn),
	}, f.Code)
}

func TestParseProgram_RawOffsets(t *testing.T) {
	p, err := ParseProgramString(`
.func f
    push_0
    if_false8 1
    nop
    goto -9
`)
	require.NoError(t, err)
	require.Equal(t, []byte{byte(OpPush0), byte(OpIfFalse8), 1, byte(OpNop), byte(OpGoto), 0xf7, 0xff, 0xff, 0xff},
		p.Function("f").Code)
}

func TestParseProgram_Errors(t *testing.T) {
	tests := []struct {
		name, src, expectedErr string
	}{
		{
			name:        "instruction outside function",
			src:         "add",
			expectedErr: `line 1: "add" outside .func`,
		},
		{
			name:        "unknown instruction",
			src:         ".func f\n  jsr",
			expectedErr: `line 2: unknown instruction "jsr"`,
		},
		{
			name:        "redefined function",
			src:         ".func f\n.func f",
			expectedErr: `line 2: function "f" redefined`,
		},
		{
			name:        "unknown attribute",
			src:         ".func f locals=2",
			expectedErr: `line 1: unknown attribute "locals"`,
		},
		{
			name:        "undefined callee",
			src:         ".func f\n  call g 0\n  return",
			expectedErr: `f: call to undefined function "g"`,
		},
		{
			name:        "undefined label",
			src:         ".func f\n  goto nowhere",
			expectedErr: `line 1: f: undefined label "nowhere"`,
		},
		{
			name:        "operand out of range",
			src:         ".func f\n  push_i8 200",
			expectedErr: `line 2: strconv.ParseInt: parsing "200": value out of range`,
		},
		{
			name:        "stray operand",
			src:         ".func f\n  add 1",
			expectedErr: `line 2: add takes no operands`,
		},
		{
			name:        "inconsistent stack",
			src:         ".func f\n  add",
			expectedErr: "line 1: f: inconsistent stack depth: add at pc 0 pops 2 with depth 0",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProgramString(tc.src)
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestDisassemble(t *testing.T) {
	p, err := ParseProgramString(fibAndSimpleAdd)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Disassemble(&buf, p.Function("simple_add")))
	require.Equal(t, `.func simple_add args=1 stack=2
    get_arg0                 # 0000
    push_1                   # 0001
    lte                      # 0002
    if_false8 L0007          # 0003
    get_arg0                 # 0005
    return                   # 0006
L0007:
    get_arg0                 # 0007
    push_i8 2                # 0008
    add                      # 0010
    return                   # 0011
`, buf.String())
}

func TestDisassemble_RoundTrip(t *testing.T) {
	src := fibAndSimpleAdd + `
.func loop args=2
    get_arg 1
    drop
top:
    get_arg0
    if_false out
    push_i32 100000
    push 3
    mul
    drop
    goto top
out:
`
	p, err := ParseProgramString(src)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, DisassembleProgram(&buf, p))

	reparsed, err := ParseProgram(&buf)
	require.NoError(t, err)
	require.Equal(t, p.Names(), reparsed.Names())
	for _, f := range p.Functions {
		r := reparsed.Function(f.Name)
		require.Equal(t, f.Code, r.Code, f.Name)
		require.Equal(t, f.StackSize, r.StackSize, f.Name)
		require.Equal(t, f.ArgCount, r.ArgCount, f.Name)
		require.Equal(t, len(f.Callees), len(r.Callees), f.Name)
	}
}
