// Package bytecode defines the stack-machine instruction set shared by the interpreter and the JIT compiler.
//
// Every opcode is a single byte followed by a fixed number of operand bytes. Multi-byte operands are little-endian.
// Branch offsets are signed and relative to the first byte after the branch instruction.
package bytecode

import "fmt"

// Opcode is a single-byte instruction tag.
type Opcode byte

const (
	// OpInvalid is never valid in a function body so that zeroed memory does not decode as code.
	OpInvalid Opcode = iota
	// OpNop does nothing.
	OpNop
	// OpPush0 pushes the integer 0.
	OpPush0
	// OpPush1 pushes the integer 1.
	OpPush1
	// OpPushI8 pushes its signed 8-bit immediate.
	OpPushI8
	// OpPushI32 pushes its signed 32-bit immediate.
	OpPushI32
	// OpAdd pops b then a and pushes a+b.
	OpAdd
	// OpSub pops b then a and pushes a-b.
	OpSub
	// OpMul pops b then a and pushes a*b.
	OpMul
	// OpLte pops b then a and pushes 1 if a <= b, else 0.
	OpLte
	// OpLt pops b then a and pushes 1 if a < b, else 0.
	OpLt
	// OpEq pops b then a and pushes 1 if a == b, else 0.
	OpEq
	// OpDup pushes a copy of the top of stack.
	OpDup
	// OpDrop discards the top of stack.
	OpDrop
	// OpIfFalse pops a value and branches by its signed 32-bit offset if the value is falsy.
	OpIfFalse
	// OpIfFalse8 is OpIfFalse with a signed 8-bit offset.
	OpIfFalse8
	// OpGoto branches unconditionally by its signed 32-bit offset.
	OpGoto
	// OpGoto8 is OpGoto with a signed 8-bit offset.
	OpGoto8
	// OpGetArg0 pushes the first argument, or 0 when the function was called without arguments.
	OpGetArg0
	// OpGetArg pushes the argument at its unsigned 16-bit index, or 0 when that argument is missing.
	OpGetArg
	// OpCall pops the number of arguments given by its first unsigned 16-bit operand, calls the function at the
	// callee index given by the second one and pushes the result.
	OpCall
	// OpReturn pops the top of stack and returns it, or returns 0 when the stack is empty.
	OpReturn

	opcodeEnd
)

// Info describes the encoding and stack effect of an opcode.
type Info struct {
	Op   Opcode
	Name string
	// OperandSize is the number of operand bytes following the opcode byte.
	OperandSize int
	// Pops is the number of values consumed. OpCall consumes a variable number given by its operand.
	Pops int
	// Pushes is the number of values produced.
	Pushes int
	// Branch is true if the first operand is a relative branch offset.
	Branch bool
	// Terminator is true if execution never continues at the following instruction.
	Terminator bool
}

// Size returns the total encoded size of the instruction.
func (i Info) Size() int {
	return 1 + i.OperandSize
}

var infos [opcodeEnd]Info

func init() {
	for _, i := range []Info{
		{Op: OpNop, Name: "nop"},
		{Op: OpPush0, Name: "push_0", Pushes: 1},
		{Op: OpPush1, Name: "push_1", Pushes: 1},
		{Op: OpPushI8, Name: "push_i8", OperandSize: 1, Pushes: 1},
		{Op: OpPushI32, Name: "push_i32", OperandSize: 4, Pushes: 1},
		{Op: OpAdd, Name: "add", Pops: 2, Pushes: 1},
		{Op: OpSub, Name: "sub", Pops: 2, Pushes: 1},
		{Op: OpMul, Name: "mul", Pops: 2, Pushes: 1},
		{Op: OpLte, Name: "lte", Pops: 2, Pushes: 1},
		{Op: OpLt, Name: "lt", Pops: 2, Pushes: 1},
		{Op: OpEq, Name: "eq", Pops: 2, Pushes: 1},
		{Op: OpDup, Name: "dup", Pops: 1, Pushes: 2},
		{Op: OpDrop, Name: "drop", Pops: 1},
		{Op: OpIfFalse, Name: "if_false", OperandSize: 4, Pops: 1, Branch: true},
		{Op: OpIfFalse8, Name: "if_false8", OperandSize: 1, Pops: 1, Branch: true},
		{Op: OpGoto, Name: "goto", OperandSize: 4, Branch: true, Terminator: true},
		{Op: OpGoto8, Name: "goto8", OperandSize: 1, Branch: true, Terminator: true},
		{Op: OpGetArg0, Name: "get_arg0", Pushes: 1},
		{Op: OpGetArg, Name: "get_arg", OperandSize: 2, Pushes: 1},
		{Op: OpCall, Name: "call", OperandSize: 4, Pushes: 1},
		{Op: OpReturn, Name: "return", Pops: 1, Terminator: true},
	} {
		infos[i.Op] = i
	}
}

// Valid returns true if op is a member of the instruction set.
func (op Opcode) Valid() bool {
	return op > OpInvalid && op < opcodeEnd
}

// Info returns the encoding information of op. The zero Info is returned for invalid opcodes.
func (op Opcode) Info() Info {
	if !op.Valid() {
		return Info{}
	}
	return infos[op]
}

// String implements fmt.Stringer.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("invalid(%#x)", byte(op))
	}
	return infos[op].Name
}

// Opcodes returns every valid opcode in encoding order.
func Opcodes() []Opcode {
	ret := make([]Opcode, 0, opcodeEnd-1)
	for op := OpNop; op < opcodeEnd; op++ {
		ret = append(ret, op)
	}
	return ret
}

// LookupOpcode returns the opcode with the given mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for op := OpNop; op < opcodeEnd; op++ {
		if infos[op].Name == name {
			return op, true
		}
	}
	return OpInvalid, false
}
