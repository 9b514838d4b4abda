package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidOpcode is returned when a byte outside the instruction set is decoded.
	ErrInvalidOpcode = errors.New("invalid opcode")
	// ErrTruncated is returned when an instruction's operands run past the end of the code.
	ErrTruncated = errors.New("truncated instruction")
)

// Instruction is a decoded instruction.
type Instruction struct {
	Op Opcode
	// PC is the byte offset of the opcode.
	PC int
	// Operand is the immediate of push_i8 and push_i32, the branch offset of branches, the argument index of
	// get_arg and the argument count of call.
	Operand int32
	// Callee is the callee index of call.
	Callee uint16
}

// Size returns the encoded size of the instruction.
func (i Instruction) Size() int {
	return i.Op.Info().Size()
}

// Next returns the offset of the following instruction.
func (i Instruction) Next() int {
	return i.PC + i.Size()
}

// Target returns the absolute branch target. Only meaningful when Op is a branch.
func (i Instruction) Target() int {
	return i.Next() + int(i.Operand)
}

// String implements fmt.Stringer.
func (i Instruction) String() string {
	info := i.Op.Info()
	switch {
	case info.Branch:
		return fmt.Sprintf("%s %+d", info.Name, i.Operand)
	case i.Op == OpCall:
		return fmt.Sprintf("%s %d %d", info.Name, i.Callee, i.Operand)
	case info.OperandSize > 0:
		return fmt.Sprintf("%s %d", info.Name, i.Operand)
	}
	return info.Name
}

// Decode decodes the instruction at pc. This is the only place operand sizes are interpreted, so every consumer of
// bytecode steps through it identically.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("%w: pc %d outside [0, %d)", ErrTruncated, pc, len(code))
	}
	op := Opcode(code[pc])
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("%w: %#x at pc %d", ErrInvalidOpcode, byte(op), pc)
	}
	info := infos[op]
	if pc+info.Size() > len(code) {
		return Instruction{}, fmt.Errorf("%w: %s at pc %d needs %d operand bytes, %d available",
			ErrTruncated, info.Name, pc, info.OperandSize, len(code)-pc-1)
	}

	inst := Instruction{Op: op, PC: pc}
	operands := code[pc+1 : pc+info.Size()]
	switch op {
	case OpPushI8, OpIfFalse8, OpGoto8:
		inst.Operand = int32(int8(operands[0]))
	case OpPushI32, OpIfFalse, OpGoto:
		inst.Operand = int32(binary.LittleEndian.Uint32(operands))
	case OpGetArg:
		inst.Operand = int32(binary.LittleEndian.Uint16(operands))
	case OpCall:
		inst.Operand = int32(binary.LittleEndian.Uint16(operands))
		inst.Callee = binary.LittleEndian.Uint16(operands[2:])
	}
	return inst, nil
}

// Encode appends the encoding of inst to dst. PC is ignored.
func Encode(dst []byte, inst Instruction) []byte {
	dst = append(dst, byte(inst.Op))
	switch inst.Op {
	case OpPushI8, OpIfFalse8, OpGoto8:
		dst = append(dst, byte(int8(inst.Operand)))
	case OpPushI32, OpIfFalse, OpGoto:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(inst.Operand))
	case OpGetArg:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(inst.Operand))
	case OpCall:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(inst.Operand))
		dst = binary.LittleEndian.AppendUint16(dst, inst.Callee)
	}
	return dst
}

// Walk decodes every instruction of code in order and calls fn with each one. It stops at the first decoding error
// or the first error returned by fn.
func Walk(code []byte, fn func(Instruction) error) error {
	for pc := 0; pc < len(code); {
		inst, err := Decode(code, pc)
		if err != nil {
			return err
		}
		if err = fn(inst); err != nil {
			return err
		}
		pc = inst.Next()
	}
	return nil
}
