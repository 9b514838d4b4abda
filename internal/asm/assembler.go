// Package asm is the backend-neutral contract between the JIT code generator and the code emitters.
//
// The generator only speaks in terms of the neutral registers and instructions defined here. Each backend maps them
// to its own encoding and produces Code that runs against a CallFrame.
package asm

import (
	"errors"
	"fmt"
)

// Register is a backend-neutral register.
type Register byte

// NilRegister can be used to indicate that no register is specified.
const NilRegister Register = 0

const (
	// RegR0 is the first scratch register. It carries the return value to the frame.
	RegR0 Register = iota + 1
	// RegR1 is a scratch register.
	RegR1
	// RegR2 is a scratch register.
	RegR2
	// RegFrame holds the address of the CallFrame for the whole body. It is set before entry.
	RegFrame
	// RegStackBase holds the address of virtual stack slot zero.
	RegStackBase
	// RegStackPointer holds the index of the next free virtual stack slot.
	RegStackPointer

	// RegisterCount is one more than the largest neutral register.
	RegisterCount
)

// RegisterName returns the name of the given register.
func RegisterName(r Register) string {
	switch r {
	case NilRegister:
		return "nil"
	case RegR0:
		return "r0"
	case RegR1:
		return "r1"
	case RegR2:
		return "r2"
	case RegFrame:
		return "frame"
	case RegStackBase:
		return "stack_base"
	case RegStackPointer:
		return "sp"
	}
	return fmt.Sprintf("reg(%d)", r)
}

// Instruction is a backend-neutral instruction. Operand order follows Go assembler syntax: source first.
type Instruction byte

const (
	NONE Instruction = iota
	// NOP marks a label. It emits nothing observable.
	NOP
	// RET returns from the generated code.
	RET
	// MOVQ moves a 64-bit word.
	MOVQ
	// ADDQ adds the source to the destination.
	ADDQ
	// SUBQ subtracts the source from the destination.
	SUBQ
	// IMULQ multiplies the destination by the source.
	IMULQ
	// ANDQ ands the source into the destination.
	ANDQ
	// CMPL compares the low 32 bits of two operands as signed integers.
	CMPL
	// CMPQ compares two operands as signed 64-bit integers.
	CMPQ
	// SETLE sets the low byte of a register to 1 if the last comparison was less-or-equal, else to 0.
	SETLE
	// JMP jumps unconditionally.
	JMP
	// JEQ jumps if the last comparison was equal.
	JEQ
	// JNE jumps if the last comparison was not equal.
	JNE

	// InstructionCount is one more than the largest instruction.
	InstructionCount
)

// InstructionName returns the name of the given instruction.
func InstructionName(i Instruction) string {
	switch i {
	case NONE:
		return "NONE"
	case NOP:
		return "NOP"
	case RET:
		return "RET"
	case MOVQ:
		return "MOVQ"
	case ADDQ:
		return "ADDQ"
	case SUBQ:
		return "SUBQ"
	case IMULQ:
		return "IMULQ"
	case ANDQ:
		return "ANDQ"
	case CMPL:
		return "CMPL"
	case CMPQ:
		return "CMPQ"
	case SETLE:
		return "SETLE"
	case JMP:
		return "JMP"
	case JEQ:
		return "JEQ"
	case JNE:
		return "JNE"
	}
	return fmt.Sprintf("inst(%d)", i)
}

// Node represents a node in the linked list of assembled operations.
type Node interface {
	fmt.Stringer
	// AssignJumpTarget assigns the given target node as the destination of
	// jump instruction for this Node.
	AssignJumpTarget(target Node)
	// OffsetInBinary returns the offset of this node in the assembled binary. Only valid after Assemble.
	OffsetInBinary() int64
}

// Assembler is the common interface for assemblers among all backends.
type Assembler interface {
	// Assemble produces executable Code for the assembled operations.
	Assemble() (Code, error)
	// SetJumpTargetOnNext instructs the assembler that the next node must be
	// assigned to the given nodes's jump destination.
	SetJumpTargetOnNext(nodes ...Node)
	// CompileStandAlone adds an instruction to take no arguments.
	CompileStandAlone(instruction Instruction) Node
	// CompileConstToRegister adds an instruction where source operand is `value` as constant and destination is `destinationReg` register.
	CompileConstToRegister(instruction Instruction, value int64, destinationReg Register) Node
	// CompileRegisterToRegister adds an instruction where source and destination operands are registers.
	CompileRegisterToRegister(instruction Instruction, from, to Register)
	// CompileRegisterToConst adds an instruction where the first operand is a register and the second a constant,
	// as used by comparisons.
	CompileRegisterToConst(instruction Instruction, srcReg Register, value int64) Node
	// CompileNoneToRegister adds an instruction with only a destination register.
	CompileNoneToRegister(instruction Instruction, reg Register)
	// CompileMemoryToRegister adds an instruction where source operands is the memory address specified by `sourceBaseReg+sourceOffsetConst`
	// and the destination is `destinationReg` register.
	CompileMemoryToRegister(instruction Instruction, sourceBaseReg Register, sourceOffsetConst int64, destinationReg Register)
	// CompileRegisterToMemory adds an instruction where source operand is `sourceRegister` register and the destination is the
	// memory address specified by `destinationBaseRegister+destinationOffsetConst`.
	CompileRegisterToMemory(instruction Instruction, sourceRegister Register, destinationBaseRegister Register, destinationOffsetConst int64)
	// CompileMemoryWithIndexToRegister adds an instruction where source operand is the memory address specified as
	// `srcBaseReg + srcOffsetConst + srcIndex*srcScale` and destination is the register `dstReg`.
	// Note: sourceScale must be one of 1, 2, 4, 8.
	CompileMemoryWithIndexToRegister(instruction Instruction, srcBaseReg Register, srcOffsetConst int64, srcIndex Register, srcScale int16, dstReg Register)
	// CompileRegisterToMemoryWithIndex adds an instruction where source operand is the register `srcReg`,
	// and the destination is the memory address specified as `dstBaseReg + dstOffsetConst + dstIndex*dstScale`
	// Note: dstScale must be one of 1, 2, 4, 8.
	CompileRegisterToMemoryWithIndex(instruction Instruction, srcReg Register, dstBaseReg Register, dstOffsetConst int64, dstIndex Register, dstScale int16)
	// CompileJump adds jump-type instruction and returns the corresponding Node in the assembled linked list.
	CompileJump(jmpInstruction Instruction) Node
	// Release drops every emitted instruction. The assembler must not be used afterwards.
	Release()
}

// Code is assembled code owned by the caller. Close must be called to release it.
type Code interface {
	// Call runs the code on a fresh CallFrame holding args and a zeroed virtual stack of stackSlots words, and
	// returns the word the code stored into the result slot.
	Call(args []uint64, stackSlots int) (uint64, error)
	// Bytes returns the encoded instructions.
	Bytes() []byte
	// Close releases the code. Calling Close more than once has no effect.
	Close() error
}

// ErrClosed is returned by Code.Call after Close.
var ErrClosed = errors.New("code is closed")

// CallFrame is the execution context handed to generated code in RegFrame. Its layout is fixed so that generated code
// can address it by constant offsets.
type CallFrame struct {
	// Argc is the number of words at Argv.
	Argc uint64
	// Argv is the address of the first argument word.
	Argv uint64
	// Stack is the address of virtual stack slot zero.
	Stack uint64
	// Result receives the returned word.
	Result uint64
}

// Offsets into CallFrame for generated code.
const (
	CallFrameArgcOffset   = 0
	CallFrameArgvOffset   = 8
	CallFrameStackOffset  = 16
	CallFrameResultOffset = 24
	CallFrameSize         = 32
)

// StackSlotSize is the size in bytes of a virtual stack slot.
const StackSlotSize = 8
