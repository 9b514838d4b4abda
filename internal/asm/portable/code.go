package portable

import (
	"errors"
	"fmt"
	"math"

	"github.com/stackjit/stackjit/internal/asm"
)

// ErrMemoryFault is returned when generated code addresses a word outside its call frame, arguments or stack.
var ErrMemoryFault = errors.New("memory fault")

// code implements asm.Code.
type code struct {
	bytes   []byte
	program []record
	closed  bool
}

// Bytes implements asm.Code.Bytes
func (c *code) Bytes() []byte {
	return c.bytes
}

// Close implements asm.Code.Close
func (c *code) Close() error {
	c.closed = true
	c.program = nil
	return nil
}

// Call implements asm.Code.Call
//
// The arena holds the asm.CallFrame words followed by the arguments and then the virtual stack. Addresses are byte
// offsets into the arena, so the frame itself lives at address zero.
func (c *code) Call(args []uint64, stackSlots int) (uint64, error) {
	if c.closed {
		return 0, asm.ErrClosed
	}
	if stackSlots < 0 {
		return 0, fmt.Errorf("invalid stack size %d", stackSlots)
	}
	const headerWords = asm.CallFrameSize / 8
	argv := uint64(asm.CallFrameSize)
	stack := argv + uint64(len(args))*8

	m := &machine{mem: make([]uint64, headerWords+len(args)+stackSlots)}
	m.mem[asm.CallFrameArgcOffset/8] = uint64(len(args))
	m.mem[asm.CallFrameArgvOffset/8] = argv
	m.mem[asm.CallFrameStackOffset/8] = stack
	copy(m.mem[headerWords:], args)
	m.regs[asm.RegFrame] = 0

	if err := m.run(c.program); err != nil {
		return 0, err
	}
	return m.mem[asm.CallFrameResultOffset/8], nil
}

// machine is the register machine records execute on.
type machine struct {
	regs [asm.RegisterCount]uint64
	mem  []uint64
	// lessOrEqual and equal hold the outcome of the last comparison.
	lessOrEqual, equal bool
}

func (m *machine) address(base asm.Register, offset int64, index asm.Register, scale byte) uint64 {
	addr := m.regs[base] + uint64(offset)
	if index != asm.NilRegister {
		addr += m.regs[index] * uint64(scale)
	}
	return addr
}

func (m *machine) load(addr uint64) (uint64, error) {
	if addr%8 != 0 || addr/8 >= uint64(len(m.mem)) {
		return 0, fmt.Errorf("%w: load from %#x", ErrMemoryFault, addr)
	}
	return m.mem[addr/8], nil
}

func (m *machine) store(addr, v uint64) error {
	if addr%8 != 0 || addr/8 >= uint64(len(m.mem)) {
		return fmt.Errorf("%w: store to %#x", ErrMemoryFault, addr)
	}
	m.mem[addr/8] = v
	return nil
}

// source returns the value of the source operand of r.
func (m *machine) source(r *record) (uint64, error) {
	switch r.types.src {
	case operandTypeRegister:
		return m.regs[r.srcReg], nil
	case operandTypeConst:
		return uint64(r.imm), nil
	case operandTypeMemory:
		return m.load(m.address(r.srcReg, r.imm, r.index, r.scale))
	}
	return 0, fmt.Errorf("%s has no source operand", r)
}

func (m *machine) run(program []record) error {
	for pc := 0; pc < len(program); {
		r := &program[pc]
		pc++
		switch r.instruction {
		case asm.NOP:
		case asm.RET:
			return nil
		case asm.MOVQ:
			v, err := m.source(r)
			if err != nil {
				return err
			}
			if r.types.dst == operandTypeMemory {
				if err = m.store(m.address(r.dstReg, r.imm, r.index, r.scale), v); err != nil {
					return err
				}
			} else {
				m.regs[r.dstReg] = v
			}
		case asm.ADDQ, asm.SUBQ, asm.IMULQ, asm.ANDQ:
			v, _ := m.source(r) // register or constant
			dst := &m.regs[r.dstReg]
			switch r.instruction {
			case asm.ADDQ:
				*dst += v
			case asm.SUBQ:
				*dst -= v
			case asm.IMULQ:
				*dst *= v
			case asm.ANDQ:
				*dst &= v
			}
		case asm.CMPL, asm.CMPQ:
			// Go assembler order: "CMPQ a, b" followed by JLE branches when a <= b.
			a := m.regs[r.srcReg]
			var b uint64
			if r.types.dst == operandTypeConst {
				b = uint64(r.imm)
			} else {
				b = m.regs[r.dstReg]
			}
			if r.instruction == asm.CMPL {
				m.lessOrEqual, m.equal = int32(a) <= int32(b), uint32(a) == uint32(b)
			} else {
				m.lessOrEqual, m.equal = int64(a) <= int64(b), a == b
			}
		case asm.SETLE:
			var bit uint64
			if m.lessOrEqual {
				bit = 1
			}
			m.regs[r.dstReg] = m.regs[r.dstReg]&^math.MaxUint8 | bit
		case asm.JMP:
			pc = int(r.imm)
		case asm.JEQ:
			if m.equal {
				pc = int(r.imm)
			}
		case asm.JNE:
			if !m.equal {
				pc = int(r.imm)
			}
		default:
			return fmt.Errorf("unsupported instruction %s", asm.InstructionName(r.instruction))
		}
	}
	// Generated code always ends in RET.
	return errors.New("fell off the end of the code")
}
