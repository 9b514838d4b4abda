package bytecode

import (
	"fmt"
	"math"
)

// Builder emits an instruction stream with symbolic branch labels. Errors are sticky and reported by Bytes.
type Builder struct {
	code   []byte
	labels map[string]int
	fixups []labelFixup
	err    error
}

// labelFixup is a branch whose offset is patched once its label is placed.
type labelFixup struct {
	inst  Instruction
	label string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{labels: map[string]int{}}
}

// Len returns the current code length, which is the offset of the next instruction.
func (b *Builder) Len() int {
	return len(b.code)
}

func (b *Builder) emit(inst Instruction) *Builder {
	if b.err == nil {
		b.code = Encode(b.code, inst)
	}
	return b
}

func (b *Builder) fail(format string, args ...interface{}) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return b
}

// Op emits an instruction without operands.
func (b *Builder) Op(op Opcode) *Builder {
	if info := op.Info(); !op.Valid() || info.OperandSize != 0 {
		return b.fail("%s at %d requires operands", op, len(b.code))
	}
	return b.emit(Instruction{Op: op})
}

// PushInt emits the shortest push of v.
func (b *Builder) PushInt(v int32) *Builder {
	switch {
	case v == 0:
		return b.Op(OpPush0)
	case v == 1:
		return b.Op(OpPush1)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return b.PushI8(int8(v))
	}
	return b.PushI32(v)
}

// PushI8 emits push_i8.
func (b *Builder) PushI8(v int8) *Builder {
	return b.emit(Instruction{Op: OpPushI8, Operand: int32(v)})
}

// PushI32 emits push_i32.
func (b *Builder) PushI32(v int32) *Builder {
	return b.emit(Instruction{Op: OpPushI32, Operand: v})
}

// GetArg emits get_arg0 for index zero and get_arg otherwise.
func (b *Builder) GetArg(index uint16) *Builder {
	if index == 0 {
		return b.Op(OpGetArg0)
	}
	return b.emit(Instruction{Op: OpGetArg, Operand: int32(index)})
}

// Call emits a call of the callee at the given index with argc arguments.
func (b *Builder) Call(callee, argc uint16) *Builder {
	return b.emit(Instruction{Op: OpCall, Operand: int32(argc), Callee: callee})
}

// BranchOffset emits a branch with a raw relative offset.
func (b *Builder) BranchOffset(op Opcode, offset int32) *Builder {
	if !op.Info().Branch {
		return b.fail("%s is not a branch", op)
	}
	if op.Info().OperandSize == 1 && (offset < math.MinInt8 || offset > math.MaxInt8) {
		return b.fail("%s offset %d does not fit in 8 bits", op, offset)
	}
	return b.emit(Instruction{Op: op, Operand: offset})
}

// Branch emits a branch to label, which may be placed before or after this call.
func (b *Builder) Branch(op Opcode, label string) *Builder {
	if !op.Info().Branch {
		return b.fail("%s is not a branch", op)
	}
	inst := Instruction{Op: op, PC: len(b.code)}
	b.fixups = append(b.fixups, labelFixup{inst: inst, label: label})
	return b.emit(inst)
}

// Label binds name to the current offset.
func (b *Builder) Label(name string) *Builder {
	if _, ok := b.labels[name]; ok {
		return b.fail("label %q redefined", name)
	}
	b.labels[name] = len(b.code)
	return b
}

// Bytes patches every branch and returns the code.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		inst := f.inst
		inst.Operand = int32(target - inst.Next())
		if inst.Op.Info().OperandSize == 1 && (inst.Operand < math.MinInt8 || inst.Operand > math.MaxInt8) {
			return nil, fmt.Errorf("%s at %d: offset %d to %q does not fit in 8 bits", inst.Op, inst.PC, inst.Operand, f.label)
		}
		patched := Encode(nil, inst)
		copy(b.code[inst.PC:], patched)
	}
	ret := make([]byte, len(b.code))
	copy(ret, b.code)
	return ret, nil
}

// Function builds a function with the given name and argument count. The stack size is computed from the code.
func (b *Builder) Function(name string, argCount int) (*Function, error) {
	code, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	stackSize, err := ComputeStackSize(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Function{Name: name, Code: code, ArgCount: argCount, StackSize: stackSize}, nil
}
