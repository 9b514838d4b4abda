package jit

import (
	"fmt"

	"github.com/stackjit/stackjit/bytecode"
	"github.com/stackjit/stackjit/internal/asm"
)

// unreachable is the static depth after a terminator until the next label.
const unreachable = -1

// classify reports whether op has a native translation. Every opcode is listed so that adding one to the instruction
// set without deciding its fate fails TestClassify_AllOpcodes.
func classify(op bytecode.Opcode) error {
	switch op {
	case bytecode.OpNop,
		bytecode.OpPush0, bytecode.OpPush1, bytecode.OpPushI8, bytecode.OpPushI32,
		bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul,
		bytecode.OpLte,
		bytecode.OpIfFalse, bytecode.OpIfFalse8, bytecode.OpGoto, bytecode.OpGoto8,
		bytecode.OpGetArg0,
		bytecode.OpReturn:
		return nil
	case bytecode.OpCall:
		return ErrUnsupportedCall
	case bytecode.OpLt, bytecode.OpEq, bytecode.OpDup, bytecode.OpDrop, bytecode.OpGetArg:
		return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, op)
	}
	return fmt.Errorf("%w: no translation rule for %s", ErrUnsupportedOpcode, op)
}

// generator translates one function body in a single pass.
//
// The virtual stack lives in the frame's stack slots. asm.RegStackBase holds the address of slot zero and
// asm.RegStackPointer the index of the next free slot for the whole body. The generator also tracks the depth
// statically so that every slot access is proven to be within fn.StackSize.
type generator struct {
	a       asm.Assembler
	fn      *bytecode.Function
	targets *targetTable
	pending *pendingJumps
	depth   int
}

func newGenerator(a asm.Assembler, fn *bytecode.Function, targets *targetTable, pendingCapacity int) *generator {
	return &generator{a: a, fn: fn, targets: targets, pending: newPendingJumps(pendingCapacity)}
}

// generate emits the whole function: preamble, body, implicit return at the end, then binds pending jumps.
func (g *generator) generate() error {
	g.compilePreamble()

	code := g.fn.Code
	g.seedTargetDepths(code)
	for pc := 0; pc < len(code); {
		inst, err := bytecode.Decode(code, pc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBytecode, err)
		}
		if err = g.placeLabel(pc); err != nil {
			return err
		}
		if g.depth == unreachable {
			// Nothing branches here, but the function still must not contain constructs we cannot translate.
			if err = classify(inst.Op); err != nil {
				return fmt.Errorf("pc %d: %w", pc, err)
			}
		} else if err = g.compileInstruction(inst); err != nil {
			return fmt.Errorf("pc %d: %w", pc, err)
		}
		pc = inst.Next()
	}

	// Running off the end returns, and a branch may target the end itself.
	if err := g.placeLabel(len(code)); err != nil {
		return err
	}
	if g.depth != unreachable {
		if err := g.compileReturn(); err != nil {
			return err
		}
	}
	return g.pending.resolve(g.targets)
}

// seedTargetDepths sets the entry depth of every reachable target from a control flow analysis, so that a label
// first reached after a terminator starts with the depth its branches will bring. If the analysis fails, the
// walk below reports the precise error instead.
func (g *generator) seedTargetDepths(code []byte) {
	depths, err := bytecode.StackDepths(code)
	if err != nil {
		return
	}
	for _, offset := range g.targets.offsets() {
		if d, ok := depths[offset]; ok {
			g.targets.lookup(offset).depth = d
		}
	}
}

// compilePreamble loads the stack base from the frame and empties the virtual stack.
func (g *generator) compilePreamble() {
	g.a.CompileMemoryToRegister(asm.MOVQ, asm.RegFrame, asm.CallFrameStackOffset, asm.RegStackBase)
	g.a.CompileConstToRegister(asm.MOVQ, 0, asm.RegStackPointer)
	g.depth = 0
}

// placeLabel binds the label of the target at pc, if any, before the instruction at pc is translated.
func (g *generator) placeLabel(pc int) error {
	t := g.targets.lookup(pc)
	if t == nil || t.label != nil {
		return nil
	}
	switch {
	case g.depth == unreachable && t.depth == unknownDepth:
		// Only branches from dead code land here. They are checked against this depth.
		t.depth = 0
	case g.depth == unreachable:
	case t.depth == unknownDepth:
		t.depth = g.depth
	case t.depth != g.depth:
		return fmt.Errorf("%w: offset %d reached with depth %d and %d", ErrStackMismatch, pc, t.depth, g.depth)
	}
	g.depth = t.depth
	t.label = g.a.CompileStandAlone(asm.NOP)
	return nil
}

func (g *generator) compileInstruction(inst bytecode.Instruction) error {
	if err := classify(inst.Op); err != nil {
		return err
	}
	switch inst.Op {
	case bytecode.OpNop:
		return nil
	case bytecode.OpPush0, bytecode.OpPush1, bytecode.OpPushI8, bytecode.OpPushI32:
		return g.compileConstant(pushedConstant(inst))
	case bytecode.OpAdd:
		return g.compileBinary(asm.ADDQ)
	case bytecode.OpSub:
		return g.compileBinary(asm.SUBQ)
	case bytecode.OpMul:
		return g.compileBinary(asm.IMULQ)
	case bytecode.OpLte:
		return g.compileLte()
	case bytecode.OpIfFalse, bytecode.OpIfFalse8:
		return g.compileIfFalse(inst)
	case bytecode.OpGoto, bytecode.OpGoto8:
		return g.compileGoto(inst)
	case bytecode.OpGetArg0:
		return g.compileGetArg0()
	case bytecode.OpReturn:
		return g.compileReturn()
	}
	return fmt.Errorf("%w: no translation rule for %s", ErrUnsupportedOpcode, inst.Op)
}

func pushedConstant(inst bytecode.Instruction) int32 {
	switch inst.Op {
	case bytecode.OpPush0:
		return 0
	case bytecode.OpPush1:
		return 1
	}
	return inst.Operand
}

// push stores reg into the next free slot.
func (g *generator) push(reg asm.Register) error {
	if g.depth >= g.fn.StackSize {
		return fmt.Errorf("%w: depth %d exceeds stack size %d", ErrStackMismatch, g.depth+1, g.fn.StackSize)
	}
	g.a.CompileRegisterToMemoryWithIndex(asm.MOVQ, reg, asm.RegStackBase, 0, asm.RegStackPointer, asm.StackSlotSize)
	g.a.CompileConstToRegister(asm.ADDQ, 1, asm.RegStackPointer)
	g.depth++
	return nil
}

// pop loads the top slot into reg.
func (g *generator) pop(reg asm.Register) error {
	if g.depth <= 0 {
		return fmt.Errorf("%w: stack underflow", ErrStackMismatch)
	}
	g.a.CompileConstToRegister(asm.SUBQ, 1, asm.RegStackPointer)
	g.a.CompileMemoryWithIndexToRegister(asm.MOVQ, asm.RegStackBase, 0, asm.RegStackPointer, asm.StackSlotSize, reg)
	g.depth--
	return nil
}

func (g *generator) compileConstant(v int32) error {
	g.a.CompileConstToRegister(asm.MOVQ, int64(v), asm.RegR0)
	return g.push(asm.RegR0)
}

// compileBinary pops the right operand then the left one and pushes "left inst right". Words are 64-bit but only
// the low 32 bits are ever observed, which wraps exactly like 32-bit arithmetic.
func (g *generator) compileBinary(inst asm.Instruction) error {
	if err := g.pop(asm.RegR1); err != nil {
		return err
	}
	if err := g.pop(asm.RegR0); err != nil {
		return err
	}
	g.a.CompileRegisterToRegister(inst, asm.RegR1, asm.RegR0)
	return g.push(asm.RegR0)
}

// compileLte pushes 1 if left <= right as signed 32-bit integers, else 0.
func (g *generator) compileLte() error {
	if err := g.pop(asm.RegR1); err != nil {
		return err
	}
	if err := g.pop(asm.RegR0); err != nil {
		return err
	}
	g.a.CompileRegisterToRegister(asm.CMPL, asm.RegR0, asm.RegR1)
	g.a.CompileNoneToRegister(asm.SETLE, asm.RegR0)
	g.a.CompileConstToRegister(asm.ANDQ, 1, asm.RegR0)
	return g.push(asm.RegR0)
}

// compileIfFalse pops the condition and branches when its low 32 bits are zero.
func (g *generator) compileIfFalse(inst bytecode.Instruction) error {
	if err := g.pop(asm.RegR0); err != nil {
		return err
	}
	g.a.CompileRegisterToConst(asm.CMPL, asm.RegR0, 0)
	return g.branch(asm.JEQ, inst)
}

func (g *generator) compileGoto(inst bytecode.Instruction) error {
	if err := g.branch(asm.JMP, inst); err != nil {
		return err
	}
	g.depth = unreachable
	return nil
}

// branch emits a jump whose label is bound later by the resolver, and records the depth the target is reached with.
func (g *generator) branch(jmp asm.Instruction, inst bytecode.Instruction) error {
	target := inst.Target()
	t := g.targets.lookup(target)
	if t == nil {
		return fmt.Errorf("%w: branch to %d was not found by prescan", ErrUnresolvedJump, target)
	}
	switch {
	case t.depth == unknownDepth:
		t.depth = g.depth
	case t.depth != g.depth:
		return fmt.Errorf("%w: offset %d reached with depth %d and %d", ErrStackMismatch, target, t.depth, g.depth)
	}
	return g.pending.add(g.a.CompileJump(jmp), inst.PC, target)
}

// compileGetArg0 pushes the first argument word, or 0 when the call has no arguments.
func (g *generator) compileGetArg0() error {
	g.a.CompileConstToRegister(asm.MOVQ, 0, asm.RegR1)
	g.a.CompileMemoryToRegister(asm.MOVQ, asm.RegFrame, asm.CallFrameArgcOffset, asm.RegR0)
	g.a.CompileRegisterToConst(asm.CMPQ, asm.RegR0, 0)
	noArgs := g.a.CompileJump(asm.JEQ)
	g.a.CompileMemoryToRegister(asm.MOVQ, asm.RegFrame, asm.CallFrameArgvOffset, asm.RegR0)
	g.a.CompileMemoryToRegister(asm.MOVQ, asm.RegR0, 0, asm.RegR1)
	g.a.SetJumpTargetOnNext(noArgs)
	return g.push(asm.RegR1)
}

// compileReturn stores the top of stack, or 0 on an empty stack, into the frame's result and returns.
func (g *generator) compileReturn() error {
	if g.depth == 0 {
		g.a.CompileConstToRegister(asm.MOVQ, 0, asm.RegR0)
	} else if err := g.pop(asm.RegR0); err != nil {
		return err
	}
	g.a.CompileRegisterToMemory(asm.MOVQ, asm.RegR0, asm.RegFrame, asm.CallFrameResultOffset)
	g.a.CompileStandAlone(asm.RET)
	g.depth = unreachable
	return nil
}
