// Package asm_amd64 implements asm.Assembler for amd64 on top of golang-asm and runs the result natively.
package asm_amd64

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/stackjit/stackjit/internal/asm"
	"github.com/stackjit/stackjit/internal/asm/golang_asm"
)

// castAsGolangAsmRegister maps the neutral registers. RegFrame must stay in R12 where nativecall places the frame.
// R14, R15 and BP are never used as Go reserves them.
var castAsGolangAsmRegister = [asm.RegisterCount]int16{
	asm.RegR0:           x86.REG_AX,
	asm.RegR1:           x86.REG_CX,
	asm.RegR2:           x86.REG_DX,
	asm.RegFrame:        x86.REG_R12,
	asm.RegStackBase:    x86.REG_R13,
	asm.RegStackPointer: x86.REG_R11,
}

var castAsGolangAsmInstruction = map[asm.Instruction]obj.As{
	asm.NOP:   obj.ANOP,
	asm.RET:   obj.ARET,
	asm.JMP:   obj.AJMP,
	asm.MOVQ:  x86.AMOVQ,
	asm.ADDQ:  x86.AADDQ,
	asm.SUBQ:  x86.ASUBQ,
	asm.IMULQ: x86.AIMULQ,
	asm.ANDQ:  x86.AANDQ,
	asm.CMPL:  x86.ACMPL,
	asm.CMPQ:  x86.ACMPQ,
	asm.SETLE: x86.ASETLE,
	asm.JEQ:   x86.AJEQ,
	asm.JNE:   x86.AJNE,
}

// assemblerGoAsmImpl implements asm.Assembler for golang-asm library.
type assemblerGoAsmImpl struct {
	*golang_asm.GolangAsmBaseAssembler
	// err is the first invalid operand seen by a Compile method, reported by Assemble.
	err error
}

// NewAssembler returns an amd64 assembler. It can encode on any host, but the resulting code only runs where
// platform.CompilerSupported is true.
func NewAssembler() (asm.Assembler, error) {
	base, err := golang_asm.NewGolangAsmBaseAssembler("amd64")
	if err != nil {
		return nil, err
	}
	return &assemblerGoAsmImpl{GolangAsmBaseAssembler: base}, nil
}

func (a *assemblerGoAsmImpl) instruction(inst asm.Instruction) obj.As {
	as, ok := castAsGolangAsmInstruction[inst]
	if !ok && a.err == nil {
		a.err = fmt.Errorf("unsupported instruction %s", asm.InstructionName(inst))
	}
	return as
}

func (a *assemblerGoAsmImpl) register(reg asm.Register) int16 {
	if reg == asm.NilRegister || reg >= asm.RegisterCount {
		if a.err == nil {
			a.err = fmt.Errorf("invalid register %s", asm.RegisterName(reg))
		}
		return x86.REG_NONE
	}
	return castAsGolangAsmRegister[reg]
}

// Assemble implements asm.Assembler.Assemble
func (a *assemblerGoAsmImpl) Assemble() (asm.Code, error) {
	if a.err != nil {
		return nil, a.err
	}
	b, err := a.AssembleBytes()
	if err != nil {
		return nil, err
	}
	return newCode(b)
}

// CompileStandAlone implements asm.Assembler.CompileStandAlone
func (a *assemblerGoAsmImpl) CompileStandAlone(inst asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = a.instruction(inst)
	return a.AddInstruction(p)
}

// CompileConstToRegister implements asm.Assembler.CompileConstToRegister
func (a *assemblerGoAsmImpl) CompileConstToRegister(inst asm.Instruction, value int64, destinationReg asm.Register) asm.Node {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = a.register(destinationReg)
	return a.AddInstruction(p)
}

// CompileRegisterToRegister implements asm.Assembler.CompileRegisterToRegister
func (a *assemblerGoAsmImpl) CompileRegisterToRegister(inst asm.Instruction, from, to asm.Register) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = a.register(to)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = a.register(from)
	a.AddInstruction(p)
}

// CompileRegisterToConst implements asm.Assembler.CompileRegisterToConst
func (a *assemblerGoAsmImpl) CompileRegisterToConst(inst asm.Instruction, srcRegister asm.Register, value int64) asm.Node {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = value
	p.From.Type = obj.TYPE_REG
	p.From.Reg = a.register(srcRegister)
	return a.AddInstruction(p)
}

// CompileNoneToRegister implements asm.Assembler.CompileNoneToRegister
func (a *assemblerGoAsmImpl) CompileNoneToRegister(inst asm.Instruction, register asm.Register) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = a.register(register)
	p.From.Type = obj.TYPE_NONE
	a.AddInstruction(p)
}

// CompileMemoryToRegister implements asm.Assembler.CompileMemoryToRegister
func (a *assemblerGoAsmImpl) CompileMemoryToRegister(inst asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst int64, destinationReg asm.Register) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = a.register(sourceBaseReg)
	p.From.Offset = sourceOffsetConst
	p.To.Type = obj.TYPE_REG
	p.To.Reg = a.register(destinationReg)
	a.AddInstruction(p)
}

// CompileRegisterToMemory implements asm.Assembler.CompileRegisterToMemory
func (a *assemblerGoAsmImpl) CompileRegisterToMemory(inst asm.Instruction, sourceRegister asm.Register, destinationBaseRegister asm.Register, destinationOffsetConst int64) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = a.register(destinationBaseRegister)
	p.To.Offset = destinationOffsetConst
	p.From.Type = obj.TYPE_REG
	p.From.Reg = a.register(sourceRegister)
	a.AddInstruction(p)
}

// CompileMemoryWithIndexToRegister implements asm.Assembler.CompileMemoryWithIndexToRegister
func (a *assemblerGoAsmImpl) CompileMemoryWithIndexToRegister(inst asm.Instruction, srcBaseReg asm.Register, srcOffsetConst int64, srcIndex asm.Register, srcScale int16, dstReg asm.Register) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = a.register(dstReg)
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = a.register(srcBaseReg)
	p.From.Offset = srcOffsetConst
	p.From.Index = a.register(srcIndex)
	p.From.Scale = srcScale
	a.AddInstruction(p)
}

// CompileRegisterToMemoryWithIndex implements asm.Assembler.CompileRegisterToMemoryWithIndex
func (a *assemblerGoAsmImpl) CompileRegisterToMemoryWithIndex(inst asm.Instruction, srcReg asm.Register, dstBaseReg asm.Register, dstOffsetConst int64, dstIndex asm.Register, dstScale int16) {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = a.register(srcReg)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = a.register(dstBaseReg)
	p.To.Offset = dstOffsetConst
	p.To.Index = a.register(dstIndex)
	p.To.Scale = dstScale
	a.AddInstruction(p)
}

// CompileJump implements asm.Assembler.CompileJump
func (a *assemblerGoAsmImpl) CompileJump(inst asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = a.instruction(inst)
	p.To.Type = obj.TYPE_BRANCH
	return a.AddInstruction(p)
}
