// Package golang_asm adapts github.com/twitchyliquid64/golang-asm to the asm contract independently of the target
// architecture.
package golang_asm

import (
	"errors"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"

	"github.com/stackjit/stackjit/internal/asm"
)

// GolangAsmNode implements Node for golang-asm library.
type GolangAsmNode struct {
	prog *obj.Prog
}

// NewGolangAsmNode wraps p.
func NewGolangAsmNode(p *obj.Prog) asm.Node {
	return &GolangAsmNode{prog: p}
}

// Prog returns the wrapped instruction.
func (n *GolangAsmNode) Prog() *obj.Prog {
	return n.prog
}

// String implements fmt.Stringer.
func (n *GolangAsmNode) String() string {
	return n.prog.String()
}

// OffsetInBinary implements Node.OffsetInBinary.
func (n *GolangAsmNode) OffsetInBinary() int64 {
	return n.prog.Pc
}

// AssignJumpTarget implements Node.AssignJumpTarget.
func (n *GolangAsmNode) AssignJumpTarget(target asm.Node) {
	b := target.(*GolangAsmNode)
	n.prog.To.SetTarget(b.prog)
}

// GolangAsmBaseAssembler implements *part of* asm.Assembler for golang-asm library.
type GolangAsmBaseAssembler struct {
	asm.BaseAssemblerImpl
	b *goasm.Builder
}

// NewGolangAsmBaseAssembler returns a builder for the given golang-asm architecture name.
func NewGolangAsmBaseAssembler(arch string) (*GolangAsmBaseAssembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	return &GolangAsmBaseAssembler{b: b}, nil
}

// AssembleBytes produces the final binary for the assembled operations.
func (a *GolangAsmBaseAssembler) AssembleBytes() ([]byte, error) {
	if a.b == nil {
		return nil, errors.New("assembler already released")
	}
	if len(a.SetBranchTargetOnNextNodes) > 0 {
		return nil, fmt.Errorf("%d jumps target the next instruction but none follows", len(a.SetBranchTargetOnNextNodes))
	}
	return a.b.Assemble(), nil
}

// Release drops the builder and every emitted instruction.
func (a *GolangAsmBaseAssembler) Release() {
	a.b = nil
	a.SetBranchTargetOnNextNodes = nil
}

// AddInstruction is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) AddInstruction(next *obj.Prog) asm.Node {
	a.b.AddInstruction(next)
	for _, node := range a.TakeBranchTargetOnNextNodes() {
		n := node.(*GolangAsmNode)
		n.prog.To.SetTarget(next)
	}
	return NewGolangAsmNode(next)
}

// NewProg is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) NewProg() (prog *obj.Prog) {
	prog = a.b.NewProg()
	return
}
