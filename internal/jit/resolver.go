package jit

import (
	"fmt"

	"github.com/stackjit/stackjit/internal/asm"
)

// pendingJump is a branch emitted before its label was bound.
type pendingJump struct {
	jump   asm.Node
	target int
	// pc of the branch instruction, for diagnostics.
	pc int
}

// pendingJumps is the bounded list of branches waiting for resolve.
type pendingJumps struct {
	jumps    []pendingJump
	capacity int
}

func newPendingJumps(capacity int) *pendingJumps {
	return &pendingJumps{capacity: capacity}
}

func (p *pendingJumps) add(jump asm.Node, pc, target int) error {
	if len(p.jumps) >= p.capacity {
		return fmt.Errorf("%w: capacity %d", ErrPendingJumpsFull, p.capacity)
	}
	p.jumps = append(p.jumps, pendingJump{jump: jump, target: target, pc: pc})
	return nil
}

// resolve binds every pending jump to the label at its target. A jump without a label fails the whole compilation
// rather than leaving a branch to nowhere in the code.
func (p *pendingJumps) resolve(targets *targetTable) error {
	for i := range p.jumps {
		pj := &p.jumps[i]
		t := targets.lookup(pj.target)
		if t == nil || t.label == nil {
			return fmt.Errorf("%w: branch at pc %d to %d", ErrUnresolvedJump, pj.pc, pj.target)
		}
		pj.jump.AssignJumpTarget(t.label)
	}
	return nil
}
