package asm

// BaseAssemblerImpl includes code common to all backends.
//
// Note: When possible, add code here instead of in backend-specific files to reduce drift:
// As this is internal, exporting symbols only to reduce duplication is ok.
type BaseAssemblerImpl struct {
	// SetBranchTargetOnNextNodes holds branch kind instructions (JMP, conditional jumps, etc.)
	// where we want to set the next coming instruction as the destination of these jump instructions.
	SetBranchTargetOnNextNodes []Node
}

// SetJumpTargetOnNext implements Assembler.SetJumpTargetOnNext
func (a *BaseAssemblerImpl) SetJumpTargetOnNext(nodes ...Node) {
	a.SetBranchTargetOnNextNodes = append(a.SetBranchTargetOnNextNodes, nodes...)
}

// TakeBranchTargetOnNextNodes returns the pending nodes and clears them. Backends call this as they add a node and
// point each returned jump at it.
func (a *BaseAssemblerImpl) TakeBranchTargetOnNextNodes() (nodes []Node) {
	nodes = a.SetBranchTargetOnNextNodes
	a.SetBranchTargetOnNextNodes = nil
	return
}
