package jit

import (
	"errors"
	"fmt"

	"github.com/stackjit/stackjit/bytecode"
	"github.com/stackjit/stackjit/internal/asm"
)

// unknownDepth marks a target whose stack depth has not been observed yet.
const unknownDepth = -1

// jumpTarget is a bytecode offset some branch lands on.
type jumpTarget struct {
	offset int
	// label is nil until the generator reaches offset.
	label asm.Node
	// depth is the static stack depth on entry, or unknownDepth.
	depth int
}

// targetTable is the bounded, deduplicated set of branch targets of one function.
type targetTable struct {
	targets  []jumpTarget
	byOffset map[int]int
	capacity int
}

func newTargetTable(capacity int) *targetTable {
	return &targetTable{byOffset: map[int]int{}, capacity: capacity}
}

// add registers offset. Registering an offset twice has no effect.
func (t *targetTable) add(offset int) error {
	if _, ok := t.byOffset[offset]; ok {
		return nil
	}
	if len(t.targets) >= t.capacity {
		return fmt.Errorf("%w: capacity %d", ErrTargetTableFull, t.capacity)
	}
	t.byOffset[offset] = len(t.targets)
	t.targets = append(t.targets, jumpTarget{offset: offset, depth: unknownDepth})
	return nil
}

// lookup returns the target at offset or nil.
func (t *targetTable) lookup(offset int) *jumpTarget {
	if i, ok := t.byOffset[offset]; ok {
		return &t.targets[i]
	}
	return nil
}

// len returns the number of distinct targets.
func (t *targetTable) len() int {
	return len(t.targets)
}

// offsets returns the registered offsets in discovery order.
func (t *targetTable) offsets() []int {
	ret := make([]int, len(t.targets))
	for i := range t.targets {
		ret[i] = t.targets[i].offset
	}
	return ret
}

// prescan walks code once and registers every branch target before anything is emitted. Steps over operands come
// from bytecode.Decode, the same decoder the generator uses, so both passes agree on every instruction boundary.
func prescan(code []byte, capacity int) (*targetTable, error) {
	t := newTargetTable(capacity)
	err := bytecode.Walk(code, func(inst bytecode.Instruction) error {
		if !inst.Op.Info().Branch {
			return nil
		}
		target := inst.Target()
		if target < 0 || target > len(code) {
			return fmt.Errorf("%w: %s at pc %d targets %d outside [0, %d]", ErrInvalidBytecode, inst, inst.PC, target, len(code))
		}
		return t.add(target)
	})
	if err != nil {
		if errors.Is(err, bytecode.ErrInvalidOpcode) || errors.Is(err, bytecode.ErrTruncated) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBytecode, err)
		}
		return nil, err
	}
	return t, nil
}

// BranchTargets returns the distinct branch targets of code in discovery order.
func BranchTargets(code []byte, capacity int) ([]int, error) {
	t, err := prescan(code, capacity)
	if err != nil {
		return nil, err
	}
	return t.offsets(), nil
}
