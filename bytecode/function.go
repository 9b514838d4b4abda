package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrBranchTarget is returned when a branch leaves the function body or lands inside an instruction.
	ErrBranchTarget = errors.New("invalid branch target")
	// ErrStackDepth is returned when the operand stack underflows or two paths reach an instruction with
	// different depths.
	ErrStackDepth = errors.New("inconsistent stack depth")
	// ErrCallee is returned when a call refers to a callee index outside Function.Callees.
	ErrCallee = errors.New("invalid callee")
)

// Function is a compiled bytecode function as produced by a front end. Its identity is its pointer.
type Function struct {
	// Name is used in diagnostics only.
	Name string
	// Code is the instruction stream.
	Code []byte
	// ArgCount is the number of declared parameters. Callers may pass fewer or more.
	ArgCount int
	// StackSize is the maximum operand stack depth the body may reach.
	StackSize int
	// Callees are the functions addressed by the callee index of OpCall.
	Callees []*Function
}

// String implements fmt.Stringer.
func (f *Function) String() string {
	if f.Name == "" {
		return fmt.Sprintf("func@%p", f)
	}
	return f.Name
}

// Validate checks that the code decodes, that every branch lands on an instruction boundary or the end of the code,
// that callee indices are in range, and that the stack depth is consistent and never exceeds StackSize.
func (f *Function) Validate() error {
	maxDepth, err := ComputeStackSize(f.Code)
	if err != nil {
		return fmt.Errorf("%s: %w", f, err)
	}
	if maxDepth > f.StackSize {
		return fmt.Errorf("%s: %w: needs %d slots, declares %d", f, ErrStackDepth, maxDepth, f.StackSize)
	}
	return Walk(f.Code, func(inst Instruction) error {
		if inst.Op == OpCall && int(inst.Callee) >= len(f.Callees) {
			return fmt.Errorf("%s: %w: index %d at pc %d, have %d", f, ErrCallee, inst.Callee, inst.PC, len(f.Callees))
		}
		return nil
	})
}

// ComputeStackSize returns the maximum operand stack depth reachable in code. It follows every control flow path
// and fails if an instruction is reached with two different depths, if a branch target is not an instruction
// boundary, or if the stack underflows.
func ComputeStackSize(code []byte) (int, error) {
	_, maxDepth, err := analyzeStack(code)
	return maxDepth, err
}

// StackDepths returns the operand stack depth on entry to every reachable offset of code, including len(code) when
// control can run off the end. It fails for the same reasons as ComputeStackSize.
func StackDepths(code []byte) (map[int]int, error) {
	depths, _, err := analyzeStack(code)
	return depths, err
}

func analyzeStack(code []byte) (map[int]int, int, error) {
	boundaries := map[int]bool{len(code): true}
	if err := Walk(code, func(inst Instruction) error {
		boundaries[inst.PC] = true
		return nil
	}); err != nil {
		return nil, 0, err
	}

	depths := map[int]int{}
	work := []int{0}
	depths[0] = 0
	maxDepth := 0

	reach := func(from, pc, depth int) error {
		if !boundaries[pc] {
			return fmt.Errorf("%w: pc %d branches to %d", ErrBranchTarget, from, pc)
		}
		if d, ok := depths[pc]; ok {
			if d != depth {
				return fmt.Errorf("%w: pc %d reached with depth %d and %d", ErrStackDepth, pc, d, depth)
			}
			return nil
		}
		depths[pc] = depth
		work = append(work, pc)
		return nil
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		if pc == len(code) {
			continue
		}
		inst, _ := Decode(code, pc) // already decoded once above
		info := inst.Op.Info()
		depth := depths[pc]

		pops := info.Pops
		switch inst.Op {
		case OpCall:
			pops = int(inst.Operand)
		case OpReturn:
			if depth == 0 {
				pops = 0
			}
		}
		if depth < pops {
			return nil, 0, fmt.Errorf("%w: %s at pc %d pops %d with depth %d", ErrStackDepth, info.Name, pc, pops, depth)
		}
		depth += info.Pushes - pops
		if depth > maxDepth {
			maxDepth = depth
		}

		if info.Branch {
			if target := inst.Target(); target < 0 || target > len(code) {
				return nil, 0, fmt.Errorf("%w: pc %d branches to %d outside [0, %d]", ErrBranchTarget, pc, target, len(code))
			} else if err := reach(pc, target, depth); err != nil {
				return nil, 0, err
			}
		}
		if !info.Terminator {
			if err := reach(pc, inst.Next(), depth); err != nil {
				return nil, 0, err
			}
		}
	}
	return depths, maxDepth, nil
}

// Program is a set of named functions, typically produced by ParseProgram.
type Program struct {
	Functions []*Function
	byName    map[string]*Function
}

// Function returns the function with the given name or nil.
func (p *Program) Function(name string) *Function {
	return p.byName[name]
}

// Validate validates every function.
func (p *Program) Validate() error {
	for _, f := range p.Functions {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) add(f *Function) {
	if p.byName == nil {
		p.byName = map[string]*Function{}
	}
	p.Functions = append(p.Functions, f)
	p.byName[f.Name] = f
}
