// Package interpreter executes bytecode functions directly. It is the reference semantics that native code produced
// by the JIT must agree with, and the fallback for every function that is not compiled.
package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
)

// DefaultCallStackCeiling is the maximum number of nested interpreter frames.
const DefaultCallStackCeiling = 2000

var (
	ErrStackUnderflow    = errors.New("operand stack underflow")
	ErrStackOverflow     = errors.New("operand stack exceeds declared size")
	ErrCallStackOverflow = errors.New("call stack exhausted")
	ErrInvalidCallee     = errors.New("invalid callee index")
	ErrInvalidBranch     = errors.New("branch outside function body")
)

// Caller performs a call issued by an interpreted function. The host routes these through its own dispatch so that a
// callee may itself run natively.
type Caller func(callee *bytecode.Function, args []api.Value) (api.Value, error)

// Interpreter is not safe for concurrent use.
type Interpreter struct {
	callStackCeiling int
	// frames is the interpreter call stack, shared across nested Run invocations.
	frames []*frame
}

type frame struct {
	f     *bytecode.Function
	pc    int
	stack []int32
}

// New returns an Interpreter that fails calls nested deeper than callStackCeiling. Zero selects
// DefaultCallStackCeiling.
func New(callStackCeiling int) *Interpreter {
	if callStackCeiling <= 0 {
		callStackCeiling = DefaultCallStackCeiling
	}
	return &Interpreter{callStackCeiling: callStackCeiling}
}

// Depth returns the number of active frames.
func (it *Interpreter) Depth() int {
	return len(it.frames)
}

func (it *Interpreter) pushFrame(fr *frame) {
	if it.callStackCeiling <= len(it.frames) {
		panic(ErrCallStackOverflow)
	}
	it.frames = append(it.frames, fr)
}

func (it *Interpreter) popFrame() (fr *frame) {
	oneLess := len(it.frames) - 1
	fr = it.frames[oneLess]
	it.frames = it.frames[:oneLess]
	return
}

func (fr *frame) push(v int32) {
	if len(fr.stack) == cap(fr.stack) {
		panic(fmt.Errorf("%w: %d slots", ErrStackOverflow, cap(fr.stack)))
	}
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() (v int32) {
	if len(fr.stack) == 0 {
		panic(ErrStackUnderflow)
	}
	v = fr.stack[len(fr.stack)-1]
	fr.stack = fr.stack[:len(fr.stack)-1]
	return
}

func (fr *frame) pushBool(b bool) {
	if b {
		fr.push(1)
	} else {
		fr.push(0)
	}
}

// Run interprets f with args. Calls made by f are dispatched through call, or interpreted recursively when call is
// nil. Arguments beyond those passed read as zero.
func (it *Interpreter) Run(f *bytecode.Function, args []api.Value, call Caller) (ret api.Value, err error) {
	prevFrameLen := len(it.frames)

	// Only the outermost Run recovers, so that a failure deep in a recursive call unwinds every nested frame and
	// reports a single backtrace.
	shouldRecover := prevFrameLen == 0
	defer func() {
		if !shouldRecover {
			return
		}
		if v := recover(); v != nil {
			traceNum := len(it.frames) - prevFrameLen
			traces := make([]string, 0, traceNum)
			for i := 0; i < traceNum; i++ {
				fr := it.popFrame()
				traces = append(traces, fmt.Sprintf("\t%d: %s (pc %d)", i, fr.f, fr.pc))
			}
			it.frames = it.frames[:prevFrameLen]

			if err2, ok := v.(error); ok {
				err = fmt.Errorf("runtime error: %w", err2)
			} else {
				err = fmt.Errorf("runtime error: %v", v)
			}
			if len(traces) > 0 {
				err = fmt.Errorf("%w\nbacktrace:\n%s", err, strings.Join(traces, "\n"))
			}
			ret = api.Exception
		}
	}()

	if call == nil {
		call = func(callee *bytecode.Function, args []api.Value) (api.Value, error) {
			return it.Run(callee, args, nil)
		}
	}
	ret = api.NewInt(it.callFunction(f, args, call))
	return
}

func (it *Interpreter) callFunction(f *bytecode.Function, args []api.Value, call Caller) int32 {
	fr := &frame{f: f, stack: make([]int32, 0, f.StackSize)}
	it.pushFrame(fr)
	v := it.execute(fr, args, call)
	// Frames are left in place on panic so the recovering Run can report them.
	it.popFrame()
	return v
}

func (it *Interpreter) execute(fr *frame, args []api.Value, call Caller) int32 {
	f := fr.f
	arg := func(i int) int32 {
		if i < len(args) {
			return args[i].Int()
		}
		return 0
	}

	code := f.Code
	for fr.pc < len(code) {
		inst, err := bytecode.Decode(code, fr.pc)
		if err != nil {
			panic(err)
		}
		next := inst.Next()
		switch inst.Op {
		case bytecode.OpNop:
		case bytecode.OpPush0:
			fr.push(0)
		case bytecode.OpPush1:
			fr.push(1)
		case bytecode.OpPushI8, bytecode.OpPushI32:
			fr.push(inst.Operand)
		case bytecode.OpAdd:
			b, a := fr.pop(), fr.pop()
			fr.push(a + b)
		case bytecode.OpSub:
			b, a := fr.pop(), fr.pop()
			fr.push(a - b)
		case bytecode.OpMul:
			b, a := fr.pop(), fr.pop()
			fr.push(a * b)
		case bytecode.OpLte:
			b, a := fr.pop(), fr.pop()
			fr.pushBool(a <= b)
		case bytecode.OpLt:
			b, a := fr.pop(), fr.pop()
			fr.pushBool(a < b)
		case bytecode.OpEq:
			b, a := fr.pop(), fr.pop()
			fr.pushBool(a == b)
		case bytecode.OpDup:
			v := fr.pop()
			fr.push(v)
			fr.push(v)
		case bytecode.OpDrop:
			fr.pop()
		case bytecode.OpIfFalse, bytecode.OpIfFalse8:
			if fr.pop() == 0 {
				next = branchTarget(inst, len(code))
			}
		case bytecode.OpGoto, bytecode.OpGoto8:
			next = branchTarget(inst, len(code))
		case bytecode.OpGetArg0:
			fr.push(arg(0))
		case bytecode.OpGetArg:
			fr.push(arg(int(inst.Operand)))
		case bytecode.OpCall:
			if int(inst.Callee) >= len(f.Callees) {
				panic(fmt.Errorf("%w: %d", ErrInvalidCallee, inst.Callee))
			}
			callArgs := make([]api.Value, inst.Operand)
			for i := len(callArgs) - 1; i >= 0; i-- {
				callArgs[i] = api.NewInt(fr.pop())
			}
			v, err := call(f.Callees[inst.Callee], callArgs)
			if err != nil {
				panic(err)
			}
			fr.push(v.Int())
		case bytecode.OpReturn:
			if len(fr.stack) == 0 {
				return 0
			}
			return fr.pop()
		default:
			panic(fmt.Errorf("%w: %s", bytecode.ErrInvalidOpcode, inst.Op))
		}
		fr.pc = next
	}
	// Running off the end behaves like return.
	if len(fr.stack) == 0 {
		return 0
	}
	return fr.pop()
}

func branchTarget(inst bytecode.Instruction, codeLen int) int {
	target := inst.Target()
	if target < 0 || target > codeLen {
		panic(fmt.Errorf("%w: pc %d to %d", ErrInvalidBranch, inst.PC, target))
	}
	return target
}
