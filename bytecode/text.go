package bytecode

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParseProgram reads functions written in the text format produced by Disassemble:
//
//	# comment
//	.func simple_add args=1
//	    get_arg0
//	    push_1
//	    lte
//	    if_false8 else
//	    get_arg0
//	    return
//	else:
//	    get_arg0
//	    push_i8 2
//	    add
//	    return
//
// Branch operands are either labels or signed decimal offsets. "call name argc" refers to any function of the
// program. "push N" picks the shortest push encoding. The stack size is computed unless given as "stack=N".
func ParseProgram(r io.Reader) (*Program, error) {
	p := &parser{program: &Program{}}
	s := bufio.NewScanner(r)
	for s.Scan() {
		p.line++
		if err := p.parseLine(s.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if err := p.finishFunction(); err != nil {
		return nil, err
	}
	if err := p.resolveCalls(); err != nil {
		return nil, err
	}
	return p.program, nil
}

// ParseProgramString is ParseProgram on a string.
func ParseProgramString(src string) (*Program, error) {
	return ParseProgram(strings.NewReader(src))
}

type parser struct {
	program *Program
	line    int

	fn        *Function
	fnLine    int
	b         *Builder
	stackSize int
	callees   []string
	calleeIdx map[string]uint16
	calls     []pendingCallees
}

type pendingCallees struct {
	fn    *Function
	names []string
}

func (p *parser) parseLine(line string) error {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if fields[0] == ".func" {
		return p.startFunction(fields[1:])
	}
	if p.b == nil {
		return fmt.Errorf("%q outside .func", fields[0])
	}
	if label := fields[0]; strings.HasSuffix(label, ":") {
		p.b.Label(strings.TrimSuffix(label, ":"))
		fields = fields[1:]
		if len(fields) == 0 {
			return nil
		}
	}
	return p.parseInstruction(fields)
}

func (p *parser) startFunction(fields []string) error {
	if err := p.finishFunction(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf(".func requires a name")
	}
	name := fields[0]
	if p.program.Function(name) != nil {
		return fmt.Errorf("function %q redefined", name)
	}
	p.fn = &Function{Name: name}
	p.fnLine = p.line
	p.b = NewBuilder()
	p.stackSize = -1
	p.callees = nil
	p.calleeIdx = map[string]uint16{}
	for _, attr := range fields[1:] {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			return fmt.Errorf("invalid attribute %q", attr)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s %q", key, value)
		}
		switch key {
		case "args":
			p.fn.ArgCount = n
		case "stack":
			p.stackSize = n
		default:
			return fmt.Errorf("unknown attribute %q", key)
		}
	}
	return nil
}

func (p *parser) finishFunction() error {
	if p.fn == nil {
		return nil
	}
	fn := p.fn
	p.fn = nil
	code, err := p.b.Bytes()
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", p.fnLine, fn.Name, err)
	}
	fn.Code = code
	if p.stackSize >= 0 {
		fn.StackSize = p.stackSize
	} else if fn.StackSize, err = ComputeStackSize(code); err != nil {
		return fmt.Errorf("line %d: %s: %w", p.fnLine, fn.Name, err)
	}
	p.program.add(fn)
	p.calls = append(p.calls, pendingCallees{fn: fn, names: p.callees})
	return nil
}

func (p *parser) resolveCalls() error {
	for _, c := range p.calls {
		for _, name := range c.names {
			callee := p.program.Function(name)
			if callee == nil {
				return fmt.Errorf("%s: call to undefined function %q", c.fn.Name, name)
			}
			c.fn.Callees = append(c.fn.Callees, callee)
		}
	}
	return nil
}

func (p *parser) parseInstruction(fields []string) error {
	name, args := fields[0], fields[1:]
	if name == "push" {
		v, err := parseInt(args, 32)
		if err != nil {
			return err
		}
		p.b.PushInt(int32(v))
		return nil
	}

	op, ok := LookupOpcode(name)
	if !ok {
		return fmt.Errorf("unknown instruction %q", name)
	}
	info := op.Info()
	switch {
	case info.Branch:
		if len(args) != 1 {
			return fmt.Errorf("%s requires a label or offset", name)
		}
		if offset, err := strconv.ParseInt(args[0], 10, 32); err == nil {
			p.b.BranchOffset(op, int32(offset))
		} else {
			p.b.Branch(op, args[0])
		}
	case op == OpPushI8:
		v, err := parseInt(args, 8)
		if err != nil {
			return err
		}
		p.b.PushI8(int8(v))
	case op == OpPushI32:
		v, err := parseInt(args, 32)
		if err != nil {
			return err
		}
		p.b.PushI32(int32(v))
	case op == OpGetArg:
		v, err := parseUint16(args, 0)
		if err != nil {
			return err
		}
		// Keep the long form even for index zero so that text round-trips byte for byte.
		p.b.emit(Instruction{Op: OpGetArg, Operand: int32(v)})
	case op == OpCall:
		if len(args) != 2 {
			return fmt.Errorf("call requires a callee and an argument count")
		}
		argc, err := parseUint16(args, 1)
		if err != nil {
			return err
		}
		idx, ok := p.calleeIdx[args[0]]
		if !ok {
			idx = uint16(len(p.callees))
			p.calleeIdx[args[0]] = idx
			p.callees = append(p.callees, args[0])
		}
		p.b.Call(idx, argc)
	default:
		if len(args) != 0 {
			return fmt.Errorf("%s takes no operands", name)
		}
		p.b.Op(op)
	}
	return nil
}

func parseInt(args []string, bits int) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one integer operand, got %d", len(args))
	}
	return strconv.ParseInt(args[0], 10, bits)
}

func parseUint16(args []string, i int) (uint16, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing operand %d", i)
	}
	v, err := strconv.ParseUint(args[i], 10, 16)
	return uint16(v), err
}

// Disassemble writes f in the text format accepted by ParseProgram. Every branch target becomes a label and each
// instruction is annotated with its offset.
func Disassemble(w io.Writer, f *Function) error {
	boundaries := map[int]bool{len(f.Code): true}
	var branches []int
	if err := Walk(f.Code, func(inst Instruction) error {
		boundaries[inst.PC] = true
		if inst.Op.Info().Branch {
			branches = append(branches, inst.Target())
		}
		return nil
	}); err != nil {
		return err
	}
	targets := map[int]string{}
	for _, target := range branches {
		if boundaries[target] {
			targets[target] = fmt.Sprintf("L%04d", target)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, ".func %s args=%d stack=%d\n", f.Name, f.ArgCount, f.StackSize)
	err := Walk(f.Code, func(inst Instruction) error {
		if label, ok := targets[inst.PC]; ok {
			fmt.Fprintf(bw, "%s:\n", label)
		}
		var text string
		switch info := inst.Op.Info(); {
		case info.Branch:
			if label, ok := targets[inst.Target()]; ok {
				text = fmt.Sprintf("%s %s", info.Name, label)
			} else {
				text = fmt.Sprintf("%s %d", info.Name, inst.Operand)
			}
		case inst.Op == OpCall:
			callee := strconv.Itoa(int(inst.Callee))
			if int(inst.Callee) < len(f.Callees) {
				callee = f.Callees[inst.Callee].Name
			}
			text = fmt.Sprintf("%s %s %d", info.Name, callee, inst.Operand)
		default:
			text = inst.String()
		}
		fmt.Fprintf(bw, "    %-24s # %04d\n", text, inst.PC)
		return nil
	})
	if err != nil {
		return err
	}
	if label, ok := targets[len(f.Code)]; ok {
		fmt.Fprintf(bw, "%s:\n", label)
	}
	return bw.Flush()
}

// DisassembleProgram writes every function of p in order.
func DisassembleProgram(w io.Writer, p *Program) error {
	for i, f := range p.Functions {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := Disassemble(w, f); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the sorted names of the functions in p.
func (p *Program) Names() []string {
	names := make([]string, 0, len(p.Functions))
	for _, f := range p.Functions {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
