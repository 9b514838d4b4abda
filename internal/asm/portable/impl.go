// Package portable implements asm.Assembler for a register machine executed in Go.
//
// Nodes are encoded into fixed-size records which are decoded again and run by a small interpreter over a word
// arena that mirrors asm.CallFrame. Generated code therefore behaves identically on every GOOS and GOARCH, which
// makes this backend the reference for the native ones.
package portable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/stackjit/stackjit/internal/asm"
)

// nodeImpl implements asm.Node for the portable backend.
type nodeImpl struct {
	instruction asm.Instruction

	// index is the position of this node in the program, and therefore its record number.
	index int
	// jumpTarget holds the target node in the linked for the jump-kind instruction.
	jumpTarget *nodeImpl
	// next holds the next node from this node in the assembled linked list.
	next *nodeImpl

	types                    operandTypes
	srcReg, dstReg           asm.Register
	srcConst, dstConst       int64
	srcMemIndex, dstMemIndex asm.Register
	srcMemScale, dstMemScale byte
}

// AssignJumpTarget implements asm.Node.AssignJumpTarget.
func (n *nodeImpl) AssignJumpTarget(target asm.Node) {
	n.jumpTarget = target.(*nodeImpl)
}

// OffsetInBinary implements asm.Node.OffsetInBinary.
func (n *nodeImpl) OffsetInBinary() int64 {
	return int64(n.index * recordSize)
}

// String implements fmt.Stringer.
//
// The format is the Go assembler syntax, meaning that this should look like "INSTRUCTION ${from}, ${to}" where each
// operand might be embraced by '[]' to represent the memory location.
func (n *nodeImpl) String() (ret string) {
	instName := asm.InstructionName(n.instruction)
	switch n.types {
	case operandTypesNoneToNone:
		ret = instName
	case operandTypesNoneToRegister:
		ret = fmt.Sprintf("%s %s", instName, asm.RegisterName(n.dstReg))
	case operandTypesNoneToBranch:
		if n.jumpTarget != nil {
			ret = fmt.Sprintf("%s {%v}", instName, n.jumpTarget)
		} else {
			ret = fmt.Sprintf("%s {unset}", instName)
		}
	case operandTypesRegisterToRegister:
		ret = fmt.Sprintf("%s %s, %s", instName, asm.RegisterName(n.srcReg), asm.RegisterName(n.dstReg))
	case operandTypesRegisterToMemory:
		if n.dstMemIndex != asm.NilRegister {
			ret = fmt.Sprintf("%s %s, [%s + 0x%x + %s*0x%x]", instName, asm.RegisterName(n.srcReg),
				asm.RegisterName(n.dstReg), n.dstConst, asm.RegisterName(n.dstMemIndex), n.dstMemScale)
		} else {
			ret = fmt.Sprintf("%s %s, [%s + 0x%x]", instName, asm.RegisterName(n.srcReg), asm.RegisterName(n.dstReg), n.dstConst)
		}
	case operandTypesRegisterToConst:
		ret = fmt.Sprintf("%s %s, 0x%x", instName, asm.RegisterName(n.srcReg), n.dstConst)
	case operandTypesMemoryToRegister:
		if n.srcMemIndex != asm.NilRegister {
			ret = fmt.Sprintf("%s [%s + 0x%x + %s*0x%x], %s", instName,
				asm.RegisterName(n.srcReg), n.srcConst, asm.RegisterName(n.srcMemIndex), n.srcMemScale, asm.RegisterName(n.dstReg))
		} else {
			ret = fmt.Sprintf("%s [%s + 0x%x], %s", instName, asm.RegisterName(n.srcReg), n.srcConst, asm.RegisterName(n.dstReg))
		}
	case operandTypesConstToRegister:
		ret = fmt.Sprintf("%s 0x%x, %s", instName, n.srcConst, asm.RegisterName(n.dstReg))
	}
	return
}

// operandType represents where an operand is placed for an instruction.
type operandType byte

const (
	operandTypeNone operandType = iota
	operandTypeRegister
	operandTypeMemory
	operandTypeConst
	operandTypeBranch
)

func (o operandType) String() (ret string) {
	switch o {
	case operandTypeNone:
		ret = "none"
	case operandTypeRegister:
		ret = "register"
	case operandTypeMemory:
		ret = "memory"
	case operandTypeConst:
		ret = "const"
	case operandTypeBranch:
		ret = "branch"
	}
	return
}

// operandTypes represents the only combinations of two operandTypes used by the code generator.
type operandTypes struct{ src, dst operandType }

var (
	operandTypesNoneToNone         = operandTypes{operandTypeNone, operandTypeNone}
	operandTypesNoneToRegister     = operandTypes{operandTypeNone, operandTypeRegister}
	operandTypesNoneToBranch       = operandTypes{operandTypeNone, operandTypeBranch}
	operandTypesRegisterToRegister = operandTypes{operandTypeRegister, operandTypeRegister}
	operandTypesRegisterToMemory   = operandTypes{operandTypeRegister, operandTypeMemory}
	operandTypesRegisterToConst    = operandTypes{operandTypeRegister, operandTypeConst}
	operandTypesMemoryToRegister   = operandTypes{operandTypeMemory, operandTypeRegister}
	operandTypesConstToRegister    = operandTypes{operandTypeConst, operandTypeRegister}
)

// String implements fmt.Stringer
func (o operandTypes) String() string {
	return fmt.Sprintf("from:%s,to:%s", o.src, o.dst)
}

// supported lists the operand combinations each instruction can be encoded with.
var supported = map[asm.Instruction][]operandTypes{
	asm.NOP:   {operandTypesNoneToNone},
	asm.RET:   {operandTypesNoneToNone},
	asm.MOVQ:  {operandTypesConstToRegister, operandTypesRegisterToRegister, operandTypesMemoryToRegister, operandTypesRegisterToMemory},
	asm.ADDQ:  {operandTypesConstToRegister, operandTypesRegisterToRegister},
	asm.SUBQ:  {operandTypesConstToRegister, operandTypesRegisterToRegister},
	asm.IMULQ: {operandTypesConstToRegister, operandTypesRegisterToRegister},
	asm.ANDQ:  {operandTypesConstToRegister, operandTypesRegisterToRegister},
	asm.CMPL:  {operandTypesRegisterToRegister, operandTypesRegisterToConst},
	asm.CMPQ:  {operandTypesRegisterToRegister, operandTypesRegisterToConst},
	asm.SETLE: {operandTypesNoneToRegister},
	asm.JMP:   {operandTypesNoneToBranch},
	asm.JEQ:   {operandTypesNoneToBranch},
	asm.JNE:   {operandTypesNoneToBranch},
}

func errorEncodingUnsupported(n *nodeImpl) error {
	return fmt.Errorf("%s is unsupported for %s type", asm.InstructionName(n.instruction), n.types)
}

// assemblerImpl implements asm.Assembler.
type assemblerImpl struct {
	asm.BaseAssemblerImpl
	root, current *nodeImpl
	count         int
	released      bool
}

// NewAssembler returns an empty portable assembler.
func NewAssembler() asm.Assembler {
	return &assemblerImpl{}
}

// newNode creates a new Node and appends it into the linked list.
func (a *assemblerImpl) newNode(instruction asm.Instruction, types operandTypes) *nodeImpl {
	n := &nodeImpl{
		instruction: instruction,
		types:       types,
		index:       a.count,
	}
	a.addNode(n)
	return n
}

// addNode appends the new node into the linked list.
func (a *assemblerImpl) addNode(node *nodeImpl) {
	if a.root == nil {
		a.root = node
		a.current = node
	} else {
		parent := a.current
		parent.next = node
		a.current = node
	}
	a.count++

	for _, o := range a.TakeBranchTargetOnNextNodes() {
		origin := o.(*nodeImpl)
		origin.jumpTarget = node
	}
}

// Assemble implements asm.Assembler.Assemble
func (a *assemblerImpl) Assemble() (asm.Code, error) {
	if a.released {
		return nil, errors.New("assembler already released")
	}
	if a.root == nil {
		return nil, errors.New("no instructions to assemble")
	}
	if len(a.SetBranchTargetOnNextNodes) > 0 {
		return nil, fmt.Errorf("%d jumps target the next instruction but none follows", len(a.SetBranchTargetOnNextNodes))
	}

	buf := make([]byte, 0, a.count*recordSize)
	for n := a.root; n != nil; n = n.next {
		var err error
		if buf, err = a.encodeNode(buf, n); err != nil {
			return nil, fmt.Errorf("%w: %v", err, n)
		}
	}

	program, err := decodeProgram(buf)
	if err != nil {
		return nil, err
	}
	return &code{bytes: buf, program: program}, nil
}

// Release implements asm.Assembler.Release
func (a *assemblerImpl) Release() {
	a.root, a.current, a.count = nil, nil, 0
	a.SetBranchTargetOnNextNodes = nil
	a.released = true
}

func (a *assemblerImpl) encodeNode(buf []byte, n *nodeImpl) ([]byte, error) {
	ok := false
	for _, t := range supported[n.instruction] {
		if t == n.types {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errorEncodingUnsupported(n)
	}

	r := record{instruction: n.instruction, types: n.types}
	switch n.types {
	case operandTypesNoneToNone:
	case operandTypesNoneToRegister:
		r.dstReg = n.dstReg
	case operandTypesNoneToBranch:
		if n.jumpTarget == nil {
			return nil, errors.New("jump target must be set")
		}
		r.imm = int64(n.jumpTarget.index)
	case operandTypesRegisterToRegister:
		r.srcReg, r.dstReg = n.srcReg, n.dstReg
	case operandTypesRegisterToConst:
		r.srcReg, r.imm = n.srcReg, n.dstConst
	case operandTypesConstToRegister:
		r.dstReg, r.imm = n.dstReg, n.srcConst
	case operandTypesMemoryToRegister:
		r.srcReg, r.dstReg, r.imm = n.srcReg, n.dstReg, n.srcConst
		r.index, r.scale = n.srcMemIndex, n.srcMemScale
	case operandTypesRegisterToMemory:
		r.srcReg, r.dstReg, r.imm = n.srcReg, n.dstReg, n.dstConst
		r.index, r.scale = n.dstMemIndex, n.dstMemScale
	}
	if err := r.validate(a.count); err != nil {
		return nil, err
	}
	return r.appendTo(buf), nil
}

// CompileStandAlone implements asm.Assembler.CompileStandAlone
func (a *assemblerImpl) CompileStandAlone(instruction asm.Instruction) asm.Node {
	return a.newNode(instruction, operandTypesNoneToNone)
}

// CompileConstToRegister implements asm.Assembler.CompileConstToRegister
func (a *assemblerImpl) CompileConstToRegister(instruction asm.Instruction, value int64, destinationReg asm.Register) asm.Node {
	n := a.newNode(instruction, operandTypesConstToRegister)
	n.srcConst = value
	n.dstReg = destinationReg
	return n
}

// CompileRegisterToRegister implements asm.Assembler.CompileRegisterToRegister
func (a *assemblerImpl) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) {
	n := a.newNode(instruction, operandTypesRegisterToRegister)
	n.srcReg = from
	n.dstReg = to
}

// CompileRegisterToConst implements asm.Assembler.CompileRegisterToConst
func (a *assemblerImpl) CompileRegisterToConst(instruction asm.Instruction, srcRegister asm.Register, value int64) asm.Node {
	n := a.newNode(instruction, operandTypesRegisterToConst)
	n.srcReg = srcRegister
	n.dstConst = value
	return n
}

// CompileNoneToRegister implements asm.Assembler.CompileNoneToRegister
func (a *assemblerImpl) CompileNoneToRegister(instruction asm.Instruction, register asm.Register) {
	n := a.newNode(instruction, operandTypesNoneToRegister)
	n.dstReg = register
}

// CompileMemoryToRegister implements asm.Assembler.CompileMemoryToRegister
func (a *assemblerImpl) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst int64, destinationReg asm.Register) {
	n := a.newNode(instruction, operandTypesMemoryToRegister)
	n.srcReg = sourceBaseReg
	n.srcConst = sourceOffsetConst
	n.dstReg = destinationReg
}

// CompileRegisterToMemory implements asm.Assembler.CompileRegisterToMemory
func (a *assemblerImpl) CompileRegisterToMemory(instruction asm.Instruction, sourceRegister asm.Register, destinationBaseRegister asm.Register, destinationOffsetConst int64) {
	n := a.newNode(instruction, operandTypesRegisterToMemory)
	n.srcReg = sourceRegister
	n.dstReg = destinationBaseRegister
	n.dstConst = destinationOffsetConst
}

// CompileMemoryWithIndexToRegister implements asm.Assembler.CompileMemoryWithIndexToRegister
func (a *assemblerImpl) CompileMemoryWithIndexToRegister(instruction asm.Instruction, srcBaseReg asm.Register, srcOffsetConst int64, srcIndex asm.Register, srcScale int16, dstReg asm.Register) {
	n := a.newNode(instruction, operandTypesMemoryToRegister)
	n.srcReg = srcBaseReg
	n.srcConst = srcOffsetConst
	n.srcMemIndex = srcIndex
	n.srcMemScale = byte(srcScale)
	n.dstReg = dstReg
}

// CompileRegisterToMemoryWithIndex implements asm.Assembler.CompileRegisterToMemoryWithIndex
func (a *assemblerImpl) CompileRegisterToMemoryWithIndex(instruction asm.Instruction, srcReg asm.Register, dstBaseReg asm.Register, dstOffsetConst int64, dstIndex asm.Register, dstScale int16) {
	n := a.newNode(instruction, operandTypesRegisterToMemory)
	n.srcReg = srcReg
	n.dstReg = dstBaseReg
	n.dstConst = dstOffsetConst
	n.dstMemIndex = dstIndex
	n.dstMemScale = byte(dstScale)
}

// CompileJump implements asm.Assembler.CompileJump
func (a *assemblerImpl) CompileJump(jmpInstruction asm.Instruction) asm.Node {
	return a.newNode(jmpInstruction, operandTypesNoneToBranch)
}

// recordSize is the encoded size of every instruction.
const recordSize = 16

// record is the decoded form of one encoded instruction.
//
//	byte 0     instruction
//	byte 1     operand types, src in the high nibble
//	byte 2     source register (base register for memory sources)
//	byte 3     destination register (base register for memory destinations)
//	byte 4     memory index register
//	byte 5     memory index scale
//	bytes 8-15 constant, memory displacement or jump target record number, little-endian
type record struct {
	instruction    asm.Instruction
	types          operandTypes
	srcReg, dstReg asm.Register
	index          asm.Register
	scale          byte
	imm            int64
}

func (r *record) appendTo(buf []byte) []byte {
	var b [recordSize]byte
	b[0] = byte(r.instruction)
	b[1] = byte(r.types.src)<<4 | byte(r.types.dst)
	b[2] = byte(r.srcReg)
	b[3] = byte(r.dstReg)
	b[4] = byte(r.index)
	b[5] = r.scale
	binary.LittleEndian.PutUint64(b[8:], uint64(r.imm))
	return append(buf, b[:]...)
}

func validRegister(r asm.Register) bool {
	return r > asm.NilRegister && r < asm.RegisterCount
}

// validate checks the fields used by the record's operand types. count is the number of records in the program.
func (r *record) validate(count int) error {
	checkReg := func(reg asm.Register) error {
		if !validRegister(reg) {
			return fmt.Errorf("invalid register %s", asm.RegisterName(reg))
		}
		return nil
	}
	checkMemory := func() error {
		if r.index == asm.NilRegister {
			return nil
		}
		if err := checkReg(r.index); err != nil {
			return err
		}
		switch r.scale {
		case 1, 2, 4, 8:
			return nil
		}
		return fmt.Errorf("invalid scale %d", r.scale)
	}

	switch r.types {
	case operandTypesNoneToNone:
	case operandTypesNoneToRegister, operandTypesConstToRegister:
		return checkReg(r.dstReg)
	case operandTypesRegisterToConst:
		return checkReg(r.srcReg)
	case operandTypesNoneToBranch:
		if r.imm < 0 || r.imm >= int64(count) {
			return fmt.Errorf("jump target %d outside program of %d instructions", r.imm, count)
		}
	case operandTypesRegisterToRegister, operandTypesMemoryToRegister, operandTypesRegisterToMemory:
		if err := checkReg(r.srcReg); err != nil {
			return err
		}
		if err := checkReg(r.dstReg); err != nil {
			return err
		}
		if r.types != operandTypesRegisterToRegister {
			return checkMemory()
		}
	default:
		return fmt.Errorf("invalid operand types %s", r.types)
	}
	return nil
}

// decodeProgram decodes and validates every record in b.
func decodeProgram(b []byte) ([]record, error) {
	if len(b)%recordSize != 0 {
		return nil, fmt.Errorf("code length %d is not a multiple of %d", len(b), recordSize)
	}
	count := len(b) / recordSize
	program := make([]record, count)
	for i := range program {
		raw := b[i*recordSize : (i+1)*recordSize]
		r := record{
			instruction: asm.Instruction(raw[0]),
			types:       operandTypes{src: operandType(raw[1] >> 4), dst: operandType(raw[1] & 0xf)},
			srcReg:      asm.Register(raw[2]),
			dstReg:      asm.Register(raw[3]),
			index:       asm.Register(raw[4]),
			scale:       raw[5],
			imm:         int64(binary.LittleEndian.Uint64(raw[8:])),
		}
		if _, ok := supported[r.instruction]; !ok {
			return nil, fmt.Errorf("record %d: unknown instruction %s", i, asm.InstructionName(r.instruction))
		}
		if err := r.validate(count); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		program[i] = r
	}
	return program, nil
}

// String formats the record like nodeImpl.String, with jump targets as record numbers.
func (r *record) String() string {
	n := nodeImpl{
		instruction: r.instruction, types: r.types, srcReg: r.srcReg, dstReg: r.dstReg,
	}
	switch r.types {
	case operandTypesNoneToBranch:
		return fmt.Sprintf("%s #%d", asm.InstructionName(r.instruction), r.imm)
	case operandTypesRegisterToConst:
		n.dstConst = r.imm
	case operandTypesConstToRegister:
		n.srcConst = r.imm
	case operandTypesMemoryToRegister:
		n.srcConst, n.srcMemIndex, n.srcMemScale = r.imm, r.index, r.scale
	case operandTypesRegisterToMemory:
		n.dstConst, n.dstMemIndex, n.dstMemScale = r.imm, r.index, r.scale
	}
	return n.String()
}

// Disassemble formats encoded portable code, one instruction per line.
func Disassemble(b []byte) (string, error) {
	program, err := decodeProgram(b)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := range program {
		fmt.Fprintf(&sb, "%04d  %s\n", i, program[i].String())
	}
	return sb.String(), nil
}
