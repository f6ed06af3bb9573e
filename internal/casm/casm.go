// Package casm models the CASM instructions the compiler emits, their sizes
// in words and their textual rendering.
package casm

import (
	"fmt"
	"math/big"
	"strings"
)

// Register is a base register of a cell reference.
type Register int

const (
	AP Register = iota
	FP
)

func (r Register) String() string {
	if r == FP {
		return "fp"
	}
	return "ap"
}

// CellRef is a memory cell addressed relative to a register.
type CellRef struct {
	Register Register
	Offset   int
}

// String renders "[ap + -1]".
func (c CellRef) String() string {
	return fmt.Sprintf("[%s + %d]", c.Register, c.Offset)
}

// Operation is the arithmetic operation of a binary operand.
type Operation int

const (
	OpAdd Operation = iota
	OpMul
)

func (o Operation) String() string {
	if o == OpMul {
		return "*"
	}
	return "+"
}

// DerefOrImmediate is the second operand of a binary operation and the
// target of relative jumps and calls.
type DerefOrImmediate struct {
	IsImmediate bool
	Cell        CellRef
	Imm         *big.Int
}

// Immediate builds an immediate operand.
func Immediate(v *big.Int) DerefOrImmediate {
	return DerefOrImmediate{IsImmediate: true, Imm: v}
}

// Deref builds a cell operand.
func Deref(c CellRef) DerefOrImmediate { return DerefOrImmediate{Cell: c} }

func (d DerefOrImmediate) String() string {
	if d.IsImmediate {
		return d.Imm.String()
	}
	return d.Cell.String()
}

// ResKind discriminates the variants of ResOperand.
type ResKind int

const (
	ResDeref ResKind = iota
	ResDoubleDeref
	ResImmediate
	ResBinOp
)

// ResOperand is the right-hand side of an assert-equal instruction.
type ResOperand struct {
	Kind   ResKind
	Cell   CellRef  // ResDeref, ResDoubleDeref, left operand of ResBinOp
	Offset int      // ResDoubleDeref
	Imm    *big.Int // ResImmediate
	Op     Operation
	B      DerefOrImmediate // ResBinOp
}

func (r ResOperand) String() string {
	switch r.Kind {
	case ResDoubleDeref:
		return fmt.Sprintf("[%s + %d]", r.Cell, r.Offset)
	case ResImmediate:
		return r.Imm.String()
	case ResBinOp:
		return fmt.Sprintf("%s %s %s", r.Cell, r.Op, r.B)
	default:
		return r.Cell.String()
	}
}

func (r ResOperand) hasImmediate() bool {
	switch r.Kind {
	case ResImmediate:
		return true
	case ResBinOp:
		return r.B.IsImmediate
	default:
		return false
	}
}

// InstructionKind discriminates instruction bodies.
type InstructionKind int

const (
	InsnAssertEq InstructionKind = iota
	InsnJumpRel
	InsnJnz
	InsnCallRel
	InsnRet
)

// Instruction is one CASM instruction.
type Instruction struct {
	Kind       InstructionKind
	Dst        CellRef          // InsnAssertEq
	Res        ResOperand       // InsnAssertEq
	Target     DerefOrImmediate // InsnJumpRel, InsnJnz, InsnCallRel
	Condition  CellRef          // InsnJnz
	ApPlusPlus bool
}

// AssertEq builds "dst = res".
func AssertEq(dst CellRef, res ResOperand) Instruction {
	return Instruction{Kind: InsnAssertEq, Dst: dst, Res: res}
}

// JumpRel builds "jmp rel offset".
func JumpRel(offset int) Instruction {
	return Instruction{Kind: InsnJumpRel, Target: Immediate(big.NewInt(int64(offset)))}
}

// Jnz builds "jmp rel offset if cond != 0".
func Jnz(offset int, cond CellRef) Instruction {
	return Instruction{Kind: InsnJnz, Target: Immediate(big.NewInt(int64(offset))), Condition: cond}
}

// CallRel builds "call rel offset".
func CallRel(offset int) Instruction {
	return Instruction{Kind: InsnCallRel, Target: Immediate(big.NewInt(int64(offset)))}
}

// Ret builds "ret".
func Ret() Instruction { return Instruction{Kind: InsnRet} }

// Size returns the encoded size of the instruction in words: one, plus one
// for an immediate operand.
func (i Instruction) Size() int {
	switch i.Kind {
	case InsnAssertEq:
		if i.Res.hasImmediate() {
			return 2
		}
		return 1
	case InsnJumpRel, InsnJnz, InsnCallRel:
		if i.Target.IsImmediate {
			return 2
		}
		return 1
	default:
		return 1
	}
}

func (i Instruction) String() string {
	var body string
	switch i.Kind {
	case InsnAssertEq:
		body = fmt.Sprintf("%s = %s", i.Dst, i.Res)
	case InsnJumpRel:
		body = fmt.Sprintf("jmp rel %s", i.Target)
	case InsnJnz:
		body = fmt.Sprintf("jmp rel %s if %s != 0", i.Target, i.Condition)
	case InsnCallRel:
		body = fmt.Sprintf("call rel %s", i.Target)
	case InsnRet:
		body = "ret"
	}
	if i.ApPlusPlus {
		body += ", ap++"
	}
	return body
}

// ConstSegment is a run of constant values placed after the code.
type ConstSegment struct {
	Index      int
	CodeOffset int // absolute offset of the first value in the program
	Values     []*big.Int
}

// ConstsInfo lists the const segments in index order.
type ConstsInfo struct {
	Segments []ConstSegment
}

// Values returns the number of constant words across all segments.
func (c ConstsInfo) Values() int {
	n := 0
	for _, seg := range c.Segments {
		n += len(seg.Values)
	}
	return n
}

// Program is a compiled CASM program.
type Program struct {
	Instructions []Instruction
	ConstsInfo   ConstsInfo
}

// CodeSize returns the size of the instructions in words.
func (p *Program) CodeSize() int {
	n := 0
	for _, insn := range p.Instructions {
		n += insn.Size()
	}
	return n
}

// BytecodeSize returns the size of the code plus its constants in words.
func (p *Program) BytecodeSize() int {
	return p.CodeSize() + p.ConstsInfo.Values()
}

// String renders one instruction per line and then one "dw" line per
// constant value. Every line ends with a newline.
func (p *Program) String() string {
	var sb strings.Builder
	for _, insn := range p.Instructions {
		sb.WriteString(insn.String())
		sb.WriteString(";\n")
	}
	for _, seg := range p.ConstsInfo.Segments {
		for _, v := range seg.Values {
			fmt.Fprintf(&sb, "dw %s;\n", v)
		}
	}
	return sb.String()
}
