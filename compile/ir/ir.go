// Copyright (c) 2025 The Minicc Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ir

import (
	"fmt"
	"strings"

	"minicc/ast"
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// Three-address IR
//
// Every non-terminator instruction has one destination and up to two
// sources, all virtual registers or immediates. Instructions are grouped
// into basic blocks; a block is closed by a terminator (jump, return,
// epilogue) or falls through to the following block. A label is always the
// sole instruction of its block so it is a safe jump target.

// RegSize is an operand size in bytes.
type RegSize int64

const (
	SizeByte  RegSize = 1
	SizeWord  RegSize = 2
	SizeDWord RegSize = 4
	SizeQWord RegSize = 8
)

func (s RegSize) String() string {
	switch s {
	case SizeByte:
		return "b"
	case SizeWord:
		return "w"
	case SizeDWord:
		return "d"
	case SizeQWord:
		return "q"
	}
	return "?"
}

// Reg is a virtual register. Uses lists every instruction that reads or
// writes it, in emission order.
type Reg struct {
	Num  int
	Size RegSize
	Uses []*Instr
}

func (r *Reg) String() string {
	return fmt.Sprintf("v%d.%v", r.Num, r.Size)
}

type Kind int

const (
	// function instructions
	IR_CALL Kind = iota
	IR_FUNC_PROLOGUE // leader
	IR_FUNC_EPILOGUE // terminator
	IR_RET           // terminator

	// built-ins
	IR_BUILTIN_ASM

	// moves
	IR_MOV

	// arithmetic
	IR_ADD
	IR_SUB
	IR_MUL  // signed
	IR_MULU // unsigned
	IR_DIV  // signed
	IR_DIVU // unsigned
	IR_REM  // signed
	IR_REMU // unsigned

	// compare, 0/1 result
	IR_EQ
	IR_NEQ
	IR_LT   // signed
	IR_LTU  // unsigned
	IR_LTE  // signed
	IR_LTEU // unsigned

	// jumps, all terminators
	IR_JMP
	IR_JNE // jump if cond != 0
	IR_JE  // jump if cond == 0

	// memory
	IR_LOAD
	IR_STORE
	IR_STORE_ARG // spill the i-th ABI argument register
	IR_LEA

	// width changes
	IR_SIGN_EXTEND
	IR_ZERO_EXTEND
	IR_TRUNCATE

	// bitwise
	IR_AND
	IR_OR
	IR_XOR
	IR_NOT     // logical not (0/1 result)
	IR_BIT_NOT // one's complement
	IR_SHL     // unsigned <<
	IR_SHR     // unsigned >>
	IR_SAL     // signed <<
	IR_SAR     // signed >>

	// unary
	IR_NEG

	IR_PHI
	IR_LABEL // leader, sole instruction of its block
)

func (k Kind) String() string {
	names := map[Kind]string{
		IR_CALL: "call", IR_FUNC_PROLOGUE: "prologue", IR_FUNC_EPILOGUE: "epilogue",
		IR_RET: "ret", IR_BUILTIN_ASM: "asm", IR_MOV: "mov",
		IR_ADD: "add", IR_SUB: "sub", IR_MUL: "mul", IR_MULU: "mulu",
		IR_DIV: "div", IR_DIVU: "divu", IR_REM: "rem", IR_REMU: "remu",
		IR_EQ: "eq", IR_NEQ: "neq", IR_LT: "lt", IR_LTU: "ltu",
		IR_LTE: "lte", IR_LTEU: "lteu",
		IR_JMP: "jmp", IR_JNE: "jne", IR_JE: "je",
		IR_LOAD: "load", IR_STORE: "store", IR_STORE_ARG: "storearg", IR_LEA: "lea",
		IR_SIGN_EXTEND: "sext", IR_ZERO_EXTEND: "zext", IR_TRUNCATE: "trunc",
		IR_AND: "and", IR_OR: "or", IR_XOR: "xor", IR_NOT: "not",
		IR_BIT_NOT: "bitnot", IR_SHL: "shl", IR_SHR: "shr",
		IR_SAL: "sal", IR_SAR: "sar", IR_NEG: "neg",
		IR_PHI: "phi", IR_LABEL: "label",
	}
	if s, ok := names[k]; ok {
		return s
	}
	return "<unknown>"
}

// Instr is one IR instruction. The field groups mirror the instruction
// families; unused fields stay zero.
type Instr struct {
	Kind Kind

	Dst *Reg // defined register, nil for pure control flow
	Src *Reg // mov/unary/width/ret source, store value register

	// binary operations and phi
	Lhs, Rhs *Reg

	// immediates
	Imm   int64
	IsImm bool

	// call
	Name string // call target / label name / lea symbol / asm text
	Args []*Reg

	// load/store
	Addr   *Reg
	Offset int64
	Size   int64 // access size in bytes

	// store-arg
	ArgIndex int

	// lea
	IsLocal  bool
	IsStatic bool

	// ret
	ReturnVoid bool
}

func (i *Instr) String() string {
	switch i.Kind {
	case IR_MOV:
		if i.IsImm {
			return fmt.Sprintf("%v = mov $%d", i.Dst, i.Imm)
		}
		return fmt.Sprintf("%v = mov %v", i.Dst, i.Src)
	case IR_ADD, IR_SUB, IR_MUL, IR_MULU, IR_DIV, IR_DIVU, IR_REM, IR_REMU,
		IR_EQ, IR_NEQ, IR_LT, IR_LTU, IR_LTE, IR_LTEU,
		IR_AND, IR_OR, IR_XOR, IR_SHL, IR_SHR, IR_SAL, IR_SAR, IR_PHI:
		return fmt.Sprintf("%v = %v %v %v", i.Dst, i.Kind, i.Lhs, i.Rhs)
	case IR_NOT, IR_BIT_NOT, IR_NEG, IR_SIGN_EXTEND, IR_ZERO_EXTEND, IR_TRUNCATE:
		return fmt.Sprintf("%v = %v %v", i.Dst, i.Kind, i.Src)
	case IR_JMP:
		return fmt.Sprintf("jmp %s", i.Name)
	case IR_JNE, IR_JE:
		return fmt.Sprintf("%v %v, %s", i.Kind, i.Src, i.Name)
	case IR_LOAD:
		return fmt.Sprintf("%v = load [%v+%d] size=%d", i.Dst, i.Addr, i.Offset, i.Size)
	case IR_STORE:
		return fmt.Sprintf("store %v -> [%v+%d] size=%d", i.Src, i.Addr, i.Offset, i.Size)
	case IR_STORE_ARG:
		return fmt.Sprintf("storearg #%d -> [%v] size=%d", i.ArgIndex, i.Addr, i.Size)
	case IR_LEA:
		if i.IsLocal {
			return fmt.Sprintf("%v = lea local+%d", i.Dst, i.Offset)
		}
		return fmt.Sprintf("%v = lea %s+%d", i.Dst, i.Name, i.Offset)
	case IR_CALL:
		args := make([]string, len(i.Args))
		for idx, a := range i.Args {
			args[idx] = a.String()
		}
		return fmt.Sprintf("%v = call %s(%s)", i.Dst, i.Name, strings.Join(args, ", "))
	case IR_RET:
		if i.ReturnVoid {
			return "ret"
		}
		return fmt.Sprintf("ret %v", i.Src)
	case IR_LABEL:
		return fmt.Sprintf("%s:", i.Name)
	case IR_BUILTIN_ASM:
		return fmt.Sprintf("asm %q", i.Name)
	}
	return i.Kind.String()
}

// IsTerminator reports whether the instruction closes its basic block.
func (i *Instr) IsTerminator() bool {
	switch i.Kind {
	case IR_JMP, IR_JNE, IR_JE, IR_RET, IR_FUNC_EPILOGUE:
		return true
	}
	return false
}

// DefReg returns the register this instruction defines, if any.
func (i *Instr) DefReg() *Reg {
	return i.Dst
}

// UseRegs returns the registers this instruction reads.
func (i *Instr) UseRegs() []*Reg {
	var uses []*Reg
	add := func(r *Reg) {
		if r != nil {
			uses = append(uses, r)
		}
	}
	switch i.Kind {
	case IR_MOV:
		if !i.IsImm {
			add(i.Src)
		}
	case IR_JNE, IR_JE, IR_RET:
		add(i.Src)
	case IR_LOAD:
		add(i.Addr)
	case IR_STORE:
		add(i.Src)
		add(i.Addr)
	case IR_STORE_ARG:
		add(i.Addr)
	case IR_CALL:
		uses = append(uses, i.Args...)
	case IR_NOT, IR_BIT_NOT, IR_NEG, IR_SIGN_EXTEND, IR_ZERO_EXTEND, IR_TRUNCATE:
		add(i.Src)
	default:
		add(i.Lhs)
		add(i.Rhs)
	}
	return uses
}

// -----------------------------------------------------------------------------
// Basic blocks and functions

type Block struct {
	Id      int
	IRs     []*Instr
	Parents []*Block
	Lhs     *Block // fall-through or taken successor
	Rhs     *Block // not-taken successor
	RegIn   *utils.BitMap
	RegUse  *utils.BitMap
	RegDef  *utils.BitMap
	RegOut  *utils.BitMap
}

func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "b%d:\n", b.Id)
	for _, i := range b.IRs {
		fmt.Fprintf(&sb, "  %v\n", i)
	}
	return sb.String()
}

// Terminator returns the closing instruction, or nil when the block falls
// through.
func (b *Block) Terminator() *Instr {
	if len(b.IRs) == 0 {
		return nil
	}
	last := b.IRs[len(b.IRs)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// IsLabelBlock reports the label-block invariant shape.
func (b *Block) IsLabelBlock() bool {
	return len(b.IRs) == 1 && b.IRs[0].Kind == IR_LABEL
}

type Func struct {
	Name      string
	IsStatic  bool
	IsAsm     bool // whole function body is one builtin-asm instruction
	StackSize int64
	Blocks    []*Block
	Labels    []*Block // blocks whose sole instruction is a label
	Regs      []*Reg
}

func (f *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s (frame=%d):\n", f.Name, f.StackSize)
	for _, b := range f.Blocks {
		sb.WriteString(b.String())
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Global variable initializers

type InitKind int

const (
	InitZero InitKind = iota + 1
	InitVal
	InitPointer
	InitString
	InitList
)

type Initializer struct {
	Kind        InitKind
	ZeroLen     int64
	Val         int64
	ValSize     int64
	VarName     string // InitPointer
	LiteralName string // InitString
	List        []*Initializer
}

type GlobalVar struct {
	Name     string
	Size     int64
	IsStatic bool
	Init     []*Initializer
}

type Program struct {
	Funcs   []*Func
	Globals []*GlobalVar
	Strings []*ast.StringLiteral
	Types   *ast.TypeEnv
}
