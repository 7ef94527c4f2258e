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
package codegen

import (
	"fmt"
	"strings"

	"minicc/ast"
	"minicc/compile/ir"
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// Assembly emitter
//
// Serializes the lowered program as an Intel-syntax listing: a .data
// section with global emissions, then .text with one body per function.
// Register operands that are still virtual print as v<n>; the allocator
// downstream rewrites them.

func sizeSpecifier(size int64) string {
	switch size {
	case 1:
		return "BYTE PTR"
	case 2:
		return "WORD PTR"
	case 4:
		return "DWORD PTR"
	case 8:
		return "QWORD PTR"
	}
	utils.Fatal("unknown access size specifier %d", size)
	return ""
}

func (op Operand) render() string {
	switch op.Kind {
	case OP_REG:
		return op.Reg.String()
	case OP_IMM:
		return fmt.Sprintf("%d", op.Imm)
	case OP_MEM:
		addr := op.Mem.Base.String()
		if op.Mem.Index != nil {
			addr += fmt.Sprintf("+%s*%d", op.Mem.Index, op.Mem.Scale)
		}
		if op.Mem.Disp > 0 {
			addr += fmt.Sprintf("+%d", op.Mem.Disp)
		} else if op.Mem.Disp < 0 {
			addr += fmt.Sprintf("%d", op.Mem.Disp)
		}
		return fmt.Sprintf("%s [%s]", sizeSpecifier(op.Mem.Size), addr)
	case OP_MEM_RELATIVE:
		addr := "rip+" + op.Mem.Symbol
		if op.Mem.Disp > 0 {
			addr += fmt.Sprintf("+%d", op.Mem.Disp)
		} else if op.Mem.Disp < 0 {
			addr += fmt.Sprintf("%d", op.Mem.Disp)
		}
		return fmt.Sprintf("[%s]", addr)
	}
	utils.ShouldNotReachHere()
	return ""
}

func (a *Asm) render() string {
	switch a.Kind {
	case X64_LABEL:
		return a.JumpTarget + ":"
	case X64_JMP, X64_JZ, X64_JE, X64_JNE, X64_CALL:
		return fmt.Sprintf("    %s %s", a.Kind.Mnemonic(), a.JumpTarget)
	case X64_RETURN:
		// the function epilogue is always leave; ret
		return "    leave\n    ret"
	case X64_BUILTIN_ASM:
		return a.AsmStr
	case X64_CQO, X64_LEAVE:
		return "    " + a.Kind.Mnemonic()
	}
	var ops []string
	for _, op := range a.Operands {
		if op.Kind == OP_NONE {
			break
		}
		ops = append(ops, op.render())
	}
	return fmt.Sprintf("    %s %s", a.Kind.Mnemonic(), strings.Join(ops, ", "))
}

// escapeString renders literal bytes for a .string directive.
func escapeString(raw []byte) string {
	var sb strings.Builder
	for _, c := range raw {
		switch c {
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func emitInitializer(sb *strings.Builder, init *ir.Initializer) {
	switch init.Kind {
	case ir.InitZero:
		fmt.Fprintf(sb, "    .zero %d\n", init.ZeroLen)
	case ir.InitVal:
		switch init.ValSize {
		case 1:
			fmt.Fprintf(sb, "    .byte %d\n", init.Val)
		case 2:
			fmt.Fprintf(sb, "    .value %d\n", init.Val)
		case 4:
			fmt.Fprintf(sb, "    .long %d\n", init.Val)
		default:
			fmt.Fprintf(sb, "    .quad %d\n", init.Val)
		}
	case ir.InitPointer:
		fmt.Fprintf(sb, "    .quad %s\n", init.VarName)
	case ir.InitString:
		fmt.Fprintf(sb, "    .quad %s\n", init.LiteralName)
	case ir.InitList:
		for _, sub := range init.List {
			emitInitializer(sb, sub)
		}
	default:
		utils.ShouldNotReachHere()
	}
}

// CodeGen lowers every function and renders the final listing.
func CodeGen(prog *ir.Program) string {
	var sb strings.Builder
	sb.WriteString(".intel_syntax noprefix\n")
	sb.WriteString(".data\n")

	for _, gvar := range prog.Globals {
		fmt.Fprintf(&sb, "%s:\n", gvar.Name)
		for _, init := range gvar.Init {
			emitInitializer(&sb, init)
		}
	}
	for _, str := range prog.Strings {
		fmt.Fprintf(&sb, "%s:\n", str.Name)
		fmt.Fprintf(&sb, "    .string \"%s\"\n",
			escapeString([]byte(ast.DecodeEscapes(str.Value))))
	}

	sb.WriteString(".text\n")
	for _, fn := range prog.Funcs {
		x64 := Lower(fn)
		if x64.IsAsm {
			sb.WriteString("\n")
			sb.WriteString(x64.AsmStr)
			sb.WriteString("\n")
			continue
		}
		sb.WriteString("\n")
		if !x64.IsStatic {
			fmt.Fprintf(&sb, ".global %s\n", x64.Name)
		}
		fmt.Fprintf(&sb, "%s:\n", x64.Name)
		sb.WriteString("    push rbp\n")
		sb.WriteString("    mov rbp, rsp\n")
		if x64.StackSize > 0 {
			fmt.Fprintf(&sb, "    sub rsp, %d\n", x64.StackSize)
		}
		for _, block := range x64.Blocks {
			for _, a := range block.List {
				sb.WriteString(a.render())
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
