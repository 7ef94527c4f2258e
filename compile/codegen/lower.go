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
	"minicc/compile/ir"
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// Lowering pass
//
// Transforms each IR block into an x86-64 instruction list. x86-64 is
// two-address: the destination virtual register is fused with the lhs
// operand (or with the rhs for commutative operators when the lhs is
// already bound to a physical register); when neither side can be fused a
// copy is inserted. ABI constraints bind rax/rdx around division, rdi..r9
// at calls and rax for return values; shift counts go through cl and
// local addresses are rbp-relative; everything else stays virtual.

type lowerer struct {
	fn  *X64Func
	cur *X64Block
}

// Lower converts one IR function into its x86-64 form.
func Lower(fn *ir.Func) *X64Func {
	if fn.IsAsm {
		utils.Assert(len(fn.Blocks) == 1 && len(fn.Blocks[0].IRs) == 1,
			"builtin asm function shape")
		return &X64Func{IsAsm: true, AsmStr: fn.Blocks[0].IRs[0].Name}
	}
	lo := &lowerer{
		fn: &X64Func{
			Name:        fn.Name,
			IsStatic:    fn.IsStatic,
			StackSize:   fn.StackSize,
			StackUsed:   fn.StackSize > 0,
			VirtualRegs: make([]*X64Reg, len(fn.Regs)),
		},
	}
	for _, block := range fn.Blocks {
		lo.cur = &X64Block{}
		lo.fn.Blocks = append(lo.fn.Blocks, lo.cur)
		for _, instr := range block.IRs {
			lo.lowerInstr(fn, instr)
		}
	}
	for _, b := range lo.fn.Blocks {
		for _, a := range b.List {
			lo.fn.UsedRegisters |= a.ImplicitUsed
		}
	}
	return lo.fn
}

func (lo *lowerer) push(a *Asm) *Asm {
	lo.cur.List = append(lo.cur.List, a)
	return a
}

// searchReg returns the operand already bound to the IR register, nil if
// none.
func (lo *lowerer) searchReg(r *ir.Reg) *X64Reg {
	return lo.fn.VirtualRegs[r.Num]
}

func (lo *lowerer) bind(r *ir.Reg, x *X64Reg) {
	lo.fn.VirtualRegs[r.Num] = x
}

// searchOrCreate returns the binding for r, allocating an unassigned slot
// when the register has not been seen yet.
func (lo *lowerer) searchOrCreate(r *ir.Reg) *X64Reg {
	if x := lo.searchReg(r); x != nil {
		return x
	}
	x := &X64Reg{}
	lo.bind(r, x)
	return x
}

// defineVirtual marks r's slot as a fresh virtual register.
func (lo *lowerer) defineVirtual(r *ir.Reg) *X64Reg {
	x := lo.searchOrCreate(r)
	if x.Class == ClassUnassigned {
		x.Class = ClassVirtual
		x.Size = r.Size
		x.ID = r.Num
	}
	return x
}

func (lo *lowerer) lowerInstr(fn *ir.Func, instr *ir.Instr) {
	switch instr.Kind {
	case ir.IR_FUNC_PROLOGUE:
		// frame setup is emitted with the function header

	case ir.IR_FUNC_EPILOGUE:
		if fn.Name == "main" {
			// implicit return 0 in main only
			mov := &Asm{Kind: X64_MOV, ImplicitUsed: RAX.Bit()}
			mov.Operands[0] = regOperand(reservedReal(RAX, ir.SizeDWord))
			mov.Operands[1] = immOperand(0)
			lo.push(mov)
		}
		lo.push(&Asm{Kind: X64_RETURN})

	case ir.IR_RET:
		if !instr.ReturnVoid {
			ret := lo.searchOrCreate(instr.Src)
			if ret.Class == ClassReal && ret.Reserved && ret.Real != RAX {
				mov := &Asm{Kind: X64_MOV, ImplicitUsed: RAX.Bit()}
				mov.Operands[0] = regOperand(reservedReal(RAX, instr.Src.Size))
				mov.Operands[1] = regOperand(ret)
				lo.push(mov)
			} else if ret.Class == ClassVirtual || ret.Class == ClassUnassigned {
				ret.Class = ClassReal
				ret.Size = instr.Src.Size
				ret.Real = RAX
				ret.Reserved = true
			}
		}
		lo.push(&Asm{Kind: X64_RETURN})

	case ir.IR_BUILTIN_ASM:
		lo.push(&Asm{Kind: X64_BUILTIN_ASM, AsmStr: instr.Name})

	case ir.IR_MOV:
		mov := &Asm{Kind: X64_MOV}
		mov.Operands[0] = regOperand(lo.defineVirtual(instr.Dst))
		if instr.IsImm {
			mov.Operands[1] = immOperand(instr.Imm)
		} else {
			mov.Operands[1] = regOperand(lo.searchOrCreate(instr.Src))
		}
		lo.push(mov)

	case ir.IR_ADD, ir.IR_SUB, ir.IR_MUL, ir.IR_MULU,
		ir.IR_AND, ir.IR_OR, ir.IR_XOR:
		kinds := map[ir.Kind]AsmKind{
			ir.IR_ADD: X64_ADD, ir.IR_SUB: X64_SUB,
			ir.IR_MUL: X64_IMUL, ir.IR_MULU: X64_IMUL,
			ir.IR_AND: X64_AND, ir.IR_OR: X64_OR, ir.IR_XOR: X64_XOR,
		}
		commutative := instr.Kind != ir.IR_SUB
		lo.lowerTwoAddress(kinds[instr.Kind], instr, commutative)

	case ir.IR_SHL, ir.IR_SHR, ir.IR_SAL, ir.IR_SAR:
		lo.lowerShift(instr)

	case ir.IR_DIV, ir.IR_DIVU, ir.IR_REM, ir.IR_REMU:
		lo.lowerDivision(instr)

	case ir.IR_EQ, ir.IR_NEQ, ir.IR_LT, ir.IR_LTU, ir.IR_LTE, ir.IR_LTEU:
		lo.lowerCompare(instr)

	case ir.IR_JMP:
		lo.push(&Asm{Kind: X64_JMP, JumpTarget: instr.Name})

	case ir.IR_JNE, ir.IR_JE:
		cmp := &Asm{Kind: X64_CMP}
		cond := lo.searchReg(instr.Src)
		utils.Assert(cond != nil, "jump condition register is unbound")
		cmp.Operands[0] = regOperand(cond)
		cmp.Operands[1] = immOperand(0)
		lo.push(cmp)
		kind := X64_JE
		if instr.Kind == ir.IR_JNE {
			kind = X64_JNE
		}
		lo.push(&Asm{Kind: kind, JumpTarget: instr.Name})

	case ir.IR_LOAD, ir.IR_STORE:
		mov := &Asm{Kind: X64_MOV}
		mem := lo.searchReg(instr.Addr)
		utils.Assert(mem != nil, "memory address register is unbound")
		memOp := Operand{Kind: OP_MEM, Mem: Mem{
			Base: mem,
			Disp: instr.Offset,
			Size: instr.Size,
		}}
		if instr.Kind == ir.IR_LOAD {
			mov.Operands[0] = regOperand(lo.defineVirtual(instr.Dst))
			mov.Operands[1] = memOp
		} else {
			mov.Operands[0] = memOp
			mov.Operands[1] = regOperand(lo.searchOrCreate(instr.Src))
		}
		lo.push(mov)

	case ir.IR_STORE_ARG:
		// spill the i-th ABI argument register into the parameter slot
		mov := &Asm{Kind: X64_MOV}
		mem := lo.searchReg(instr.Addr)
		utils.Assert(mem != nil, "argument slot address is unbound")
		mov.Operands[0] = Operand{Kind: OP_MEM, Mem: Mem{
			Base: mem,
			Size: instr.Size,
		}}
		arg := ArgRegs[instr.ArgIndex]
		mov.Operands[1] = regOperand(reservedReal(arg, sizeToReg(instr.Size)))
		mov.ImplicitUsed = arg.Bit()
		lo.push(mov)

	case ir.IR_LEA:
		lea := &Asm{Kind: X64_LEA}
		lea.Operands[0] = regOperand(lo.defineVirtual(instr.Dst))
		if instr.IsLocal {
			lea.Operands[1] = Operand{Kind: OP_MEM, Mem: Mem{
				Base: reservedReal(RBP, ir.SizeQWord),
				Disp: -instr.Offset,
				Size: 8,
			}}
			lea.ImplicitUsed = RBP.Bit()
		} else {
			lea.Operands[1] = Operand{Kind: OP_MEM_RELATIVE, Mem: Mem{
				Symbol: instr.Name,
				Disp:   instr.Offset,
				Size:   8,
			}}
		}
		lo.push(lea)

	case ir.IR_SIGN_EXTEND, ir.IR_ZERO_EXTEND, ir.IR_TRUNCATE:
		lo.lowerWidth(instr)

	case ir.IR_NOT:
		// logical not: compare against zero, set byte on equality
		cmp := &Asm{Kind: X64_CMP}
		src := lo.searchReg(instr.Src)
		utils.Assert(src != nil, "operand register is unbound")
		cmp.Operands[0] = regOperand(src)
		cmp.Operands[1] = immOperand(0)
		lo.push(cmp)
		dst := lo.defineVirtual(instr.Dst)
		xor := &Asm{Kind: X64_XOR}
		xor.Operands[0] = regOperand(dst)
		xor.Operands[1] = regOperand(dst)
		lo.push(xor)
		set := &Asm{Kind: X64_SETE}
		set.Operands[0] = regOperand(dst)
		lo.push(set)

	case ir.IR_BIT_NOT, ir.IR_NEG:
		kind := X64_NOT
		if instr.Kind == ir.IR_NEG {
			kind = X64_NEG
		}
		src := lo.searchReg(instr.Src)
		utils.Assert(src != nil, "operand register is unbound")
		// single-operand form: the destination aliases the source
		lo.bind(instr.Dst, src)
		op := &Asm{Kind: kind}
		op.Operands[0] = regOperand(src)
		lo.push(op)

	case ir.IR_CALL:
		lo.lowerCall(instr)

	case ir.IR_PHI:
		lo.lowerPhi(instr)

	case ir.IR_LABEL:
		lo.push(&Asm{Kind: X64_LABEL, JumpTarget: instr.Name})

	default:
		utils.Unimplement()
	}
}

// lowerTwoAddress fuses the destination with one source per the x86-64
// two-address form.
func (lo *lowerer) lowerTwoAddress(kind AsmKind, instr *ir.Instr, commutative bool) {
	lhs := lo.searchReg(instr.Lhs)
	rhs := lo.searchReg(instr.Rhs)
	utils.Assert(lhs != nil && rhs != nil, "binary operand register is unbound")

	op := &Asm{Kind: kind}
	switch {
	case lhs.Class == ClassVirtual:
		lo.bind(instr.Dst, lhs)
		op.Operands[0] = regOperand(lhs)
		op.Operands[1] = regOperand(rhs)
	case commutative && rhs.Class == ClassVirtual:
		lo.bind(instr.Dst, rhs)
		op.Operands[0] = regOperand(rhs)
		op.Operands[1] = regOperand(lhs)
	default:
		// both sides pre-bound: copy lhs into a fresh destination first
		dst := lo.defineVirtual(instr.Dst)
		mov := &Asm{Kind: X64_MOV}
		mov.Operands[0] = regOperand(dst)
		mov.Operands[1] = regOperand(lhs)
		lo.push(mov)
		op.Operands[0] = regOperand(dst)
		op.Operands[1] = regOperand(rhs)
	}
	lo.push(op)
}

// lowerShift routes the shift count through cl as the ISA requires.
func (lo *lowerer) lowerShift(instr *ir.Instr) {
	kinds := map[ir.Kind]AsmKind{
		ir.IR_SHL: X64_SHL, ir.IR_SHR: X64_SHR,
		ir.IR_SAL: X64_SAL, ir.IR_SAR: X64_SAR,
	}
	lhs := lo.searchReg(instr.Lhs)
	rhs := lo.searchReg(instr.Rhs)
	utils.Assert(lhs != nil && rhs != nil, "shift operand register is unbound")

	mov := &Asm{Kind: X64_MOV, ImplicitUsed: RCX.Bit()}
	mov.Operands[0] = regOperand(reservedReal(RCX, rhs.Size))
	mov.Operands[1] = regOperand(rhs)
	lo.push(mov)

	var dst *X64Reg
	if lhs.Class == ClassVirtual {
		lo.bind(instr.Dst, lhs)
		dst = lhs
	} else {
		dst = lo.defineVirtual(instr.Dst)
		cp := &Asm{Kind: X64_MOV}
		cp.Operands[0] = regOperand(dst)
		cp.Operands[1] = regOperand(lhs)
		lo.push(cp)
	}
	shift := &Asm{Kind: kinds[instr.Kind], ImplicitUsed: RCX.Bit()}
	shift.Operands[0] = regOperand(dst)
	shift.Operands[1] = regOperand(reservedReal(RCX, ir.SizeByte))
	lo.push(shift)
}

// lowerDivision implements the rdx:rax division protocol: cqo sign-extends
// rax into rdx, idiv/div leaves the quotient in rax and the remainder in
// rdx.
func (lo *lowerer) lowerDivision(instr *ir.Instr) {
	lhs := lo.searchReg(instr.Lhs)
	rhs := lo.searchReg(instr.Rhs)
	utils.Assert(lhs != nil && rhs != nil, "division operand register is unbound")

	// promote the dividend into the reserved rax
	if lhs.Class == ClassVirtual {
		lhs.Class = ClassReal
		lhs.Real = RAX
		lhs.Reserved = true
	} else if !(lhs.Class == ClassReal && lhs.Real == RAX) {
		mov := &Asm{Kind: X64_MOV, ImplicitUsed: RAX.Bit()}
		mov.Operands[0] = regOperand(reservedReal(RAX, lhs.Size))
		mov.Operands[1] = regOperand(lhs)
		lo.push(mov)
	}

	cqo := &Asm{Kind: X64_CQO, ImplicitUsed: RAX.Bit() | RDX.Bit()}
	lo.push(cqo)

	signed := instr.Kind == ir.IR_DIV || instr.Kind == ir.IR_REM
	div := &Asm{Kind: X64_DIV, ImplicitUsed: RAX.Bit() | RDX.Bit()}
	if signed {
		div.Kind = X64_IDIV
	}
	div.Operands[0] = regOperand(rhs)
	lo.push(div)

	dst := lo.searchOrCreate(instr.Dst)
	utils.Assert(dst.Class == ClassUnassigned, "division destination already bound")
	result := RAX
	if instr.Kind == ir.IR_REM || instr.Kind == ir.IR_REMU {
		result = RDX
	}
	dst.Class = ClassReal
	dst.Size = instr.Dst.Size
	dst.Real = result
	dst.Reserved = true
}

// lowerCompare emits cmp; xor dst,dst; set* into the low byte of the
// zeroed destination.
func (lo *lowerer) lowerCompare(instr *ir.Instr) {
	lhs := lo.searchReg(instr.Lhs)
	rhs := lo.searchReg(instr.Rhs)
	utils.Assert(lhs != nil && rhs != nil, "compare operand register is unbound")

	cmp := &Asm{Kind: X64_CMP}
	cmp.Operands[0] = regOperand(lhs)
	cmp.Operands[1] = regOperand(rhs)
	lo.push(cmp)

	dst := lo.defineVirtual(instr.Dst)
	xor := &Asm{Kind: X64_XOR}
	xor.Operands[0] = regOperand(dst)
	xor.Operands[1] = regOperand(dst)
	lo.push(xor)

	kinds := map[ir.Kind]AsmKind{
		ir.IR_EQ: X64_SETE, ir.IR_NEQ: X64_SETNE,
		ir.IR_LT: X64_SETL, ir.IR_LTU: X64_SETB,
		ir.IR_LTE: X64_SETLE, ir.IR_LTEU: X64_SETBE,
	}
	set := &Asm{Kind: kinds[instr.Kind]}
	set.Operands[0] = regOperand(&X64Reg{
		Class: dst.Class, Size: ir.SizeByte, ID: dst.ID,
		Real: dst.Real, Reserved: dst.Reserved,
	})
	lo.push(set)
}

// lowerWidth maps the IR width changes onto movsx/movsxd/movzx/mov.
func (lo *lowerer) lowerWidth(instr *ir.Instr) {
	src := lo.searchReg(instr.Src)
	utils.Assert(src != nil, "width-change source register is unbound")
	dst := lo.defineVirtual(instr.Dst)

	var kind AsmKind
	switch instr.Kind {
	case ir.IR_SIGN_EXTEND:
		if src.Size == ir.SizeDWord && dst.Size == ir.SizeQWord {
			kind = X64_MOVSXD
		} else {
			kind = X64_MOVSX
		}
	case ir.IR_ZERO_EXTEND:
		if src.Size == ir.SizeDWord {
			// a 32-bit mov clears the upper half on its own
			kind = X64_MOV
		} else {
			kind = X64_MOVZX
		}
	default: // truncate renames the register at the smaller width
		kind = X64_MOV
	}
	op := &Asm{Kind: kind}
	op.Operands[0] = regOperand(dst)
	op.Operands[1] = regOperand(src)
	lo.push(op)
}

// lowerCall materializes the System V argument bank, emits the call, and
// binds the destination to rax.
func (lo *lowerer) lowerCall(instr *ir.Instr) {
	var mask uint32
	for i, arg := range instr.Args {
		src := lo.searchReg(arg)
		utils.Assert(src != nil, "call argument register is unbound")
		reg := ArgRegs[i]
		mov := &Asm{Kind: X64_MOV, ImplicitUsed: reg.Bit()}
		mov.Operands[0] = regOperand(reservedReal(reg, arg.Size))
		mov.Operands[1] = regOperand(src)
		lo.push(mov)
		mask |= reg.Bit()
	}
	call := &Asm{Kind: X64_CALL, JumpTarget: instr.Name}
	call.ImplicitUsed = mask | RAX.Bit()
	lo.push(call)

	dst := lo.searchOrCreate(instr.Dst)
	if dst.Class == ClassUnassigned {
		dst.Class = ClassReal
		dst.Size = instr.Dst.Size
		dst.Real = RAX
		dst.Reserved = true
	}
}

// lowerPhi resolves by aliasing: whichever operand is already bound to a
// physical register wins; if both are still virtual one side is copied.
func (lo *lowerer) lowerPhi(instr *ir.Instr) {
	lhs := lo.searchReg(instr.Lhs)
	rhs := lo.searchReg(instr.Rhs)
	utils.Assert(lhs != nil && rhs != nil, "phi operand register is unbound")
	switch {
	case lhs.Class == ClassVirtual && rhs.Class == ClassReal:
		*lhs = *rhs
		lo.bind(instr.Dst, rhs)
	case rhs.Class == ClassVirtual && lhs.Class == ClassReal:
		*rhs = *lhs
		lo.bind(instr.Dst, lhs)
	default:
		dst := lo.defineVirtual(instr.Dst)
		mov := &Asm{Kind: X64_MOV}
		mov.Operands[0] = regOperand(dst)
		mov.Operands[1] = regOperand(rhs)
		lo.push(mov)
	}
}

func sizeToReg(size int64) ir.RegSize {
	switch size {
	case 1:
		return ir.SizeByte
	case 2:
		return ir.SizeWord
	case 4:
		return ir.SizeDWord
	}
	return ir.SizeQWord
}
