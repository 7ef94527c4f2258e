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

	"minicc/ast"
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// IR generator
//
// Lowers the typed AST into per-function basic blocks of three-address
// instructions over virtual registers. Register ids restart at 0 for each
// function; scratch labels (.L<n>) are numbered per translation unit.

type Generator struct {
	env      *ast.TypeEnv
	fn       *Func
	cur      *Block
	regSeq   int
	labelSeq int
}

func Generate(prog *ast.Program) *Program {
	g := &Generator{env: prog.Types}
	out := &Program{Strings: prog.Strings, Types: prog.Types}

	for _, decl := range prog.Decls {
		switch n := decl.(type) {
		case *ast.FuncDecl:
			out.Funcs = append(out.Funcs, g.genFunction(n))
		case *ast.ExprStmt:
			// file-scope __asm__("...")
			asm, ok := n.X.(*ast.AsmExpr)
			utils.Assert(ok, "unexpected file-scope expression")
			out.Funcs = append(out.Funcs, g.genAsmFunction(asm))
		case *ast.DeclStmt:
			g.genGlobals(n, out)
		default:
			utils.ShouldNotReachHere()
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Function plumbing

func (g *Generator) newReg(size RegSize) *Reg {
	r := &Reg{Num: g.regSeq, Size: size}
	g.regSeq++
	g.fn.Regs = append(g.fn.Regs, r)
	return r
}

func (g *Generator) newScratchLabel() string {
	name := fmt.Sprintf(".L%d", g.labelSeq)
	g.labelSeq++
	return name
}

func regSizeOf(env *ast.TypeEnv, t *ast.Type) RegSize {
	if t.IsPointerLike() || t.Kind == ast.TYPE_STR {
		return SizeQWord
	}
	switch env.SizeOf(t) {
	case 1:
		return SizeByte
	case 2:
		return SizeWord
	case 4:
		return SizeDWord
	}
	return SizeQWord
}

// scalarSize is the memory access width of a loaded/stored value.
func (g *Generator) scalarSize(t *ast.Type) int64 {
	if t.IsPointerLike() || t.Kind == ast.TYPE_STR {
		return 8
	}
	return g.env.SizeOf(t)
}

// emit appends the instruction to the current block and records register
// uses.
func (g *Generator) emit(i *Instr) *Instr {
	g.cur.IRs = append(g.cur.IRs, i)
	if i.Dst != nil {
		i.Dst.Uses = append(i.Dst.Uses, i)
	}
	for _, r := range i.UseRegs() {
		r.Uses = append(r.Uses, i)
	}
	return i
}

// startBlock opens a fresh block; the previous one falls through to it
// unless it ended with a terminator.
func (g *Generator) startBlock() {
	b := &Block{Id: len(g.fn.Blocks)}
	g.fn.Blocks = append(g.fn.Blocks, b)
	g.cur = b
}

// placeLabel closes the current block and emits name as the sole
// instruction of a fresh label block, then opens another block for the
// following instructions.
func (g *Generator) placeLabel(name string) {
	if len(g.cur.IRs) != 0 {
		g.startBlock()
	}
	g.emit(&Instr{Kind: IR_LABEL, Name: name})
	utils.Assert(len(g.cur.IRs) == 1, "label block invariant")
	g.fn.Labels = append(g.fn.Labels, g.cur)
	g.startBlock()
}

func (g *Generator) genFunction(fn *ast.FuncDecl) *Func {
	g.fn = &Func{
		Name:      fn.Name,
		IsStatic:  fn.IsStatic,
		StackSize: fn.StackSize,
	}
	g.regSeq = 0
	g.startBlock()
	g.emit(&Instr{Kind: IR_FUNC_PROLOGUE})

	// spill the incoming ABI argument registers into the parameter slots
	for i, param := range fn.Params {
		addr := g.genAddr(param)
		g.emit(&Instr{
			Kind:     IR_STORE_ARG,
			Addr:     addr,
			ArgIndex: i,
			Size:     g.scalarSize(param.Var.Type),
		})
	}

	for _, st := range fn.Body.List {
		g.genStmt(st)
	}
	g.emit(&Instr{Kind: IR_FUNC_EPILOGUE})
	AddCFG(g.fn)
	return g.fn
}

func (g *Generator) genAsmFunction(asm *ast.AsmExpr) *Func {
	g.fn = &Func{IsAsm: true}
	g.regSeq = 0
	g.startBlock()
	g.emit(&Instr{Kind: IR_BUILTIN_ASM, Name: asm.Asm})
	utils.Assert(len(g.fn.Blocks) == 1 && len(g.cur.IRs) == 1,
		"builtin asm must be the sole instruction of its function")
	return g.fn
}

// -----------------------------------------------------------------------------
// Global variables

func (g *Generator) genGlobals(decl *ast.DeclStmt, out *Program) {
	for _, init := range decl.Inits {
		switch n := init.(type) {
		case *ast.VarExpr:
			if n.Var.Storage == ast.StorageExtern {
				continue
			}
			out.Globals = append(out.Globals, &GlobalVar{
				Name:     n.Var.Name,
				Size:     g.env.SizeOf(n.Var.Type),
				IsStatic: n.Var.Storage == ast.StorageStatic,
				Init: []*Initializer{{
					Kind:    InitZero,
					ZeroLen: g.env.SizeOf(n.Var.Type),
				}},
			})
		case *ast.AssignExpr:
			v := n.Left.(*ast.VarExpr).Var
			gvar := &GlobalVar{
				Name:     v.Name,
				Size:     g.env.SizeOf(v.Type),
				IsStatic: v.Storage == ast.StorageStatic,
			}
			gvar.Init = g.genGlobalInit(v.Type, n.Right)
			out.Globals = append(out.Globals, gvar)
		default:
			utils.ShouldNotReachHere()
		}
	}
}

func (g *Generator) genGlobalInit(t *ast.Type, node ast.AstExpr) []*Initializer {
	switch n := node.(type) {
	case *ast.CastExpr:
		// width adjustments inserted by the analyzer are meaningless for
		// .data emissions
		return g.genGlobalInit(t, n.Operand)
	case *ast.NumExpr:
		return []*Initializer{{
			Kind:    InitVal,
			Val:     n.Val,
			ValSize: g.scalarSize(t),
		}}
	case *ast.AddrExpr:
		v, ok := n.Operand.(*ast.VarExpr)
		if !ok {
			ast.ErrorTok(n.Tok(), "invalid global initializer")
		}
		return []*Initializer{{Kind: InitPointer, VarName: v.Var.Name}}
	case *ast.StrExpr:
		return []*Initializer{{Kind: InitString, LiteralName: n.LiteralName}}
	case *ast.InitListExpr:
		var inits []*Initializer
		elem := t.PtrTo
		for _, e := range n.Elems {
			inits = append(inits, g.genGlobalInit(elem, e)...)
		}
		padding := g.env.SizeOf(t) - int64(len(n.Elems))*g.env.SizeOf(elem)
		if padding > 0 {
			inits = append(inits, &Initializer{Kind: InitZero, ZeroLen: padding})
		}
		return inits
	}
	ast.ErrorTok(node.Tok(), "unsupported global initializer")
	return nil
}

// -----------------------------------------------------------------------------
// Statements

func (g *Generator) genStmt(node ast.AstStmt) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ast.NopStmt:
	case *ast.ExprStmt:
		g.genExpr(n.X)
	case *ast.DeclStmt:
		for _, e := range n.Inits {
			if _, bare := e.(*ast.VarExpr); bare {
				continue // declaration without initializer emits nothing
			}
			g.genExpr(e)
		}
	case *ast.BlockStmt:
		for _, s := range n.List {
			g.genStmt(s)
		}
	case *ast.ReturnStmt:
		ret := &Instr{Kind: IR_RET, ReturnVoid: n.X == nil}
		if n.X != nil {
			ret.Src = g.genExpr(n.X)
		}
		g.emit(ret)
		g.startBlock()
	case *ast.IfStmt:
		g.genIf(n)
	case *ast.WhileStmt:
		g.genWhile(n)
	case *ast.DoWhileStmt:
		g.genDoWhile(n)
	case *ast.ForStmt:
		g.genFor(n)
	case *ast.SwitchStmt:
		g.genSwitch(n)
	case *ast.CaseStmt:
		label := fmt.Sprintf(".Lswitch%s_%d", n.SwitchLabel.Name, n.Index)
		g.placeLabel(label)
		g.genStmt(n.Child)
	case *ast.GotoStmt:
		g.emit(&Instr{Kind: IR_JMP, Name: n.Target})
		g.startBlock()
	case *ast.LabelStmt:
		g.placeLabel(n.Name)
		g.genStmt(n.Child)
	default:
		utils.ShouldNotReachHere()
	}
}

// jumpIfZero emits "je label" on cond and opens a new block.
func (g *Generator) jumpIfZero(cond *Reg, label string) {
	g.emit(&Instr{Kind: IR_JE, Src: cond, Name: label})
	g.startBlock()
}

func (g *Generator) jumpIfNonZero(cond *Reg, label string) {
	g.emit(&Instr{Kind: IR_JNE, Src: cond, Name: label})
	g.startBlock()
}

func (g *Generator) jump(label string) {
	g.emit(&Instr{Kind: IR_JMP, Name: label})
	g.startBlock()
}

func (g *Generator) genIf(n *ast.IfStmt) {
	elseLabel := g.newScratchLabel()
	endLabel := g.newScratchLabel()

	cond := g.genExpr(n.Cond)
	g.jumpIfZero(cond, elseLabel)
	g.genStmt(n.Then)
	g.jump(endLabel)
	g.placeLabel(elseLabel)
	if n.Else != nil {
		g.genStmt(n.Else)
	}
	g.placeLabel(endLabel)
}

func (g *Generator) genWhile(n *ast.WhileStmt) {
	begin := ".Lbeginwhile" + n.Label.Name
	end := ".Lendwhile" + n.Label.Name

	g.placeLabel(begin)
	cond := g.genExpr(n.Cond)
	g.jumpIfZero(cond, end)
	g.genStmt(n.Body)
	g.jump(begin)
	g.placeLabel(end)
}

func (g *Generator) genDoWhile(n *ast.DoWhileStmt) {
	begin := ".Lbegindo" + n.Label.Name
	condLabel := ".Lconddo" + n.Label.Name
	end := ".Lenddo" + n.Label.Name

	g.placeLabel(begin)
	g.genStmt(n.Body)
	g.placeLabel(condLabel) // continue target
	cond := g.genExpr(n.Cond)
	g.jumpIfNonZero(cond, begin)
	g.placeLabel(end)
}

func (g *Generator) genFor(n *ast.ForStmt) {
	begin := ".Lbeginfor" + n.Label.Name
	step := ".Lstepfor" + n.Label.Name
	end := ".Lendfor" + n.Label.Name

	g.genStmt(n.Init)
	g.placeLabel(begin)
	if n.Cond != nil {
		cond := g.genExpr(n.Cond)
		g.jumpIfZero(cond, end)
	}
	g.genStmt(n.Body)
	g.placeLabel(step) // continue target
	if n.Update != nil {
		g.genExpr(n.Update)
	}
	g.jump(begin)
	g.placeLabel(end)
}

func (g *Generator) genSwitch(n *ast.SwitchStmt) {
	end := ".Lendswitch" + n.Label.Name

	scrut := g.genExpr(n.Cond)
	var defaultTarget string
	for _, c := range n.Cases {
		label := fmt.Sprintf(".Lswitch%s_%d", n.Label.Name, c.Index)
		if c.IsDefault {
			defaultTarget = label
			continue
		}
		val := g.emitImm(c.Value, scrut.Size)
		tmp := g.newReg(scrut.Size)
		eq := &Instr{Kind: IR_EQ, Dst: tmp, Lhs: scrut, Rhs: val}
		g.emit(eq)
		// the generator pre-inverts the condition: the eq result is
		// non-zero exactly when the case matches
		g.jumpIfNonZero(tmp, label)
	}
	if defaultTarget != "" {
		g.jump(defaultTarget)
	} else {
		g.jump(end)
	}
	g.genStmt(n.Body)
	g.placeLabel(end)
}

// -----------------------------------------------------------------------------
// Expressions

func (g *Generator) emitImm(val int64, size RegSize) *Reg {
	dst := g.newReg(size)
	g.emit(&Instr{Kind: IR_MOV, Dst: dst, IsImm: true, Imm: val})
	return dst
}

// genAddr evaluates node as an lvalue, returning the register holding its
// address.
func (g *Generator) genAddr(node ast.AstExpr) *Reg {
	switch n := node.(type) {
	case *ast.VarExpr:
		dst := g.newReg(SizeQWord)
		lea := &Instr{Kind: IR_LEA, Dst: dst}
		v := n.Var
		lea.IsLocal = v.IsLocal && v.Storage == ast.StorageAuto
		lea.IsStatic = v.Storage == ast.StorageStatic
		if lea.IsLocal {
			lea.Offset = v.Offset
		} else {
			lea.Name = v.Name
		}
		g.emit(lea)
		return dst
	case *ast.StrExpr:
		dst := g.newReg(SizeQWord)
		g.emit(&Instr{Kind: IR_LEA, Dst: dst, IsStatic: true, Name: n.LiteralName})
		return dst
	case *ast.DerefExpr:
		return g.genExpr(n.Operand)
	case *ast.MemberExpr:
		var base *Reg
		if n.Arrow {
			base = g.genExpr(n.Base)
		} else {
			base = g.genAddr(n.Base)
		}
		off := g.emitImm(n.FieldOffset, SizeQWord)
		dst := g.newReg(SizeQWord)
		g.emit(&Instr{Kind: IR_ADD, Dst: dst, Lhs: base, Rhs: off})
		return dst
	}
	ast.ErrorTok(node.Tok(), "not an lvalue")
	return nil
}

// genExpr lowers one expression and returns the value register (nil for
// void expressions).
func (g *Generator) genExpr(node ast.AstExpr) *Reg {
	if node == nil {
		return nil
	}
	switch n := node.(type) {
	case *ast.NumExpr:
		return g.emitImm(n.Val, regSizeOf(g.env, n.Type))

	case *ast.VarExpr, *ast.MemberExpr:
		// arrays decay: only the address is produced
		if node.GetType().Kind == ast.TYPE_ARRAY {
			return g.genAddr(node)
		}
		addr := g.genAddr(node)
		dst := g.newReg(regSizeOf(g.env, node.GetType()))
		g.emit(&Instr{
			Kind: IR_LOAD,
			Dst:  dst,
			Addr: addr,
			Size: g.scalarSize(node.GetType()),
		})
		return dst

	case *ast.StrExpr:
		return g.genAddr(n)

	case *ast.AddrExpr:
		return g.genAddr(n.Operand)

	case *ast.DerefExpr:
		addr := g.genExpr(n.Operand)
		if n.Type.Kind == ast.TYPE_ARRAY {
			return addr
		}
		dst := g.newReg(regSizeOf(g.env, n.Type))
		g.emit(&Instr{Kind: IR_LOAD, Dst: dst, Addr: addr, Size: g.scalarSize(n.Type)})
		return dst

	case *ast.AssignExpr:
		return g.genAssign(n.Left, n.Right, 0, g.scalarSize(n.Type))

	case *ast.BinaryExpr:
		return g.genBinary(n)

	case *ast.UnaryExpr:
		return g.genUnary(n)

	case *ast.IncDecExpr:
		return g.genIncDec(n)

	case *ast.CastExpr:
		src := g.genExpr(n.Operand)
		dst := g.newReg(regSizeOf(g.env, n.Type))
		var kind Kind
		switch n.Op {
		case ast.CastSignExtend:
			kind = IR_SIGN_EXTEND
		case ast.CastZeroExtend:
			kind = IR_ZERO_EXTEND
		default:
			kind = IR_TRUNCATE
		}
		g.emit(&Instr{Kind: kind, Dst: dst, Src: src})
		return dst

	case *ast.CallExpr:
		args := make([]*Reg, 0, len(n.Args))
		for _, a := range n.Args {
			args = append(args, g.genExpr(a))
		}
		dst := g.newReg(regSizeOf(g.env, n.Type))
		g.emit(&Instr{Kind: IR_CALL, Dst: dst, Name: n.Name, Args: args})
		return dst

	case *ast.TernaryExpr:
		return g.genTernary(n)

	case *ast.CommaExpr:
		g.genExpr(n.Left)
		return g.genExpr(n.Right)

	case *ast.AsmExpr:
		g.emit(&Instr{Kind: IR_BUILTIN_ASM, Name: n.Asm})
		return nil
	}
	utils.ShouldNotReachHere()
	return nil
}

// genAssign stores right into the object designated by left. Initializer
// lists recurse element-wise; unlisted trailing bytes are zero-stored in
// 8-byte chunks with a remainder.
func (g *Generator) genAssign(left, right ast.AstExpr, padding, size int64) *Reg {
	if list, ok := right.(*ast.InitListExpr); ok {
		elemSize := g.env.SizeOf(list.Type.PtrTo)
		for i, e := range list.Elems {
			g.genAssign(left, e, padding+int64(i)*elemSize, g.env.SizeOf(e.GetType()))
		}
		done := int64(len(list.Elems)) * elemSize
		total := g.env.SizeOf(list.Type)
		for done < total {
			chunk := total - done
			if chunk > 8 {
				chunk = 8
			}
			zero := g.emitImm(0, SizeQWord)
			addr := g.genAddr(left)
			g.emit(&Instr{
				Kind:   IR_STORE,
				Src:    zero,
				Addr:   addr,
				Offset: padding + done,
				Size:   chunk,
			})
			done += chunk
		}
		return nil
	}

	rhs := g.genExpr(right)
	addr := g.genAddr(left)
	g.emit(&Instr{
		Kind:   IR_STORE,
		Src:    rhs,
		Addr:   addr,
		Offset: padding,
		Size:   size,
	})
	// the value of an assignment expression is the right-hand side
	return rhs
}

func (g *Generator) genBinary(n *ast.BinaryExpr) *Reg {
	if n.Op.IsShortCircuit() {
		return g.genShortCircuit(n)
	}

	lhs := g.genExpr(n.Left)
	rhs := g.genExpr(n.Right)

	// pointer arithmetic: the side that kept its integer type is scaled by
	// the pointee size here (literals were already scaled in the analyzer)
	if n.Type.IsPointerLike() && (n.Op == ast.OpAdd || n.Op == ast.OpSub) {
		elem := g.env.SizeOf(n.Type.PtrTo)
		if n.Left.GetType().IsInteger() {
			lhs = g.scaleBy(lhs, elem)
		}
		if n.Right.GetType().IsInteger() {
			rhs = g.scaleBy(rhs, elem)
		}
	}

	signed := n.Left.GetType().IsSigned
	var kind Kind
	switch n.Op {
	case ast.OpAdd:
		kind = IR_ADD
	case ast.OpSub:
		kind = IR_SUB
	case ast.OpMul:
		kind = pick(signed, IR_MUL, IR_MULU)
	case ast.OpDiv:
		kind = pick(signed, IR_DIV, IR_DIVU)
	case ast.OpRem:
		kind = pick(signed, IR_REM, IR_REMU)
	case ast.OpEq:
		kind = IR_EQ
	case ast.OpNeq:
		kind = IR_NEQ
	case ast.OpLt:
		kind = pick(signed, IR_LT, IR_LTU)
	case ast.OpLte:
		kind = pick(signed, IR_LTE, IR_LTEU)
	case ast.OpBitAnd:
		kind = IR_AND
	case ast.OpBitOr:
		kind = IR_OR
	case ast.OpBitXor:
		kind = IR_XOR
	case ast.OpShl:
		kind = pick(signed, IR_SAL, IR_SHL)
	case ast.OpShr:
		kind = pick(signed, IR_SAR, IR_SHR)
	default:
		utils.ShouldNotReachHere()
	}

	dst := g.newReg(regSizeOf(g.env, n.Type))
	g.emit(&Instr{Kind: kind, Dst: dst, Lhs: lhs, Rhs: rhs})
	return dst
}

func (g *Generator) scaleBy(r *Reg, factor int64) *Reg {
	if factor == 1 {
		return r
	}
	f := g.emitImm(factor, r.Size)
	dst := g.newReg(r.Size)
	g.emit(&Instr{Kind: IR_MUL, Dst: dst, Lhs: r, Rhs: f})
	return dst
}

func pick(cond bool, a, b Kind) Kind {
	if cond {
		return a
	}
	return b
}

// genShortCircuit expands &&/|| into a je/jne-driven diamond writing 0/1
// into a pre-allocated destination register.
func (g *Generator) genShortCircuit(n *ast.BinaryExpr) *Reg {
	falseLabel := g.newScratchLabel()
	endLabel := g.newScratchLabel()
	dst := g.newReg(SizeDWord)

	if n.Op == ast.OpLogAnd {
		lhs := g.genExpr(n.Left)
		g.jumpIfZero(lhs, falseLabel)
		rhs := g.genExpr(n.Right)
		g.jumpIfZero(rhs, falseLabel)
		g.emit(&Instr{Kind: IR_MOV, Dst: dst, IsImm: true, Imm: 1})
		g.jump(endLabel)
		g.placeLabel(falseLabel)
		g.emit(&Instr{Kind: IR_MOV, Dst: dst, IsImm: true, Imm: 0})
		g.placeLabel(endLabel)
		return dst
	}

	trueLabel := falseLabel // reused stem: the first label marks the true arm
	lhs := g.genExpr(n.Left)
	g.jumpIfNonZero(lhs, trueLabel)
	rhs := g.genExpr(n.Right)
	g.jumpIfNonZero(rhs, trueLabel)
	g.emit(&Instr{Kind: IR_MOV, Dst: dst, IsImm: true, Imm: 0})
	g.jump(endLabel)
	g.placeLabel(trueLabel)
	g.emit(&Instr{Kind: IR_MOV, Dst: dst, IsImm: true, Imm: 1})
	g.placeLabel(endLabel)
	return dst
}

func (g *Generator) genUnary(n *ast.UnaryExpr) *Reg {
	src := g.genExpr(n.Operand)
	if n.Op == ast.OpPlus {
		return src
	}
	dst := g.newReg(regSizeOf(g.env, n.Type))
	var kind Kind
	switch n.Op {
	case ast.OpLogNot:
		kind = IR_NOT
	case ast.OpBitNot:
		kind = IR_BIT_NOT
	case ast.OpNeg:
		kind = IR_NEG
	default:
		utils.ShouldNotReachHere()
	}
	g.emit(&Instr{Kind: kind, Dst: dst, Src: src})
	return dst
}

// genIncDec computes the new value, stores it back, and returns the new
// register for the pre forms or the original register for the post forms.
// _Bool operands clamp to 0/1 instead of adding.
func (g *Generator) genIncDec(n *ast.IncDecExpr) *Reg {
	pre := g.genExpr(n.Operand)
	var post *Reg
	if n.Type.Kind == ast.TYPE_BOOL {
		val := int64(0)
		if n.Inc {
			val = 1
		}
		post = g.emitImm(val, pre.Size)
	} else {
		amount := int64(1)
		if n.Type.IsPointerLike() {
			amount = g.env.SizeOf(n.Type.PtrTo)
		}
		amt := g.emitImm(amount, pre.Size)
		post = g.newReg(pre.Size)
		kind := IR_SUB
		if n.Inc {
			kind = IR_ADD
		}
		g.emit(&Instr{Kind: kind, Dst: post, Lhs: pre, Rhs: amt})
	}
	addr := g.genAddr(n.Operand)
	g.emit(&Instr{
		Kind: IR_STORE,
		Src:  post,
		Addr: addr,
		Size: g.scalarSize(n.Type),
	})
	if n.Post {
		return pre
	}
	return post
}

// genTernary mirrors if/else but both arms move their value into one
// pre-allocated destination register.
func (g *Generator) genTernary(n *ast.TernaryExpr) *Reg {
	falseLabel := g.newScratchLabel()
	endLabel := g.newScratchLabel()
	dst := g.newReg(regSizeOf(g.env, n.Type))

	cond := g.genExpr(n.Cond)
	g.jumpIfZero(cond, falseLabel)
	thenReg := g.genExpr(n.Then)
	g.emit(&Instr{Kind: IR_MOV, Dst: dst, Src: thenReg})
	g.jump(endLabel)
	g.placeLabel(falseLabel)
	elseReg := g.genExpr(n.Else)
	g.emit(&Instr{Kind: IR_MOV, Dst: dst, Src: elseReg})
	g.placeLabel(endLabel)
	return dst
}
