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
package ast

import (
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// Semantic analyzer
//
// Two passes per function body. Pass 1 propagates types bottom-up, inserts
// the implicit width conversions, scales pointer arithmetic, resolves
// member offsets and rewrites sizeof/subscript forms. Pass 2 assigns local
// variable offsets with a per-nest cursor and records the frame size.

type Analyzer struct {
	env   *TypeEnv
	funcs map[string]*Type // declared return types

	// offset assignment state
	cursor    int64
	maxOffset int64
}

func Analyze(prog *Program) *Program {
	a := &Analyzer{env: prog.Types, funcs: make(map[string]*Type)}
	for _, d := range prog.Decls {
		if fn, ok := d.(*FuncDecl); ok {
			a.funcs[fn.Name] = fn.RetType
		}
	}
	for _, d := range prog.Decls {
		switch n := d.(type) {
		case *FuncDecl:
			for i, p := range n.Params {
				n.Params[i] = a.expr(p).(*VarExpr)
			}
			a.stmt(n.Body)

			a.cursor, a.maxOffset = 0, 0
			for _, p := range n.Params {
				a.assignOffset(p)
			}
			a.stmtOffsets(n.Body)
			n.StackSize = utils.Align8(a.maxOffset)
		case *DeclStmt:
			for i, e := range n.Inits {
				n.Inits[i] = a.expr(e)
			}
		case *ExprStmt:
			n.X = a.expr(n.X)
		default:
			utils.ShouldNotReachHere()
		}
	}
	return prog
}

// -----------------------------------------------------------------------------
// Pass 1: type propagation

// isEqualType compares structurally, following pointee chains.
func isEqualType(lhs, rhs *Type) bool {
	if lhs.Kind != rhs.Kind {
		return false
	}
	if lhs.Kind == TYPE_PTR || lhs.Kind == TYPE_ARRAY {
		return isEqualType(lhs.PtrTo, rhs.PtrTo)
	}
	if lhs.Kind == TYPE_STRUCT {
		return lhs.StructID == rhs.StructID
	}
	return true
}

// integerRank orders the integer types for the implicit conversion table:
// the wider type wins.
func integerRank(t *Type) int {
	switch t.Kind {
	case TYPE_LONG, TYPE_LONGLONG:
		return 4
	case TYPE_INT:
		return 3
	case TYPE_SHORT:
		return 2
	case TYPE_CHAR, TYPE_BOOL:
		return 1
	}
	return 0
}

// implicitConversion picks the common type of two integer operands;
// pointer/array operands never convert and yield nil.
func implicitConversion(lhs, rhs *Type) *Type {
	if lhs.IsPointerLike() || rhs.IsPointerLike() {
		return nil
	}
	if integerRank(lhs) == 0 || integerRank(rhs) == 0 {
		return nil
	}
	if integerRank(lhs) >= integerRank(rhs) {
		return lhs
	}
	return rhs
}

// widen wraps e in the analyzer-inserted conversion to target when the
// widths differ.
func (a *Analyzer) widen(e AstExpr, target *Type) AstExpr {
	from := e.GetType()
	fromSize := a.env.SizeOf(from)
	toSize := a.env.SizeOf(target)
	if fromSize == toSize {
		return e
	}
	op := CastTruncate
	if toSize > fromSize {
		if from.IsSigned {
			op = CastSignExtend
		} else {
			op = CastZeroExtend
		}
	}
	return &CastExpr{
		Expr:    Expr{Token: e.Tok(), Type: target},
		Op:      op,
		Operand: e,
	}
}

func (a *Analyzer) expr(node AstExpr) AstExpr {
	if node == nil {
		return nil
	}
	switch n := node.(type) {
	case *NumExpr:
		if n.Type == nil {
			n.Type = TInt
		}
		return n

	case *StrExpr:
		n.Type = TStr
		return n

	case *VarExpr:
		n.Type = n.Var.Type
		return n

	case *UnaryExpr:
		n.Operand = a.expr(n.Operand)
		if n.Op == OpLogNot {
			n.Type = TInt
		} else {
			n.Type = n.Operand.GetType()
		}
		return n

	case *AddrExpr:
		n.Operand = a.expr(n.Operand)
		n.Type = PointerTo(n.Operand.GetType())
		return n

	case *DerefExpr:
		n.Operand = a.expr(n.Operand)
		t := n.Operand.GetType()
		if !t.IsPointerLike() {
			ErrorTok(n.Token, "invalid dereference")
		}
		n.Type = t.PtrTo
		return n

	case *IndexExpr:
		// a[i] is rewritten to *(a+i)
		base := a.expr(n.Base)
		if bt := base.GetType(); bt.Kind == TYPE_ARRAY {
			if idx, ok := n.Index.(*NumExpr); ok {
				if idx.Val < 0 || idx.Val >= bt.ArrayLen {
					ErrorTok(n.Token, "index out of bounds for type array")
				}
			}
		}
		sum := &BinaryExpr{
			Expr:  Expr{Token: n.Token},
			Op:    OpAdd,
			Left:  base,
			Right: n.Index,
		}
		deref := &DerefExpr{Expr: Expr{Token: n.Token}, Operand: sum}
		return a.expr(deref)

	case *MemberExpr:
		n.Base = a.expr(n.Base)
		baseType := n.Base.GetType()
		if n.Arrow {
			if baseType.Kind != TYPE_PTR || baseType.PtrTo.Kind != TYPE_STRUCT {
				ErrorTok(n.Token, "'->' on a non-pointer-to-struct operand")
			}
			baseType = baseType.PtrTo
		} else if baseType.Kind != TYPE_STRUCT {
			ErrorTok(n.Token, "'.' on a non-struct operand")
		}
		rec := a.env.StructByID(baseType.StructID)
		field := rec.Field(n.FieldName)
		if field == nil {
			ErrorTok(n.Token, "struct field %s not found", n.FieldName)
		}
		n.FieldOffset = field.Offset
		n.Type = field.Type
		return n

	case *BinaryExpr:
		return a.binary(n)

	case *AssignExpr:
		return a.assign(n)

	case *IncDecExpr:
		n.Operand = a.expr(n.Operand)
		n.Type = n.Operand.GetType()
		return n

	case *CastExpr:
		n.Operand = a.expr(n.Operand)
		from := n.Operand.GetType()
		fromSize := a.env.SizeOf(from)
		toSize := a.env.SizeOf(n.Type)
		switch {
		case toSize < fromSize:
			n.Op = CastTruncate
		case toSize > fromSize && from.IsSigned:
			n.Op = CastSignExtend
		case toSize > fromSize:
			n.Op = CastZeroExtend
		default:
			// same width: the cast only renames the type
			n.Op = CastTruncate
		}
		return n

	case *SizeofExpr:
		operand := a.expr(n.Operand)
		size := a.env.SizeOf(operand.GetType())
		return &NumExpr{Expr: Expr{Token: n.Token, Type: TLong}, Val: size}

	case *CallExpr:
		for i, arg := range n.Args {
			n.Args[i] = a.expr(arg)
		}
		if ret, ok := a.funcs[n.Name]; ok {
			n.Type = ret
		} else {
			n.Type = TInt
		}
		return n

	case *AsmExpr:
		n.Type = TVoid
		return n

	case *TernaryExpr:
		n.Cond = a.expr(n.Cond)
		n.Then = a.expr(n.Then)
		n.Else = a.expr(n.Else)
		n.Type = n.Then.GetType()
		return n

	case *CommaExpr:
		n.Left = a.expr(n.Left)
		n.Right = a.expr(n.Right)
		n.Type = n.Right.GetType()
		return n

	case *InitListExpr:
		// typed from the assignment context; elements against the element
		// type once known
		for i, e := range n.Elems {
			n.Elems[i] = a.expr(e)
		}
		return n
	}
	utils.ShouldNotReachHere()
	return nil
}

// binary types an arithmetic/comparison node, handling pointer arithmetic.
// Pointer scaling is commutative: the numeric-literal side is scaled by the
// pointee size whichever side it appears on.
func (a *Analyzer) binary(n *BinaryExpr) AstExpr {
	n.Left = a.expr(n.Left)
	n.Right = a.expr(n.Right)
	lt, rt := n.Left.GetType(), n.Right.GetType()

	switch n.Op {
	case OpAdd:
		if lt.IsPointerLike() && rt.IsPointerLike() {
			ErrorTok(n.Token, "invalid use of the '+' operator on two pointers")
		}
		if lt.IsPointerLike() {
			n.Right = a.scaleIndex(n.Right, lt)
			n.Type = lt
			return n
		}
		if rt.IsPointerLike() {
			n.Left = a.scaleIndex(n.Left, rt)
			n.Type = rt
			return n
		}
	case OpSub:
		if rt.IsPointerLike() && !lt.IsPointerLike() {
			ErrorTok(n.Token, "invalid use of the '-' operator")
		}
		if lt.IsPointerLike() && rt.IsPointerLike() {
			n.Type = TInt
			return n
		}
		if lt.IsPointerLike() {
			n.Right = a.scaleIndex(n.Right, lt)
			n.Type = lt
			return n
		}
	}

	if n.Op.IsCompare() || n.Op.IsShortCircuit() {
		n.Type = TInt
		return n
	}

	common := implicitConversion(lt, rt)
	if common == nil {
		ErrorTok(n.Token, "incompatible operand types %v and %v", lt, rt)
	}
	n.Left = a.widen(n.Left, common)
	n.Right = a.widen(n.Right, common)
	n.Type = common
	return n
}

// scaleIndex multiplies the integer side of pointer arithmetic by the
// pointee size: numeric literals are scaled here, everything else at IR
// time (the node keeps its integer type as the marker).
func (a *Analyzer) scaleIndex(e AstExpr, ptr *Type) AstExpr {
	// taking the pointer type marks the literal as already scaled, so a
	// re-analysis of the subtree never scales twice
	if num, ok := e.(*NumExpr); ok && num.Type.IsInteger() {
		num.Val *= a.env.SizeOf(ptr.PtrTo)
		num.Type = ptr
		return num
	}
	return e
}

func (a *Analyzer) assign(n *AssignExpr) AstExpr {
	n.Left = a.expr(n.Left)

	// brace initializers take the declared type of the assigned object
	if list, ok := n.Right.(*InitListExpr); ok {
		a.typeInitList(list, n.Left.GetType())
		n.Type = n.Left.GetType()
		return n
	}

	n.Right = a.expr(n.Right)
	lt, rt := n.Left.GetType(), n.Right.GetType()
	if isEqualType(lt, rt) {
		n.Type = lt
		return n
	}
	// string literals initialize char pointers
	if lt.Kind == TYPE_PTR && rt.Kind == TYPE_STR {
		n.Type = lt
		return n
	}
	// array-to-pointer decay on the right-hand side
	if lt.Kind == TYPE_PTR && rt.Kind == TYPE_ARRAY && isEqualType(lt.PtrTo, rt.PtrTo) {
		n.Type = lt
		return n
	}
	converted := implicitConversion(lt, rt)
	if converted == nil {
		if lt.IsPointerLike() || rt.IsPointerLike() {
			ErrorTok(n.Token, "incompatible pointer assignment")
		}
		ErrorTok(n.Token, "cannot convert both sides of '='")
	}
	n.Right = a.widen(n.Right, converted)
	n.Type = converted
	return n
}

func (a *Analyzer) typeInitList(list *InitListExpr, target *Type) {
	list.Type = target
	if target.Kind != TYPE_ARRAY {
		ErrorTok(list.Token, "brace initializer for a non-array object")
	}
	if int64(len(list.Elems)) > target.ArrayLen {
		ErrorTok(list.Token, "too many initializers")
	}
	elem := target.PtrTo
	for i, e := range list.Elems {
		if sub, ok := e.(*InitListExpr); ok {
			a.typeInitList(sub, elem)
			continue
		}
		typed := a.expr(e)
		if typed.GetType().IsInteger() && elem.IsInteger() {
			typed = a.widen(typed, elem)
		}
		list.Elems[i] = typed
	}
}

func (a *Analyzer) stmt(node AstStmt) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ExprStmt:
		n.X = a.expr(n.X)
	case *DeclStmt:
		for i, e := range n.Inits {
			n.Inits[i] = a.expr(e)
		}
	case *BlockStmt:
		for _, s := range n.List {
			a.stmt(s)
		}
	case *IfStmt:
		n.Cond = a.expr(n.Cond)
		a.stmt(n.Then)
		a.stmt(n.Else)
	case *WhileStmt:
		n.Cond = a.expr(n.Cond)
		a.stmt(n.Body)
	case *DoWhileStmt:
		a.stmt(n.Body)
		n.Cond = a.expr(n.Cond)
	case *ForStmt:
		a.stmt(n.Init)
		n.Cond = a.expr(n.Cond)
		n.Update = a.expr(n.Update)
		a.stmt(n.Body)
	case *SwitchStmt:
		n.Cond = a.expr(n.Cond)
		a.stmt(n.Body)
	case *CaseStmt:
		a.stmt(n.Child)
	case *ReturnStmt:
		n.X = a.expr(n.X)
	case *LabelStmt:
		a.stmt(n.Child)
	case *GotoStmt, *NopStmt:
	default:
		utils.ShouldNotReachHere()
	}
}

// -----------------------------------------------------------------------------
// Pass 2: offset assignment
//
// A single traversal with a mutable cursor. Entering a nested block saves
// the cursor and restores it on exit, so siblings reuse the same stack
// area; the frame size is the high-water mark rounded up to 8.

func (a *Analyzer) assignOffset(v *VarExpr) {
	if !v.Var.IsLocal || !v.IsNew || v.Var.Storage != StorageAuto {
		return
	}
	t := v.Var.Type
	size := a.env.SizeOf(t)
	a.cursor = utils.AlignUp(a.cursor, a.env.AlignOf(t)) + size
	v.Var.Offset = a.cursor
	if a.cursor > a.maxOffset {
		a.maxOffset = a.cursor
	}
}

func (a *Analyzer) exprOffsets(node AstExpr) {
	if node == nil {
		return
	}
	if v, ok := node.(*VarExpr); ok {
		a.assignOffset(v)
		return
	}
	walker := &AstWalker{Func: func(n AstNode, _ AstNode, _ int) {
		if v, ok := n.(*VarExpr); ok {
			a.assignOffset(v)
		}
	}}
	walker.WalkAst(node, node, 0)
}

func (a *Analyzer) stmtOffsets(node AstStmt) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *ExprStmt:
		a.exprOffsets(n.X)
	case *DeclStmt:
		for _, e := range n.Inits {
			a.exprOffsets(e)
		}
	case *BlockStmt:
		saved := a.cursor
		for _, s := range n.List {
			a.stmtOffsets(s)
		}
		a.cursor = saved
	case *IfStmt:
		a.exprOffsets(n.Cond)
		a.stmtOffsets(n.Then)
		a.stmtOffsets(n.Else)
	case *WhileStmt:
		a.exprOffsets(n.Cond)
		a.stmtOffsets(n.Body)
	case *DoWhileStmt:
		a.stmtOffsets(n.Body)
		a.exprOffsets(n.Cond)
	case *ForStmt:
		saved := a.cursor
		a.stmtOffsets(n.Init)
		a.exprOffsets(n.Cond)
		a.exprOffsets(n.Update)
		a.stmtOffsets(n.Body)
		a.cursor = saved
	case *SwitchStmt:
		a.exprOffsets(n.Cond)
		a.stmtOffsets(n.Body)
	case *CaseStmt:
		a.stmtOffsets(n.Child)
	case *ReturnStmt:
		a.exprOffsets(n.X)
	case *LabelStmt:
		a.stmtOffsets(n.Child)
	case *GotoStmt, *NopStmt:
	default:
		utils.ShouldNotReachHere()
	}
}
