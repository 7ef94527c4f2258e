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
	"fmt"

	"minicc/utils"
)

// -----------------------------------------------------------------------------
// Parser
//
// Recursive descent over the accepted C subset. '{' opens a variable scope
// and a type scope together; the matching '}' pops both. A construct is a
// declaration iff its lookahead is a declaration specifier (built-in type
// keyword, struct/union/enum/typedef keyword, or an identifier registered
// as a typedef name); otherwise it is an expression.

type VarScope struct {
	next    *VarScope
	vars    []*Var
	counter int
}

func (s *VarScope) find(name string) *Var {
	for _, v := range s.vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

type loopLabels struct {
	breakTarget string
	contTarget  string // "" inside a switch
}

type Parser struct {
	tok *Token
	old *Token

	env    *TypeEnv
	scope  *VarScope // innermost; the outermost frame holds globals
	global *VarScope

	funcName  string
	labelSeq  int
	loops     []loopLabels
	curSwitch *SwitchStmt

	strings   []*StringLiteral
	stringSeq int
	decls     []AstNode
}

func NewParser(head *Token) *Parser {
	global := &VarScope{}
	return &Parser{
		tok:    FixTokenHead(head),
		env:    NewTypeEnv(),
		scope:  global,
		global: global,
	}
}

// -----------------------------------------------------------------------------
// Token cursor

func (p *Parser) advance() {
	p.old = p.tok
	p.tok = p.tok.Next.NextCode()
}

func (p *Parser) atEOF() bool {
	return p.tok.Kind == TK_EOF
}

func (p *Parser) peekIs(op string) bool {
	return p.tok.Is(op)
}

func (p *Parser) consume(op string) *Token {
	if !p.tok.Is(op) {
		return nil
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) expect(op string) *Token {
	t := p.consume(op)
	if t == nil {
		ErrorTok(p.tok, "expected '%s'", op)
	}
	return t
}

func (p *Parser) consumeIdent() *Token {
	if p.tok.Kind != TK_IDENT {
		return nil
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) expectIdent() *Token {
	t := p.consumeIdent()
	if t == nil {
		ErrorTok(p.tok, "expected an identifier")
	}
	return t
}

// consumeIdentName consumes the identifier name (for specifiers outside the
// reserved-word set, e.g. signed/unsigned).
func (p *Parser) consumeIdentName(name string) *Token {
	if !p.tok.IsIdent(name) {
		return nil
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) consumeString() *Token {
	if p.tok.Kind != TK_STRING {
		return nil
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) expectNumber() *Token {
	if p.tok.Kind != TK_NUM {
		ErrorTok(p.tok, "expected a number")
	}
	t := p.tok
	p.advance()
	return t
}

type cursor struct {
	tok, old *Token
}

func (p *Parser) save() cursor     { return cursor{p.tok, p.old} }
func (p *Parser) restore(c cursor) { p.tok, p.old = c.tok, c.old }

// -----------------------------------------------------------------------------
// Scopes

func (p *Parser) enterScope() {
	p.scope = &VarScope{next: p.scope, counter: p.scope.counter}
	p.env.NewNest()
}

func (p *Parser) exitScope() {
	utils.Assert(p.scope.next != nil, "variable scope underflow")
	p.scope = p.scope.next
	p.env.ExitNest()
}

func (p *Parser) findVar(name string) *Var {
	for s := p.scope; s != nil; s = s.next {
		if v := s.find(name); v != nil {
			return v
		}
	}
	return nil
}

func (p *Parser) addVar(tok *Token, typ *Type, storage StorageClass) *Var {
	name := tok.Text()
	if p.scope.find(name) != nil {
		ErrorTok(tok, "variable %s is already declared in this scope", name)
	}
	v := &Var{
		Name:    name,
		Type:    typ,
		IsLocal: p.scope != p.global,
		Counter: p.scope.counter,
		Storage: storage,
	}
	p.scope.counter++
	p.scope.vars = append(p.scope.vars, v)
	return v
}

// -----------------------------------------------------------------------------
// Labels

func (p *Parser) generateLabel() *GTLabel {
	name := fmt.Sprintf("_%d_%s", p.labelSeq, p.funcName)
	p.labelSeq++
	return &GTLabel{Name: name}
}

func (p *Parser) pushLoop(breakTarget, contTarget string) {
	p.loops = append(p.loops, loopLabels{breakTarget, contTarget})
}

func (p *Parser) popLoop() {
	p.loops = p.loops[:len(p.loops)-1]
}

func (p *Parser) breakTarget(tok *Token) string {
	if len(p.loops) == 0 {
		ErrorTok(tok, "break statement not within loop or switch")
	}
	return p.loops[len(p.loops)-1].breakTarget
}

func (p *Parser) continueTarget(tok *Token) string {
	for i := len(p.loops) - 1; i >= 0; i-- {
		if p.loops[i].contTarget != "" {
			return p.loops[i].contTarget
		}
	}
	ErrorTok(tok, "continue statement not within a loop")
	return ""
}

// -----------------------------------------------------------------------------
// Declaration specifiers

// storage-class bits gathered by declarationSpecifiers
type declInfo struct {
	isTypedef bool
	storage   StorageClass
}

// declarationSpecifiers consumes a run of type and storage keywords and
// returns the canonical type, or nil when the lookahead is not a
// declaration. The legality table is strict: at most two longs,
// signed/unsigned mutually exclusive, exactly one base selector.
func (p *Parser) declarationSpecifiers(info *declInfo) *Type {
	start := p.tok
	var longCnt, signedCnt, unsignedCnt, intCnt, boolCnt, charCnt int
	var shortCnt, voidCnt, structCnt, unionCnt, enumCnt int

	for {
		if p.consume("typedef") != nil {
			info.isTypedef = true
		} else if p.consume("static") != nil {
			info.storage = StorageStatic
		} else if p.consume("extern") != nil {
			info.storage = StorageExtern
		} else if p.consume("long") != nil {
			longCnt++
		} else if p.consumeIdentName("signed") != nil {
			signedCnt++
		} else if p.consumeIdentName("unsigned") != nil {
			unsignedCnt++
		} else if p.consume("int") != nil {
			intCnt++
		} else if p.consume("_Bool") != nil {
			boolCnt++
		} else if p.consume("char") != nil {
			charCnt++
		} else if p.consume("short") != nil {
			shortCnt++
		} else if p.consume("void") != nil {
			voidCnt++
		} else if p.consume("struct") != nil {
			structCnt++
		} else if p.consume("union") != nil {
			unionCnt++
		} else if p.consume("enum") != nil {
			enumCnt++
		} else {
			break
		}
	}

	baseCnt := intCnt + boolCnt + charCnt + shortCnt + voidCnt +
		structCnt + unionCnt + enumCnt
	if longCnt > 2 ||
		(longCnt > 0 && (boolCnt+charCnt+shortCnt+voidCnt) > 0) ||
		signedCnt+unsignedCnt > 1 ||
		baseCnt > 1 ||
		((signedCnt|unsignedCnt) > 0 && (voidCnt|boolCnt) > 0) ||
		((longCnt|signedCnt|unsignedCnt) > 0 && (structCnt|unionCnt|enumCnt) > 0) {
		ErrorTok(start, "invalid type specifier")
	}

	switch {
	case structCnt > 0 || unionCnt > 0:
		return p.structSpecifier(unionCnt > 0)
	case enumCnt > 0:
		return p.enumSpecifier()
	}

	if longCnt == 0 && signedCnt == 0 && unsignedCnt == 0 && baseCnt == 0 {
		// not a built-in specifier: try a typedef name
		if p.tok.Kind == TK_IDENT {
			if alias := p.env.LookupTypedef(p.tok.Text()); alias != nil {
				p.advance()
				return alias
			}
		}
		if info.isTypedef || info.storage != StorageAuto {
			ErrorTok(start, "declaration with no type specifier")
		}
		return nil
	}

	var kind TypeKind
	switch {
	case longCnt == 2:
		kind = TYPE_LONGLONG
	case longCnt == 1:
		kind = TYPE_LONG
	case boolCnt > 0:
		kind = TYPE_BOOL
	case charCnt > 0:
		kind = TYPE_CHAR
	case voidCnt > 0:
		kind = TYPE_VOID
	case shortCnt > 0:
		kind = TYPE_SHORT
	case intCnt > 0 || signedCnt > 0 || unsignedCnt > 0:
		kind = TYPE_INT
	default:
		utils.ShouldNotReachHere()
	}
	typ := NewType(kind)
	typ.IsSigned = unsignedCnt == 0
	return typ
}

// structSpecifier parses "struct tag", "struct tag {..}" or "struct {..}".
func (p *Parser) structSpecifier(isUnion bool) *Type {
	tag := p.consumeIdent()

	if !p.peekIs("{") {
		if tag == nil {
			ErrorTok(p.tok, "invalid struct specifier")
		}
		// tag reference: look up, or forward-declare in the current scope
		if rec := p.env.LookupStructTag(tag.Text()); rec != nil {
			return &Type{Kind: TYPE_STRUCT, StructID: rec.ID}
		}
		rec := p.env.NewStruct(tag.Text(), isUnion)
		return &Type{Kind: TYPE_STRUCT, StructID: rec.ID}
	}

	var rec *StructRecord
	if tag != nil {
		if prev := p.env.LookupStructTagCurrent(tag.Text()); prev != nil {
			if prev.Defined {
				ErrorTok(tag, "struct %s redefinition", tag.Text())
			}
			rec = prev // fill the forward declaration
		}
	}
	if rec == nil {
		name := ""
		if tag != nil {
			name = tag.Text()
		}
		rec = p.env.NewStruct(name, isUnion)
	}

	p.expect("{")
	for !p.peekIs("}") {
		var info declInfo
		fieldType := p.declarationSpecifiers(&info)
		if fieldType == nil || info.isTypedef {
			ErrorTok(p.tok, "invalid struct member declaration")
		}
		fieldType, nameTok := p.declarator(fieldType)
		rec.Fields = append(rec.Fields, &StructField{
			Name: nameTok.Text(),
			Type: fieldType,
		})
		p.expect(";")
	}
	p.expect("}")
	p.env.Layout(rec)
	return &Type{Kind: TYPE_STRUCT, StructID: rec.ID}
}

// enumSpecifier parses "enum tag? { A, B = const, ... }" or "enum tag".
// Enumerators are int constants registered in the enum scope.
func (p *Parser) enumSpecifier() *Type {
	p.consumeIdent() // tag, unused beyond syntax
	if p.consume("{") != nil {
		next := int64(0)
		for {
			name := p.expectIdent()
			if p.consume("=") != nil {
				next = p.constExpression()
			}
			p.env.AddEnumConst(name.Text(), next)
			next++
			if p.consume(",") == nil {
				break
			}
			if p.peekIs("}") {
				break
			}
		}
		p.expect("}")
	}
	return TInt
}

// declarator consumes "*"* ident ("[" num "]")* and wraps base accordingly.
// Array dimensions wrap from the outside in, so the declared variable gets
// the full array-of type directly.
func (p *Parser) declarator(base *Type) (*Type, *Token) {
	typ := base
	for p.consume("*") != nil {
		typ = PointerTo(typ)
	}
	name := p.expectIdent()
	typ = p.arraySuffix(typ)
	return typ, name
}

func (p *Parser) arraySuffix(typ *Type) *Type {
	if p.consume("[") == nil {
		return typ
	}
	lenTok := p.expectNumber()
	p.expect("]")
	inner := p.arraySuffix(typ)
	return ArrayOf(inner, lenTok.Val)
}

// isDeclarationAhead reports whether the lookahead starts a declaration.
func (p *Parser) isDeclarationAhead() bool {
	t := p.tok
	if t.Kind == TK_RESERVED {
		switch t.Text() {
		case "int", "char", "long", "short", "void", "_Bool",
			"struct", "union", "enum", "typedef", "static", "extern":
			return true
		}
		return false
	}
	if t.Kind == TK_IDENT {
		if t.IsIdent("signed") || t.IsIdent("unsigned") {
			return true
		}
		return p.env.LookupTypedef(t.Text()) != nil
	}
	return false
}

// -----------------------------------------------------------------------------
// Program structure

// Parse consumes the whole chain and returns the translation unit.
func Parse(head *Token) *Program {
	p := NewParser(head)
	for !p.atEOF() {
		p.external()
	}
	return &Program{Decls: p.decls, Strings: p.strings, Types: p.env}
}

func (p *Parser) external() {
	// file-scope __asm__("...")
	if p.tok.IsIdent("__asm__") {
		asm := p.asmExpression()
		p.expect(";")
		p.decls = append(p.decls, &ExprStmt{Stmt: Stmt{Token: asm.Token}, X: asm})
		return
	}

	var info declInfo
	typ := p.declarationSpecifiers(&info)
	if typ == nil {
		ErrorTok(p.tok, "type is not specified")
	}

	// bare "struct S {...};" or "enum {...};"
	if p.consume(";") != nil {
		return
	}

	declType, nameTok := p.declarator(typ)

	if info.isTypedef {
		p.env.AddTypedef(nameTok.Text(), declType)
		p.expect(";")
		return
	}

	if p.peekIs("(") {
		p.functionDefinition(declType, nameTok, &info)
		return
	}

	p.globalVariable(declType, nameTok, &info, typ)
}

func (p *Parser) functionDefinition(retType *Type, nameTok *Token, info *declInfo) {
	fn := &FuncDecl{
		Name:     nameTok.Text(),
		RetType:  retType,
		IsStatic: info.storage == StorageStatic,
		IsExtern: info.storage == StorageExtern,
		Token:    nameTok,
	}
	p.funcName = fn.Name
	p.labelSeq = 0

	p.enterScope()
	p.expect("(")
	if p.consume(")") == nil {
		if p.tok.Is("void") && p.tok.Next.NextCode().Is(")") {
			p.advance()
			p.expect(")")
		} else {
			for {
				var pinfo declInfo
				ptype := p.declarationSpecifiers(&pinfo)
				if ptype == nil {
					ErrorTok(p.tok, "parameter type is not specified")
				}
				ptype, pname := p.declarator(ptype)
				v := p.addVar(pname, ptype, StorageAuto)
				fn.Params = append(fn.Params, &VarExpr{
					Expr:  Expr{Token: pname, Type: ptype},
					Var:   v,
					IsNew: true,
				})
				if p.consume(",") == nil {
					break
				}
			}
			p.expect(")")
		}
	}
	if len(fn.Params) > 6 {
		ErrorTok(nameTok, "too many parameters (at most 6 are supported)")
	}

	if p.consume(";") != nil {
		// prototype: nothing to emit
		p.exitScope()
		return
	}

	fn.Body = p.blockWithinCurrentScope()
	p.exitScope()
	p.decls = append(p.decls, fn)
}

// blockWithinCurrentScope parses "{ stmt* }" without opening another scope
// (used for function bodies, whose scope already holds the parameters).
func (p *Parser) blockWithinCurrentScope() *BlockStmt {
	tok := p.expect("{")
	block := &BlockStmt{Stmt: Stmt{Token: tok}}
	for p.consume("}") == nil {
		block.List = append(block.List, p.statement())
	}
	return block
}

func (p *Parser) globalVariable(declType *Type, nameTok *Token, info *declInfo, baseType *Type) {
	decl := &DeclStmt{Stmt: Stmt{Token: nameTok}}
	typ, tok := declType, nameTok
	for {
		v := p.addVar(tok, typ, info.storage)
		ref := &VarExpr{Expr: Expr{Token: tok, Type: typ}, Var: v, IsNew: true}
		if eq := p.consume("="); eq != nil {
			init := p.globalInitializer()
			decl.Inits = append(decl.Inits, &AssignExpr{
				Expr:  Expr{Token: eq},
				Left:  ref,
				Right: init,
			})
		} else {
			decl.Inits = append(decl.Inits, ref)
		}
		if p.consume(",") == nil {
			break
		}
		typ, tok = p.declarator(baseType)
	}
	p.expect(";")
	p.decls = append(p.decls, decl)
}

// globalInitializer accepts the initializer forms the .data emitter knows:
// constant expressions, &var, string literals and brace lists thereof.
func (p *Parser) globalInitializer() AstExpr {
	if lb := p.consume("{"); lb != nil {
		list := &InitListExpr{Expr: Expr{Token: lb}}
		for !p.peekIs("}") {
			list.Elems = append(list.Elems, p.globalInitializer())
			if p.consume(",") == nil {
				break
			}
		}
		p.expect("}")
		return list
	}
	if amp := p.consume("&"); amp != nil {
		name := p.expectIdent()
		v := p.findVar(name.Text())
		if v == nil {
			ErrorTok(name, "undeclared identifier %s", name.Text())
		}
		return &AddrExpr{
			Expr:    Expr{Token: amp},
			Operand: &VarExpr{Expr: Expr{Token: name, Type: v.Type}, Var: v},
		}
	}
	if str := p.consumeString(); str != nil {
		return p.stringLiteral(str)
	}
	tok := p.tok
	val := p.constExpression()
	return &NumExpr{Expr: Expr{Token: tok, Type: TInt}, Val: val}
}

// -----------------------------------------------------------------------------
// Statements

func (p *Parser) statement() AstStmt {
	switch {
	case p.peekIs("{"):
		tok := p.expect("{")
		p.enterScope()
		block := &BlockStmt{Stmt: Stmt{Token: tok}}
		for p.consume("}") == nil {
			block.List = append(block.List, p.statement())
		}
		p.exitScope()
		return block

	case p.peekIs("if"):
		return p.ifStatement()
	case p.peekIs("while"):
		return p.whileStatement()
	case p.peekIs("do"):
		return p.doStatement()
	case p.peekIs("for"):
		return p.forStatement()
	case p.peekIs("switch"):
		return p.switchStatement()
	case p.peekIs("case"), p.peekIs("default"):
		return p.caseStatement()

	case p.peekIs("return"):
		tok := p.expect("return")
		st := &ReturnStmt{Stmt: Stmt{Token: tok}}
		if !p.peekIs(";") {
			st.X = p.expression()
		}
		p.expect(";")
		return st

	case p.peekIs("break"):
		tok := p.expect("break")
		p.expect(";")
		return &GotoStmt{Stmt: Stmt{Token: tok}, Target: p.breakTarget(tok)}

	case p.peekIs("continue"):
		tok := p.expect("continue")
		p.expect(";")
		return &GotoStmt{Stmt: Stmt{Token: tok}, Target: p.continueTarget(tok)}

	case p.peekIs("goto"):
		tok := p.expect("goto")
		name := p.expectIdent()
		p.expect(";")
		target := fmt.Sprintf(".Lgoto_%s_%s", name.Text(), p.funcName)
		return &GotoStmt{Stmt: Stmt{Token: tok}, Target: target}

	case p.peekIs(";"):
		tok := p.expect(";")
		return &NopStmt{Stmt: Stmt{Token: tok}}
	}

	// user-defined label: "name ':' stmt"
	if p.tok.Kind == TK_IDENT && p.tok.Next.NextCode().Is(":") &&
		!p.tok.IsIdent("__asm__") {
		name := p.expectIdent()
		p.expect(":")
		return &LabelStmt{
			Stmt:  Stmt{Token: name},
			Name:  fmt.Sprintf(".Lgoto_%s_%s", name.Text(), p.funcName),
			Child: p.statement(),
		}
	}

	if p.isDeclarationAhead() {
		return p.declaration()
	}

	tok := p.tok
	x := p.expression()
	p.expect(";")
	return &ExprStmt{Stmt: Stmt{Token: tok}, X: x}
}

// declaration parses one local declaration line into a DeclStmt.
func (p *Parser) declaration() AstStmt {
	var info declInfo
	start := p.tok
	base := p.declarationSpecifiers(&info)
	if base == nil {
		ErrorTok(start, "type is not specified")
	}
	if p.consume(";") != nil {
		// bare struct/enum declaration
		return &NopStmt{Stmt: Stmt{Token: start}}
	}

	decl := &DeclStmt{Stmt: Stmt{Token: start}}
	for {
		typ, nameTok := p.declarator(base)
		if info.isTypedef {
			p.env.AddTypedef(nameTok.Text(), typ)
		} else {
			v := p.addVar(nameTok, typ, info.storage)
			ref := &VarExpr{Expr: Expr{Token: nameTok, Type: typ}, Var: v, IsNew: true}
			if eq := p.consume("="); eq != nil {
				init := p.initializer()
				decl.Inits = append(decl.Inits, &AssignExpr{
					Expr:  Expr{Token: eq},
					Left:  ref,
					Right: init,
				})
			} else {
				decl.Inits = append(decl.Inits, ref)
			}
		}
		if p.consume(",") == nil {
			break
		}
	}
	p.expect(";")
	return decl
}

func (p *Parser) initializer() AstExpr {
	if lb := p.consume("{"); lb != nil {
		list := &InitListExpr{Expr: Expr{Token: lb}}
		for !p.peekIs("}") {
			list.Elems = append(list.Elems, p.initializer())
			if p.consume(",") == nil {
				break
			}
		}
		p.expect("}")
		return list
	}
	return p.assignExpression()
}

func (p *Parser) ifStatement() AstStmt {
	tok := p.expect("if")
	st := &IfStmt{Stmt: Stmt{Token: tok}, Label: p.generateLabel()}
	p.expect("(")
	st.Cond = p.expression()
	p.expect(")")
	st.Then = p.statement()
	if p.consume("else") != nil {
		st.Else = p.statement()
	}
	return st
}

func (p *Parser) whileStatement() AstStmt {
	tok := p.expect("while")
	st := &WhileStmt{Stmt: Stmt{Token: tok}, Label: p.generateLabel()}
	p.expect("(")
	st.Cond = p.expression()
	p.expect(")")
	p.pushLoop(".Lendwhile"+st.Label.Name, ".Lbeginwhile"+st.Label.Name)
	st.Body = p.statement()
	p.popLoop()
	return st
}

func (p *Parser) doStatement() AstStmt {
	tok := p.expect("do")
	st := &DoWhileStmt{Stmt: Stmt{Token: tok}, Label: p.generateLabel()}
	p.pushLoop(".Lenddo"+st.Label.Name, ".Lconddo"+st.Label.Name)
	st.Body = p.statement()
	p.popLoop()
	p.expect("while")
	p.expect("(")
	st.Cond = p.expression()
	p.expect(")")
	p.expect(";")
	return st
}

func (p *Parser) forStatement() AstStmt {
	tok := p.expect("for")
	st := &ForStmt{Stmt: Stmt{Token: tok}, Label: p.generateLabel()}
	p.enterScope() // for-scope holds variables declared in the init clause
	p.expect("(")
	if p.consume(";") == nil {
		if p.isDeclarationAhead() {
			st.Init = p.declaration()
		} else {
			initTok := p.tok
			st.Init = &ExprStmt{Stmt: Stmt{Token: initTok}, X: p.expression()}
			p.expect(";")
		}
	}
	if p.consume(";") == nil {
		st.Cond = p.expression()
		p.expect(";")
	}
	if !p.peekIs(")") {
		st.Update = p.expression()
	}
	p.expect(")")
	p.pushLoop(".Lendfor"+st.Label.Name, ".Lstepfor"+st.Label.Name)
	st.Body = p.statement()
	p.popLoop()
	p.exitScope()
	return st
}

func (p *Parser) switchStatement() AstStmt {
	tok := p.expect("switch")
	st := &SwitchStmt{Stmt: Stmt{Token: tok}, Label: p.generateLabel()}
	p.expect("(")
	st.Cond = p.expression()
	p.expect(")")
	prev := p.curSwitch
	p.curSwitch = st
	p.pushLoop(".Lendswitch"+st.Label.Name, "")
	st.Body = p.statement()
	p.popLoop()
	p.curSwitch = prev
	return st
}

func (p *Parser) caseStatement() AstStmt {
	if p.curSwitch == nil {
		ErrorTok(p.tok, "case label not within a switch statement")
	}
	st := &CaseStmt{SwitchLabel: p.curSwitch.Label, Index: len(p.curSwitch.Cases)}
	if tok := p.consume("case"); tok != nil {
		st.Token = tok
		st.Value = p.constExpression()
	} else {
		st.Token = p.expect("default")
		st.IsDefault = true
	}
	p.expect(":")
	p.curSwitch.Cases = append(p.curSwitch.Cases, st)
	st.Child = p.statement()
	return st
}

// -----------------------------------------------------------------------------
// Expressions

func (p *Parser) expression() AstExpr {
	node := p.assignExpression()
	for {
		if tok := p.consume(","); tok != nil {
			node = &CommaExpr{Expr: Expr{Token: tok}, Left: node, Right: p.assignExpression()}
		} else {
			return node
		}
	}
}

func (p *Parser) assignExpression() AstExpr {
	node := p.ternaryExpression()
	if tok := p.consume("="); tok != nil {
		return &AssignExpr{Expr: Expr{Token: tok}, Left: node, Right: p.assignExpression()}
	}
	return node
}

func (p *Parser) ternaryExpression() AstExpr {
	node := p.logicalOr()
	if tok := p.consume("?"); tok != nil {
		then := p.expression()
		p.expect(":")
		return &TernaryExpr{
			Expr: Expr{Token: tok},
			Cond: node,
			Then: then,
			Else: p.ternaryExpression(),
		}
	}
	return node
}

func (p *Parser) logicalOr() AstExpr {
	node := p.logicalAnd()
	for {
		if tok := p.consume("||"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLogOr, Left: node, Right: p.logicalAnd()}
		} else {
			return node
		}
	}
}

func (p *Parser) logicalAnd() AstExpr {
	node := p.bitOr()
	for {
		if tok := p.consume("&&"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLogAnd, Left: node, Right: p.bitOr()}
		} else {
			return node
		}
	}
}

func (p *Parser) bitOr() AstExpr {
	node := p.bitXor()
	for {
		if tok := p.consume("|"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpBitOr, Left: node, Right: p.bitXor()}
		} else {
			return node
		}
	}
}

func (p *Parser) bitXor() AstExpr {
	node := p.bitAnd()
	for {
		if tok := p.consume("^"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpBitXor, Left: node, Right: p.bitAnd()}
		} else {
			return node
		}
	}
}

func (p *Parser) bitAnd() AstExpr {
	node := p.equality()
	for {
		if tok := p.consume("&"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpBitAnd, Left: node, Right: p.equality()}
		} else {
			return node
		}
	}
}

func (p *Parser) equality() AstExpr {
	node := p.relational()
	for {
		if tok := p.consume("=="); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpEq, Left: node, Right: p.relational()}
		} else if tok := p.consume("!="); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpNeq, Left: node, Right: p.relational()}
		} else {
			return node
		}
	}
}

func (p *Parser) relational() AstExpr {
	node := p.shift()
	for {
		// a > b and a >= b are normalized by swapping the operands
		if tok := p.consume("<="); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLte, Left: node, Right: p.shift()}
		} else if tok := p.consume("<"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLt, Left: node, Right: p.shift()}
		} else if tok := p.consume(">="); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLte, Left: p.shift(), Right: node}
		} else if tok := p.consume(">"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpLt, Left: p.shift(), Right: node}
		} else {
			return node
		}
	}
}

func (p *Parser) shift() AstExpr {
	node := p.additive()
	for {
		if tok := p.consume("<<"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpShl, Left: node, Right: p.additive()}
		} else if tok := p.consume(">>"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpShr, Left: node, Right: p.additive()}
		} else {
			return node
		}
	}
}

func (p *Parser) additive() AstExpr {
	node := p.multiplicative()
	for {
		if tok := p.consume("+"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpAdd, Left: node, Right: p.multiplicative()}
		} else if tok := p.consume("-"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpSub, Left: node, Right: p.multiplicative()}
		} else {
			return node
		}
	}
}

func (p *Parser) multiplicative() AstExpr {
	node := p.unary()
	for {
		if tok := p.consume("*"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpMul, Left: node, Right: p.unary()}
		} else if tok := p.consume("/"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpDiv, Left: node, Right: p.unary()}
		} else if tok := p.consume("%"); tok != nil {
			node = &BinaryExpr{Expr: Expr{Token: tok}, Op: OpRem, Left: node, Right: p.unary()}
		} else {
			return node
		}
	}
}

func (p *Parser) unary() AstExpr {
	if tok := p.consume("sizeof"); tok != nil {
		// sizeof(type-name) or sizeof unary-expression
		if p.peekIs("(") {
			c := p.save()
			p.expect("(")
			var info declInfo
			if typ := p.declarationSpecifiers(&info); typ != nil {
				for p.consume("*") != nil {
					typ = PointerTo(typ)
				}
				p.expect(")")
				return &SizeofExpr{
					Expr:    Expr{Token: tok},
					Operand: &NumExpr{Expr: Expr{Token: tok, Type: typ}},
				}
			}
			p.restore(c)
		}
		return &SizeofExpr{Expr: Expr{Token: tok}, Operand: p.unary()}
	}
	if tok := p.consume("+"); tok != nil {
		return &UnaryExpr{Expr: Expr{Token: tok}, Op: OpPlus, Operand: p.unary()}
	}
	if tok := p.consume("-"); tok != nil {
		return &UnaryExpr{Expr: Expr{Token: tok}, Op: OpNeg, Operand: p.unary()}
	}
	if tok := p.consume("!"); tok != nil {
		return &UnaryExpr{Expr: Expr{Token: tok}, Op: OpLogNot, Operand: p.unary()}
	}
	if tok := p.consume("~"); tok != nil {
		return &UnaryExpr{Expr: Expr{Token: tok}, Op: OpBitNot, Operand: p.unary()}
	}
	if tok := p.consume("*"); tok != nil {
		return &DerefExpr{Expr: Expr{Token: tok}, Operand: p.unary()}
	}
	if tok := p.consume("&"); tok != nil {
		return &AddrExpr{Expr: Expr{Token: tok}, Operand: p.unary()}
	}
	if tok := p.consume("++"); tok != nil {
		return &IncDecExpr{Expr: Expr{Token: tok}, Operand: p.unary(), Inc: true}
	}
	if tok := p.consume("--"); tok != nil {
		return &IncDecExpr{Expr: Expr{Token: tok}, Operand: p.unary()}
	}
	// explicit cast "(type)expr"
	if p.peekIs("(") {
		c := p.save()
		lp := p.expect("(")
		var info declInfo
		if typ := p.declarationSpecifiers(&info); typ != nil && !info.isTypedef {
			for p.consume("*") != nil {
				typ = PointerTo(typ)
			}
			if p.consume(")") != nil {
				cast := &CastExpr{Expr: Expr{Token: lp, Type: typ}, Operand: p.unary()}
				cast.Op = CastTruncate // re-classified by the analyzer
				return cast
			}
		}
		p.restore(c)
	}
	return p.postfix()
}

func (p *Parser) postfix() AstExpr {
	node := p.primary()
	for {
		if tok := p.consume("["); tok != nil {
			index := p.expression()
			p.expect("]")
			node = &IndexExpr{Expr: Expr{Token: tok}, Base: node, Index: index}
		} else if tok := p.consume("."); tok != nil {
			name := p.expectIdent()
			node = &MemberExpr{Expr: Expr{Token: tok}, Base: node, FieldName: name.Text()}
		} else if tok := p.consume("->"); tok != nil {
			name := p.expectIdent()
			node = &MemberExpr{Expr: Expr{Token: tok}, Base: node, Arrow: true, FieldName: name.Text()}
		} else if tok := p.consume("++"); tok != nil {
			node = &IncDecExpr{Expr: Expr{Token: tok}, Operand: node, Inc: true, Post: true}
		} else if tok := p.consume("--"); tok != nil {
			node = &IncDecExpr{Expr: Expr{Token: tok}, Operand: node, Post: true}
		} else {
			return node
		}
	}
}

func (p *Parser) primary() AstExpr {
	if p.consume("(") != nil {
		node := p.expression()
		p.expect(")")
		return node
	}

	if p.tok.IsIdent("__asm__") {
		return p.asmExpression()
	}

	if tok := p.consumeIdent(); tok != nil {
		// function call
		if p.consume("(") != nil {
			call := &CallExpr{Expr: Expr{Token: tok}, Name: tok.Text()}
			for p.consume(")") == nil {
				call.Args = append(call.Args, p.assignExpression())
				if p.consume(",") == nil {
					p.expect(")")
					break
				}
			}
			if len(call.Args) > 6 {
				ErrorTok(tok, "too many arguments (at most 6 are supported)")
			}
			return call
		}
		// variable or enum constant
		if v := p.findVar(tok.Text()); v != nil {
			return &VarExpr{Expr: Expr{Token: tok, Type: v.Type}, Var: v}
		}
		if val, ok := p.env.LookupEnumConst(tok.Text()); ok {
			return &NumExpr{Expr: Expr{Token: tok, Type: TInt}, Val: val}
		}
		ErrorTok(tok, "undeclared identifier %s", tok.Text())
	}

	if str := p.consumeString(); str != nil {
		return p.stringLiteral(str)
	}

	num := p.expectNumber()
	return &NumExpr{Expr: Expr{Token: num, Type: TInt}, Val: num.Val}
}

// stringLiteral registers a fresh pool slot; distinct occurrences are never
// deduplicated.
func (p *Parser) stringLiteral(tok *Token) *StrExpr {
	name := fmt.Sprintf(".LC%d", p.stringSeq)
	p.stringSeq++
	raw := tok.Str[1 : len(tok.Str)-1] // strip the quotes
	p.strings = append(p.strings, &StringLiteral{Name: name, Value: raw})
	return &StrExpr{Expr: Expr{Token: tok, Type: TStr}, LiteralName: name}
}

func (p *Parser) asmExpression() *AsmExpr {
	tok := p.expectIdent() // __asm__
	p.expect("(")
	str := p.consumeString()
	if str == nil {
		ErrorTok(p.tok, "__asm__ expects a string literal")
	}
	p.expect(")")
	return &AsmExpr{
		Expr: Expr{Token: tok, Type: TVoid},
		Asm:  DecodeEscapes(str.Str[1 : len(str.Str)-1]),
	}
}

// -----------------------------------------------------------------------------
// Constant expressions
//
// Used where the grammar demands a compile-time constant (case labels,
// enumerators, global initializers). Only numeric subtrees are accepted.

func (p *Parser) constExpression() int64 {
	tok := p.tok
	node := p.ternaryExpression()
	val, ok := evalConst(node)
	if !ok {
		ErrorTok(tok, "failed to parse constant expression")
	}
	return val
}

func evalConst(node AstExpr) (int64, bool) {
	switch n := node.(type) {
	case *NumExpr:
		return n.Val, true
	case *UnaryExpr:
		v, ok := evalConst(n.Operand)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case OpNeg:
			return -v, true
		case OpPlus:
			return v, true
		case OpBitNot:
			return ^v, true
		case OpLogNot:
			return b2i(v == 0), true
		}
	case *BinaryExpr:
		l, ok := evalConst(n.Left)
		if !ok {
			return 0, false
		}
		r, ok := evalConst(n.Right)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case OpAdd:
			return l + r, true
		case OpSub:
			return l - r, true
		case OpMul:
			return l * r, true
		case OpDiv:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case OpRem:
			if r == 0 {
				return 0, false
			}
			return l % r, true
		case OpEq:
			return b2i(l == r), true
		case OpNeq:
			return b2i(l != r), true
		case OpLt:
			return b2i(l < r), true
		case OpLte:
			return b2i(l <= r), true
		case OpBitAnd:
			return l & r, true
		case OpBitOr:
			return l | r, true
		case OpBitXor:
			return l ^ r, true
		case OpShl:
			return l << uint(r), true
		case OpShr:
			return l >> uint(r), true
		case OpLogAnd:
			return b2i(l != 0 && r != 0), true
		case OpLogOr:
			return b2i(l != 0 || r != 0), true
		}
	case *TernaryExpr:
		c, ok := evalConst(n.Cond)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return evalConst(n.Then)
		}
		return evalConst(n.Else)
	}
	return 0, false
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// DecodeEscapes resolves the escape sequences accepted by the __asm__ and
// global-string code paths.
func DecodeEscapes(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			out = append(out, c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '0':
			out = append(out, 0)
		case 'e':
			out = append(out, 0x1b)
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		case '\'':
			out = append(out, '\'')
		default:
			out = append(out, '\\', raw[i])
		}
	}
	return string(out)
}
