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
package preprocess

import (
	"minicc/ast"
)

// -----------------------------------------------------------------------------
// Macro table
//
// Object-like macros only. A macro body is a copied token list; expansion
// splices copies into the chain so one macro can expand at many sites.
// Function-like macros are recognized and rejected.

type Macro struct {
	Identifier *ast.Token
	Tokens     []*ast.Token // replacement list, possibly empty
}

func (pp *Preprocessor) findMacro(name string) *Macro {
	for _, m := range pp.macros {
		if m.Identifier.Text() == name {
			return m
		}
	}
	return nil
}

func (pp *Preprocessor) IsDefined(name string) bool {
	return pp.findMacro(name) != nil
}

func (pp *Preprocessor) addMacro(identifier *ast.Token, tokens []*ast.Token) {
	if pp.findMacro(identifier.Text()) != nil {
		ast.ErrorTok(identifier, "identifier %s is already defined", identifier.Text())
	}
	pp.macros = append(pp.macros, &Macro{Identifier: identifier, Tokens: tokens})
}

func (pp *Preprocessor) undefMacro(name string) {
	for i, m := range pp.macros {
		if m.Identifier.Text() == name {
			pp.macros = append(pp.macros[:i], pp.macros[i+1:]...)
			return
		}
	}
}

// DefineFromSource registers "name body" as an object-like macro, as if a
// "#define name body" line had been read.
func (pp *Preprocessor) DefineFromSource(name, body string) {
	nameTok := &ast.Token{Kind: ast.TK_IDENT, Str: []byte(name)}
	var tokens []*ast.Token
	if body != "" {
		for tok := ast.Tokenize([]byte(body)); tok.Kind != ast.TK_EOF; tok = tok.Next {
			cp := *tok
			cp.Next = nil
			tokens = append(tokens, &cp)
		}
	}
	if pp.findMacro(name) == nil {
		pp.macros = append(pp.macros, &Macro{Identifier: nameTok, Tokens: tokens})
	}
}

// defineDirective handles "#define name tokens…": the tail of the line is
// copied into a fresh token list and the originals are suppressed.
func (pp *Preprocessor) defineDirective(directive *ast.Token) {
	directive.Void()
	ptr := directive.Next
	for ptr.Kind == ast.TK_IGNORABLE {
		ptr = ptr.Next
	}
	if ptr.Kind != ast.TK_IDENT {
		ast.ErrorTok(ptr, "invalid #define use")
	}
	identifier := copyToken(ptr)
	ptr.Void()
	// function-like macro: the '(' must follow the name immediately
	if ptr.Next.Is("(") {
		ast.ErrorTok(identifier, "function-like macros are not implemented")
	}
	// skip the gap between the name and the body, then copy the tail of
	// the line verbatim (interior spacing survives into expansions)
	ptr = ptr.Next
	for ptr.Kind == ast.TK_IGNORABLE {
		ptr = ptr.Next
	}
	var tokens []*ast.Token
	for {
		if ptr.Kind == ast.TK_LINEBREAK || ptr.Kind == ast.TK_EOF {
			break
		}
		tokens = append(tokens, copyToken(ptr))
		ptr.Void()
		ptr = ptr.Next
	}
	pp.addMacro(identifier, tokens)
	pp.cursor = ptr
}

// undefDirective handles "#undef name".
func (pp *Preprocessor) undefDirective(directive *ast.Token) {
	directive.Void()
	ptr := directive.Next
	for ptr.Kind == ast.TK_IGNORABLE {
		ptr = ptr.Next
	}
	if ptr.Kind != ast.TK_IDENT {
		ast.ErrorTok(ptr, "invalid #undef use")
	}
	pp.undefMacro(ptr.Text())
	ptr.Void()
	pp.cursor = ptr
}

// expandIdent runs the hide-set scanner at tok. It repeatedly splices the
// replacement of the innermost matching macro in place, adding the macro
// name to the hide set and re-scanning from the splice point, until no
// non-hidden macro matches. The hide set is local to the scan position and
// resets once the scanner advances.
func (pp *Preprocessor) expandIdent(tok *ast.Token) {
	hideSet := map[string]bool{}
	for {
		if tok.Kind != ast.TK_IDENT {
			return
		}
		macro := pp.findMacro(tok.Text())
		if macro == nil || hideSet[tok.Text()] {
			return
		}
		hideSet[macro.Identifier.Text()] = true
		if len(macro.Tokens) == 0 {
			tok.Void()
			return
		}
		// overwrite tok with the first replacement token, chain copies of
		// the rest, and re-link to the original successor
		successor := tok.Next
		tok.Kind = macro.Tokens[0].Kind
		tok.Str = macro.Tokens[0].Str
		tok.Val = macro.Tokens[0].Val
		prev := tok
		for _, repl := range macro.Tokens[1:] {
			cp := copyToken(repl)
			prev.Next = cp
			prev = cp
		}
		prev.Next = successor
		// re-scan from the splice point for nested expansion
	}
}

func copyToken(tok *ast.Token) *ast.Token {
	cp := *tok
	cp.Next = nil
	return &cp
}
