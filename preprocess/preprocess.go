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
	"bytes"

	"minicc/ast"
)

// -----------------------------------------------------------------------------
// Preprocessor
//
// Edits the token chain produced by the lexer in place: macro expansion
// under hide sets, conditional inclusion, #define/#undef bookkeeping.
// No new chain is produced; downstream stages walk the original chain and
// treat TK_IGNORABLE and TK_LINEBREAK as absent.

type Preprocessor struct {
	macros []*Macro
	groups map[*ast.Token]*ast.CondGroup // opening head -> group
	cursor *ast.Token
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{groups: make(map[*ast.Token]*ast.CondGroup)}
}

// predefined macros imported with -g (gcc compatibility).
var predefinedMacros = [][2]string{
	{"__x86_64__", "1"},
	{"__linux__", "1"},
	{"__STDC__", "1"},
	{"__STDC_HOSTED__", "1"},
}

func (pp *Preprocessor) ImportPredefined() {
	for _, def := range predefinedMacros {
		pp.DefineFromSource(def[0], def[1])
	}
}

// Run tokenizes input in preprocessing mode and edits the chain in place.
// The returned head still contains ignorable and line-break tokens; callers
// feed it to the -E writer or through ast.FixTokenHead into the parser.
func (pp *Preprocessor) Run(input []byte) *ast.Token {
	head, groups := ast.TokenizeForPreprocess(input)
	for _, g := range groups {
		pp.groups[g.Heads[0]] = g
	}

	tok := head
	for tok != nil && tok.Kind != ast.TK_EOF {
		switch tok.Kind {
		case ast.TK_DIRECTIVE:
			tok = pp.directive(tok)
		case ast.TK_IDENT:
			pp.expandIdent(tok)
		}
		if tok == nil || tok.Kind == ast.TK_EOF {
			break
		}
		tok = tok.Next
	}
	return head
}

// directive dispatches one '#name' head and returns the token the scan
// resumes from.
func (pp *Preprocessor) directive(tok *ast.Token) *ast.Token {
	switch tok.Text() {
	case "#if", "#ifdef", "#ifndef":
		group, ok := pp.groups[tok]
		if !ok {
			ast.ErrorTok(tok, "unbalanced conditional directive")
		}
		delete(pp.groups, tok)
		pp.conditionalInclusion(group)
		return tok

	case "#define":
		pp.defineDirective(tok)
		return pp.cursor

	case "#undef":
		pp.undefDirective(tok)
		return pp.cursor

	case "#error":
		ast.ErrorTok(tok, "#error directive found%s", restOfLine(tok))

	case "#line", "#pragma", "#include", "#warning":
		// read and ignored; the whole line is suppressed
		return voidLine(tok)

	case "#else", "#elif", "#elifdef", "#elifndef", "#endif":
		// reached only when the matching #if head never ran
		ast.ErrorTok(tok, "unbalanced conditional directive")
	}
	ast.ErrorTok(tok, "unknown directive %s", tok.Text())
	return tok
}

// restOfLine renders the directive's tail for the #error message.
func restOfLine(tok *ast.Token) string {
	var buf bytes.Buffer
	for t := tok.Next; t.Kind != ast.TK_LINEBREAK && t.Kind != ast.TK_EOF; t = t.Next {
		buf.Write(t.Str)
	}
	return buf.String()
}

// voidLine suppresses tok and the rest of its line, returning the last
// suppressed token.
func voidLine(tok *ast.Token) *ast.Token {
	cur := tok
	for {
		cur.Void()
		next := cur.Next
		if next == nil || next.Kind == ast.TK_LINEBREAK || next.Kind == ast.TK_EOF {
			return cur
		}
		cur = next
	}
}

// Preprocess is the package entry point used by the driver.
func Preprocess(input []byte, importPredefined bool) *ast.Token {
	pp := NewPreprocessor()
	if importPredefined {
		pp.ImportPredefined()
	}
	return pp.Run(input)
}

// Write serializes the chain back to source text for -E style dumps.
// With no macros defined and no directives the output reproduces the input
// byte-for-byte.
func Write(head *ast.Token) []byte {
	var buf bytes.Buffer
	for tok := head; tok != nil && tok.Kind != ast.TK_EOF; tok = tok.Next {
		buf.Write(tok.Str)
	}
	return buf.Bytes()
}
