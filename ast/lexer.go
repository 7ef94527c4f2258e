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
	"strconv"
)

// -----------------------------------------------------------------------------
// Lexer
//
// Consumes a byte buffer and produces a token chain terminated by TK_EOF.
// In preprocessing mode whitespace and comments survive as TK_IGNORABLE and
// every '\n' becomes a TK_LINEBREAK, so the chain concatenates back to the
// input byte-for-byte. Conditional-inclusion heads are additionally grouped
// per nesting level so the preprocessor can match #if/#else/#endif in O(1).

// CondGroup is one #if..#endif run: the heads in source order, ending with
// the matching #endif.
type CondGroup struct {
	Heads []*Token
}

type Lexer struct {
	input      []byte
	pos        int
	preprocess bool

	// completed and still-open conditional groups; Groups keeps source
	// order of the opening #if heads, nest is the matching stack.
	Groups []*CondGroup
	nest   []*CondGroup
}

func NewLexer(input []byte, preprocess bool) *Lexer {
	return &Lexer{input: input, preprocess: preprocess}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// punctuation accepted as TK_RESERVED; two-char forms are tried first.
var punct2 = []string{"==", "!=", "<=", ">=", "&&", "||", "<<", ">>", "++", "--", "->"}

const punct1 = "+-*/%()=!<>;{},&|^~?:[].\\"

func (lx *Lexer) peek(ahead int) byte {
	if lx.pos+ahead >= len(lx.input) {
		return 0
	}
	return lx.input[lx.pos+ahead]
}

func (lx *Lexer) newToken(kind TokenKind, old *Token, start, length int) *Token {
	tok := &Token{Kind: kind, Str: lx.input[start : start+length]}
	old.Next = tok
	return tok
}

// Tokenize lexes the whole buffer. It fails at the exact offending byte for
// unterminated comments/strings and bytes matching no rule.
func (lx *Lexer) Tokenize() *Token {
	var head Token
	cur := &head
	in := lx.input
	for lx.pos < len(in) {
		c := in[lx.pos]

		// line break; ahead of the whitespace check so '\n' survives in
		// preprocessing mode
		if c == '\n' {
			if lx.preprocess {
				cur = lx.newToken(TK_LINEBREAK, cur, lx.pos, 1)
			}
			lx.pos++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			start := lx.pos
			for lx.pos < len(in) && (in[lx.pos] == ' ' || in[lx.pos] == '\t' || in[lx.pos] == '\r') {
				lx.pos++
			}
			if lx.preprocess {
				cur = lx.newToken(TK_IGNORABLE, cur, start, lx.pos-start)
			}
			continue
		}

		// comments
		if c == '/' && lx.peek(1) == '/' {
			start := lx.pos
			for lx.pos < len(in) && in[lx.pos] != '\n' {
				lx.pos++
			}
			if lx.preprocess {
				cur = lx.newToken(TK_IGNORABLE, cur, start, lx.pos-start)
			}
			continue
		}
		if c == '/' && lx.peek(1) == '*' {
			cur = lx.lexBlockComment(cur)
			continue
		}

		// directive head: '#' plus the identifier run is one token
		if c == '#' {
			cur = lx.lexDirective(cur)
			continue
		}

		// punctuation
		if tok := lx.lexPunct(cur); tok != nil {
			cur = tok
			continue
		}

		// numeric literal
		if isDigit(c) {
			start := lx.pos
			for lx.pos < len(in) && isDigit(in[lx.pos]) {
				lx.pos++
			}
			cur = lx.newToken(TK_NUM, cur, start, lx.pos-start)
			val, err := strconv.ParseInt(string(cur.Str), 10, 64)
			if err != nil {
				ErrorAt(cur.Str, "invalid numeric literal")
			}
			cur.Val = val
			continue
		}

		// string literal, quotes included, escapes resolved later
		if c == '"' {
			start := lx.pos
			lx.pos++
			for {
				if lx.pos >= len(in) {
					ErrorAt(in[start:start+1], "unterminated string literal")
				}
				if in[lx.pos] == '"' && in[lx.pos-1] != '\\' {
					break
				}
				lx.pos++
			}
			lx.pos++
			cur = lx.newToken(TK_STRING, cur, start, lx.pos-start)
			continue
		}

		// identifier or reserved word
		if isAlnum(c) {
			start := lx.pos
			for lx.pos < len(in) && isAlnum(in[lx.pos]) {
				lx.pos++
			}
			kind := TK_IDENT
			if IsKeyword(string(in[start:lx.pos])) {
				kind = TK_RESERVED
			}
			cur = lx.newToken(kind, cur, start, lx.pos-start)
			continue
		}

		ErrorAt(in[lx.pos:lx.pos+1], "failed to tokenize")
	}

	eof := &Token{Kind: TK_EOF, Str: in[len(in):]}
	cur.Next = eof
	return head.Next
}

func (lx *Lexer) lexBlockComment(cur *Token) *Token {
	in := lx.input
	start := lx.pos
	end := -1
	for i := lx.pos + 2; i+1 < len(in); i++ {
		if in[i] == '*' && in[i+1] == '/' {
			end = i + 2
			break
		}
	}
	if end < 0 {
		ErrorAt(in[start:start+1], "unterminated comment")
	}
	if !lx.preprocess {
		lx.pos = end
		return cur
	}
	// keep line counts: the comment is split into ignorable runs with an
	// explicit line-break token at each '\n'
	segStart := start
	for i := start; i < end; i++ {
		if in[i] == '\n' {
			if i > segStart {
				cur = lx.newToken(TK_IGNORABLE, cur, segStart, i-segStart)
			}
			cur = lx.newToken(TK_LINEBREAK, cur, i, 1)
			segStart = i + 1
		}
	}
	if end > segStart {
		cur = lx.newToken(TK_IGNORABLE, cur, segStart, end-segStart)
	}
	lx.pos = end
	return cur
}

func (lx *Lexer) lexDirective(cur *Token) *Token {
	in := lx.input
	start := lx.pos
	lx.pos++
	for lx.pos < len(in) && isAlnum(in[lx.pos]) {
		lx.pos++
	}
	cur = lx.newToken(TK_DIRECTIVE, cur, start, lx.pos-start)
	switch cur.Text() {
	case "#if", "#ifdef", "#ifndef":
		group := &CondGroup{}
		lx.Groups = append(lx.Groups, group)
		lx.nest = append(lx.nest, group)
		group.Heads = append(group.Heads, cur)
	case "#else", "#elif", "#elifdef", "#elifndef":
		if len(lx.nest) == 0 {
			ErrorAt(cur.Str, "%s without matching #if", cur.Text())
		}
		top := lx.nest[len(lx.nest)-1]
		top.Heads = append(top.Heads, cur)
	case "#endif":
		if len(lx.nest) == 0 {
			ErrorAt(cur.Str, "#endif without matching #if")
		}
		top := lx.nest[len(lx.nest)-1]
		lx.nest = lx.nest[:len(lx.nest)-1]
		top.Heads = append(top.Heads, cur)
	}
	return cur
}

func (lx *Lexer) lexPunct(cur *Token) *Token {
	in := lx.input
	if lx.pos+1 < len(in) {
		two := string(in[lx.pos : lx.pos+2])
		for _, op := range punct2 {
			if two == op {
				tok := lx.newToken(TK_RESERVED, cur, lx.pos, 2)
				lx.pos += 2
				return tok
			}
		}
	}
	for i := 0; i < len(punct1); i++ {
		if in[lx.pos] == punct1[i] {
			tok := lx.newToken(TK_RESERVED, cur, lx.pos, 1)
			lx.pos++
			return tok
		}
	}
	return nil
}

// Tokenize lexes input in compile mode (whitespace and comments dropped).
func Tokenize(input []byte) *Token {
	return NewLexer(input, false).Tokenize()
}

// TokenizeForPreprocess lexes input keeping ignorable and line-break tokens
// and returns the recorded conditional-inclusion groups alongside the chain.
func TokenizeForPreprocess(input []byte) (*Token, []*CondGroup) {
	lx := NewLexer(input, true)
	head := lx.Tokenize()
	if len(lx.nest) != 0 {
		open := lx.nest[len(lx.nest)-1]
		ErrorAt(open.Heads[0].Str, "unterminated conditional directive")
	}
	return head, lx.Groups
}

// PrintTokenized dumps the token chain of input, one token per line.
func PrintTokenized(input []byte) {
	for tok := Tokenize(input); tok.Kind != TK_EOF; tok = tok.Next {
		fmt.Printf("[%v, %q]\n", tok.Kind, tok.Text())
	}
}
