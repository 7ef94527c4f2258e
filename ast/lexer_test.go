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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(head *Token) []string {
	var out []string
	for tok := head; tok != nil && tok.Kind != TK_EOF; tok = tok.Next {
		if tok.Kind == TK_IGNORABLE || tok.Kind == TK_LINEBREAK {
			continue
		}
		out = append(out, tok.Text())
	}
	return out
}

func TestTokenizeBasic(t *testing.T) {
	input := []byte("int main() { return 42; }\n")
	SetErrorInput(input)
	head := Tokenize(input)
	assert.Equal(t, []string{"int", "main", "(", ")", "{", "return", "42", ";", "}"},
		collect(head))
}

func TestTokenizeKinds(t *testing.T) {
	input := []byte("foo 12 \"bar\" if ==\n")
	SetErrorInput(input)
	tok := Tokenize(input)
	require.Equal(t, TK_IDENT, tok.Kind)

	tok = tok.Next
	require.Equal(t, TK_NUM, tok.Kind)
	assert.Equal(t, int64(12), tok.Val)

	tok = tok.Next
	require.Equal(t, TK_STRING, tok.Kind)
	assert.Equal(t, "\"bar\"", tok.Text())

	tok = tok.Next
	require.Equal(t, TK_RESERVED, tok.Kind) // reserved word
	assert.Equal(t, "if", tok.Text())

	tok = tok.Next
	require.Equal(t, TK_RESERVED, tok.Kind)
	assert.Equal(t, "==", tok.Text())
}

func TestTokenizeTwoCharPunct(t *testing.T) {
	input := []byte("a<<b>>c->d++e--f&&g||h<=i>=j!=k\n")
	SetErrorInput(input)
	got := collect(Tokenize(input))
	assert.Contains(t, got, "<<")
	assert.Contains(t, got, ">>")
	assert.Contains(t, got, "->")
	assert.Contains(t, got, "++")
	assert.Contains(t, got, "--")
	assert.Contains(t, got, "&&")
	assert.Contains(t, got, "||")
	assert.Contains(t, got, "<=")
	assert.Contains(t, got, ">=")
	assert.Contains(t, got, "!=")
}

// Concatenating all tokens of the preprocessing-mode chain reproduces the
// input byte-for-byte.
func TestPreprocessModeRoundTrip(t *testing.T) {
	input := []byte("int main() {\n\t// comment\n\treturn 1; /* multi\nline */\n}\n")
	SetErrorInput(input)
	head, _ := TokenizeForPreprocess(input)
	var buf []byte
	for tok := head; tok.Kind != TK_EOF; tok = tok.Next {
		buf = append(buf, tok.Str...)
	}
	assert.Equal(t, string(input), string(buf))
}

// Every token's byte range must alias the input buffer.
func TestTokenSpansAliasInput(t *testing.T) {
	input := []byte("int x = 1 + 2;\n")
	SetErrorInput(input)
	head, _ := TokenizeForPreprocess(input)
	for tok := head; tok.Kind != TK_EOF; tok = tok.Next {
		if len(tok.Str) == 0 {
			continue
		}
		off := byteOffset(input, tok.Str)
		require.GreaterOrEqual(t, off, 0)
		require.LessOrEqual(t, off+len(tok.Str), len(input))
	}
}

func TestConditionalGroups(t *testing.T) {
	input := []byte("#ifdef A\nint x;\n#else\nint y;\n#endif\n")
	SetErrorInput(input)
	_, groups := TokenizeForPreprocess(input)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Heads, 3)
	assert.Equal(t, "#ifdef", groups[0].Heads[0].Text())
	assert.Equal(t, "#else", groups[0].Heads[1].Text())
	assert.Equal(t, "#endif", groups[0].Heads[2].Text())
}

func TestNestedConditionalGroups(t *testing.T) {
	input := []byte("#ifdef A\n#ifdef B\n#endif\n#endif\n")
	SetErrorInput(input)
	_, groups := TokenizeForPreprocess(input)
	require.Len(t, groups, 2)
	// outer group first in source order, inner nested within
	assert.Len(t, groups[0].Heads, 2)
	assert.Len(t, groups[1].Heads, 2)
}

func TestDirectiveHeadIsOneToken(t *testing.T) {
	input := []byte("#define N 1\n")
	SetErrorInput(input)
	head, _ := TokenizeForPreprocess(input)
	require.Equal(t, TK_DIRECTIVE, head.Kind)
	assert.Equal(t, "#define", head.Text())
}

func TestTokenizeFailures(t *testing.T) {
	for _, bad := range []string{"@\n", "\"unterminated\n", "/* open\n"} {
		input := []byte(bad)
		SetErrorInput(input)
		assert.Panics(t, func() { TokenizeForPreprocess(input) }, "input %q", bad)
	}
}

func TestUnterminatedConditional(t *testing.T) {
	input := []byte("#ifdef A\nint x;\n")
	SetErrorInput(input)
	assert.Panics(t, func() { TokenizeForPreprocess(input) })
}
