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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minicc/ast"
)

func run(t *testing.T, source string) string {
	t.Helper()
	input := []byte(source)
	ast.SetErrorInput(input)
	head := Preprocess(input, false)
	return string(Write(head))
}

func TestNoDirectivesRoundTrip(t *testing.T) {
	source := "int main() {\n    return 0; // trailing\n}\n"
	assert.Equal(t, source, run(t, source))
}

func TestObjectLikeMacro(t *testing.T) {
	out := run(t, "#define N 42\nint main(){return N;}\n")
	assert.Contains(t, out, "return 42;")
	assert.NotContains(t, out, "#define")
}

func TestMacroMultiTokenBody(t *testing.T) {
	out := run(t, "#define EXPR 1 + 2\nint x = EXPR;\n")
	assert.Contains(t, out, "1 + 2")
}

func TestEmptyMacroBody(t *testing.T) {
	out := run(t, "#define EMPTY\nint EMPTY x;\n")
	assert.NotContains(t, out, "EMPTY")
	assert.Contains(t, out, "x;")
}

// Hide sets stop mutually recursive macros from expanding forever.
func TestHideSetStopsRecursion(t *testing.T) {
	out := run(t, "#define A B\n#define B A\nint A;\n")
	assert.Contains(t, out, "int A;")
}

func TestNestedExpansion(t *testing.T) {
	out := run(t, "#define ONE 1\n#define TWO ONE + ONE\nint x = TWO;\n")
	assert.Contains(t, out, "1 + 1")
}

func TestMacroRedefinitionFails(t *testing.T) {
	input := []byte("#define N 1\n#define N 2\n")
	ast.SetErrorInput(input)
	assert.Panics(t, func() { Preprocess(input, false) })
}

func TestUndef(t *testing.T) {
	out := run(t, "#define N 1\n#undef N\nint N;\n")
	assert.Contains(t, out, "int N;")
}

func TestUndefThenRedefine(t *testing.T) {
	out := run(t, "#define N 1\n#undef N\n#define N 2\nint x = N;\n")
	assert.Contains(t, out, "int x = 2;")
}

func TestFunctionLikeMacroRejected(t *testing.T) {
	input := []byte("#define F(x) x\n")
	ast.SetErrorInput(input)
	assert.Panics(t, func() { Preprocess(input, false) })
}

func TestIfdefNotDefined(t *testing.T) {
	out := run(t, "#ifdef X\nint a;\n#else\nint b;\n#endif\n")
	assert.NotContains(t, out, "int a;")
	assert.Contains(t, out, "int b;")
}

func TestIfdefDefined(t *testing.T) {
	input := []byte("#ifdef X\nint a;\n#else\nint b;\n#endif\n")
	ast.SetErrorInput(input)
	pp := NewPreprocessor()
	pp.DefineFromSource("X", "1")
	out := string(Write(pp.Run(input)))
	assert.Contains(t, out, "int a;")
	assert.NotContains(t, out, "int b;")
}

func TestIfndef(t *testing.T) {
	out := run(t, "#ifndef X\nint a;\n#endif\n")
	assert.Contains(t, out, "int a;")
}

func TestIfdefViaDefine(t *testing.T) {
	out := run(t, "#define X\n#ifdef X\nint a;\n#else\nint b;\n#endif\n")
	assert.Contains(t, out, "int a;")
	assert.NotContains(t, out, "int b;")
}

// Line breaks are never suppressed, so line counts survive suppression.
func TestSuppressionKeepsLineBreaks(t *testing.T) {
	source := "#ifdef X\nint a;\nint b;\n#endif\nint c;\n"
	out := run(t, source)
	assert.Equal(t, countLines(source), countLines(out))
	assert.Contains(t, out, "int c;")
	assert.NotContains(t, out, "int a;")
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestNestedSuppressedConditional(t *testing.T) {
	out := run(t, "#ifdef X\n#ifdef Y\nint a;\n#endif\nint b;\n#endif\nint c;\n")
	assert.NotContains(t, out, "int a;")
	assert.NotContains(t, out, "int b;")
	assert.Contains(t, out, "int c;")
}

func TestErrorDirective(t *testing.T) {
	input := []byte("#error something went wrong\n")
	ast.SetErrorInput(input)
	assert.Panics(t, func() { Preprocess(input, false) })
}

func TestIgnoredDirectives(t *testing.T) {
	out := run(t, "#include <stdio.h>\n#pragma once\n#warning hi\n#line 3\nint x;\n")
	assert.Contains(t, out, "int x;")
	assert.NotContains(t, out, "#include")
	assert.NotContains(t, out, "#pragma")
}

func TestUnknownDirectiveFails(t *testing.T) {
	input := []byte("#frobnicate\n")
	ast.SetErrorInput(input)
	assert.Panics(t, func() { Preprocess(input, false) })
}

func TestIfConstantExpressionUnimplemented(t *testing.T) {
	input := []byte("#if 1\nint a;\n#endif\n")
	ast.SetErrorInput(input)
	assert.Panics(t, func() { Preprocess(input, false) })
}

func TestPredefinedMacros(t *testing.T) {
	input := []byte("#ifdef __x86_64__\nint ok;\n#endif\n")
	ast.SetErrorInput(input)
	out := string(Write(Preprocess(input, true)))
	assert.Contains(t, out, "int ok;")
}

func TestParsesAfterExpansion(t *testing.T) {
	input := []byte("#define RET return\nint main(){RET 3;}\n")
	ast.SetErrorInput(input)
	head := Preprocess(input, false)
	tok := ast.FixTokenHead(head)
	require.Equal(t, "int", tok.Text())
	// walk to the expanded token: it must now be the reserved word
	for ; tok.Kind != ast.TK_EOF; tok = tok.Next {
		if tok.Text() == "return" {
			return
		}
	}
	t.Fatal("expanded token not found")
}
