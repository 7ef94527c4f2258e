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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func foldSource(t *testing.T, source string) *Program {
	t.Helper()
	return Fold(analyzeSource(t, source))
}

func retVal(t *testing.T, prog *Program, idx int) AstExpr {
	t.Helper()
	return mainFunc(t, prog).Body.List[idx].(*ReturnStmt).X
}

func TestFoldArithmetic(t *testing.T) {
	prog := foldSource(t, "int main(){return 2*3+4;}\n")
	num, ok := retVal(t, prog, 0).(*NumExpr)
	require.True(t, ok)
	assert.Equal(t, int64(10), num.Val)
}

func TestFoldComparisonsAndLogic(t *testing.T) {
	cases := map[string]int64{
		"1 < 2":     1,
		"2 <= 1":    0,
		"3 == 3":    1,
		"3 != 3":    0,
		"1 && 0":    0,
		"1 || 0":    1,
		"6 & 3":     2,
		"6 | 3":     7,
		"6 ^ 3":     5,
		"1 << 4":    16,
		"32 >> 2":   8,
		"7 % 3":     1,
		"-(3)":      -3,
		"!0":        1,
		"~0":        -1,
		"+(5)":      5,
		"10 - 4":    6,
		"100 / 10":  10,
		"(1+2)*3":   9,
		"1 ? 2 : 3": 2,
	}
	for src, want := range cases {
		prog := foldSource(t, "int main(){return "+src+";}\n")
		x := retVal(t, prog, 0)
		if src == "1 ? 2 : 3" {
			// ternaries are not folded, only their numeric children
			_, isTernary := x.(*TernaryExpr)
			assert.True(t, isTernary, "source %q", src)
			continue
		}
		num, ok := x.(*NumExpr)
		require.True(t, ok, "source %q did not fold", src)
		assert.Equal(t, want, num.Val, "source %q", src)
	}
}

func TestDivisionByZeroNotFolded(t *testing.T) {
	prog := foldSource(t, "int main(){return 1/0;}\n")
	_, stillBinary := retVal(t, prog, 0).(*BinaryExpr)
	assert.True(t, stillBinary)
}

func TestRemainderByZeroNotFolded(t *testing.T) {
	prog := foldSource(t, "int main(){return 1%0;}\n")
	_, stillBinary := retVal(t, prog, 0).(*BinaryExpr)
	assert.True(t, stillBinary)
}

func TestOverflowNotFolded(t *testing.T) {
	prog := analyzeSource(t, "int main(){long a; a = 1; return 0;}\n")
	_ = prog
	// build the overflowing tree directly: MAX + 1
	left := &NumExpr{Expr: Expr{Type: TLong}, Val: math.MaxInt64}
	right := &NumExpr{Expr: Expr{Type: TLong}, Val: 1}
	bin := &BinaryExpr{Expr: Expr{Type: TLong}, Op: OpAdd, Left: left, Right: right}
	out := foldExpr(bin)
	_, stillBinary := out.(*BinaryExpr)
	assert.True(t, stillBinary)
}

// No partial fold of short-circuit operators.
func TestNoPartialShortCircuitFold(t *testing.T) {
	prog := foldSource(t, "int main(){int a; a = 1; return 0 && a;}\n")
	_, stillBinary := retVal(t, prog, 2).(*BinaryExpr)
	assert.True(t, stillBinary)
}

// Folding is idempotent: a second run yields the same tree.
func TestFoldIdempotent(t *testing.T) {
	prog := foldSource(t, "int main(){return 2*3+4- (8/2);}\n")
	first := retVal(t, prog, 0).(*NumExpr).Val
	Fold(prog)
	second := retVal(t, prog, 0).(*NumExpr).Val
	assert.Equal(t, first, second)
	assert.Equal(t, int64(6), first)
}

func TestFoldInsideStatements(t *testing.T) {
	prog := foldSource(t, "int main(){int a; a = 0; while (1 < 2) { a = 3 + 4; break; } return a;}\n")
	fn := mainFunc(t, prog)
	loop := fn.Body.List[2].(*WhileStmt)
	cond := loop.Cond.(*NumExpr)
	assert.Equal(t, int64(1), cond.Val)
	body := loop.Body.(*BlockStmt)
	assign := body.List[0].(*ExprStmt).X.(*AssignExpr)
	assert.Equal(t, int64(7), assign.Right.(*NumExpr).Val)
}
