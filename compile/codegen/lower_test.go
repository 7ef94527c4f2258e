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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minicc/ast"
	"minicc/compile/ir"
)

func lowerSource(t *testing.T, source, fnName string) *X64Func {
	t.Helper()
	input := []byte(source)
	ast.SetErrorInput(input)
	prog := ast.Parse(ast.Tokenize(input))
	ast.Analyze(prog)
	ast.Fold(prog)
	irProg := ir.Generate(prog)
	for _, fn := range irProg.Funcs {
		if fn.Name == fnName {
			return Lower(fn)
		}
	}
	t.Fatalf("function %s not found", fnName)
	return nil
}

func asmList(fn *X64Func) []*Asm {
	var out []*Asm
	for _, b := range fn.Blocks {
		out = append(out, b.List...)
	}
	return out
}

func findKind(fn *X64Func, kind AsmKind) []*Asm {
	var out []*Asm
	for _, a := range asmList(fn) {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestDivisionProtocol(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 10; int b; b = 3; return a / b;}\n", "main")

	cqos := findKind(fn, X64_CQO)
	require.Len(t, cqos, 1)
	assert.Equal(t, RAX.Bit()|RDX.Bit(), cqos[0].ImplicitUsed)

	idivs := findKind(fn, X64_IDIV)
	require.Len(t, idivs, 1, "signed division lowers to idiv")
	assert.Equal(t, RAX.Bit()|RDX.Bit(), idivs[0].ImplicitUsed)

	assert.NotZero(t, fn.UsedRegisters&RDX.Bit())
}

func TestRemainderBindsRdx(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 10; int b; b = 3; return a % b;}\n", "main")
	// the remainder destination is pre-bound to rdx
	found := false
	for _, r := range fn.VirtualRegs {
		if r != nil && r.Class == ClassReal && r.Real == RDX && r.Reserved {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompareSequence(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1; int b; b = 2; return a < b;}\n", "main")
	list := asmList(fn)
	for i, a := range list {
		if a.Kind != X64_CMP || list[i+1].Kind != X64_XOR {
			continue
		}
		// cmp lhs, rhs; xor dst, dst; setl dst
		xor := list[i+1]
		set := list[i+2]
		assert.Equal(t, X64_SETL, set.Kind)
		assert.Equal(t, xor.Operands[0].Reg.ID, set.Operands[0].Reg.ID)
		assert.Equal(t, ir.SizeByte, set.Operands[0].Reg.Size)
		return
	}
	t.Fatal("compare sequence not found")
}

func TestUnsignedCompareUsesSetb(t *testing.T) {
	fn := lowerSource(t, "int main(){unsigned int a; a = 1; unsigned int b; b = 2; return a < b;}\n", "main")
	assert.Len(t, findKind(fn, X64_SETB), 1)
	assert.Empty(t, findKind(fn, X64_SETL))
}

func TestConditionalJumpShape(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1; if (a) return 1; return 0;}\n", "main")
	list := asmList(fn)
	for i, a := range list {
		if a.Kind == X64_JE {
			require.Greater(t, i, 0)
			cmp := list[i-1]
			assert.Equal(t, X64_CMP, cmp.Kind)
			assert.Equal(t, OP_IMM, cmp.Operands[1].Kind)
			assert.Equal(t, int64(0), cmp.Operands[1].Imm)
			return
		}
	}
	t.Fatal("je not found")
}

func TestCallLowering(t *testing.T) {
	fn := lowerSource(t, "int main(){return foo(1, 2);}\n", "main")
	calls := findKind(fn, X64_CALL)
	require.Len(t, calls, 1)
	assert.Equal(t, "foo", calls[0].JumpTarget)
	assert.NotZero(t, calls[0].ImplicitUsed&RAX.Bit())
	assert.NotZero(t, calls[0].ImplicitUsed&RDI.Bit())
	assert.NotZero(t, calls[0].ImplicitUsed&RSI.Bit())

	// the argument bank is materialized with reserved movs
	argMovs := 0
	for _, a := range findKind(fn, X64_MOV) {
		if a.Operands[0].Kind == OP_REG && a.Operands[0].Reg.Class == ClassReal &&
			(a.Operands[0].Reg.Real == RDI || a.Operands[0].Reg.Real == RSI) {
			argMovs++
		}
	}
	assert.Equal(t, 2, argMovs)
}

func TestStoreArgLowering(t *testing.T) {
	fn := lowerSource(t, "int f(int x){return x;}\nint main(){return f(3);}\n", "f")
	found := false
	for _, a := range findKind(fn, X64_MOV) {
		if a.Operands[0].Kind == OP_MEM && a.Operands[1].Kind == OP_REG &&
			a.Operands[1].Reg.Class == ClassReal && a.Operands[1].Reg.Real == RDI {
			assert.Equal(t, int64(4), a.Operands[0].Mem.Size)
			assert.Equal(t, ir.SizeDWord, a.Operands[1].Reg.Size)
			found = true
		}
	}
	assert.True(t, found, "parameter spill mov not found")
}

func TestLeaLocal(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1; return a;}\n", "main")
	leas := findKind(fn, X64_LEA)
	require.NotEmpty(t, leas)
	lea := leas[0]
	assert.Equal(t, OP_MEM, lea.Operands[1].Kind)
	assert.Equal(t, RBP, lea.Operands[1].Mem.Base.Real)
	assert.Equal(t, int64(-4), lea.Operands[1].Mem.Disp)
}

func TestLeaGlobalIsRipRelative(t *testing.T) {
	fn := lowerSource(t, "int g;\nint main(){return g;}\n", "main")
	leas := findKind(fn, X64_LEA)
	require.NotEmpty(t, leas)
	assert.Equal(t, OP_MEM_RELATIVE, leas[0].Operands[1].Kind)
	assert.Equal(t, "g", leas[0].Operands[1].Mem.Symbol)
}

func TestShiftRoutesThroughCl(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1; int b; b = 3; return a << b;}\n", "main")
	sals := findKind(fn, X64_SAL)
	require.Len(t, sals, 1)
	assert.Equal(t, RCX.Bit(), sals[0].ImplicitUsed)
	cl := sals[0].Operands[1].Reg
	require.NotNil(t, cl)
	assert.Equal(t, RCX, cl.Real)
	assert.Equal(t, ir.SizeByte, cl.Size)
}

func TestTwoAddressFusion(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1; int b; b = 2; return a + b;}\n", "main")
	adds := findKind(fn, X64_ADD)
	require.Len(t, adds, 1)
	// destination and lhs share one register, so renaming the returned sum
	// into rax also renames the add's first operand
	assert.Equal(t, ClassReal, adds[0].Operands[0].Reg.Class)
	assert.Equal(t, RAX, adds[0].Operands[0].Reg.Real)
}

func TestMainImplicitReturnZero(t *testing.T) {
	fn := lowerSource(t, "int main(){int a; a = 1;}\n", "main")
	found := false
	for _, a := range findKind(fn, X64_MOV) {
		if a.Operands[1].Kind == OP_IMM && a.Operands[1].Imm == 0 &&
			a.Operands[0].Kind == OP_REG && a.Operands[0].Reg.Real == RAX &&
			a.Operands[0].Reg.Size == ir.SizeDWord {
			found = true
		}
	}
	assert.True(t, found, "main must implicitly return 0")
}

func TestReturnBindsRax(t *testing.T) {
	fn := lowerSource(t, "int f(){return 7;}\nint main(){return f();}\n", "f")
	bound := false
	for _, r := range fn.VirtualRegs {
		if r != nil && r.Class == ClassReal && r.Real == RAX && r.Reserved {
			bound = true
		}
	}
	assert.True(t, bound)
	require.NotEmpty(t, findKind(fn, X64_RETURN))
}

func TestWidthChangeLowering(t *testing.T) {
	fn := lowerSource(t, "int main(){long l; int i; i = 1; l = i; return 0;}\n", "main")
	movsxd := findKind(fn, X64_MOVSXD)
	require.Len(t, movsxd, 1, "int -> long widening uses movsxd")
}
