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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minicc/ast"
)

func genSource(t *testing.T, source string) *Program {
	t.Helper()
	input := []byte(source)
	ast.SetErrorInput(input)
	prog := ast.Parse(ast.Tokenize(input))
	ast.Analyze(prog)
	ast.Fold(prog)
	return Generate(prog)
}

func fnByName(t *testing.T, prog *Program, name string) *Func {
	t.Helper()
	for _, fn := range prog.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %s not found", name)
	return nil
}

func instrs(fn *Func) []*Instr {
	var out []*Instr
	for _, b := range fn.Blocks {
		out = append(out, b.IRs...)
	}
	return out
}

func kinds(fn *Func) map[Kind]int {
	count := map[Kind]int{}
	for _, i := range instrs(fn) {
		count[i.Kind]++
	}
	return count
}

func TestGenMinimalFunction(t *testing.T) {
	prog := genSource(t, "int main(){return 0;}\n")
	fn := fnByName(t, prog, "main")

	require.NotEmpty(t, fn.Blocks)
	first := fn.Blocks[0].IRs[0]
	assert.Equal(t, IR_FUNC_PROLOGUE, first.Kind)

	k := kinds(fn)
	assert.Equal(t, 1, k[IR_RET])
	assert.Equal(t, 1, k[IR_FUNC_EPILOGUE])
	assert.Equal(t, 1, k[IR_MOV]) // the literal 0
}

// Every non-phi virtual register is defined by exactly one instruction.
func TestSingleDefinitionPerRegister(t *testing.T) {
	prog := genSource(t, `
int fib(int n){ if(n<2) return n; return fib(n-1)+fib(n-2); }
int main(){ return fib(10); }
`)
	for _, fn := range prog.Funcs {
		defs := map[int]int{}
		for _, i := range instrs(fn) {
			if i.Kind == IR_PHI {
				continue
			}
			if d := i.DefReg(); d != nil {
				defs[d.Num]++
			}
		}
		for num, count := range defs {
			assert.Equal(t, 1, count, "func %s register v%d", fn.Name, num)
		}
	}
}

func TestBlockInvariants(t *testing.T) {
	prog := genSource(t, `
int main(){
	int x; x = 0;
	for (int i = 0; i < 5; i = i + 1) x = x + i;
	while (x) { x = x - 1; }
	do { x = x + 1; } while (x < 3);
	if (x) return x;
	return 0;
}
`)
	for _, fn := range prog.Funcs {
		CheckBlockInvariants(fn)
		for _, b := range fn.Blocks {
			for idx, i := range b.IRs {
				if i.IsTerminator() {
					assert.Equal(t, len(b.IRs)-1, idx)
				}
			}
		}
		for _, lb := range fn.Labels {
			assert.True(t, lb.IsLabelBlock())
		}
	}
}

func TestWhileShape(t *testing.T) {
	prog := genSource(t, "int main(){int i; i = 0; while(i < 10) i = i + 1; return i;}\n")
	fn := fnByName(t, prog, "main")

	var labelNames []string
	for _, lb := range fn.Labels {
		labelNames = append(labelNames, lb.IRs[0].Name)
	}
	assert.Contains(t, labelNames, ".Lbeginwhile_0_main")
	assert.Contains(t, labelNames, ".Lendwhile_0_main")

	var je, jmp *Instr
	for _, i := range instrs(fn) {
		if i.Kind == IR_JE && i.Name == ".Lendwhile_0_main" {
			je = i
		}
		if i.Kind == IR_JMP && i.Name == ".Lbeginwhile_0_main" {
			jmp = i
		}
	}
	require.NotNil(t, je, "loop exit jump missing")
	require.NotNil(t, jmp, "back edge missing")
}

func TestCFGWiring(t *testing.T) {
	prog := genSource(t, "int main(){int i; i = 0; while(i < 3) i = i + 1; return i;}\n")
	fn := fnByName(t, prog, "main")
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		switch term.Kind {
		case IR_JMP:
			require.NotNil(t, b.Lhs, "jmp must have a taken successor")
			assert.True(t, b.Lhs.IsLabelBlock())
		case IR_JE, IR_JNE:
			require.NotNil(t, b.Lhs)
			require.NotNil(t, b.Rhs, "conditional jump needs a fall-through")
		}
	}
}

func TestSwitchLowering(t *testing.T) {
	prog := genSource(t, `
int main(){
	int a; a = 2;
	switch (a) {
	case 1: return 10;
	case 2: return 20;
	default: return 30;
	}
}
`)
	fn := fnByName(t, prog, "main")
	k := kinds(fn)
	// one eq + jne per non-default case
	assert.Equal(t, 2, k[IR_EQ])
	assert.GreaterOrEqual(t, k[IR_JNE], 2)

	var labelNames []string
	for _, lb := range fn.Labels {
		labelNames = append(labelNames, lb.IRs[0].Name)
	}
	assert.Contains(t, labelNames, ".Lswitch_0_main_0")
	assert.Contains(t, labelNames, ".Lswitch_0_main_1")
	assert.Contains(t, labelNames, ".Lswitch_0_main_2")
	assert.Contains(t, labelNames, ".Lendswitch_0_main")
}

func TestCallArgumentOrder(t *testing.T) {
	prog := genSource(t, "int main(){return foo(1, 2, 3);}\n")
	fn := fnByName(t, prog, "main")
	var call *Instr
	for _, i := range instrs(fn) {
		if i.Kind == IR_CALL {
			call = i
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "foo", call.Name)
	require.Len(t, call.Args, 3)
	require.NotNil(t, call.Dst)
}

func TestStoreArgsForParams(t *testing.T) {
	prog := genSource(t, "int f(int a, int b){return a + b;}\nint main(){return f(1,2);}\n")
	fn := fnByName(t, prog, "f")
	var storeArgs []*Instr
	for _, i := range instrs(fn) {
		if i.Kind == IR_STORE_ARG {
			storeArgs = append(storeArgs, i)
		}
	}
	require.Len(t, storeArgs, 2)
	assert.Equal(t, 0, storeArgs[0].ArgIndex)
	assert.Equal(t, 1, storeArgs[1].ArgIndex)
	assert.Equal(t, int64(4), storeArgs[0].Size)
}

func TestGlobalZeroInit(t *testing.T) {
	prog := genSource(t, "int g;\nint main(){g = 7; return g;}\n")
	require.Len(t, prog.Globals, 1)
	g := prog.Globals[0]
	assert.Equal(t, "g", g.Name)
	require.Len(t, g.Init, 1)
	assert.Equal(t, InitZero, g.Init[0].Kind)
	assert.Equal(t, int64(4), g.Init[0].ZeroLen)
}

func TestGlobalValueInit(t *testing.T) {
	prog := genSource(t, "int g = 3;\nlong h = 4;\nint main(){return g;}\n")
	require.Len(t, prog.Globals, 2)
	assert.Equal(t, InitVal, prog.Globals[0].Init[0].Kind)
	assert.Equal(t, int64(3), prog.Globals[0].Init[0].Val)
	assert.Equal(t, int64(4), prog.Globals[0].Init[0].ValSize)
	assert.Equal(t, int64(8), prog.Globals[1].Init[0].ValSize)
}

func TestGlobalListInitPadsWithZero(t *testing.T) {
	prog := genSource(t, "int a[4] = {1, 2};\nint main(){return a[0];}\n")
	require.Len(t, prog.Globals, 1)
	inits := prog.Globals[0].Init
	require.Len(t, inits, 3)
	assert.Equal(t, InitVal, inits[0].Kind)
	assert.Equal(t, InitVal, inits[1].Kind)
	assert.Equal(t, InitZero, inits[2].Kind)
	assert.Equal(t, int64(8), inits[2].ZeroLen)
}

func TestExternGlobalNotEmitted(t *testing.T) {
	prog := genSource(t, "extern int g;\nint main(){return g;}\n")
	assert.Empty(t, prog.Globals)
}

func TestLocalInitializerListZeroFill(t *testing.T) {
	prog := genSource(t, "int main(){int a[4] = {1}; return a[0];}\n")
	fn := fnByName(t, prog, "main")
	stores := 0
	for _, i := range instrs(fn) {
		if i.Kind == IR_STORE {
			stores++
		}
	}
	// one element store plus zero stores for the 12 remaining bytes (8+4)
	assert.Equal(t, 3, stores)
}

func TestArrayDecaysToAddress(t *testing.T) {
	prog := genSource(t, "int main(){int a[3]; int *p; p = a; return 0;}\n")
	fn := fnByName(t, prog, "main")
	// "p = a" must not load from a; the rhs is a bare lea
	k := kinds(fn)
	assert.Equal(t, 0, k[IR_LOAD])
	assert.GreaterOrEqual(t, k[IR_LEA], 2)
}

func TestPointerScalingOfNonLiteralIndex(t *testing.T) {
	prog := genSource(t, "int main(){int a[3]; int i; i = 1; return *(a + i);}\n")
	fn := fnByName(t, prog, "main")
	var mul *Instr
	for _, i := range instrs(fn) {
		if i.Kind == IR_MUL {
			mul = i
		}
	}
	require.NotNil(t, mul, "non-literal index must be scaled at IR time")
}

func TestBoolIncClampsTo1(t *testing.T) {
	prog := genSource(t, "int main(){_Bool b; b = 0; b++; return b;}\n")
	fn := fnByName(t, prog, "main")
	found := false
	for _, i := range instrs(fn) {
		if i.Kind == IR_MOV && i.IsImm && i.Imm == 1 && i.Dst != nil && i.Dst.Size == SizeByte {
			found = true
		}
	}
	assert.True(t, found, "_Bool increment must clamp via mov imm")
}

func TestLivenessComputes(t *testing.T) {
	// the ternary destination is written in both arms and read after the
	// join, so it must be live across block boundaries
	prog := genSource(t, "int main(){int x; x = 1; return x ? 10 : 20;}\n")
	fn := fnByName(t, prog, "main")
	ComputeLiveness(fn)
	for _, b := range fn.Blocks {
		require.NotNil(t, b.RegIn)
		require.NotNil(t, b.RegOut)
	}
	crossBlock := false
	for _, b := range fn.Blocks {
		b.RegIn.ForEachSet(func(int) { crossBlock = true })
	}
	assert.True(t, crossBlock, "ternary must produce cross-block liveness")
}

func TestAsmFunctionShape(t *testing.T) {
	prog := genSource(t, "__asm__(\".global start\\nstart:\\n\");\nint main(){return 0;}\n")
	require.Len(t, prog.Funcs, 2)
	asmFn := prog.Funcs[0]
	assert.True(t, asmFn.IsAsm)
	require.Len(t, asmFn.Blocks, 1)
	require.Len(t, asmFn.Blocks[0].IRs, 1)
	assert.Equal(t, IR_BUILTIN_ASM, asmFn.Blocks[0].IRs[0].Kind)
}
