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
package compile

import (
	"os"

	"github.com/pkg/errors"

	"minicc/ast"
	"minicc/compile/codegen"
	"minicc/compile/ir"
	"minicc/preprocess"
)

// -----------------------------------------------------------------------------
// Compilation driver
//
// Source text -> tokens -> preprocessed chain -> typed AST -> folded AST ->
// IR blocks -> x86-64 listing. Data flows strictly forward; a diagnostic
// panic from any stage is converted into the single fatal error the CLI
// reports.

type Options struct {
	// PreprocessOnly emits the reconstructed source text (-E).
	PreprocessOnly bool
	// ImportPredefined loads the target's predefined macros (-g, only
	// meaningful with -E).
	ImportPredefined bool
}

// Compile runs the pipeline over one translation unit.
func Compile(input []byte, opts Options) (output []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*ast.CompileError)
			if !ok {
				panic(r) // compiler bug, not a user diagnostic
			}
			err = ce
		}
	}()

	// the input must end with a line break
	if len(input) == 0 || input[len(input)-1] != '\n' {
		input = append(input, '\n')
	}
	ast.SetErrorInput(input)

	head := preprocess.Preprocess(input, opts.ImportPredefined)
	if DebugPrintTokens {
		dumpTokens(head)
	}
	if opts.PreprocessOnly {
		return preprocess.Write(head), nil
	}

	prog := ast.Parse(ast.FixTokenHead(head))
	if DebugPrintAst {
		ast.PrintAst(prog, false)
	}

	ast.Analyze(prog)
	if DebugPrintTypedAst {
		ast.PrintAst(prog, true)
	}
	ast.Fold(prog)

	irProg := ir.Generate(prog)
	for _, fn := range irProg.Funcs {
		if fn.IsAsm {
			continue
		}
		ir.CheckBlockInvariants(fn)
		ir.ComputeLiveness(fn)
	}
	if DebugDumpIR {
		dumpIR(irProg)
	}

	text := codegen.CodeGen(irProg)
	if DebugDumpAsm {
		prDebug("== ASM ==\n%s", text)
	}
	return []byte(text), nil
}

// CompileText compiles a source string, for tests and tooling.
func CompileText(source string, opts Options) (string, error) {
	out, err := Compile([]byte(source), opts)
	return string(out), err
}

// CompileFile reads inputPath, compiles it, and writes the result to
// outputPath.
func CompileFile(inputPath, outputPath string, opts Options) error {
	input, err := os.ReadFile(inputPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", inputPath)
	}
	return CompileBytes(input, outputPath, opts)
}

// CompileBytes compiles input and writes the result to outputPath.
func CompileBytes(input []byte, outputPath string, opts Options) error {
	out, err := Compile(input, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", outputPath)
	}
	return nil
}
