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
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"minicc/ast"
	"minicc/compile/ir"
)

// Debug traces go to stdout and are purely informational; flip the
// constants while developing.
const (
	DebugPrintTokens   = false
	DebugPrintAst      = false
	DebugPrintTypedAst = false
	DebugDumpIR        = false
	DebugDumpAsm       = false
	DebugSpewStructs   = false
)

func prDebug(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

func dumpTokens(head *ast.Token) {
	fmt.Println("== Tokens ==")
	for tok := head; tok != nil && tok.Kind != ast.TK_EOF; tok = tok.Next {
		fmt.Printf("[%v, %q]\n", tok.Kind, tok.Text())
	}
}

func dumpIR(prog *ir.Program) {
	fmt.Println("== IR ==")
	for _, fn := range prog.Funcs {
		fmt.Print(fn)
	}
	if DebugSpewStructs {
		spew.Dump(prog.Globals)
	}
}
