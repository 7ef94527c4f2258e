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
	"bytes"
	"fmt"
	"strings"
	"unsafe"

	"github.com/fatih/color"
)

// -----------------------------------------------------------------------------
// Diagnostics
//
// All user-visible errors are fatal: the offending source line is printed
// with a caret under the first offending byte, then the compilation aborts.
// Diagnostics travel as a panic payload so that the driver can recover once,
// print, and exit 1. Compiler bugs use utils.Assert and friends instead.

// CompileError is the payload carried by a diagnostic panic.
type CompileError struct {
	Pos int // byte offset into the input, -1 if unknown
	Msg string
}

func (e *CompileError) Error() string {
	return e.Msg
}

var userInput []byte

// SetErrorInput registers the input buffer diagnostics are rendered against.
// Must be called once per compilation, before lexing.
func SetErrorInput(input []byte) {
	userInput = input
}

// renderExcerpt formats the source line containing pos with a caret line
// below it.
func renderExcerpt(pos int, msg string) string {
	if pos < 0 || pos > len(userInput) {
		return msg + "\n"
	}
	lineStart := bytes.LastIndexByte(userInput[:pos], '\n') + 1
	lineEnd := bytes.IndexByte(userInput[pos:], '\n')
	if lineEnd < 0 {
		lineEnd = len(userInput)
	} else {
		lineEnd += pos
	}
	var sb strings.Builder
	sb.Write(userInput[lineStart:lineEnd])
	sb.WriteByte('\n')
	sb.WriteString(strings.Repeat(" ", pos-lineStart))
	sb.WriteString(color.RedString("^ "))
	sb.WriteString(msg)
	sb.WriteByte('\n')
	return sb.String()
}

// ErrorAt aborts the compilation with a caret diagnostic at the byte range
// loc, which must be a subslice of the registered input buffer.
func ErrorAt(loc []byte, format string, args ...interface{}) {
	pos := -1
	if loc != nil && userInput != nil {
		off := byteOffset(userInput, loc)
		if off >= 0 {
			pos = off
		}
	}
	msg := fmt.Sprintf(format, args...)
	panic(&CompileError{Pos: pos, Msg: renderExcerpt(pos, msg)})
}

// ErrorTok aborts the compilation with a caret diagnostic at tok.
func ErrorTok(tok *Token, format string, args ...interface{}) {
	if tok == nil {
		ErrorAt(nil, format, args...)
	}
	ErrorAt(tok.Str, format, args...)
}

// ErrorExit aborts without source context (driver-level failures).
func ErrorExit(format string, args ...interface{}) {
	panic(&CompileError{Pos: -1, Msg: fmt.Sprintf(format, args...) + "\n"})
}

// byteOffset returns the offset of sub within buf, or -1 when sub does not
// alias buf.
func byteOffset(buf, sub []byte) int {
	if len(buf) == 0 || len(sub) == 0 {
		return -1
	}
	// Pointer arithmetic via slice identity: sub must point into buf.
	off := int(int64(sliceAddr(sub)) - int64(sliceAddr(buf)))
	if off < 0 || off > len(buf) {
		return -1
	}
	return off
}

func sliceAddr(s []byte) uintptr {
	return uintptr(unsafe.Pointer(&s[0]))
}
