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
	"minicc/ast"
)

// -----------------------------------------------------------------------------
// Conditional inclusion
//
// The lexer records each #if..#endif run as a group of head tokens, so the
// walk here never rescans for the matching directive. Suppression voids
// every token of an untaken branch except line breaks (line counts must
// survive for the -E writer).

// cleanWhileNext suppresses tokens from head up to (excluding) next.
func cleanWhileNext(head, next *ast.Token) {
	for head != next {
		if head.Kind == ast.TK_EOF {
			ast.ErrorExit("#if directive is not closed")
		}
		if head.Kind != ast.TK_LINEBREAK {
			head.Void()
		}
		head = head.Next
	}
}

// nextConditional walks the remaining heads of a group. taken reports
// whether an earlier branch was already kept, in which case every further
// branch body is suppressed.
func (pp *Preprocessor) nextConditional(head *ast.Token, taken bool, rest []*ast.Token) {
	switch head.Text() {
	case "#else":
		head.Void()
		next := rest[0]
		if taken {
			cleanWhileNext(head, next)
		}
		pp.nextConditional(next, !taken, rest[1:])
	case "#elif", "#elifdef", "#elifndef":
		ast.ErrorTok(head, "%s is not implemented", head.Text())
	case "#endif":
		head.Void()
	default:
		ast.ErrorTok(head, "unbalanced conditional directive")
	}
}

// conditionalInclusion processes one #ifdef/#ifndef group whose opening
// head is group.Heads[0].
func (pp *Preprocessor) conditionalInclusion(group *ast.CondGroup) {
	head := group.Heads[0]
	ifdef := head.IsDirective("#ifdef")
	if !ifdef && !head.IsDirective("#ifndef") {
		// #if <constant-expression> is recognized but not implemented
		ast.ErrorTok(head, "#if constant expressions are not implemented")
	}
	head.Void()

	name := head.Next
	for name.Kind == ast.TK_IGNORABLE {
		name = name.Next
	}
	if name.Kind != ast.TK_IDENT {
		ast.ErrorTok(name, "expected an identifier after the conditional directive")
	}
	isTrue := pp.IsDefined(name.Text()) == ifdef
	name.Void()

	next := group.Heads[1]
	if !isTrue {
		cleanWhileNext(name.Next, next)
	}
	pp.nextConditional(next, isTrue, group.Heads[2:])
}
