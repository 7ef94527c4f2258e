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
	"minicc/utils"
)

// -----------------------------------------------------------------------------
// CFG construction and liveness
//
// Wires the successor links of the emitted block list: jumps resolve onto
// their label blocks (Lhs = taken), a conditional jump additionally falls
// through to the next block (Rhs = not-taken), return and epilogue blocks
// have no successor, and a block without a terminator falls through.
// Liveness over virtual register ids feeds the downstream
// allocator.

// AddCFG wires block successors/parents for fn.
func AddCFG(fn *Func) {
	labels := make(map[string]*Block, len(fn.Labels))
	for _, lb := range fn.Labels {
		utils.Assert(lb.IsLabelBlock(), "label block invariant")
		labels[lb.IRs[0].Name] = lb
	}

	wire := func(from, to *Block, taken bool) {
		if to == nil {
			return
		}
		if taken {
			from.Lhs = to
		} else {
			from.Rhs = to
		}
		to.Parents = append(to.Parents, from)
	}

	for i, block := range fn.Blocks {
		var next *Block
		if i+1 < len(fn.Blocks) {
			next = fn.Blocks[i+1]
		}
		term := block.Terminator()
		if term == nil {
			wire(block, next, true)
			continue
		}
		switch term.Kind {
		case IR_JMP:
			wire(block, labels[term.Name], true)
		case IR_JNE, IR_JE:
			wire(block, labels[term.Name], true)
			wire(block, next, false)
		case IR_RET, IR_FUNC_EPILOGUE:
			// no successors
		}
	}
}

// ComputeLiveness fills the per-block use/def/in/out register sets with a
// backward fixed-point iteration.
func ComputeLiveness(fn *Func) {
	n := len(fn.Regs)
	for _, b := range fn.Blocks {
		b.RegUse = utils.NewBitMap(n)
		b.RegDef = utils.NewBitMap(n)
		b.RegIn = utils.NewBitMap(n)
		b.RegOut = utils.NewBitMap(n)
		for _, instr := range b.IRs {
			for _, r := range instr.UseRegs() {
				if !b.RegDef.IsSet(r.Num) {
					b.RegUse.Set(r.Num)
				}
			}
			if d := instr.DefReg(); d != nil {
				b.RegDef.Set(d.Num)
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := utils.NewBitMap(n)
			if b.Lhs != nil {
				out.Unite(b.Lhs.RegIn)
			}
			if b.Rhs != nil {
				out.Unite(b.Rhs.RegIn)
			}
			if b.RegOut.SetFrom(out) {
				changed = true
			}
			in := b.RegOut.Copy()
			in.Remove(b.RegDef)
			in.Unite(b.RegUse)
			if b.RegIn.SetFrom(in) {
				changed = true
			}
		}
	}
}

// CheckBlockInvariants asserts the block shape the passes rely on: at most
// one terminator, placed last; label blocks hold exactly the label.
func CheckBlockInvariants(fn *Func) {
	seen := utils.NewSet[string]()
	for _, b := range fn.Blocks {
		for idx, instr := range b.IRs {
			if instr.IsTerminator() {
				utils.Assert(idx == len(b.IRs)-1,
					"terminator must close its block (func %s, block %d)", fn.Name, b.Id)
			}
			if instr.Kind == IR_LABEL {
				utils.Assert(b.IsLabelBlock(),
					"label must be the sole instruction of its block (func %s)", fn.Name)
				utils.Assert(seen.Add(instr.Name),
					"duplicate label %s in func %s", instr.Name, fn.Name)
			}
		}
	}
}
