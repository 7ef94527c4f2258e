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

package utils

import (
	"fmt"
	"math/bits"
	"strings"
)

// BitMap is a fixed-size bit set over 64-bit words. The IR liveness pass
// keeps one per basic block (use/def/in/out over virtual register ids).
type BitMap struct {
	words []uint64
	size  int
}

func NewBitMap(size int) *BitMap {
	return &BitMap{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

func (bm *BitMap) Size() int {
	return bm.size
}

func (bm *BitMap) Set(i int) {
	bm.words[i>>6] |= 1 << uint(i&63)
}

func (bm *BitMap) Reset(i int) {
	bm.words[i>>6] &^= 1 << uint(i&63)
}

func (bm *BitMap) IsSet(i int) bool {
	return bm.words[i>>6]&(1<<uint(i&63)) != 0
}

// Unite sets bm to bm|o and reports whether bm changed.
func (bm *BitMap) Unite(o *BitMap) bool {
	Assert(bm.size == o.size, "sanity check")
	changed := false
	for i, w := range o.words {
		nv := bm.words[i] | w
		if nv != bm.words[i] {
			bm.words[i] = nv
			changed = true
		}
	}
	return changed
}

// Intersect sets bm to bm&o and reports whether bm changed.
func (bm *BitMap) Intersect(o *BitMap) bool {
	Assert(bm.size == o.size, "sanity check")
	changed := false
	for i, w := range o.words {
		nv := bm.words[i] & w
		if nv != bm.words[i] {
			bm.words[i] = nv
			changed = true
		}
	}
	return changed
}

// SetFrom copies o into bm and reports whether bm changed.
func (bm *BitMap) SetFrom(o *BitMap) bool {
	Assert(bm.size == o.size, "sanity check")
	changed := false
	for i, w := range o.words {
		if w != bm.words[i] {
			bm.words[i] = w
			changed = true
		}
	}
	return changed
}

// Remove clears every bit of bm that is set in o.
func (bm *BitMap) Remove(o *BitMap) bool {
	Assert(bm.size == o.size, "sanity check")
	changed := false
	for i, w := range o.words {
		nv := bm.words[i] &^ w
		if nv != bm.words[i] {
			bm.words[i] = nv
			changed = true
		}
	}
	return changed
}

func (bm *BitMap) Copy() *BitMap {
	cp := NewBitMap(bm.size)
	copy(cp.words, bm.words)
	return cp
}

// Count returns the number of set bits.
func (bm *BitMap) Count() int {
	n := 0
	for _, w := range bm.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ForEachSet calls f for every set bit in ascending order.
func (bm *BitMap) ForEachSet(f func(int)) {
	for wi, w := range bm.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			f(wi<<6 + b)
			w &= w - 1
		}
	}
}

func (bm *BitMap) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	bm.ForEachSet(func(i int) {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&sb, "%d", i)
	})
	sb.WriteByte('}')
	return sb.String()
}
