// Copyright (C) 2008-2018 by Nicolas Piganeau and the TS2 TEAM
// (See AUTHORS file)
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the
// Free Software Foundation, Inc.,
// 59 Temple Place - Suite 330, Boston, MA  02111-1307, USA.

package track

import "sort"

// Identified is implemented by anything storable in a SparseVec: block and
// signal ids are dense within runs but sparse across runs (a level numbers
// blocks 1-52, 65, 70, 100-101), so a plain slice indexed by id would waste
// memory between the runs.
type Identified interface {
	Identity() uint32
}

type chunk struct {
	startID    uint32
	startIndex int
}

// SparseVec stores items keyed by a uint32 id using a contiguous sorted
// slice plus an auxiliary chunk index, giving O(log K) lookup where K is
// the number of contiguous id runs (typically small) rather than O(log N)
// over all items.
type SparseVec[T Identified] struct {
	chunks []chunk
	items  []T
}

// NewSparseVec builds a SparseVec from items, sorting them by id.
func NewSparseVec[T Identified](items []T) SparseVec[T] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identity() < sorted[j].Identity() })

	sv := SparseVec[T]{items: sorted}
	if len(sorted) == 0 {
		return sv
	}
	sv.chunks = append(sv.chunks, chunk{startID: sorted[0].Identity(), startIndex: 0})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Identity()-sorted[i-1].Identity() != 1 {
			sv.chunks = append(sv.chunks, chunk{startID: sorted[i].Identity(), startIndex: i})
		}
	}
	return sv
}

func (sv *SparseVec[T]) index(id uint32) (int, bool) {
	if len(sv.chunks) == 0 {
		return 0, false
	}
	n := sort.Search(len(sv.chunks), func(i int) bool { return sv.chunks[i].startID >= id })
	if n < len(sv.chunks) && sv.chunks[n].startID == id {
		return sv.chunks[n].startIndex, true
	}
	if n == 0 {
		return 0, false
	}
	c := sv.chunks[n-1]
	return c.startIndex + int(id-c.startID), true
}

// Get returns the item with the given id, if present.
func (sv *SparseVec[T]) Get(id uint32) (T, bool) {
	var zero T
	idx, ok := sv.index(id)
	if !ok || idx >= len(sv.items) {
		return zero, false
	}
	candidate := sv.items[idx]
	if candidate.Identity() != id {
		return zero, false
	}
	return candidate, true
}

// GetPtr returns a pointer to the stored item so callers can mutate it in
// place, if present.
func (sv *SparseVec[T]) GetPtr(id uint32) (*T, bool) {
	idx, ok := sv.index(id)
	if !ok || idx >= len(sv.items) {
		return nil, false
	}
	if sv.items[idx].Identity() != id {
		return nil, false
	}
	return &sv.items[idx], true
}

// Len returns the number of stored items.
func (sv *SparseVec[T]) Len() int {
	return len(sv.items)
}

// All iterates over every stored item in id order.
func (sv *SparseVec[T]) All(fn func(item *T) bool) {
	for i := range sv.items {
		if !fn(&sv.items[i]) {
			return
		}
	}
}
