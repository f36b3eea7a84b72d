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

// Package occupancy tracks which trains, if any, hold each block, per
// spec.md §4.2. It is deliberately ignorant of track topology and
// signalling: it answers "is this block free" and reports transition
// edges so callers (the train control loop, the signalling propagation
// queue) can react.
package occupancy

import "github.com/ts2/dispatch-kernel/track"

// Index is the bidirectional block<->train occupancy map. A block may be
// held by more than one train at once (a train overrunning a signal by a
// few metres before it can brake to a stop is never hard-prevented), so
// each block holds an ordered list of occupants, oldest arrival first.
// The zero value is a ready-to-use, all-blocks-free Index.
type Index struct {
	byBlock map[track.BlockId][]track.TrainId
	byTrain map[track.TrainId]map[track.BlockId]bool
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byBlock: make(map[track.BlockId][]track.TrainId),
		byTrain: make(map[track.TrainId]map[track.BlockId]bool),
	}
}

// IsBlockFree reports whether no train currently occupies block.
func (idx *Index) IsBlockFree(block track.BlockId) bool {
	return len(idx.byBlock[block]) == 0
}

// OccupyingTrain returns the first (oldest-arrived) train occupying
// block, if any.
func (idx *Index) OccupyingTrain(block track.BlockId) (track.TrainId, bool) {
	occupants := idx.byBlock[block]
	if len(occupants) == 0 {
		return 0, false
	}
	return occupants[0], true
}

// OccupyingTrains returns every train currently holding block, oldest
// arrival first, in no case aliasing the Index's internal slice.
func (idx *Index) OccupyingTrains(block track.BlockId) []track.TrainId {
	occupants := idx.byBlock[block]
	out := make([]track.TrainId, len(occupants))
	copy(out, occupants)
	return out
}

// Blocks returns the set of blocks currently held by train, in no
// particular order.
func (idx *Index) Blocks(train track.TrainId) []track.BlockId {
	held := idx.byTrain[train]
	blocks := make([]track.BlockId, 0, len(held))
	for b := range held {
		blocks = append(blocks, b)
	}
	return blocks
}

// SetOccupied appends train to block's occupant list. It reports
// wasFirstOccupier: true if the block was free immediately beforehand
// (a genuine occupancy transition the signalling layer must react to),
// false if the block was already held by one or more trains (train is
// still added as an additional occupant, preserving arrival order — it
// is a no-op only when train already holds block).
func (idx *Index) SetOccupied(block track.BlockId, train track.TrainId) (wasFirstOccupier bool) {
	if idx.byBlock == nil {
		idx.byBlock = make(map[track.BlockId][]track.TrainId)
	}
	if idx.byTrain == nil {
		idx.byTrain = make(map[track.TrainId]map[track.BlockId]bool)
	}
	occupants := idx.byBlock[block]
	for _, t := range occupants {
		if t == train {
			return false
		}
	}
	wasFirstOccupier = len(occupants) == 0
	idx.byBlock[block] = append(occupants, train)

	held, ok := idx.byTrain[train]
	if !ok {
		held = make(map[track.BlockId]bool)
		idx.byTrain[train] = held
	}
	held[block] = true
	return wasFirstOccupier
}

// SetFreed removes train from block's occupant list, if present. It
// reports nowEmpty: true if train's departure leaves the block with no
// remaining occupants (the transition the signalling layer reacts to),
// false if train wasn't holding block or other trains still hold it.
func (idx *Index) SetFreed(block track.BlockId, train track.TrainId) (nowEmpty bool) {
	occupants := idx.byBlock[block]
	i := -1
	for j, t := range occupants {
		if t == train {
			i = j
			break
		}
	}
	if i == -1 {
		return false
	}
	occupants = append(occupants[:i], occupants[i+1:]...)
	if len(occupants) == 0 {
		delete(idx.byBlock, block)
	} else {
		idx.byBlock[block] = occupants
	}

	if held, ok := idx.byTrain[train]; ok {
		delete(held, block)
		if len(held) == 0 {
			delete(idx.byTrain, train)
		}
	}
	return len(occupants) == 0
}

// OccupiedCount reports how many blocks are currently held by at least
// one train, used by server-side analytics to compute occupancy
// utilization.
func (idx *Index) OccupiedCount() int {
	return len(idx.byBlock)
}

// DespawnTrain releases every block train holds, returning the blocks
// that transitioned to free (i.e. train was the last occupant) so the
// caller can drive signalling updates for each.
func (idx *Index) DespawnTrain(train track.TrainId) []track.BlockId {
	held := idx.byTrain[train]
	freed := make([]track.BlockId, 0, len(held))
	for b := range held {
		if idx.SetFreed(b, train) {
			freed = append(freed, b)
		}
	}
	return freed
}
