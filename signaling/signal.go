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

// Package signaling derives per-signal aspects from guarded-block
// occupancy and propagates restrictive aspects upstream, per spec.md
// §4.3. It is the sole owner of TrackSignal state; the track package
// supplies topology and the occupancy package supplies block state.
package signaling

import "github.com/ts2/dispatch-kernel/track"

// SignalId identifies a TrackSignal.
type SignalId uint32

// TrackSignal is a wayside signal governing one direction of travel over
// the forward chain of blocks starting at its position.
type TrackSignal struct {
	ID        SignalId
	Position  track.TrackPoint
	Direction track.Direction
	LampID    track.LampId
	Name      string
	Ctrl      SpeedControl
}

// Identity implements track.Identified so TrackSignal can share the sparse
// storage helper used for blocks.
func (s TrackSignal) Identity() uint32 { return uint32(s.ID) }

type blockDirKey struct {
	block track.BlockId
	dir   track.Direction
}

// Map is the registry of signals keyed by id, plus the (block, direction)
// index used for positional lookup, aspect derivation and propagation.
type Map struct {
	signals track.SparseVec[TrackSignal]
	atPos   map[blockDirKey]SignalId
	owner   map[blockDirKey]SignalId
	pending []SignalId
}

// NewMap builds a Map from a flat list of signals, indexing each by the
// (block, direction) pair of its own position.
func NewMap(signals []TrackSignal) *Map {
	m := &Map{
		signals: track.NewSparseVec(signals),
		atPos:   make(map[blockDirKey]SignalId, len(signals)),
	}
	m.signals.All(func(s *TrackSignal) bool {
		m.atPos[blockDirKey{s.Position.BlockID, s.Direction}] = s.ID
		return true
	})
	return m
}

// Get returns the signal with the given id.
func (m *Map) Get(id SignalId) (TrackSignal, bool) {
	return m.signals.Get(uint32(id))
}

// Len returns the number of signals in the map.
func (m *Map) Len() int { return m.signals.Len() }

// All iterates over every signal in id order.
func (m *Map) All(fn func(s *TrackSignal) bool) {
	m.signals.All(fn)
}

// FindAtPosition returns the signal located at blockID facing direction,
// if one exists.
func (m *Map) FindAtPosition(blockID track.BlockId, direction track.Direction) (TrackSignal, bool) {
	id, ok := m.atPos[blockDirKey{blockID, direction}]
	if !ok {
		return TrackSignal{}, false
	}
	return m.signals.Get(uint32(id))
}

// LookupForward returns the next signal facing direction whose position
// lies strictly ahead of from along direction, together with the distance
// from `from` to it. A signal at the exact same offset facing the same
// direction counts as behind (it governs the point already). Returns
// false if the walk exhausts the graph before finding one.
func (m *Map) LookupForward(g *track.Graph, from track.TrackPoint, direction track.Direction) (TrackSignal, float64, bool) {
	return m.lookupAhead(g, from, direction, direction)
}

// lookupAhead walks from in walkDir looking for the nearest signal facing
// signalDir that lies strictly ahead of from along walkDir. Separating
// the walk direction from the signal's own facing direction lets the
// propagation queue look upstream for a same-direction predecessor (walk
// backward, but still match signals facing the original direction).
func (m *Map) lookupAhead(g *track.Graph, from track.TrackPoint, walkDir, signalDir track.Direction) (TrackSignal, float64, bool) {
	blockID := from.BlockID
	distance := 0.0
	first := true

	for {
		if id, ok := m.atPos[blockDirKey{blockID, signalDir}]; ok {
			sig, _ := m.signals.Get(uint32(id))
			ahead := true
			if first {
				if walkDir == track.Even {
					ahead = sig.Position.OffsetM > from.OffsetM
				} else {
					ahead = sig.Position.OffsetM < from.OffsetM
				}
			}
			if ahead {
				var partial float64
				if first {
					if walkDir == track.Even {
						partial = sig.Position.OffsetM - from.OffsetM
					} else {
						partial = from.OffsetM - sig.Position.OffsetM
					}
				} else if b, ok := g.Block(blockID); ok {
					if walkDir == track.Even {
						partial = sig.Position.OffsetM
					} else {
						partial = b.LengthM - sig.Position.OffsetM
					}
				}
				return sig, distance + partial, true
			}
		}

		b, ok := g.Block(blockID)
		if !ok {
			return TrackSignal{}, 0, false
		}
		if first {
			distance += g.AvailableLength(from, walkDir)
		} else {
			distance += b.LengthM
		}

		nextID, ok := g.Next(blockID, walkDir)
		if !ok {
			return TrackSignal{}, 0, false
		}
		blockID = nextID
		first = false
	}
}

// guardedBlocks returns the ordered chain of blocks sig guards: its own
// block plus every subsequent block forward along sig.Direction, up to
// (not including) the block holding the next same-direction signal. If no
// such signal exists, the chain runs to the end of the graph.
func (m *Map) guardedBlocks(g *track.Graph, sig TrackSignal) []track.BlockId {
	next, _, hasNext := m.LookupForward(g, sig.Position, sig.Direction)

	var blocks []track.BlockId
	id := sig.Position.BlockID
	for {
		if hasNext && id == next.Position.BlockID {
			break
		}
		blocks = append(blocks, id)
		nextID, ok := g.Next(id, sig.Direction)
		if !ok {
			break
		}
		id = nextID
	}
	return blocks
}
