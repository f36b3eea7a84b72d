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

package signaling

import (
	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/track"
)

// Bind precomputes each signal's guarded chain against g and derives the
// owning signal for every (block, direction) pair it covers, then runs an
// initial aspect derivation pass against occ. Call once after both g and
// the Map's signals are final (the level loader does this; topology never
// changes afterwards since switches are not modelled).
func (m *Map) Bind(g *track.Graph, occ *occupancy.Index) {
	m.owner = make(map[blockDirKey]SignalId)
	m.signals.All(func(s *TrackSignal) bool {
		for _, b := range m.guardedBlocks(g, *s) {
			m.owner[blockDirKey{b, s.Direction}] = s.ID
		}
		return true
	})

	m.signals.All(func(s *TrackSignal) bool {
		m.pending = append(m.pending, s.ID)
		return true
	})
	m.drain(g, occ)
}

// NotifyBlockChanged is the block-change trigger of spec.md §4.3: call
// whenever a block's occupancy flips (in either direction) for each
// direction that has a governing signal. It seeds the propagation queue
// and drains it, returning the ids of every signal whose aspect actually
// changed (lamp state and speed control reflect the change already; the
// caller uses the returned ids only to know what to re-broadcast).
func (m *Map) NotifyBlockChanged(g *track.Graph, occ *occupancy.Index, block track.BlockId) []SignalId {
	m.pending = m.pending[:0]
	for _, d := range [2]track.Direction{track.Even, track.Odd} {
		if id, ok := m.owner[blockDirKey{block, d}]; ok {
			m.pending = append(m.pending, id)
		}
	}
	return m.drain(g, occ)
}

// drain processes the pending queue (FIFO), recomputing each signal's
// aspect and, on an actual change, enqueuing the upstream same-direction
// signal for a propagation trigger. Occupancy is fixed for the whole
// drain and a signal is re-enqueued only when the signal ahead of it
// actually changed aspect, so the aspects settle (toward Forbidding
// behind an occupied chain, toward Unrestricting behind a cleared one)
// and the queue empties.
func (m *Map) drain(g *track.Graph, occ *occupancy.Index) []SignalId {
	var changed []SignalId
	for len(m.pending) > 0 {
		id := m.pending[0]
		m.pending = m.pending[1:]

		sp, ok := m.signals.GetPtr(uint32(id))
		if !ok {
			continue
		}
		newAspect := m.recompute(g, occ, *sp)
		if newAspect == sp.Ctrl.Aspect {
			continue
		}
		sp.Ctrl = DefaultForAspect(newAspect)
		changed = append(changed, id)

		if upstream, _, ok := m.lookupAhead(g, sp.Position, sp.Direction.Reverse(), sp.Direction); ok {
			m.pending = append(m.pending, upstream.ID)
		}
	}
	return changed
}

// recompute derives sig's aspect from its guarded chain's occupancy and
// the aspect of the next forward signal. Both the block-change trigger's
// "became free" branch and the propagation trigger reduce to this same
// formula: an occupied guarded block always forces Forbidding (whether
// the trigger was "this block occupied" or "some other block in the
// chain still occupied"), and a fully clear chain adopts whatever the
// next signal's aspect chains to, or Forbidding if there is no next
// signal at all.
func (m *Map) recompute(g *track.Graph, occ *occupancy.Index, sig TrackSignal) Aspect {
	for _, b := range m.guardedBlocks(g, sig) {
		if !occ.IsBlockFree(b) {
			return Forbidding
		}
	}
	next, _, ok := m.LookupForward(g, sig.Position, sig.Direction)
	if !ok {
		return Forbidding
	}
	return next.Ctrl.Aspect.Chain()
}
