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

// BlockId identifies a Block. Ids are dense within regions of a level but
// sparse between them (1-52, 65, 70, 100-101 is a typical layout).
type BlockId uint32

// LampId identifies an indicator lamp on the board. Ids >= 100 are signal
// lamps ("green base"), ids < 100 are block lamps ("red base"); the
// renderer, not this package, picks the colour.
type LampId uint32

// TrainId identifies a train for the lifetime of one spawn.
type TrainId uint64

// Block is a length of track bounded by at most one next and one prev
// neighbour, identified by id.
type Block struct {
	ID       BlockId
	LengthM  float64
	LampID   LampId
	Next     BlockId
	HasNext  bool
	Prev     BlockId
	HasPrev  bool
}

// Identity implements Identified for SparseVec.
func (b Block) Identity() uint32 { return uint32(b.ID) }

// TrackPoint is a dimensionless location on the track: a block id plus an
// offset into it. 0 <= OffsetM <= block.LengthM.
type TrackPoint struct {
	BlockID BlockId
	OffsetM float64
}

// Graph is the sparse, single-owner registry of blocks and their next/prev
// connections. Cross-references are always ids resolved through the
// Graph — no owning handles, so there is no cycle-handling cost even
// though the underlying connection graph can contain cycles.
type Graph struct {
	blocks SparseVec[Block]
}

// NewGraph builds a Graph from a flat list of blocks. Connections are
// applied afterwards with Connect.
func NewGraph(blocks []Block) *Graph {
	return &Graph{blocks: NewSparseVec(blocks)}
}

// Block returns the block with the given id.
func (g *Graph) Block(id BlockId) (Block, bool) {
	return g.blocks.Get(uint32(id))
}

// Len returns the number of blocks in the graph.
func (g *Graph) Len() int { return g.blocks.Len() }

// Connect establishes start.next = end and end.prev = start. The level
// loader is expected to call this for every `connection` table entry;
// Connect itself does not validate that the reverse edge is absent, since
// the loader is the sole writer at construction time.
func (g *Graph) Connect(start, end BlockId) bool {
	sp, ok := g.blocks.GetPtr(uint32(start))
	if !ok {
		return false
	}
	ep, ok := g.blocks.GetPtr(uint32(end))
	if !ok {
		return false
	}
	sp.Next, sp.HasNext = end, true
	ep.Prev, ep.HasPrev = start, true
	return true
}

// Next returns the neighbouring block id reached by walking in direction d
// from block id.
func (g *Graph) Next(id BlockId, d Direction) (BlockId, bool) {
	b, ok := g.blocks.Get(uint32(id))
	if !ok {
		return 0, false
	}
	if d == Even {
		return b.Next, b.HasNext
	}
	return b.Prev, b.HasPrev
}

// AvailableLength returns the remaining length from point p to the far end
// of its block in direction d.
func (g *Graph) AvailableLength(p TrackPoint, d Direction) float64 {
	b, ok := g.blocks.Get(uint32(p.BlockID))
	if !ok {
		return 0
	}
	if d == Even {
		return b.LengthM - p.OffsetM
	}
	return p.OffsetM
}

// StepBy returns the single TrackPoint reached after walking lengthM
// meters from p in direction d, equivalent to the last point yielded by
// Walk. If the walk terminates early (graph exhausted), the final reached
// endpoint is returned.
func (g *Graph) StepBy(p TrackPoint, lengthM float64, d Direction) TrackPoint {
	result := p
	g.Walk(p, lengthM, d)(func(tp TrackPoint) bool {
		result = tp
		return true
	})
	return result
}

// Walk returns an iterator (in the iter.Seq style) over the TrackPoints
// reached at each block boundary while covering lengthM meters from p in
// direction d. When lengthM fits entirely in the current block it yields a
// single point at p + d.ApplySign(lengthM). Otherwise it yields the far end
// of the current block (LengthM if Even, 0 if Odd), subtracts the consumed
// available length, advances via Next, and repeats. It never panics: if the
// graph terminates before lengthM is consumed, the final reached endpoint is
// yielded and iteration stops.
func (g *Graph) Walk(p TrackPoint, lengthM float64, d Direction) func(yield func(TrackPoint) bool) {
	return func(yield func(TrackPoint) bool) {
		if lengthM <= 0 {
			return
		}
		currentBlock := p.BlockID
		offset := p.OffsetM
		remaining := lengthM
		available := g.AvailableLength(p, d)

		for {
			if remaining < available {
				newOffset := offset + d.ApplySign(remaining)
				yield(TrackPoint{BlockID: currentBlock, OffsetM: newOffset})
				return
			}

			remaining -= available
			farEnd := 0.0
			if d == Even {
				if b, ok := g.blocks.Get(uint32(currentBlock)); ok {
					farEnd = b.LengthM
				}
			}
			if !yield(TrackPoint{BlockID: currentBlock, OffsetM: farEnd}) {
				return
			}
			if remaining <= 0 {
				return
			}

			nextID, ok := g.Next(currentBlock, d)
			if !ok {
				return
			}
			nextBlock, _ := g.blocks.Get(uint32(nextID))
			currentBlock = nextID
			available = nextBlock.LengthM
			if d == Even {
				offset = 0
			} else {
				offset = nextBlock.LengthM
			}
		}
	}
}
