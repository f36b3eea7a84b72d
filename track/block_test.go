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

package track_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ts2/dispatch-kernel/track"
)

// newFixture builds the B1(1000)-B2(500)-B3(1500) straight run used across
// the scenario tests.
func newFixture() *track.Graph {
	g := track.NewGraph([]track.Block{
		{ID: 1, LengthM: 1000},
		{ID: 2, LengthM: 500},
		{ID: 3, LengthM: 1500},
	})
	g.Connect(1, 2)
	g.Connect(2, 3)
	return g
}

func collect(g *track.Graph, p track.TrackPoint, lengthM float64, d track.Direction) []track.TrackPoint {
	var pts []track.TrackPoint
	g.Walk(p, lengthM, d)(func(tp track.TrackPoint) bool {
		pts = append(pts, tp)
		return true
	})
	return pts
}

func TestWalk(t *testing.T) {
	Convey("Given the B1/B2/B3 straight run", t, func() {
		g := newFixture()

		Convey("Walking forward across blocks", func() {
			pts := collect(g, track.TrackPoint{BlockID: 1, OffsetM: 250}, 2500, track.Even)
			So(pts, ShouldResemble, []track.TrackPoint{
				{BlockID: 1, OffsetM: 1000},
				{BlockID: 2, OffsetM: 500},
				{BlockID: 3, OffsetM: 1250},
			})
		})

		Convey("Walking backward across blocks", func() {
			pts := collect(g, track.TrackPoint{BlockID: 3, OffsetM: 1050}, 2500, track.Odd)
			So(pts, ShouldResemble, []track.TrackPoint{
				{BlockID: 3, OffsetM: 0},
				{BlockID: 2, OffsetM: 0},
				{BlockID: 1, OffsetM: 50},
			})
		})

		Convey("Walk determinism: repeated invocation yields the same sequence", func() {
			p := track.TrackPoint{BlockID: 1, OffsetM: 250}
			first := collect(g, p, 2500, track.Even)
			second := collect(g, p, 2500, track.Even)
			So(second, ShouldResemble, first)
		})

		Convey("A walk of length 0 yields no points", func() {
			pts := collect(g, track.TrackPoint{BlockID: 1, OffsetM: 250}, 0, track.Even)
			So(pts, ShouldBeEmpty)
		})

		Convey("A walk from an endpoint in the terminating direction yields a single point, then ends", func() {
			pts := collect(g, track.TrackPoint{BlockID: 3, OffsetM: 1500}, 100, track.Even)
			So(pts, ShouldResemble, []track.TrackPoint{{BlockID: 3, OffsetM: 1500}})
		})

		Convey("Round-trip law holds when the forward walk consumes exactly one block's remaining length", func() {
			p := track.TrackPoint{BlockID: 1, OffsetM: 250}
			remaining := g.AvailableLength(p, track.Even)
			stepped := g.StepBy(p, remaining, track.Even)
			back := g.StepBy(stepped, remaining, track.Odd)
			So(back, ShouldResemble, p)
		})

		Convey("AvailableLength is complementary across directions", func() {
			b, ok := g.Block(2)
			So(ok, ShouldBeTrue)
			p := track.TrackPoint{BlockID: 2, OffsetM: 137}
			sum := g.AvailableLength(p, track.Even) + g.AvailableLength(p, track.Odd)
			So(sum, ShouldEqual, b.LengthM)
		})

		Convey("StepBy returns the same endpoint Walk's last yield reaches", func() {
			p := track.TrackPoint{BlockID: 1, OffsetM: 250}
			pts := collect(g, p, 2500, track.Even)
			So(g.StepBy(p, 2500, track.Even), ShouldResemble, pts[len(pts)-1])
		})
	})
}

func TestGraphSparseIds(t *testing.T) {
	Convey("Given a graph with non-contiguous block ids", t, func() {
		g := track.NewGraph([]track.Block{
			{ID: 1, LengthM: 100},
			{ID: 2, LengthM: 100},
			{ID: 65, LengthM: 100},
			{ID: 100, LengthM: 100},
			{ID: 101, LengthM: 100},
		})

		Convey("Every block is reachable by id and Len reports the true count", func() {
			So(g.Len(), ShouldEqual, 5)
			for _, id := range []track.BlockId{1, 2, 65, 100, 101} {
				b, ok := g.Block(id)
				So(ok, ShouldBeTrue)
				So(b.ID, ShouldEqual, id)
			}
		})

		Convey("A missing id is reported absent, not a zero-value hit", func() {
			_, ok := g.Block(66)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestDirection(t *testing.T) {
	Convey("Direction.Reverse and ApplySign are involutive/sign-correct", t, func() {
		So(track.Even.Reverse(), ShouldEqual, track.Odd)
		So(track.Odd.Reverse(), ShouldEqual, track.Even)
		So(track.Even.ApplySign(5), ShouldEqual, 5)
		So(track.Odd.ApplySign(5), ShouldEqual, -5)
	})
}
