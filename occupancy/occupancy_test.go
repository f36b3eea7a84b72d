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

package occupancy_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/track"
)

func TestOccupancyIndex(t *testing.T) {
	Convey("Given a fresh Index", t, func() {
		idx := occupancy.NewIndex()

		Convey("Every block starts free", func() {
			So(idx.IsBlockFree(1), ShouldBeTrue)
			_, ok := idx.OccupyingTrain(1)
			So(ok, ShouldBeFalse)
			So(idx.OccupiedCount(), ShouldEqual, 0)
		})

		Convey("SetOccupied reports the first-occupier transition", func() {
			first := idx.SetOccupied(1, 100)
			So(first, ShouldBeTrue)
			So(idx.IsBlockFree(1), ShouldBeFalse)
			So(idx.OccupiedCount(), ShouldEqual, 1)

			Convey("A second train occupying the same block is appended, not dropped", func() {
				again := idx.SetOccupied(1, 200)
				So(again, ShouldBeFalse)
				So(idx.OccupyingTrains(1), ShouldResemble, []track.TrainId{100, 200})
				occupier, ok := idx.OccupyingTrain(1)
				So(ok, ShouldBeTrue)
				So(occupier, ShouldEqual, track.TrainId(100))
				So(idx.IsBlockFree(1), ShouldBeFalse)
			})

			Convey("Re-occupying with the same train is a true no-op", func() {
				again := idx.SetOccupied(1, 100)
				So(again, ShouldBeFalse)
				So(idx.OccupyingTrains(1), ShouldResemble, []track.TrainId{100})
			})

			Convey("The block<->train invariant holds: block in trains[t] iff t owns the block", func() {
				blocks := idx.Blocks(100)
				So(blocks, ShouldResemble, []track.BlockId{1})
				owner, ok := idx.OccupyingTrain(1)
				So(ok, ShouldBeTrue)
				So(owner, ShouldEqual, track.TrainId(100))
			})
		})

		Convey("A block held by two trains stays occupied until both depart", func() {
			idx.SetOccupied(1, 100)
			idx.SetOccupied(1, 200)

			firstLeaves := idx.SetFreed(1, 100)
			So(firstLeaves, ShouldBeFalse)
			So(idx.IsBlockFree(1), ShouldBeFalse)
			So(idx.OccupyingTrains(1), ShouldResemble, []track.TrainId{200})

			secondLeaves := idx.SetFreed(1, 200)
			So(secondLeaves, ShouldBeTrue)
			So(idx.IsBlockFree(1), ShouldBeTrue)
		})

		Convey("SetOccupied then SetFreed returns the index to its prior state", func() {
			before := idx.OccupiedCount()
			idx.SetOccupied(1, 100)
			nowEmpty := idx.SetFreed(1, 100)
			So(nowEmpty, ShouldBeTrue)
			So(idx.IsBlockFree(1), ShouldBeTrue)
			So(idx.OccupiedCount(), ShouldEqual, before)
			So(idx.Blocks(100), ShouldBeEmpty)
		})

		Convey("SetFreed on a block never occupied reports false (now-empty semantics)", func() {
			So(idx.SetFreed(1, 100), ShouldBeFalse)
		})

		Convey("SetFreed by the wrong train reports false and leaves the block held", func() {
			idx.SetOccupied(1, 100)
			So(idx.SetFreed(1, 200), ShouldBeFalse)
			So(idx.IsBlockFree(1), ShouldBeFalse)
		})

		Convey("DespawnTrain frees every block the train held and reports them all", func() {
			idx.SetOccupied(1, 100)
			idx.SetOccupied(2, 100)
			idx.SetOccupied(3, 200)

			freed := idx.DespawnTrain(100)
			So(len(freed), ShouldEqual, 2)
			So(idx.IsBlockFree(1), ShouldBeTrue)
			So(idx.IsBlockFree(2), ShouldBeTrue)
			So(idx.IsBlockFree(3), ShouldBeFalse)
			So(idx.OccupiedCount(), ShouldEqual, 1)
		})
	})
}
