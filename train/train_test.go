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

package train_test

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/rollingstock"
	"github.com/ts2/dispatch-kernel/signaling"
	"github.com/ts2/dispatch-kernel/track"
	"github.com/ts2/dispatch-kernel/train"
)

// straightRun builds the B1(1000)-B2(500)-B3(1500) fixture used throughout
// the package tests.
func straightRun() *track.Graph {
	g := track.NewGraph([]track.Block{
		{ID: 1, LengthM: 1000},
		{ID: 2, LengthM: 500},
		{ID: 3, LengthM: 1500},
	})
	g.Connect(1, 2)
	g.Connect(2, 3)
	return g
}

func TestBrakingDistanceM(t *testing.T) {
	Convey("Given a consist with MassKG=10000 and MaxBrakingForceN=4000", t, func() {
		stats := rollingstock.Stats{MassKG: 10000, MaxBrakingForceN: 4000}

		Convey("Braking from 20 to 10 m/s at the primary approach factor (0.8) needs 468.75 m", func() {
			So(train.BrakingDistanceM(stats, 20, 10, 0.8), ShouldEqual, 468.75)
		})

		Convey("Braking from 20 to 0 m/s at the final creep factor (1.0) needs 500 m", func() {
			So(train.BrakingDistanceM(stats, 20, 0, 1.0), ShouldEqual, 500)
		})

		Convey("Already at or below the target needs no distance", func() {
			So(train.BrakingDistanceM(stats, 10, 10, 1.0), ShouldEqual, 0)
			So(train.BrakingDistanceM(stats, 5, 10, 1.0), ShouldEqual, 0)
		})

		Convey("A massless consist needs no distance", func() {
			So(train.BrakingDistanceM(rollingstock.Stats{MassKG: 0}, 20, 0, 1.0), ShouldEqual, 0)
		})

		Convey("A consist with no braking force at all needs infinite distance", func() {
			dist := train.BrakingDistanceM(rollingstock.Stats{MassKG: 10000}, 20, 0, 1.0)
			So(math.IsInf(dist, 1), ShouldBeTrue)
		})
	})
}

func TestSpawnOccupancyAndMotion(t *testing.T) {
	Convey("Given the B1/B2/B3 fixture and a 50 m rail car spawned at (B2, 250) Even", t, func() {
		g := straightRun()
		occ := occupancy.NewIndex()
		vehicles := []rollingstock.RailVehicle{rollingstock.NewRailCar(50, 40000, 0, 80000)}

		tr, occupied := train.Spawn(g, occ, 1, track.TrackPoint{BlockID: 2, OffsetM: 250}, track.Even, vehicles)

		Convey("Spawn occupies exactly the blocks the car's length spans, and reports the transition", func() {
			So(occupied, ShouldResemble, []track.BlockId{2})
			So(occ.IsBlockFree(2), ShouldBeFalse)
			owner, ok := occ.OccupyingTrain(2)
			So(ok, ShouldBeTrue)
			So(owner, ShouldEqual, track.TrainId(1))
		})

		Convey("The train's length lies entirely within its occupied blocks", func() {
			tail := tr.Tail(g)
			So(tail.BlockID, ShouldEqual, track.BlockId(2))
			So(tail.OffsetM, ShouldEqual, 200)
			So(tr.Front.BlockID, ShouldEqual, track.BlockId(2))
		})

		Convey("Coasting 260 m at 26 m/s crosses the train's head into B3, occupying it and freeing nothing", func() {
			tr.SpeedMPS = 26
			occupiedNow, freed := tr.Update(10, g, occ)

			So(tr.Front, ShouldResemble, track.TrackPoint{BlockID: 3, OffsetM: 10})
			So(occupiedNow, ShouldResemble, []track.BlockId{3})
			So(freed, ShouldBeEmpty)

			Convey("B2 is still held (the 50 m car still overlaps it) and B3 is now held too", func() {
				So(occ.IsBlockFree(2), ShouldBeFalse)
				So(occ.IsBlockFree(3), ShouldBeFalse)
			})

			Convey("The train's tail still lies within a block it holds", func() {
				tail := tr.Tail(g)
				So(tail, ShouldResemble, track.TrackPoint{BlockID: 2, OffsetM: 460})
			})
		})
	})
}

func TestCalculateControlsNoSignal(t *testing.T) {
	Convey("Given a train with no signal ahead, the lookahead target defaults to the fixed 20 km/h creep speed", t, func() {
		g := track.NewGraph([]track.Block{{ID: 1, LengthM: 1000}})
		sm := signaling.NewMap(nil)
		tr := &train.Train{
			Direction: track.Even,
			Front:     track.TrackPoint{BlockID: 1, OffsetM: 0},
			Stats:     rollingstock.Stats{MassKG: 10000, MaxBrakingForceN: 4000},
			// TargetSpeedMPS (the train's own desired cruise speed) plays no
			// part in the no-signal default — only the creep constant does.
			TargetSpeedMPS: 30,
		}

		Convey("Well below creep speed minus margin, it throttles at full power", func() {
			tr.SpeedMPS = 1
			tr.TargetSpeedMarginMPS = 0.35
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl, ShouldResemble, train.Controls{ThrottlePct: 1})
		})

		Convey("Exactly at creep speed minus margin, it applies neither throttle nor brake", func() {
			tr.TargetSpeedMarginMPS = 0.5
			tr.SpeedMPS = train.CreepSpeedMPS - tr.TargetSpeedMarginMPS
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl, ShouldResemble, train.Controls{})
		})

		Convey("Above creep speed, it brakes back down toward it", func() {
			tr.TargetSpeedMarginMPS = 0.5
			tr.SpeedMPS = 6
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl.ThrottlePct, ShouldEqual, 0)
			So(ctrl.BrakePct, ShouldAlmostEqual, 0.47222222222, 1e-9)
		})
	})
}

// signalAhead builds a two-block fixture with a single signal facing Even
// at the very start of block 2, so that a train at (block 1, offsetM) sees
// the signal at distance 1000-offsetM — letting the three braking bands
// (free-run, primary approach, final creep) be selected just by choosing
// offsetM, without needing occupancy or Bind at all since
// CalculateControls only ever consults LookupForward.
func signalAhead() (*track.Graph, *signaling.Map) {
	g := track.NewGraph([]track.Block{
		{ID: 1, LengthM: 1000},
		{ID: 2, LengthM: 50},
	})
	g.Connect(1, 2)

	sm := signaling.NewMap([]signaling.TrackSignal{
		{
			ID:        1,
			Position:  track.TrackPoint{BlockID: 2, OffsetM: 0},
			Direction: track.Even,
			LampID:    101,
			Name:      "S1",
			Ctrl: signaling.SpeedControl{
				Aspect:           signaling.Forbidding,
				PassingLimit:     signaling.Restricted(0),
				ApproachingLimit: signaling.Restricted(28.8), // 8 m/s
			},
		},
	})
	return g, sm
}

// TestCalculateControlsTargetSelection exercises the "target speed via
// lookahead" selection of spec.md §4.4 against a Forbidding signal (B2
// offset 0, facing Even — see signalAhead): far from the signal the
// lookahead targets the ApproachingLimit; inside the primary braking
// distance but still faster than the creep speed it targets the
// PassingLimit directly (no creep hold yet, since the train hasn't
// actually slowed enough); only once speed has dropped to the creep
// speed does the two-phase-stop override kick in, holding the target at
// the fixed 20 km/h creep speed until the final stopping point.
func TestCalculateControlsTargetSelection(t *testing.T) {
	g, sm := signalAhead()

	Convey("Given a train at 20 m/s approaching a Forbidding signal, primary braking distance 625 m", t, func() {
		tr := &train.Train{
			Direction:            track.Even,
			SpeedMPS:             20,
			TargetSpeedMPS:       30,
			TargetSpeedMarginMPS: 6,
			Stats:                rollingstock.Stats{MassKG: 10000, MaxBrakingForceN: 4000},
		}

		Convey("700 m out (beyond the 625 m primary braking distance): targets the ApproachingLimit (8 m/s)", func() {
			tr.Front = track.TrackPoint{BlockID: 1, OffsetM: 300}
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl.ThrottlePct, ShouldEqual, 0)
			So(ctrl.BrakePct, ShouldEqual, 1) // (8-6)-20 clamps the brake fraction to 1
		})

		Convey("500 m out (inside the 625 m primary braking distance, still well above creep speed): targets the PassingLimit (0) directly, no creep hold", func() {
			tr.Front = track.TrackPoint{BlockID: 1, OffsetM: 500}
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl.BrakePct, ShouldEqual, 1)
		})
	})

	Convey("Given a heavier, weakly-braked train already at the creep speed", t, func() {
		tr := &train.Train{
			Direction:            track.Even,
			SpeedMPS:             train.CreepSpeedMPS,
			TargetSpeedMPS:       30,
			TargetSpeedMarginMPS: 0.5,
			Stats:                rollingstock.Stats{MassKG: 100000, MaxBrakingForceN: 2000},
		}

		Convey("900 m out: inside the primary braking distance (~964.5 m) but beyond creep-braking-distance+50 (~821.6 m), so the target holds at the creep speed", func() {
			tr.Front = track.TrackPoint{BlockID: 1, OffsetM: 100}
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl.ThrottlePct, ShouldEqual, 0)
			So(ctrl.BrakePct, ShouldAlmostEqual, 0.25, 1e-9)
		})

		Convey("700 m out: inside creep-braking-distance+50, so the target drops to the passing limit for the final stop", func() {
			tr.Front = track.TrackPoint{BlockID: 1, OffsetM: 300}
			ctrl := tr.CalculateControls(g, sm)
			So(ctrl.ThrottlePct, ShouldEqual, 0)
			So(ctrl.BrakePct, ShouldEqual, 1)
		})
	})

	Convey("Given a train facing a fully Unrestricting signal (both limits unbounded), it always throttles at full power", t, func() {
		gu := track.NewGraph([]track.Block{
			{ID: 1, LengthM: 1000},
			{ID: 2, LengthM: 50},
		})
		gu.Connect(1, 2)
		smu := signaling.NewMap([]signaling.TrackSignal{
			{
				ID:        1,
				Position:  track.TrackPoint{BlockID: 2, OffsetM: 0},
				Direction: track.Even,
				Ctrl:      signaling.DefaultForAspect(signaling.Unrestricting),
			},
		})
		tr := &train.Train{
			Direction:            track.Even,
			Front:                track.TrackPoint{BlockID: 1, OffsetM: 0},
			SpeedMPS:             50,
			TargetSpeedMPS:       30,
			TargetSpeedMarginMPS: 0.5,
			Stats:                rollingstock.Stats{MassKG: 10000, MaxBrakingForceN: 4000},
		}
		ctrl := tr.CalculateControls(gu, smu)
		So(ctrl, ShouldResemble, train.Controls{ThrottlePct: 1})
	})
}
