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

// Package train drives the Newtonian dynamics of a single train: the
// control loop that turns a target speed and the signal ahead into
// throttle/brake commands, and the kinematics that turn those commands
// plus elapsed time into motion, per spec.md §4.4.
package train

import (
	"math"
	"math/rand"

	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/rollingstock"
	"github.com/ts2/dispatch-kernel/signaling"
	"github.com/ts2/dispatch-kernel/track"
)

// Safety factors applied to the braking-distance lookahead. The primary
// approach factor is intentionally conservative (brakes engage earlier,
// against only 80% of the vehicle's rated braking force) so a train
// settles toward a restrictive signal well ahead of it; the final creep
// release factor uses the full rated force for the last, precise
// approach so the train actually reaches the stopping point rather than
// asymptotically creeping short of it.
const (
	PrimaryApproachSafetyFactor   = 0.8
	FinalCreepReleaseSafetyFactor = 1.0
)

// CreepSpeedKMH is the fixed low speed a train defaults to when no
// signal governs its path, and the speed it holds at during the final,
// precise approach to a Forbidding signal before the last stopping
// point.
const (
	CreepSpeedKMH = 20.0
	CreepSpeedMPS = CreepSpeedKMH / 3.6
)

// Controls is the throttle/brake command computed each tick. At most one
// of ThrottlePct or BrakePct is nonzero: a train never applies power and
// brake at once, and both are zero while it coasts.
type Controls struct {
	ThrottlePct float64
	BrakePct    float64
}

// BrakingDistanceM returns the distance needed to decelerate from
// currentSpeedMPS to targetSpeedMPS under the given safety factor applied
// to the consist's rated braking force. Returns 0 if already at or below
// target.
func BrakingDistanceM(stats rollingstock.Stats, currentSpeedMPS, targetSpeedMPS, safetyFactor float64) float64 {
	if currentSpeedMPS <= targetSpeedMPS || stats.MassKG <= 0 {
		return 0
	}
	brakingForce := stats.MaxBrakingForceN * safetyFactor
	if brakingForce <= 0 {
		return math.Inf(1)
	}
	decel := brakingForce / stats.MassKG
	return (currentSpeedMPS*currentSpeedMPS - targetSpeedMPS*targetSpeedMPS) / (2 * decel)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Train is one spawned consist occupying a run of blocks.
type Train struct {
	ID                   track.TrainId
	Vehicles             []rollingstock.RailVehicle
	Stats                rollingstock.Stats
	Direction            track.Direction
	Front                track.TrackPoint
	SpeedMPS             float64
	TargetSpeedMPS       float64
	TargetSpeedMarginMPS float64
	Controls             Controls

	heldBlocks    []track.BlockId
	tickTargetMPS float64
}

// NewTarget assigns a new target speed along with a fresh randomized
// margin, mirroring the original's "don't brake/throttle right on the
// limit" jitter so a fleet of trains doesn't move in lockstep.
func (t *Train) NewTarget(targetSpeedKMH float64, rng *rand.Rand) {
	t.TargetSpeedMPS = targetSpeedKMH / 3.6
	t.TargetSpeedMarginMPS = rng.Float64()*0.5 + 0.35
}

// Tail returns the trailing edge of the train.
func (t *Train) Tail(g *track.Graph) track.TrackPoint {
	return g.StepBy(t.Front, t.Stats.LengthM, t.Direction.Reverse())
}

// blocksSpanned returns, in direction order, every block id touched by
// the length-lengthM run starting at from (inclusive of from's own
// block).
func blocksSpanned(g *track.Graph, from track.TrackPoint, lengthM float64, d track.Direction) []track.BlockId {
	blocks := []track.BlockId{from.BlockID}
	current := from.BlockID
	g.Walk(from, lengthM, d)(func(tp track.TrackPoint) bool {
		if tp.BlockID != current {
			blocks = append(blocks, tp.BlockID)
			current = tp.BlockID
		}
		return true
	})
	return blocks
}

// Spawn places a new train with its head at head, travelling in
// direction d, and marks every block under its length as occupied —
// walking backward from the head by the consist's length, exactly as
// the original engine's spawn_at does. It returns the blocks that
// actually transitioned from free to occupied, so the caller can drive
// signal re-derivation and lamp updates for each the same way a
// steady-state Update's occupied/freed return does.
func Spawn(g *track.Graph, occ *occupancy.Index, id track.TrainId, head track.TrackPoint, d track.Direction, vehicles []rollingstock.RailVehicle) (*Train, []track.BlockId) {
	stats := rollingstock.Aggregate(vehicles)
	held := blocksSpanned(g, head, stats.LengthM, d.Reverse())
	t := &Train{
		ID:         id,
		Vehicles:   vehicles,
		Stats:      stats,
		Direction:  d,
		Front:      head,
		heldBlocks: held,
	}
	var occupied []track.BlockId
	for _, b := range held {
		if occ.SetOccupied(b, id) {
			occupied = append(occupied, b)
		}
	}
	return t, occupied
}

// Despawn releases every block the train holds.
func Despawn(occ *occupancy.Index, id track.TrainId) []track.BlockId {
	return occ.DespawnTrain(id)
}

// lookaheadTargetMPS is the "Target speed via lookahead" step of
// spec.md §4.4: it looks up the next forward signal and selects this
// tick's target speed from its passing/approaching limits, with a fixed
// creep-speed default and a final two-phase-stop override.
func (t *Train) lookaheadTargetMPS(g *track.Graph, sm *signaling.Map) float64 {
	sig, distanceToSignal, hasSignal := sm.LookupForward(g, t.Front, t.Direction)
	if !hasSignal {
		return CreepSpeedMPS
	}

	passingLimit := sig.Ctrl.PassingLimit.MPS()
	approachingLimit := sig.Ctrl.ApproachingLimit.MPS()
	if math.IsInf(passingLimit, 1) {
		return approachingLimit
	}

	bd := BrakingDistanceM(t.Stats, t.SpeedMPS, passingLimit, PrimaryApproachSafetyFactor)
	target := passingLimit
	if distanceToSignal > bd && t.TargetSpeedMPS >= approachingLimit {
		target = approachingLimit
	}

	if target < 0.1 && t.SpeedMPS <= CreepSpeedMPS {
		creepBrakingDist := BrakingDistanceM(t.Stats, CreepSpeedMPS, passingLimit, FinalCreepReleaseSafetyFactor)
		if distanceToSignal > creepBrakingDist+50 {
			target = CreepSpeedMPS
		}
	}
	return target
}

// CalculateControls derives this tick's throttle/brake command: select
// the lookahead target speed, then apply it to the fixed control-loop
// formula of spec.md §4.4.
func (t *Train) CalculateControls(g *track.Graph, sm *signaling.Map) Controls {
	target := t.lookaheadTargetMPS(g, sm)
	t.tickTargetMPS = target
	diff := (target - t.TargetSpeedMarginMPS) - t.SpeedMPS

	switch {
	case t.SpeedMPS < 0.001 && target < 0.01:
		return Controls{BrakePct: 1}
	case diff < 0.01:
		return Controls{BrakePct: clamp01(math.Abs(diff) / 2)}
	case diff > 0.01:
		return Controls{ThrottlePct: 1}
	default:
		return Controls{}
	}
}

// Update integrates one tick of motion: it applies t.Controls (set by a
// prior CalculateControls call) to derive a net force, advances speed
// with semi-implicit Euler (the new speed is used to move the train, not
// the speed at the start of the tick), advances the head position, and
// reconciles block occupancy for whatever blocks the head entered and
// the tail vacated. It returns the blocks whose occupancy state actually
// changed this tick, so the caller can drive signal re-derivation for
// each.
func (t *Train) Update(dt float64, g *track.Graph, occ *occupancy.Index) (occupied, freed []track.BlockId) {
	tractive := rollingstock.TractiveEffortN(t.Vehicles, t.SpeedMPS, t.Controls.ThrottlePct)
	braking := t.Stats.MaxBrakingForceN * t.Controls.BrakePct
	netForce := tractive - braking

	accel := 0.0
	if t.Stats.MassKG > 0 {
		accel = netForce / t.Stats.MassKG
	}
	newSpeed := t.SpeedMPS + accel*dt
	if newSpeed < 0 {
		newSpeed = 0
	}
	if newSpeed < 0.1 && t.tickTargetMPS < 0.25 {
		newSpeed = 0
	}
	t.SpeedMPS = newSpeed
	t.Front = g.StepBy(t.Front, newSpeed*dt, t.Direction)

	newHeld := blocksSpanned(g, t.Front, t.Stats.LengthM, t.Direction.Reverse())
	inNew := make(map[track.BlockId]bool, len(newHeld))
	for _, b := range newHeld {
		inNew[b] = true
	}
	inOld := make(map[track.BlockId]bool, len(t.heldBlocks))
	for _, b := range t.heldBlocks {
		inOld[b] = true
	}

	for _, b := range newHeld {
		if !inOld[b] {
			if occ.SetOccupied(b, t.ID) {
				occupied = append(occupied, b)
			}
		}
	}
	for _, b := range t.heldBlocks {
		if !inNew[b] {
			if occ.SetFreed(b, t.ID) {
				freed = append(freed, b)
			}
		}
	}
	t.heldBlocks = newHeld

	return occupied, freed
}
