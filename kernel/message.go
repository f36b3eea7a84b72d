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

package kernel

import (
	"time"

	"github.com/ts2/dispatch-kernel/rollingstock"
	"github.com/ts2/dispatch-kernel/signaling"
	"github.com/ts2/dispatch-kernel/track"
)

// CommandKind tags the inbound commands the kernel accepts. Start, Pause
// and SetTimeScale are the core commands of spec.md §4.5/§5; SpawnTrain
// and DespawnTrain are the supplemented spawner-driven and manual train
// lifecycle operations of SPEC_FULL.md §4.
type CommandKind int8

const (
	CmdStart CommandKind = iota
	CmdPause
	CmdSetTimeScale
	CmdSpawnTrain
	CmdDespawnTrain
)

// SpawnRequest carries everything needed to place a new train.
type SpawnRequest struct {
	TrainID        track.TrainId
	Head           track.TrackPoint
	Direction      track.Direction
	Vehicles       []rollingstock.RailVehicle
	TargetSpeedKMH float64
}

// Command is one inbound instruction to the kernel's run loop. Only the
// field relevant to Kind is populated.
type Command struct {
	Kind           CommandKind
	TimeScaleIndex int
	Spawn          SpawnRequest
	DespawnID      track.TrainId
}

// UpdateKind tags the outbound push frames the kernel emits.
type UpdateKind string

const (
	UpdateLamp            UpdateKind = "LampUpdate"
	UpdateTrainStates     UpdateKind = "TrainStates"
	UpdateClock           UpdateKind = "Clock"
	UpdateSimDuration     UpdateKind = "SimDuration"
	UpdateRegisterTrain   UpdateKind = "RegisterTrain"
	UpdateUnregisterTrain UpdateKind = "UnregisterTrain"
)

// LampState is the rendered state of one indicator lamp, derived from
// either a signal's aspect or a block's occupancy depending on the
// lamp's id band (>=100 signal lamps, <100 block lamps, per
// track.LampId's doc comment).
type LampState int8

const (
	LampOff LampState = iota
	LampOn
	LampPending
)

// TrainState is the position/speed snapshot of one train pushed to
// clients once per TrainInfoUpdate period.
type TrainState struct {
	ID           track.TrainId
	FrontBlock   track.BlockId
	FrontOffsetM float64
	Direction    track.Direction
	SpeedMPS     float64
}

// Update is one outbound push frame. Only the field(s) relevant to Kind
// are populated.
type Update struct {
	Kind         UpdateKind
	Lamps        map[track.LampId]LampState
	Trains       []TrainState
	ClockElapsed time.Duration
	SimDuration  time.Duration
	TrainID      track.TrainId
}

// lampStateForSignal maps a signal's aspect to a lamp state: Forbidding
// and Restricting both light the lamp (a Restricting signal is still a
// restrictive, "attention" aspect on real boards), Unrestricting clears
// it. This mirrors the two-state (lit/unlit) lamp model spec.md assumes
// for signal lamps; Pending is reserved for block lamps mid-transition
// and is never produced here.
func lampStateForSignal(a signaling.Aspect) LampState {
	if a == signaling.Unrestricting {
		return LampOff
	}
	return LampOn
}

// lampStateForOccupancy maps block occupancy directly to a lamp state.
func lampStateForOccupancy(free bool) LampState {
	if free {
		return LampOff
	}
	return LampOn
}
