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

package server

import (
	"encoding/json"
	"fmt"

	"github.com/ts2/dispatch-kernel/kernel"
	"github.com/ts2/dispatch-kernel/rollingstock"
	"github.com/ts2/dispatch-kernel/track"
)

// kernelObject handles requests addressed to the running kernel: the
// start/pause/setTimeScale/spawn/despawn/dump actions of SPEC_FULL.md
// §5.
type kernelObject struct{}

type vehicleSpec struct {
	Kind               string  `json:"kind"`
	LengthM            float64 `json:"lengthM"`
	MassKG             float64 `json:"massKG"`
	CargoMassKG        float64 `json:"cargoMassKG"`
	PowerW             float64 `json:"powerW"`
	MaxTractiveEffortN float64 `json:"maxTractiveEffortN"`
	MaxBrakingForceN   float64 `json:"maxBrakingForceN"`
}

func (v vehicleSpec) toRailVehicle() rollingstock.RailVehicle {
	if v.Kind == "RailCar" {
		return rollingstock.NewRailCar(v.LengthM, v.MassKG, v.CargoMassKG, v.MaxBrakingForceN)
	}
	return rollingstock.NewLocomotive(v.LengthM, v.MassKG, v.PowerW, v.MaxTractiveEffortN, v.MaxBrakingForceN)
}

func parseDirection(s string) track.Direction {
	if s == "Odd" || s == "odd" {
		return track.Odd
	}
	return track.Even
}

// dispatch processes requests made on the kernel object.
func (k *kernelObject) dispatch(h *Hub, req Request, conn *connection) {
	ch := conn.pushChan
	logger.Debug("request for kernel received", "submodule", "hub", "object", req.Object, "action", req.Action)
	switch req.Action {
	case "start":
		engine.Commands() <- kernel.Command{Kind: kernel.CmdStart}
		audits.append(AuditEntry{Event: "KERNEL_STARTED", Category: "system"})
		ch <- NewOkResponse(req.ID, "kernel started")
	case "pause":
		engine.Commands() <- kernel.Command{Kind: kernel.CmdPause}
		audits.append(AuditEntry{Event: "KERNEL_PAUSED", Category: "system"})
		ch <- NewOkResponse(req.ID, "kernel paused")
	case "setTimeScale":
		var p struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s (%s)", err, req.Params))
			return
		}
		engine.Commands() <- kernel.Command{Kind: kernel.CmdSetTimeScale, TimeScaleIndex: p.Index}
		audits.append(AuditEntry{
			Event:    "TIME_SCALE_CHANGED",
			Category: "system",
			Details:  map[string]interface{}{"index": p.Index},
		})
		ch <- NewOkResponse(req.ID, "time scale changed")
	case "spawn":
		var p struct {
			TrainID        uint32        `json:"trainId"`
			BlockID        uint32        `json:"blockId"`
			OffsetM        float64       `json:"offsetM"`
			Direction      string        `json:"direction"`
			TargetSpeedKMH float64       `json:"targetSpeedKmh"`
			Vehicles       []vehicleSpec `json:"vehicles"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s (%s)", err, req.Params))
			return
		}
		vehicles := make([]rollingstock.RailVehicle, 0, len(p.Vehicles))
		for _, v := range p.Vehicles {
			vehicles = append(vehicles, v.toRailVehicle())
		}
		engine.Commands() <- kernel.Command{
			Kind: kernel.CmdSpawnTrain,
			Spawn: kernel.SpawnRequest{
				TrainID:        track.TrainId(p.TrainID),
				Head:           track.TrackPoint{BlockID: track.BlockId(p.BlockID), OffsetM: p.OffsetM},
				Direction:      parseDirection(p.Direction),
				Vehicles:       vehicles,
				TargetSpeedKMH: p.TargetSpeedKMH,
			},
		}
		audits.append(AuditEntry{
			Event:    "TRAIN_SPAWNED",
			Category: "train",
			Object:   map[string]interface{}{"id": p.TrainID},
		})
		ch <- NewOkResponse(req.ID, "train spawned")
	case "despawn":
		var p struct {
			TrainID uint32 `json:"trainId"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("unparsable request: %s (%s)", err, req.Params))
			return
		}
		engine.Commands() <- kernel.Command{Kind: kernel.CmdDespawnTrain, DespawnID: track.TrainId(p.TrainID)}
		audits.append(AuditEntry{
			Event:    "TRAIN_DESPAWNED",
			Category: "train",
			Object:   map[string]interface{}{"id": p.TrainID},
		})
		ch <- NewOkResponse(req.ID, "train despawned")
	case "dump":
		snap := engine.Snapshot()
		data, err := json.Marshal(snap)
		if err != nil {
			ch <- NewErrorResponse(req.ID, fmt.Errorf("internal error: %s", err))
			return
		}
		ch <- NewResponse(req.ID, data)
	default:
		ch <- NewErrorResponse(req.ID, fmt.Errorf("unknown action %s/%s", req.Object, req.Action))
		logger.Debug("request for unknown action received", "submodule", "hub", "object", req.Object, "action", req.Action)
	}
}

var _ hubObject = new(kernelObject)

func init() {
	hub.objects["kernel"] = new(kernelObject)
}
