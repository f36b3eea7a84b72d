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

// Package rollingstock models the individual vehicles making up a train
// and their aggregate physical properties, per spec.md §4.4.
package rollingstock

import "math"

// Kind distinguishes the two vehicle roles: only a Locomotive produces
// tractive effort.
type Kind int8

const (
	Locomotive Kind = iota
	RailCar
)

func (k Kind) String() string {
	if k == Locomotive {
		return "Locomotive"
	}
	return "RailCar"
}

// RailVehicle is one unit of a train's consist. CargoMassKG is meaningful
// only for RailCar; PowerW and MaxTractiveEffortN only for Locomotive —
// left zero on the other kind.
type RailVehicle struct {
	Kind               Kind
	LengthM            float64
	MassKG             float64
	CargoMassKG        float64
	PowerW             float64
	MaxTractiveEffortN float64
	MaxBrakingForceN   float64
}

// NewRailCar builds an unpowered vehicle.
func NewRailCar(lengthM, massKG, cargoMassKG, maxBrakingForceN float64) RailVehicle {
	return RailVehicle{
		Kind:             RailCar,
		LengthM:          lengthM,
		MassKG:           massKG,
		CargoMassKG:      cargoMassKG,
		MaxBrakingForceN: maxBrakingForceN,
	}
}

// NewLocomotive builds a powered vehicle.
func NewLocomotive(lengthM, massKG, powerW, maxTractiveEffortN, maxBrakingForceN float64) RailVehicle {
	return RailVehicle{
		Kind:               Locomotive,
		LengthM:            lengthM,
		MassKG:             massKG,
		PowerW:             powerW,
		MaxTractiveEffortN: maxTractiveEffortN,
		MaxBrakingForceN:   maxBrakingForceN,
	}
}

// TotalMassKG includes cargo for a RailCar; a Locomotive carries none.
func (v RailVehicle) TotalMassKG() float64 { return v.MassKG + v.CargoMassKG }

// TractiveEffortN returns the force this vehicle contributes at speedMPS
// under throttle (0..1). A RailCar always contributes zero. A Locomotive
// is power-limited above a near-standstill threshold (tractive effort
// falls off as 1/speed to hold power constant) and torque-limited below
// it, where power/speed would blow up.
func (v RailVehicle) TractiveEffortN(speedMPS, throttle float64) float64 {
	if v.Kind != Locomotive {
		return 0
	}
	if speedMPS < 0.01 {
		return v.MaxTractiveEffortN * throttle
	}
	return math.Min(v.PowerW*throttle/speedMPS, v.MaxTractiveEffortN*throttle)
}

// Stats is the aggregate physical profile of a consist, used by the
// train control loop without re-walking the vehicle list every tick.
type Stats struct {
	LengthM          float64
	MassKG           float64
	MaxBrakingForceN float64
}

// Aggregate folds a consist into its Stats.
func Aggregate(vehicles []RailVehicle) Stats {
	var s Stats
	for _, v := range vehicles {
		s.LengthM += v.LengthM
		s.MassKG += v.TotalMassKG()
		s.MaxBrakingForceN += v.MaxBrakingForceN
	}
	return s
}

// TractiveEffortN sums every vehicle's contribution at speedMPS under
// throttle.
func TractiveEffortN(vehicles []RailVehicle, speedMPS, throttle float64) float64 {
	var total float64
	for _, v := range vehicles {
		total += v.TractiveEffortN(speedMPS, throttle)
	}
	return total
}
