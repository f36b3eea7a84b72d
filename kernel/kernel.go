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

// Package kernel is the real-time pacer and per-tick pipeline of the
// dispatch board: it owns the Clock, the track graph, the occupancy
// index, the signal map and the live trains, and turns wall-clock time
// into simulated motion at a selectable time scale, per spec.md §4.5/§5.
package kernel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/quartz"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/signaling"
	"github.com/ts2/dispatch-kernel/track"
	"github.com/ts2/dispatch-kernel/train"
)

// UnitDT is the kernel's internal tick granularity at 1x time scale,
// matching original_source's UNIT_DT.
const UnitDT = 10 * time.Millisecond

// TimeScales is the selectable speed ladder; index 2 (1.0) is normal
// speed. SetTimeScale commands clamp to this slice's bounds.
var TimeScales = []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0}

const defaultTimeScaleIndex = 2

// Kernel runs the simulation's per-tick pipeline and serializes all
// access to simulation state through its own goroutine (via Run) plus a
// mutex for the synchronous reads HTTP handlers need between ticks.
type Kernel struct {
	mu sync.RWMutex

	graph   *track.Graph
	occ     *occupancy.Index
	signals *signaling.Map
	trains  map[track.TrainId]*train.Train
	rng     *rand.Rand

	spawners    []Spawner
	spawnOrigin map[track.TrainId]track.BlockId

	clock          *Clock
	running        bool
	timeScaleIndex int

	commands chan Command
	updates  chan Update

	wallClock quartz.Clock
	logger    log.Logger
}

// Option configures a Kernel at construction time beyond its required
// arguments.
type Option func(*Kernel)

// WithWallClock overrides the real-time pacer Run uses to schedule ticks,
// a quartz.Clock instead of the bare time package so tests can advance it
// synchronously with quartz.NewMock instead of racing real sleeps.
func WithWallClock(c quartz.Clock) Option {
	return func(k *Kernel) { k.wallClock = c }
}

// New builds a Kernel over an already-loaded level (graph + bound signal
// map) and an empty occupancy index.
func New(g *track.Graph, occ *occupancy.Index, sm *signaling.Map, parent log.Logger, opts ...Option) *Kernel {
	k := &Kernel{
		graph:          g,
		occ:            occ,
		signals:        sm,
		trains:         make(map[track.TrainId]*train.Train),
		rng:            rand.New(rand.NewSource(1)),
		clock:          NewClock(),
		timeScaleIndex: defaultTimeScaleIndex,
		commands:       make(chan Command, 64),
		updates:        make(chan Update, 256),
		wallClock:      quartz.NewReal(),
		logger:         parent.New("module", "kernel"),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.clock.Subscribe("ClockUpdate", time.Second, 0, k.emitClock)
	k.clock.Subscribe("TrainInfoUpdate", 100*time.Millisecond, 0, k.emitTrainStates)
	return k
}

// Commands returns the send side of the command inbox.
func (k *Kernel) Commands() chan<- Command { return k.commands }

// Updates returns the receive side of the push-frame outbox.
func (k *Kernel) Updates() <-chan Update { return k.updates }

// Clock exposes the simulated clock so callers outside this package
// (such as the server's analytics rollup) can subscribe their own
// periodic events without the kernel needing to know about them.
func (k *Kernel) Clock() *Clock { return k.clock }

// dtWallFor returns the wall-clock interval the pacer should sleep
// between ticks at scale: UnitDT divided by scale, so each tick still
// covers about UnitDT of simulated time and the wall interval shrinks as
// scale grows.
func (k *Kernel) dtWallFor(scale float64) time.Duration {
	return time.Duration(float64(UnitDT) / scale)
}

// Run drains commands and advances the simulation until ctx is
// cancelled, returning ctx.Err(). Each loop iteration handles at most
// one command or one elapsed tick; because the select has no blocking
// work in either branch, a burst of queued commands drains in a handful
// of iterations before the next tick is due, the idiomatic Go analogue
// of a non-blocking inbox-drain loop.
//
// The pacer varies its own sleep interval with the current time scale
// rather than ticking at a fixed rate: at scale s it wakes every
// dtWallFor(s) of wall time, so the physics keeps integrating in
// UnitDT-sized steps (more of them per wall-second at high scale, fewer
// at low scale) instead of a fixed tick count integrating ever-coarser
// or ever-finer steps. Each wake measures how long the previous step()
// took and shrinks the next sleep by that much, so the wake frequency
// stays close to 1/dtWall even under load; sim_dt is then derived from
// the wall-clock time that actually elapsed, not from dtWall itself, so
// a slow tick still advances the simulation by the time that really
// passed.
func (k *Kernel) Run(ctx context.Context) error {
	lastWake := k.wallClock.Now()
	timer := k.wallClock.NewTimer(k.dtWallFor(TimeScales[k.currentTimeScaleIndex()]))
	defer timer.Stop()

	k.logger.Info("kernel run loop starting")
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("kernel run loop stopping")
			return ctx.Err()
		case cmd := <-k.commands:
			k.applyCommand(cmd)
		case <-timer.C:
			now := k.wallClock.Now()
			actualElapsed := now.Sub(lastWake)
			lastWake = now
			if k.isRunning() {
				scale := TimeScales[k.currentTimeScaleIndex()]
				k.step(actualElapsed.Seconds() * scale)
			}

			dtWall := k.dtWallFor(TimeScales[k.currentTimeScaleIndex()])
			sinceWake := k.wallClock.Now().Sub(lastWake)
			sleepFor := dtWall - sinceWake
			if sleepFor < 0 {
				sleepFor = 0
			}
			timer.Reset(sleepFor)
		}
	}
}

func (k *Kernel) isRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

func (k *Kernel) currentTimeScaleIndex() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.timeScaleIndex
}

func (k *Kernel) applyCommand(cmd Command) {
	switch cmd.Kind {
	case CmdStart:
		k.mu.Lock()
		k.running = true
		k.mu.Unlock()
		k.logger.Info("simulation started")
	case CmdPause:
		k.mu.Lock()
		k.running = false
		k.mu.Unlock()
		k.logger.Info("simulation paused")
	case CmdSetTimeScale:
		idx := cmd.TimeScaleIndex
		if idx < 0 {
			idx = 0
		}
		if idx >= len(TimeScales) {
			idx = len(TimeScales) - 1
		}
		k.mu.Lock()
		k.timeScaleIndex = idx
		k.mu.Unlock()
		k.logger.Debug("time scale changed", "scale", TimeScales[idx])
	case CmdSpawnTrain:
		k.spawnTrain(cmd.Spawn)
	case CmdDespawnTrain:
		k.despawnTrain(cmd.DespawnID)
	}
}

func (k *Kernel) spawnTrain(req SpawnRequest) {
	k.mu.Lock()
	t, occupied := train.Spawn(k.graph, k.occ, req.TrainID, req.Head, req.Direction, req.Vehicles)
	t.NewTarget(req.TargetSpeedKMH, k.rng)
	k.trains[req.TrainID] = t
	var changed []signaling.SignalId
	for _, b := range occupied {
		changed = append(changed, k.signals.NotifyBlockChanged(k.graph, k.occ, b)...)
	}
	k.mu.Unlock()

	k.emitLampChanges(changed)
	k.emitBlockLampChanges(occupied, nil)
	k.pushNonBlocking(Update{Kind: UpdateRegisterTrain, TrainID: req.TrainID})
}

func (k *Kernel) despawnTrain(id track.TrainId) {
	k.mu.Lock()
	delete(k.trains, id)
	freed := train.Despawn(k.occ, id)
	var allChanged []signaling.SignalId
	for _, b := range freed {
		allChanged = append(allChanged, k.signals.NotifyBlockChanged(k.graph, k.occ, b)...)
	}
	k.mu.Unlock()

	k.emitLampChanges(allChanged)
	k.emitBlockLampChanges(nil, freed)
	k.pushNonBlocking(Update{Kind: UpdateUnregisterTrain, TrainID: id})
}

// step runs one tick of the pipeline: control loop, kinematics and
// occupancy reconciliation per train, signal re-derivation for every
// block that actually transitioned, then the clock (which fires the
// periodic pushes).
func (k *Kernel) step(dtSeconds float64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var changedSignals []signaling.SignalId
	var allOccupied, allFreed []track.BlockId
	freedByTrain := make(map[track.TrainId][]track.BlockId)
	for _, t := range k.trains {
		t.Controls = t.CalculateControls(k.graph, k.signals)
	}
	for _, t := range k.trains {
		occupied, freed := t.Update(dtSeconds, k.graph, k.occ)
		freedByTrain[t.ID] = freed
		allOccupied = append(allOccupied, occupied...)
		allFreed = append(allFreed, freed...)
		for _, b := range occupied {
			changedSignals = append(changedSignals, k.signals.NotifyBlockChanged(k.graph, k.occ, b)...)
		}
		for _, b := range freed {
			changedSignals = append(changedSignals, k.signals.NotifyBlockChanged(k.graph, k.occ, b)...)
		}
	}
	k.checkSpawnerDespawns(freedByTrain)
	k.emitLampChangesLocked(changedSignals)
	k.emitBlockLampChangesLocked(allOccupied, allFreed)
	k.clock.Tick(time.Duration(dtSeconds * float64(time.Second)))
}

func (k *Kernel) emitLampChanges(ids []signaling.SignalId) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	k.emitLampChangesLocked(ids)
}

func (k *Kernel) emitLampChangesLocked(ids []signaling.SignalId) {
	if len(ids) == 0 {
		return
	}
	lamps := make(map[track.LampId]LampState, len(ids))
	for _, id := range ids {
		sig, ok := k.signals.Get(id)
		if !ok {
			continue
		}
		lamps[sig.LampID] = lampStateForSignal(sig.Ctrl.Aspect)
	}
	k.pushNonBlocking(Update{Kind: UpdateLamp, Lamps: lamps})
}

// emitBlockLampChanges takes the read lock and pushes a lamp update for
// the block-occupancy lamps of every block in occupied/freed, per the
// block-lamp half of track.LampId's id-band convention (the signal half
// is handled by emitLampChanges).
func (k *Kernel) emitBlockLampChanges(occupied, freed []track.BlockId) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	k.emitBlockLampChangesLocked(occupied, freed)
}

func (k *Kernel) emitBlockLampChangesLocked(occupied, freed []track.BlockId) {
	if len(occupied) == 0 && len(freed) == 0 {
		return
	}
	lamps := make(map[track.LampId]LampState, len(occupied)+len(freed))
	for _, b := range occupied {
		if blk, ok := k.graph.Block(b); ok {
			lamps[blk.LampID] = lampStateForOccupancy(false)
		}
	}
	for _, b := range freed {
		if blk, ok := k.graph.Block(b); ok {
			lamps[blk.LampID] = lampStateForOccupancy(true)
		}
	}
	k.pushNonBlocking(Update{Kind: UpdateLamp, Lamps: lamps})
}

func (k *Kernel) emitClock(elapsed time.Duration) {
	k.pushNonBlocking(Update{Kind: UpdateClock, ClockElapsed: elapsed})
	k.pushNonBlocking(Update{Kind: UpdateSimDuration, SimDuration: elapsed})
}

func (k *Kernel) emitTrainStates(time.Duration) {
	states := make([]TrainState, 0, len(k.trains))
	for _, t := range k.trains {
		states = append(states, TrainState{
			ID:           t.ID,
			FrontBlock:   t.Front.BlockID,
			FrontOffsetM: t.Front.OffsetM,
			Direction:    t.Direction,
			SpeedMPS:     t.SpeedMPS,
		})
	}
	k.pushNonBlocking(Update{Kind: UpdateTrainStates, Trains: states})
}

// pushNonBlocking drops the frame and logs rather than stalling the
// simulation loop if the outbox is full — an unresponsive or absent
// subscriber must never hold back the tick pipeline.
func (k *Kernel) pushNonBlocking(u Update) {
	select {
	case k.updates <- u:
	default:
		k.logger.Debug("update dropped, outbox full", "kind", u.Kind)
	}
}

// Snapshot returns a consistent, point-in-time view of every train and
// signal for synchronous callers such as an HTTP dump handler, which
// cannot wait on the push-only update channel.
type Snapshot struct {
	Trains []TrainState
	Lamps  map[track.LampId]LampState
}

// AspectCounts tallies signals by their current aspect.
type AspectCounts struct {
	Forbidding    int
	Restricting   int
	Unrestricting int
}

// Metrics is the point-in-time rollup the server's analytics endpoints
// derive KPIs from, per SPEC_FULL.md §5's /api/analytics/kpis.
type Metrics struct {
	TotalBlocks    int
	OccupiedBlocks int
	AvgSpeedMPS    float64
	TimeScale      float64
	Aspects        AspectCounts
}

// Metrics takes the read lock and computes the current rollup.
func (k *Kernel) Metrics() Metrics {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var m Metrics
	m.TotalBlocks = k.graph.Len()
	m.OccupiedBlocks = k.occ.OccupiedCount()
	m.TimeScale = TimeScales[k.timeScaleIndex]

	if len(k.trains) > 0 {
		var total float64
		for _, t := range k.trains {
			total += t.SpeedMPS
		}
		m.AvgSpeedMPS = total / float64(len(k.trains))
	}

	k.signals.All(func(s *signaling.TrackSignal) bool {
		switch s.Ctrl.Aspect {
		case signaling.Forbidding:
			m.Aspects.Forbidding++
		case signaling.Restricting:
			m.Aspects.Restricting++
		case signaling.Unrestricting:
			m.Aspects.Unrestricting++
		}
		return true
	})
	return m
}

// Snapshot takes the read lock and renders the current state.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.RLock()
	defer k.mu.RUnlock()

	trains := make([]TrainState, 0, len(k.trains))
	for _, t := range k.trains {
		trains = append(trains, TrainState{
			ID:           t.ID,
			FrontBlock:   t.Front.BlockID,
			FrontOffsetM: t.Front.OffsetM,
			Direction:    t.Direction,
			SpeedMPS:     t.SpeedMPS,
		})
	}

	lamps := make(map[track.LampId]LampState)
	k.signals.All(func(s *signaling.TrackSignal) bool {
		lamps[s.LampID] = lampStateForSignal(s.Ctrl.Aspect)
		return true
	})
	return Snapshot{Trains: trains, Lamps: lamps}
}
