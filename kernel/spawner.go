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

import "github.com/ts2/dispatch-kernel/track"

// Spawner mirrors levelfile.Spawner without kernel needing to import the
// level loader; cmd/dispatchd converts levelfile.Spawner values to this
// shape when wiring a loaded level into a Kernel. It is the supplemented
// feature of SPEC_FULL.md §4, grounded on original_source's spawner.rs:
// a train placed at a spawner is auto-despawned once it has fully
// cleared the spawner's approach block, rather than requiring a manual
// despawn command.
type Spawner struct {
	BlockID         track.BlockId
	ApproachBlockID track.BlockId
	Direction       track.Direction
}

// ConfigureSpawners replaces the kernel's spawner set. Call before the
// run loop starts; spawners are static level topology, not something
// that changes mid-run.
func (k *Kernel) ConfigureSpawners(spawners []Spawner) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.spawners = spawners
}

// SpawnFromSpawner places a train at req.Head and, when spawnerBlockID
// names a configured spawner, records it as spawner-origin so the tick
// pipeline auto-despawns it once it clears that spawner's approach
// block. The position comes from req alone; spawnerBlockID only selects
// the approach block.
func (k *Kernel) SpawnFromSpawner(req SpawnRequest, spawnerBlockID track.BlockId) {
	k.mu.Lock()
	var approach track.BlockId
	found := false
	for _, sp := range k.spawners {
		if sp.BlockID == spawnerBlockID {
			approach = sp.ApproachBlockID
			found = true
			break
		}
	}
	if found {
		if k.spawnOrigin == nil {
			k.spawnOrigin = make(map[track.TrainId]track.BlockId)
		}
		k.spawnOrigin[req.TrainID] = approach
	}
	k.mu.Unlock()

	k.spawnTrain(req)
}

// checkSpawnerDespawns inspects the blocks freed this tick and
// auto-despawns any spawner-origin train that has just cleared its
// approach block. Called from step() while already holding the write
// lock.
func (k *Kernel) checkSpawnerDespawns(freedByTrain map[track.TrainId][]track.BlockId) {
	if len(k.spawnOrigin) == 0 {
		return
	}
	var toDespawn []track.TrainId
	for id, approach := range k.spawnOrigin {
		for _, b := range freedByTrain[id] {
			if b == approach {
				toDespawn = append(toDespawn, id)
				break
			}
		}
	}
	for _, id := range toDespawn {
		delete(k.spawnOrigin, id)
		delete(k.trains, id)
		train := k.occ.DespawnTrain(id)
		for _, b := range train {
			k.emitLampChangesLocked(k.signals.NotifyBlockChanged(k.graph, k.occ, b))
		}
		k.emitBlockLampChangesLocked(nil, train)
		k.pushNonBlocking(Update{Kind: UpdateUnregisterTrain, TrainID: id})
	}
}
