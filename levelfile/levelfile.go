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

// Package levelfile loads a board layout from a TOML level file into a
// track.Graph and a bound signaling.Map, per spec.md §6 and SPEC_FULL.md
// §3. It is the only package in this module that imports an encoding
// library — the core packages never know a level came from a file.
package levelfile

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/ts2/dispatch-kernel/occupancy"
	"github.com/ts2/dispatch-kernel/signaling"
	"github.com/ts2/dispatch-kernel/track"
)

// Level is the raw decoded shape of a level file's TOML tables.
type Level struct {
	Lamps       []LampDef       `toml:"lamps"`
	Blocks      []BlockDef      `toml:"blocks"`
	Connections []ConnectionDef `toml:"connections"`
	Signals     []SignalDef     `toml:"signals"`
	Spawners    []SpawnerDef    `toml:"spawners"`
	Background  BackgroundDef   `toml:"background"`
}

type LampDef struct {
	ID   uint32 `toml:"id"`
	Name string `toml:"name"`
}

type BlockDef struct {
	ID      uint32  `toml:"id"`
	LengthM float64 `toml:"length_m"`
	LampID  uint32  `toml:"lamp_id"`
}

type ConnectionDef struct {
	From uint32 `toml:"from"`
	To   uint32 `toml:"to"`
}

type SignalDef struct {
	ID        uint32  `toml:"id"`
	BlockID   uint32  `toml:"block_id"`
	OffsetM   float64 `toml:"offset_m"`
	Direction string  `toml:"direction"`
	LampID    uint32  `toml:"lamp_id"`
	Name      string  `toml:"name"`
}

// SpawnerDef describes a dedicated spawner block, the SPEC_FULL.md §4
// supplemented feature grounded on original_source's spawner.rs. Build
// adds the block to the graph with no signals of its own; any signals or
// connections for it come from the regular tables. ApproachBlockID is
// the block whose release by a spawner-origin train makes the kernel
// auto-despawn that train.
type SpawnerDef struct {
	BlockID         uint32  `toml:"block_id"`
	ApproachBlockID uint32  `toml:"approach_block_id"`
	LengthM         float64 `toml:"length_m"`
	Direction       string  `toml:"direction"`
}

type BackgroundDef struct {
	ImagePath string `toml:"image_path"`
}

// Parse decodes raw TOML bytes into a Level without building the
// in-memory graph yet, so callers can inspect or validate it first.
func Parse(data []byte) (Level, error) {
	var lvl Level
	if err := toml.Unmarshal(data, &lvl); err != nil {
		return Level{}, fmt.Errorf("levelfile: decode: %w", err)
	}
	return lvl, nil
}

// Built is the fully constructed, ready-to-run in-memory form of a level.
type Built struct {
	Graph     *track.Graph
	Signals   *signaling.Map
	Occupancy *occupancy.Index
	Spawners  []Spawner
}

// Spawner is a bound spawner block ready for the kernel to place trains
// at, per SPEC_FULL.md §4.
type Spawner struct {
	BlockID         track.BlockId
	ApproachBlockID track.BlockId
	Direction       track.Direction
}

func parseDirection(s string) (track.Direction, error) {
	switch s {
	case "Even", "even", "":
		return track.Even, nil
	case "Odd", "odd":
		return track.Odd, nil
	default:
		return 0, fmt.Errorf("levelfile: unknown direction %q", s)
	}
}

// Build turns a decoded Level into a Built graph/signal-map/occupancy
// triple. The graph and signal map are connected and bound (guarded
// chains and ownership precomputed, initial aspects derived) before
// return; the returned occupancy.Index starts empty, matching a freshly
// loaded, train-free level.
func Build(lvl Level) (*Built, error) {
	blocks := make([]track.Block, 0, len(lvl.Blocks))
	for _, b := range lvl.Blocks {
		blocks = append(blocks, track.Block{
			ID:      track.BlockId(b.ID),
			LengthM: b.LengthM,
			LampID:  track.LampId(b.LampID),
		})
	}
	for _, sp := range lvl.Spawners {
		blocks = append(blocks, track.Block{
			ID:      track.BlockId(sp.BlockID),
			LengthM: sp.LengthM,
		})
	}

	g := track.NewGraph(blocks)
	for _, c := range lvl.Connections {
		if !g.Connect(track.BlockId(c.From), track.BlockId(c.To)) {
			return nil, fmt.Errorf("levelfile: connection %d->%d references an unknown block", c.From, c.To)
		}
	}

	signals := make([]signaling.TrackSignal, 0, len(lvl.Signals))
	for _, s := range lvl.Signals {
		dir, err := parseDirection(s.Direction)
		if err != nil {
			return nil, fmt.Errorf("levelfile: signal %d: %w", s.ID, err)
		}
		signals = append(signals, signaling.TrackSignal{
			ID:        signaling.SignalId(s.ID),
			Position:  track.TrackPoint{BlockID: track.BlockId(s.BlockID), OffsetM: s.OffsetM},
			Direction: dir,
			LampID:    track.LampId(s.LampID),
			Name:      s.Name,
			Ctrl:      signaling.DefaultForAspect(signaling.Forbidding),
		})
	}

	sm := signaling.NewMap(signals)
	occ := occupancy.NewIndex()
	sm.Bind(g, occ)

	spawners := make([]Spawner, 0, len(lvl.Spawners))
	for _, sp := range lvl.Spawners {
		dir, err := parseDirection(sp.Direction)
		if err != nil {
			return nil, fmt.Errorf("levelfile: spawner block %d: %w", sp.BlockID, err)
		}
		spawners = append(spawners, Spawner{
			BlockID:         track.BlockId(sp.BlockID),
			ApproachBlockID: track.BlockId(sp.ApproachBlockID),
			Direction:       dir,
		})
	}

	return &Built{Graph: g, Signals: sm, Occupancy: occ, Spawners: spawners}, nil
}

// Load parses and builds a level from raw TOML bytes in one step.
func Load(data []byte) (*Built, error) {
	lvl, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Build(lvl)
}
