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
	"net/http"
	"time"
)

// GET /api/overview — block/signal/train counts, occupancy utilization,
// current time scale.
func serveOverview(w http.ResponseWriter, r *http.Request) {
	m := engine.Metrics()
	snap := engine.Snapshot()

	util := 0.0
	if m.TotalBlocks > 0 {
		util = float64(m.OccupiedBlocks) * 100.0 / float64(m.TotalBlocks)
	}

	resp := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"totals": map[string]interface{}{
			"blocks":  m.TotalBlocks,
			"signals": m.Aspects.Forbidding + m.Aspects.Restricting + m.Aspects.Unrestricting,
			"trains":  len(snap.Trains),
		},
		"occupancy": map[string]interface{}{
			"occupiedBlocks": m.OccupiedBlocks,
			"totalBlocks":    m.TotalBlocks,
			"utilization":    util,
		},
		"timeScale": m.TimeScale,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// GET /api/analytics/kpis — average speed, occupancy utilization,
// signal-restrictiveness breakdown and events/minute.
func serveKPI(w http.ResponseWriter, r *http.Request) {
	m := engine.Metrics()

	util := 0.0
	if m.TotalBlocks > 0 {
		util = float64(m.OccupiedBlocks) * 100.0 / float64(m.TotalBlocks)
	}

	resp := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"kpis": map[string]interface{}{
			"averageSpeedMPS": m.AvgSpeedMPS,
			"utilization":     util,
			"eventsPerMinute": metrics.eventsPerMinute(),
			"signalAspects": map[string]int{
				"forbidding":    m.Aspects.Forbidding,
				"restricting":   m.Aspects.Restricting,
				"unrestricting": m.Aspects.Unrestricting,
			},
		},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}
