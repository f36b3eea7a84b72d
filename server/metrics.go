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
	"sync"
	"time"
)

const eventRateWindow = time.Minute

// metricsState tracks the rolling event rate; the rest of the KPI
// rollup (occupancy utilization, average speed, signal breakdown) comes
// straight off kernel.Kernel.Metrics() at request time since the kernel
// already holds that state consistently under its own lock.
type metricsState struct {
	mu     sync.Mutex
	events []time.Time
}

var metrics = &metricsState{}

// recordEvent notes one audit event for the events-per-minute KPI.
func (m *metricsState) recordEvent(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, at)
	m.trimLocked()
}

func (m *metricsState) trimLocked() {
	cutoff := time.Now().UTC().Add(-eventRateWindow)
	i := 0
	for ; i < len(m.events); i++ {
		if m.events[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		m.events = append([]time.Time{}, m.events[i:]...)
	}
}

// eventsPerMinute is the count of audit events recorded in the trailing
// minute.
func (m *metricsState) eventsPerMinute() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimLocked()
	return len(m.events)
}

// startMetricsConsumer subscribes to the audit ring buffer and feeds the
// rolling event-rate window, the same subscriber pattern serveAuditStream
// uses for client streaming.
func startMetricsConsumer() {
	ch := audits.subscribe()
	go func() {
		for entry := range ch {
			ts, err := time.Parse(time.RFC3339, entry.Timestamp)
			if err != nil {
				ts = time.Now().UTC()
			}
			metrics.recordEvent(ts)
		}
	}()
}
