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

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/ts2/dispatch-kernel/kernel"
	"github.com/ts2/dispatch-kernel/rollingstock"
	"github.com/ts2/dispatch-kernel/track"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("84")).Bold(true)
)

// updateMsg wraps one kernel.Update frame as a tea.Msg.
type updateMsg kernel.Update

// model is the bubbletea model driving the board view. It never reads
// track/signaling/train state directly — everything it knows comes from
// kernel.Update frames and the keyboard commands it sends back.
type model struct {
	k      *kernel.Kernel
	logger *log.Logger

	running        bool
	timeScaleIndex int
	clockElapsed   time.Duration

	trains       map[track.TrainId]kernel.TrainState
	lampsOn      int
	lampsTotal   int
	showSpeedPlot bool

	nextDebugTrainID uint32
	spawnOrder       []track.TrainId

	trainTable table.Model

	width, height int
}

func newModel(k *kernel.Kernel, logger *log.Logger) *model {
	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "TRAIN", Width: 8},
			{Title: "BLOCK", Width: 8},
			{Title: "OFFSET(m)", Width: 10},
			{Title: "SPEED", Width: 8},
		}),
		table.WithHeight(10),
	)
	return &model{
		k:                k,
		logger:           logger,
		timeScaleIndex:   2, // matches kernel.defaultTimeScaleIndex (1.0x)
		trains:           make(map[track.TrainId]kernel.TrainState),
		nextDebugTrainID: 90000,
		trainTable:       tbl,
	}
}

func (m *model) Init() tea.Cmd {
	return waitForUpdate(m.k)
}

// waitForUpdate blocks on the kernel's push-frame outbox and re-arms
// itself, the standard bubbletea pattern for bridging an external
// channel into the Update loop.
func waitForUpdate(k *kernel.Kernel) tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-k.Updates())
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case updateMsg:
		m.applyUpdate(kernel.Update(msg))
		return m, waitForUpdate(m.k)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up":
		if m.timeScaleIndex < len(kernel.TimeScales)-1 {
			m.timeScaleIndex++
		}
		m.k.Commands() <- kernel.Command{Kind: kernel.CmdSetTimeScale, TimeScaleIndex: m.timeScaleIndex}

	case "down":
		if m.timeScaleIndex > 0 {
			m.timeScaleIndex--
		}
		m.k.Commands() <- kernel.Command{Kind: kernel.CmdSetTimeScale, TimeScaleIndex: m.timeScaleIndex}

	case "p", "P":
		m.running = !m.running
		if m.running {
			m.k.Commands() <- kernel.Command{Kind: kernel.CmdStart}
		} else {
			m.k.Commands() <- kernel.Command{Kind: kernel.CmdPause}
		}

	case "g", "G":
		m.spawnDebugTrain()

	case "h", "H":
		m.despawnOldestTrain()

	case "s", "S":
		m.showSpeedPlot = !m.showSpeedPlot
	}
	return m, nil
}

func (m *model) applyUpdate(u kernel.Update) {
	switch u.Kind {
	case kernel.UpdateTrainStates:
		for _, ts := range u.Trains {
			m.trains[ts.ID] = ts
		}
	case kernel.UpdateClock:
		m.clockElapsed = u.ClockElapsed
	case kernel.UpdateLamp:
		for _, state := range u.Lamps {
			if state == kernel.LampOn {
				m.lampsOn++
			}
		}
		m.lampsTotal = len(u.Lamps)
	case kernel.UpdateRegisterTrain:
		m.spawnOrder = append(m.spawnOrder, u.TrainID)
	case kernel.UpdateUnregisterTrain:
		delete(m.trains, u.TrainID)
		for i, id := range m.spawnOrder {
			if id == u.TrainID {
				m.spawnOrder = append(m.spawnOrder[:i], m.spawnOrder[i+1:]...)
				break
			}
		}
	}
}

// spawnDebugTrain places a single-locomotive train at block 1, offset 0,
// the "G" debug spawn key of spec.md §6.
func (m *model) spawnDebugTrain() {
	id := track.TrainId(m.nextDebugTrainID)
	m.nextDebugTrainID++
	m.k.Commands() <- kernel.Command{
		Kind: kernel.CmdSpawnTrain,
		Spawn: kernel.SpawnRequest{
			TrainID:        id,
			Head:           track.TrackPoint{BlockID: 1, OffsetM: 0},
			Direction:      track.Even,
			Vehicles:       []rollingstock.RailVehicle{rollingstock.NewLocomotive(20, 80000, 500000, 250000, 180000)},
			TargetSpeedKMH: 60,
		},
	}
}

func (m *model) despawnOldestTrain() {
	if len(m.spawnOrder) == 0 {
		return
	}
	id := m.spawnOrder[0]
	m.k.Commands() <- kernel.Command{Kind: kernel.CmdDespawnTrain, DespawnID: id}
}

func (m *model) View() string {
	status := pausedStyle.Render("PAUSED")
	if m.running {
		status = runningStyle.Render("RUNNING")
	}

	out := headerStyle.Render("dispatch-kernel") + "  " + status + "\n"
	out += dimStyle.Render(fmt.Sprintf(
		"time scale %.1fx  clock %s  lamps %d/%d lit  trains %d",
		kernel.TimeScales[m.timeScaleIndex], m.clockElapsed.Round(time.Second), m.lampsOn, m.lampsTotal, len(m.trains),
	)) + "\n\n"

	ids := make([]track.TrainId, 0, len(m.trains))
	for id := range m.trains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		t := m.trains[id]
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", t.ID),
			fmt.Sprintf("%d", t.FrontBlock),
			fmt.Sprintf("%.1f", t.FrontOffsetM),
			fmt.Sprintf("%.1f", t.SpeedMPS),
		})
	}
	m.trainTable.SetRows(rows)
	out += m.trainTable.View() + "\n"

	if m.showSpeedPlot {
		out += "\n" + dimStyle.Render("(speed-history plot omitted from the terminal view)") + "\n"
	}

	out += "\n" + dimStyle.Render("↑/↓ time scale · P pause · G spawn · H despawn oldest · S speed plot · Q quit")
	return out
}
