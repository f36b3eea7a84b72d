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

// Command dispatchtui is the terminal presentation client of spec.md
// §6: it embeds a kernel.Kernel in-process and drives it only through
// Kernel.Commands()/Updates(), never touching track/signaling/train
// state directly.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/ts2/dispatch-kernel/kernel"
	"github.com/ts2/dispatch-kernel/levelfile"
)

type cli struct {
	Level    string `arg:"" help:"Path to the level TOML file."`
	LogLevel string `help:"Set the log level." enum:"debug,info,warn,error" default:"warn"`
	LogFile  string `help:"The logfile to write logs to." default:"dispatchtui.log"`
}

func main() {
	var c cli
	kong.Parse(&c)

	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := log.NewWithOptions(logFile, log.Options{ReportTimestamp: true})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)

	data, err := os.ReadFile(c.Level)
	if err != nil {
		logger.Fatal("reading level file", "error", err)
	}
	built, err := levelfile.Load(data)
	if err != nil {
		logger.Fatal("loading level", "error", err)
	}

	// dispatchtui logs through charmbracelet/log; the kernel still wants
	// a log15 logger since it is shared with cmd/dispatchd. A discard
	// root keeps the kernel quiet here; the TUI surfaces state through
	// its own view instead of the kernel's structured log stream.
	root := discardLog15Logger()
	k := kernel.New(built.Graph, built.Occupancy, built.Signals, root)
	k.ConfigureSpawners(toKernelSpawners(built.Spawners))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := k.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("kernel run loop exited", "error", err)
		}
	}()

	m := newModel(k, logger)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		logger.Fatal("tui exited", "error", err)
	}
}

func toKernelSpawners(spawners []levelfile.Spawner) []kernel.Spawner {
	out := make([]kernel.Spawner, 0, len(spawners))
	for _, s := range spawners {
		out = append(out, kernel.Spawner{
			BlockID:         s.BlockID,
			ApproachBlockID: s.ApproachBlockID,
			Direction:       s.Direction,
		})
	}
	return out
}
