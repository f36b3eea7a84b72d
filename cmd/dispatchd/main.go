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

// Command dispatchd is the HTTP/WebSocket server binary: it loads a
// level file, starts a kernel.Kernel, and serves it over the server
// package's hub protocol until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	log "gopkg.in/inconshreveable/log15.v2"
	"golang.org/x/sync/errgroup"

	"github.com/ts2/dispatch-kernel/kernel"
	"github.com/ts2/dispatch-kernel/levelfile"
	"github.com/ts2/dispatch-kernel/server"
)

type cli struct {
	Level  string `arg:"" help:"Path to the level TOML file."`
	Config string `help:"Optional YAML config file layering addr/port below flags." default:""`
	Addr   string `help:"HTTP listen address." default:""`
	Port   string `help:"HTTP listen port." default:""`
}

func loadAddrPort(c *cli) error {
	v := viper.New()
	v.SetDefault("addr", server.DefaultAddr)
	v.SetDefault("port", server.DefaultPort)
	if c.Config != "" {
		v.SetConfigFile(c.Config)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", c.Config, err)
		}
	}
	if c.Addr == "" {
		c.Addr = v.GetString("addr")
	}
	if c.Port == "" {
		c.Port = v.GetString("port")
	}
	return nil
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

func main() {
	var c cli
	kong.Parse(&c, kong.Description("dispatch-kernel server"))

	if err := loadAddrPort(&c); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := log.New()
	root.SetHandler(log.StreamHandler(os.Stderr, log.LogfmtFormat()))
	server.InitializeLogger(root)

	data, err := os.ReadFile(c.Level)
	if err != nil {
		root.Crit("reading level file", "error", err)
		os.Exit(1)
	}
	built, err := levelfile.Load(data)
	if err != nil {
		root.Crit("loading level", "error", err)
		os.Exit(1)
	}

	k := kernel.New(built.Graph, built.Occupancy, built.Signals, root)
	k.ConfigureSpawners(toKernelSpawners(built.Spawners))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return k.Run(ctx) })
	g.Go(func() error { return server.Run(ctx, k, c.Addr, c.Port) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		root.Crit("exiting", "error", err)
		os.Exit(1)
	}
}
