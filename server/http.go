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

// Package server is the HTTP/WebSocket transport over a kernel.Kernel,
// per SPEC_FULL.md §5. It never touches the simulation's internals
// directly — everything it knows comes from Kernel.Commands(),
// Kernel.Updates(), Kernel.Snapshot() and Kernel.Metrics().
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/ts2/dispatch-kernel/kernel"
)

const (
	DefaultAddr       string = "0.0.0.0"
	DefaultPort       string = "22222"
	MaxHubStartupTime        = 3 * time.Second
)

var (
	engine    *kernel.Kernel
	startedAt time.Time
	logger    log.Logger
)

// InitializeLogger creates the logger for the server module.
func InitializeLogger(parentLogger log.Logger) {
	logger = parentLogger.New("module", "server")
}

// Run starts the hub, the HTTP server and the update-broadcast pump for
// the given kernel, and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, k *kernel.Kernel, addr, port string) error {
	logger.Info("starting server")
	engine = k
	startedAt = time.Now().UTC()

	startMetricsConsumer()

	hubUp := make(chan bool)
	go hub.run(hubUp)
	select {
	case <-hubUp:
	case <-time.After(MaxHubStartupTime):
		return fmt.Errorf("hub did not start")
	}

	go pumpUpdates(ctx)

	router := newRouter()
	serverAddress := fmt.Sprintf("%s:%s", addr, port)
	httpServer := &http.Server{Addr: serverAddress, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "submodule", "http", "address", serverAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// pumpUpdates drains the kernel's push-frame outbox and fans each frame
// out to every connected client and into the audit log, translating the
// channel-based Updates() feed into the hub's broadcast channel.
func pumpUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-engine.Updates():
			recordAuditFromUpdate(u)
			select {
			case hub.broadcast <- u:
			default:
				logger.Debug("broadcast dropped, hub busy", "submodule", "http")
			}
		}
	}
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", serveHome).Methods(http.MethodGet)
	r.HandleFunc("/ws", serveWs)
	r.HandleFunc("/api/overview", serveOverview).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/kpis", serveKPI).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/logs", serveAuditLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/stream", serveAuditStream).Methods(http.MethodGet)
	return r
}

// serveHome reports basic server status; no bundled web UI asset exists
// for this board, so home is a plain status endpoint.
func serveHome(w http.ResponseWriter, r *http.Request) {
	logger.Debug("new http connection", "submodule", "http", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "running",
		"startedAt": startedAt.Format(time.RFC3339),
		"ws":        "ws://" + r.Host + "/ws",
	})
}
