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
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// RawJSON wraps already-encoded JSON so it is embedded verbatim by
// encoding/json instead of being marshaled (and re-quoted) again.
type RawJSON []byte

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Request is one JSON command frame received over a WebSocket connection.
type Request struct {
	ID     string          `json:"id"`
	Object string          `json:"object"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Response is one JSON frame sent back to a connection in direct reply
// to a Request (same ID). Unsolicited broadcasts are not Responses: the
// hub pushes each kernel.Update frame to every connection as it is.
type Response struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Data    RawJSON `json:"data,omitempty"`
}

func NewOkResponse(id, message string) Response {
	return Response{ID: id, Status: "OK", Message: message}
}

func NewErrorResponse(id string, err error) Response {
	return Response{ID: id, Status: "ERROR", Message: err.Error()}
}

func NewResponse(id string, data []byte) Response {
	return Response{ID: id, Status: "OK", Data: RawJSON(data)}
}

// hubObject handles requests addressed to one named object ("kernel",
// ...). Each object registers itself with the package-level hub from an
// init() in its own file.
type hubObject interface {
	dispatch(h *Hub, req Request, conn *connection)
}

// connection is one live WebSocket client. pushChan decouples the
// object dispatch methods (which may run concurrently across
// connections) from the single goroutine that owns the socket write
// side.
type connection struct {
	ws       *websocket.Conn
	pushChan chan interface{}
}

func (c *connection) writePump() {
	for msg := range c.pushChan {
		if err := c.ws.WriteJSON(msg); err != nil {
			logger.Debug("write to client failed", "submodule", "hub", "error", err)
			return
		}
	}
}

func (c *connection) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.ws.Close()
	}()
	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}
		obj, ok := h.objects[req.Object]
		if !ok {
			c.pushChan <- NewErrorResponse(req.ID, fmt.Errorf("unknown object %s", req.Object))
			continue
		}
		obj.dispatch(h, req, c)
	}
}

// Hub fans push frames out to every connected client and routes inbound
// requests to the object they address, mirroring the ring-buffer fan-out
// shape audit.go uses for subscribers.
type Hub struct {
	objects map[string]hubObject

	mu          sync.RWMutex
	connections map[*connection]bool

	register   chan *connection
	unregister chan *connection
	broadcast  chan interface{}
}

var hub = newHub()

func newHub() *Hub {
	return &Hub{
		objects:     make(map[string]hubObject),
		connections: make(map[*connection]bool),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		broadcast:   make(chan interface{}, 256),
	}
}

// run is the hub's single goroutine and the only writer of the
// connections set; it takes h.mu around each register, unregister and
// broadcast.
func (h *Hub) run(hubUp chan bool) {
	hubUp <- true
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.connections[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[c]; ok {
				delete(h.connections, c)
				close(c.pushChan)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.connections {
				select {
				case c.pushChan <- msg:
				default:
					logger.Debug("dropping broadcast, slow client", "submodule", "hub")
				}
			}
			h.mu.RUnlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWs upgrades an HTTP connection to the hub's WebSocket protocol.
func serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "submodule", "hub", "error", err)
		return
	}
	conn := &connection{ws: ws, pushChan: make(chan interface{}, 256)}
	hub.register <- conn
	go conn.writePump()
	conn.readPump(hub)
}
