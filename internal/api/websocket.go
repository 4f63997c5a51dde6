package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"qr-scan-station/internal/station"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 60 * time.Second
)

// wsHub tracks connected UI clients and pushes station snapshots to them.
// The first connected client acts as the rendering layer's layout-ready
// signal; when the last client disconnects the scanning surface is treated
// as unmounted and the camera is released.
type wsHub struct {
	station  *station.Station
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

// newWSHub creates a hub for the given station
func newWSHub(st *station.Station, logger *logrus.Logger) *wsHub {
	return &wsHub{
		station: st,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The control surface binds to loopback; cross-origin pages
				// cannot reach it anyway.
				return true
			},
		},
		clients: make(map[string]*websocket.Conn),
	}
}

// handleWebSocket upgrades the connection and streams station snapshots
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	s.ws.serve(conn)
}

// serve runs a single client connection until it closes
func (h *wsHub) serve(conn *websocket.Conn) {
	id := uuid.New().String()

	h.mu.Lock()
	h.clients[id] = conn
	first := len(h.clients) == 1
	h.mu.Unlock()

	h.logger.WithField("client", id).Info("UI client connected")

	// The UI has rendered far enough to open the socket; the scanning
	// surface is measurable from here on.
	if first {
		h.station.SurfaceMounted()
	}

	snapshots, cancel := h.station.Subscribe()
	defer func() {
		cancel()
		h.drop(id, conn)
	}()

	// Initial state push so the client renders without waiting for a change
	if err := h.write(conn, h.station.Snapshot()); err != nil {
		return
	}

	// Reader goroutine: consume control frames and detect close
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case <-done:
			return
		case snap := <-snapshots:
			if err := h.write(conn, snap); err != nil {
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write sends a snapshot to a client
func (h *wsHub) write(conn *websocket.Conn, snap station.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snap)
}

// drop removes a client and, when it was the last one, treats the scanning
// surface as unmounted
func (h *wsHub) drop(id string, conn *websocket.Conn) {
	conn.Close()

	h.mu.Lock()
	delete(h.clients, id)
	last := len(h.clients) == 0
	h.mu.Unlock()

	h.logger.WithField("client", id).Info("UI client disconnected")

	if last {
		ctx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelStop()
		h.station.SurfaceUnmounted(ctx)
	}
}

// closeAll disconnects every UI client, used during server shutdown
func (h *wsHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
