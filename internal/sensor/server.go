// Package sensor is the socket intake for the in-page observer: a
// long-lived listener on a fixed loopback port accepting exactly one active
// client, converting each inbound JSON frame into a location message for
// the crop coordinator. Adapted from the teacher's
// internal/websocket.Client reconnect/read-pump idioms (ping/pong keepalive,
// read-deadline refresh) but inverted to the server side via
// gorilla/websocket's Upgrader. Each frame is unmarshalled directly into a
// locationmsg.Message; there is no separate envelope pre-check.
package sensor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lensguard/agent/internal/locationmsg"
	"github.com/lensguard/agent/internal/logging"
)

var log = logging.L("sensor")

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Handler receives parsed location messages and the disconnect signal. The
// caller (normally internal/session.Manager via internal/cropcoord) is
// responsible for translating messages into session state transitions.
type Handler interface {
	HandleMessage(msg locationmsg.Message)
	HandleDisconnect()
}

// Server is a single-active-connection WebSocket listener.
type Server struct {
	addr    string
	handler Handler

	upgrader websocket.Upgrader
	http     *http.Server

	mu   sync.Mutex
	conn *websocket.Conn

	stopOnce sync.Once
}

// New creates a sensor server bound to addr (e.g. "127.0.0.1:8765").
func New(addr string, handler Handler) *Server {
	s := &Server{
		addr:    addr,
		handler: handler,
		upgrader: websocket.Upgrader{
			// Loopback-only by contract; the in-page observer connects from
			// the same machine, so no cross-origin check is meaningful here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins accepting connections. It does not block; ListenAndServe
// runs in its own goroutine, and its terminal error (other than
// http.ErrServerClosed) is logged.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("sensor listener stopped unexpectedly", "error", err)
		}
	}()
	log.Info("sensor listening", "addr", s.addr)
}

// Stop shuts the HTTP server down and closes any active connection. It is
// for process shutdown only: a stopped Server cannot be started again. A
// client disconnect, by contrast, does not stop the listener, which keeps
// accepting new connections.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
		err = s.http.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", "error", err)
		return
	}

	// A new connection replaces any previous one, which is closed and
	// triggers that connection's readLoop to call HandleDisconnect.
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	log.Info("sensor client connected", "remote", r.RemoteAddr)
	s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		s.handler.HandleDisconnect()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.pingLoop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("sensor read error", "error", err)
			}
			return
		}

		var msg locationmsg.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("malformed location message, dropping frame", "error", err)
			continue
		}
		s.handler.HandleMessage(msg)
	}
}

func (s *Server) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		active := s.conn == conn
		s.mu.Unlock()
		if !active {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}
