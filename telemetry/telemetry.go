// Package telemetry broadcasts the commanded gimbal angles to WebSocket clients.
//
// Every message is a CBOR array [type, payload]. MessageAngles carries the
// payload {axis index: angle in radians}.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

const MessageAngles uint8 = 1

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

var encMode, _ = cbor.CoreDetEncOptions().EncMode()

// EncodeAngles returns the MessageAngles message for angles.
func EncodeAngles(angles []float64) ([]byte, error) {
	payload := make(map[int]float64, len(angles))
	for i, angle := range angles {
		payload[i] = angle
	}
	return encMode.Marshal([]interface{}{uint64(MessageAngles), payload})
}

// Server sends every change of the published angles once to each connected
// client. New clients receive the latest angles on connect.
type Server struct {
	Logger logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Int64

	mu      sync.RWMutex
	clients map[int64]*client
	last    []float64
	message []byte
}

func NewServer(logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		Logger:  logger,
		clients: make(map[int64]*client),
	}
	s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	return s
}

// Handler serves the WebSocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves on address until ctx ends, then closes every client.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	server := &http.Server{Addr: address, Handler: s.Handler()}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	})
	defer stop()

	err := server.ListenAndServe()
	s.closeClients()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish broadcasts angles unless they equal the last published angles.
func (s *Server) Publish(angles []float64) {
	s.mu.Lock()
	if s.message != nil && slices.Equal(s.last, angles) {
		s.mu.Unlock()
		return
	}

	message, err := EncodeAngles(angles)
	if err != nil {
		s.mu.Unlock()
		s.Logger.WithError(err).Warn("failed to encode angles")
		return
	}
	s.last = slices.Clone(angles)
	s.message = message

	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.send(message)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:     s.nextID.Add(1),
		conn:   conn,
		server: s,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: s.Logger,
	}

	s.mu.Lock()
	s.clients[c.id] = c
	message := s.message
	s.mu.Unlock()

	s.Logger.WithField("client", c.id).Info("telemetry client connected")

	if message != nil {
		c.send(message)
	}
	go c.writePump()
	c.readPump()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	if ok {
		s.Logger.WithField("client", c.id).Info("telemetry client disconnected")
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[int64]*client)
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

type client struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger logrus.FieldLogger
}

// send queues a message. A client that does not keep up misses messages.
func (c *client) send(message []byte) {
	select {
	case c.sendCh <- message:
	case <-c.done:
	default:
		c.logger.WithField("client", c.id).Warn("dropping telemetry message, client too slow")
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards incoming messages and detects the end of the connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithField("client", c.id).WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				c.logger.WithField("client", c.id).WithError(err).Debug("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
