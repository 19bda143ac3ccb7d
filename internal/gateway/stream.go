package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wpolak/cbotgo/internal/cmdparse"
	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsMaxMessage = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamServer is the WebSocket control/broadcast channel of spec §6:
// request/response wrapped in a RESULT stream envelope, plus every bus
// event mirrored to all connected clients. Adapted from the teacher's
// gateway.Client connection-pump pair (readPump/writePump).
type StreamServer struct {
	dispatcher Dispatcher
	bus        *eventbus.Bus

	mu      sync.Mutex
	clients map[string]*streamClient
	sub     eventbus.Subscription
}

// NewStreamServer returns a StreamServer bound to dispatcher, broadcasting
// every event emitted on bus.
func NewStreamServer(dispatcher Dispatcher, bus *eventbus.Bus) *StreamServer {
	return &StreamServer{
		dispatcher: dispatcher,
		bus:        bus,
		clients:    make(map[string]*streamClient),
	}
}

// streamClient is one connected WebSocket client. closed guards send so a
// broadcast racing disconnect's close(c.send) sends on a live channel
// instead of a closed one — that's a panic, not a blocked send.
type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend enqueues data for delivery, reporting false if the client is
// already closed or its send buffer is full.
func (c *streamClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the client closed and closes its send channel. Idempotent.
func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ListenAndServe binds addr and serves WebSocket upgrades at "/" until ctx
// is canceled.
func (s *StreamServer) ListenAndServe(ctx context.Context, addr string) error {
	s.sub = s.bus.Subscribe(eventbus.All, s.broadcast)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		s.bus.Unsubscribe(s.sub)
		server.Close()
	}()

	slog.Info("gateway: websocket stream server listening", "addr", addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *StreamServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, 256)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	slog.Info("gateway: stream client connected", "client", c.id)

	go s.writePump(c)
	s.readPump(r.Context(), c)
}

func (s *StreamServer) readPump(ctx context.Context, c *streamClient) {
	defer s.disconnect(c)

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("gateway: stream client read error", "client", c.id, "error", err)
			}
			return
		}
		s.handleRequest(c, data)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *StreamServer) writePump(c *streamClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleRequest parses one client request frame, dispatches it, and wraps
// the result in a RESULT stream envelope back to the same client.
func (s *StreamServer) handleRequest(c *streamClient, data []byte) {
	frame, err := protocol.ParseRequestFrame(data)
	if err != nil {
		s.sendFrame(c, &protocol.StreamFrame{Stream: protocol.EventResult, Data: map[string]any{
			"resp_code": protocol.RespErr,
			"output":    "ERR: " + err.Error(),
		}})
		return
	}

	op, _, err := cmdparse.FromRequestFrame(frame)
	if err != nil {
		s.sendFrame(c, &protocol.StreamFrame{Stream: protocol.EventResult, Data: map[string]any{
			"resp_code": protocol.RespErr,
			"output":    err.Error(),
		}})
		return
	}

	result, _ := s.dispatcher.ProcessCmd(op)
	s.sendFrame(c, protocol.NewResultFrame(result))
}

// broadcast is the ALL-channel eventbus listener: every bus event is pushed
// to every connected client.
func (s *StreamServer) broadcast(event string, payload any) {
	if event == protocol.EventResult {
		return
	}
	frame := protocol.NewEventFrame(event, payload)

	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.sendFrame(c, frame)
	}
}

func (s *StreamServer) sendFrame(c *streamClient, frame *protocol.StreamFrame) {
	data, err := protocol.EncodeStreamFrame(frame)
	if err != nil {
		slog.Error("gateway: marshal stream frame failed", "error", err)
		return
	}
	if !c.trySend(data) {
		slog.Warn("gateway: stream client send buffer full or closed, dropping frame", "client", c.id)
	}
}

func (s *StreamServer) disconnect(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.close()
	slog.Info("gateway: stream client disconnected", "client", c.id)
}
