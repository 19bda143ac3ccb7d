// Package gateway is the control-channel transport: the unary TCP server
// (line-terminated JSON request/response) and the streaming WebSocket
// server (request/response plus broadcast of every bus event), both
// fronting the same command dispatcher. Adapted from the teacher's
// internal/gateway/client.go connection-pump style.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/wpolak/cbotgo/internal/cmdparse"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

// Dispatcher is the subset of *taskmanager.Manager the control servers
// depend on.
type Dispatcher interface {
	ProcessCmd(op *protocol.Operation) (result *protocol.Operation, quit bool)
}

// TCPServer is the unary control channel of spec §6: line-terminated JSON
// request/response, default port 2268. Commands on the same connection are
// processed and responded to in order; connections are handled
// concurrently.
type TCPServer struct {
	dispatcher Dispatcher
	listener   net.Listener

	mu   sync.Mutex
	wg   sync.WaitGroup
}

// NewTCPServer returns a TCPServer bound to dispatcher.
func NewTCPServer(dispatcher Dispatcher) *TCPServer {
	return &TCPServer{dispatcher: dispatcher}
}

// ListenAndServe binds addr and serves connections until ctx is canceled or
// Close is called. It blocks; run it in its own goroutine.
func (s *TCPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("gateway: tcp control server listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				slog.Error("gateway: tcp accept failed", "error", err)
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting new connections. Existing connections are allowed
// to drain.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// handleConn reads \r\n-terminated JSON request frames and writes \r\n
// terminated JSON response frames, in order, until QUIT or EOF.
func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	slog.Info("gateway: tcp client connected", "addr", remote)
	defer slog.Info("gateway: tcp client disconnected", "addr", remote)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			quit := s.handleLine(conn, trimmed)
			if quit {
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleLine parses and dispatches one request line, writing its response.
// Reports whether the connection should now close (QUIT was processed).
func (s *TCPServer) handleLine(conn net.Conn, line string) (quit bool) {
	frame, err := protocol.ParseRequestFrame([]byte(line))
	if err != nil {
		writeResponse(conn, &protocol.ResponseFrame{
			RespCode: protocol.RespErr,
			Output:   "ERR: " + err.Error(),
		})
		return false
	}

	op, wasRaw, err := cmdparse.FromRequestFrame(frame)
	if err != nil {
		writeResponse(conn, &protocol.ResponseFrame{
			RespCode: protocol.RespErr,
			Output:   err.Error(),
		})
		return false
	}

	result, quit := s.dispatcher.ProcessCmd(op)
	if !wasRaw {
		result.Output = nil
	}
	writeResponse(conn, protocol.FromOperation(result))
	return quit
}

func writeResponse(conn net.Conn, resp *protocol.ResponseFrame) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("gateway: marshal response failed", "error", err)
		return
	}
	if _, err := conn.Write(append(data, '\r', '\n')); err != nil {
		slog.Warn("gateway: write response failed", "error", err)
	}
}
