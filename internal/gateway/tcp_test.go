package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/wpolak/cbotgo/pkg/protocol"
)

// echoDispatcher replies OK with the command name as output, and reports
// quit for a "QUIT" command, mirroring enough of taskmanager's Dispatcher
// contract to exercise the transport.
type echoDispatcher struct{}

func (echoDispatcher) ProcessCmd(op *protocol.Operation) (*protocol.Operation, bool) {
	if op.Cmd == "QUIT" {
		return op.Ok("bye", nil), true
	}
	return op.Ok(op.Cmd, nil), false
}

func TestTCPServerRoundTrip(t *testing.T) {
	srv := NewTCPServer(echoDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	defer conn.Close()

	req, _ := json.Marshal(protocol.RequestFrame{Cmd: "PS"})
	conn.Write(append(req, '\r', '\n'))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}

	var resp protocol.ResponseFrame
	if err := json.Unmarshal([]byte(line[:len(line)-2]), &resp); err != nil {
		t.Fatalf("decode response %q: %v", line, err)
	}
	// A structured (non raw_input) request gets its output nulled.
	if resp.RespCode != protocol.RespOK || resp.Output != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	cancel()
	srv.Close()
}
