package controlclient

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"

	"github.com/wpolak/cbotgo/pkg/protocol"
)

// serveOnce accepts a single connection, reads one line-terminated request,
// and writes back a canned response, then closes — enough to exercise
// Client.Call's framing without pulling in the gateway package.
func serveOnce(t *testing.T, ln net.Listener, resp *protocol.ResponseFrame) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	var req protocol.RequestFrame
	if err := json.Unmarshal([]byte(line[:len(line)-2]), &req); err != nil {
		t.Errorf("server decode request: %v", err)
		return
	}

	data, _ := json.Marshal(resp)
	conn.Write(append(data, '\r', '\n'))
}

func TestCallRawRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go serveOnce(t, ln, &protocol.ResponseFrame{RespCode: protocol.RespOK, Output: "3 tasks running"})

	client := New(ln.Addr().String())
	defer client.Close()

	resp, err := client.CallRaw("ps")
	if err != nil {
		t.Fatal(err)
	}
	if resp.RespCode != protocol.RespOK || resp.Output != "3 tasks running" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCallStructuredSendsCmdArgsKwargs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		var req protocol.RequestFrame
		if err := json.Unmarshal([]byte(line[:len(line)-2]), &req); err != nil {
			t.Errorf("server decode: %v", err)
			return
		}
		if req.Cmd != "ping" || len(req.Args) != 1 || req.Args[0] != "3" || req.Kwargs["interval"] != "1" {
			t.Errorf("unexpected structured request: %+v", req)
		}
		resp, _ := json.Marshal(protocol.ResponseFrame{RespCode: protocol.RespOK, Output: "started"})
		conn.Write(append(resp, '\r', '\n'))
	}()

	client := New(ln.Addr().String())
	defer client.Close()

	if _, err := client.CallStructured("ping", []string{"3"}, map[string]string{"interval": "1"}); err != nil {
		t.Fatal(err)
	}
	<-done
}
