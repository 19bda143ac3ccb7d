package main

import "testing"

func TestSplitControlAddrsDefaultsWhenEmpty(t *testing.T) {
	tcpAddr, wsAddr, err := splitControlAddrs("")
	if err != nil {
		t.Fatal(err)
	}
	if tcpAddr != "0.0.0.0:2268" {
		t.Fatalf("unexpected tcp addr: %q", tcpAddr)
	}
	if wsAddr != "0.0.0.0:2269" {
		t.Fatalf("unexpected ws addr: %q", wsAddr)
	}
}

func TestSplitControlAddrsDerivesWebSocketPort(t *testing.T) {
	tcpAddr, wsAddr, err := splitControlAddrs("192.168.1.5:3000")
	if err != nil {
		t.Fatal(err)
	}
	if tcpAddr != "192.168.1.5:3000" {
		t.Fatalf("unexpected tcp addr: %q", tcpAddr)
	}
	if wsAddr != "192.168.1.5:3001" {
		t.Fatalf("unexpected ws addr: %q", wsAddr)
	}
}

func TestSplitControlAddrsRejectsMissingPort(t *testing.T) {
	if _, _, err := splitControlAddrs("192.168.1.5"); err == nil {
		t.Fatal("expected an error for a bind address without a port")
	}
}
