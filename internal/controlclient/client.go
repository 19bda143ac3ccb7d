// Package controlclient is the TCP client side of the unary control
// channel (spec §6): it frames requests as line-terminated JSON, and
// retries a call up to three times on connection reset before surfacing a
// hard failure, mirroring the original's tcp_client.py.
package controlclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/wpolak/cbotgo/pkg/protocol"
)

// maxRetries is how many times Call redials and resends before giving up,
// per spec §7's "retries a call up to three times on connection reset".
const maxRetries = 3

// Client is a reconnecting TCP client for the unary control channel.
type Client struct {
	addr    string
	timeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// New returns a Client targeting addr (host:port). It does not dial until
// the first Call.
func New(addr string) *Client {
	return &Client{addr: addr, timeout: 10 * time.Second}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *Client) dial() error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("controlclient: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Call sends one request frame and returns the decoded response, retrying
// up to three times (each with a fresh dial) if the connection resets
// mid-call.
func (c *Client) Call(req *protocol.RequestFrame) (*protocol.ResponseFrame, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.callOnce(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.Close()
	}
	return nil, fmt.Errorf("controlclient: call failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) callOnce(req *protocol.RequestFrame) (*protocol.ResponseFrame, error) {
	if c.conn == nil {
		if err := c.dial(); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("controlclient: marshal request: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(append(data, '\r', '\n')); err != nil {
		return nil, fmt.Errorf("controlclient: write: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("controlclient: read: %w", err)
	}

	var resp protocol.ResponseFrame
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("controlclient: decode response: %w", err)
	}
	return &resp, nil
}

// CallRaw sends a free-form command line as a raw_input request.
func (c *Client) CallRaw(line string) (*protocol.ResponseFrame, error) {
	return c.Call(&protocol.RequestFrame{RawInput: &line})
}

// CallStructured sends a structured cmd/args/kwargs request.
func (c *Client) CallStructured(cmd string, args []string, kwargs map[string]string) (*protocol.ResponseFrame, error) {
	return c.Call(&protocol.RequestFrame{Cmd: cmd, Args: args, Kwargs: kwargs})
}
