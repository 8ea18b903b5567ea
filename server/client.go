package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrRejected is returned when the server refuses a request's length.
var ErrRejected = errors.New("server rejected request length")

// RemoteError is a compile failure reported by the server.
type RemoteError struct {
	Log []byte
}

func (e *RemoteError) Error() string {
	msg := string(bytes.TrimSpace(e.Log))
	if i := bytes.LastIndex(e.Log, []byte("ERROR: ")); i >= 0 {
		msg = string(bytes.TrimSpace(e.Log[i+len("ERROR: "):]))
	}
	return "remote compile failed: " + msg
}

// Client talks to a compile server.
type Client struct {
	Addr    string
	Timeout time.Duration
	// MaxResponse bounds artifact and log sizes accepted from the server.
	MaxResponse int
}

// Compile sends source to the server and returns the module and the
// diagnostic log. A failed job returns a *RemoteError with the log.
func (c *Client) Compile(ctx context.Context, source []byte) (artifact, diag []byte, err error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))
	return exchange(conn, source, c.maxResponse())
}

func (c *Client) maxResponse() int {
	if c.MaxResponse > 0 {
		return c.MaxResponse
	}
	return 64 << 20
}

// exchange runs the client side of one compile on rw.
func exchange(rw io.ReadWriter, source []byte, max int) (artifact, diag []byte, err error) {
	greeting := make([]byte, len(Greeting))
	if _, err := io.ReadFull(rw, greeting); err != nil {
		return nil, nil, fmt.Errorf("reading greeting: %w", err)
	}
	if !bytes.Equal(greeting, Greeting) {
		return nil, nil, fmt.Errorf("unexpected greeting %q", greeting)
	}
	if err := writeBlock(rw, source); err != nil {
		return nil, nil, err
	}

	status, err := readInt32(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("reading status: %w", err)
	}
	switch status {
	case StatusAccepted:
	case StatusBadLength:
		return nil, nil, ErrRejected
	default:
		return nil, nil, fmt.Errorf("unexpected status %d", status)
	}

	status, err = readInt32(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("reading result: %w", err)
	}
	switch status {
	case StatusOK:
		if artifact, err = readBlock(rw, max); err != nil {
			return nil, nil, fmt.Errorf("reading artifact: %w", err)
		}
	case StatusFailed:
	default:
		return nil, nil, fmt.Errorf("unexpected result status %d", status)
	}
	if diag, err = readBlock(rw, max); err != nil {
		return nil, nil, fmt.Errorf("reading log: %w", err)
	}
	if status == StatusFailed {
		return nil, diag, &RemoteError{Log: diag}
	}
	return artifact, diag, nil
}
