package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hce/govm/cache"
	"github.com/hce/govm/pkg/bytecode"
)

const helloSource = "def main():\n\tputc(72)\n\thalt()\n"

// startServer runs a compile server on a loopback port.
func startServer(t *testing.T, opts Options) (*CompileServer, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(opts)
	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()
	t.Cleanup(func() {
		s.Stop()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return s, l.Addr().String()
}

func TestCompileRoundTrip(t *testing.T) {
	_, addr := startServer(t, Options{Workers: 2})
	c := &Client{Addr: addr, Timeout: 5 * time.Second}

	artifact, diag, err := c.Compile(context.Background(), []byte(helloSource))
	if err != nil {
		t.Fatalf("Compile failed: %v\n%s", err, diag)
	}
	if _, err := bytecode.ParseModule(artifact); err != nil {
		t.Errorf("artifact does not parse: %v", err)
	}
	if !bytes.Contains(diag, []byte("OK")) {
		t.Errorf("log = %q", diag)
	}
}

func TestCompileFailureReturnsLog(t *testing.T) {
	_, addr := startServer(t, Options{})
	c := &Client{Addr: addr}

	artifact, diag, err := c.Compile(context.Background(), []byte("def main():\n\ty = 1\n"))
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if artifact != nil {
		t.Errorf("artifact = %v, want nil", artifact)
	}
	if !strings.Contains(re.Error(), "variable y not declared") {
		t.Errorf("RemoteError = %q", re.Error())
	}
	if len(diag) == 0 {
		t.Error("failure log is empty")
	}
}

func TestRejectsBadLengths(t *testing.T) {
	_, addr := startServer(t, Options{MaxPayload: 16})

	for _, n := range []int32{0, -5, 17} {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatal(err)
		}
		greeting := make([]byte, 4)
		if _, err := io.ReadFull(conn, greeting); err != nil || string(greeting) != "GoVM" {
			t.Fatalf("greeting = %q, %v", greeting, err)
		}
		writeInt32(conn, n)
		status, err := readInt32(conn)
		if err != nil || status != StatusBadLength {
			t.Errorf("length %d: status = %d, %v; want -1", n, status, err)
		}
		if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
			t.Errorf("length %d: connection not closed: %v", n, err)
		}
		conn.Close()
	}

	c := &Client{Addr: addr}
	if _, _, err := c.Compile(context.Background(), nil); !errors.Is(err, ErrRejected) {
		t.Errorf("empty source error = %v, want ErrRejected", err)
	}
}

func TestExchangeOverPipe(t *testing.T) {
	s := New(Options{})
	defer s.Stop()

	client, srv := net.Pipe()
	go s.Handle(srv)
	defer client.Close()

	artifact, _, err := exchange(client, []byte(helloSource), 1<<20)
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if !bytes.Equal(artifact[:4], bytecode.Magic) {
		t.Errorf("artifact starts with %q", artifact[:4])
	}
}

func TestServerUsesCache(t *testing.T) {
	cc, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close()

	_, addr := startServer(t, Options{Cache: cc})
	c := &Client{Addr: addr}
	for i := 0; i < 2; i++ {
		if _, _, err := c.Compile(context.Background(), []byte(helloSource)); err != nil {
			t.Fatalf("Compile %d failed: %v", i, err)
		}
	}
	if n, _ := cc.Len(); n != 1 {
		t.Errorf("cache holds %d entries, want 1", n)
	}
}

func TestStopClosesListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Options{})
	done := make(chan error, 1)
	go func() { done <- s.Serve(l) }()

	// Wait until the server is accepting.
	c := &Client{Addr: l.Addr().String()}
	if _, _, err := c.Compile(context.Background(), []byte(helloSource)); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	s.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	if err := s.Serve(l); !errors.Is(err, ErrStopped) {
		t.Errorf("Serve after Stop = %v, want ErrStopped", err)
	}
}
