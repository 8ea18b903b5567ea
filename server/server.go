// Package server implements the compile server and the language server.
//
// A compile exchange on one TCP connection:
//
//	server: "GoVM"
//	client: length, source
//	server: -1 (length <= 0 or too large; connection closed)
//	     or 1, then 2, length, artifact
//	            or -2
//	        then length, diagnostic log
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/hce/govm/cache"
	"github.com/hce/govm/compiler"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("govm.server")

// Options configure a compile server.
type Options struct {
	MaxPayload int
	Timeout    time.Duration
	Workers    int
	Compile    compiler.Options
	// Cache, when set, serves repeated sources without recompiling.
	Cache *cache.Cache
}

// CompileServer accepts compile jobs over the framing protocol.
type CompileServer struct {
	opts Options
	pool *Pool

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New creates a compile server. Zero options take their defaults.
func New(opts Options) *CompileServer {
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &CompileServer{
		opts:  opts,
		pool:  NewPool(opts.Workers),
		conns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr ("host:port" or ":port") and serves until
// Stop is called.
func (s *CompileServer) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l, handling each on its own goroutine.
func (s *CompileServer) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrStopped
	}
	s.listener = l
	s.mu.Unlock()

	log.Noticef("GoVM compile server listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warningf("accept: %v", err)
				continue
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.untrack(conn)
			s.Handle(conn)
		}()
	}
}

func (s *CompileServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *CompileServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Stop closes the listener and every open connection, then waits for the
// handlers and workers to finish.
func (s *CompileServer) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Stop()
}

// Handle runs one exchange on conn and closes it.
func (s *CompileServer) Handle(conn net.Conn) {
	defer conn.Close()
	id := uuid.New()
	conn.SetDeadline(time.Now().Add(s.opts.Timeout))

	if err := s.exchange(conn, id); err != nil && !errors.Is(err, io.EOF) {
		log.Warningf("job %s from %s: %v", id, conn.RemoteAddr(), err)
	}
}

func (s *CompileServer) exchange(conn net.Conn, id uuid.UUID) error {
	if _, err := conn.Write(Greeting); err != nil {
		return err
	}
	n, err := readInt32(conn)
	if err != nil {
		return err
	}
	if n <= 0 || int(n) > s.opts.MaxPayload {
		log.Infof("job %s: rejected length %d", id, n)
		return writeInt32(conn, StatusBadLength)
	}
	source := make([]byte, n)
	if _, err := io.ReadFull(conn, source); err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	if err := writeInt32(conn, StatusAccepted); err != nil {
		return err
	}
	log.Infof("job %s: %d bytes from %s", id, n, conn.RemoteAddr())

	res := s.run(source)
	if res.OK() {
		log.Infof("job %s: ok, %d byte module", id, len(res.Artifact))
		if err := writeInt32(conn, StatusOK); err != nil {
			return err
		}
		if err := writeBlock(conn, res.Artifact); err != nil {
			return err
		}
	} else {
		log.Infof("job %s: failed: %v", id, res.Err)
		if err := writeInt32(conn, StatusFailed); err != nil {
			return err
		}
	}
	return writeBlock(conn, res.Log)
}

// run executes a job on the pool. Timeouts and panics become failed
// results carrying the failure text as their log.
func (s *CompileServer) run(source []byte) *compiler.Result {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	v, err := s.pool.Do(ctx, func() interface{} {
		return s.opts.Cache.Compile(source, s.opts.Compile)
	})
	if err != nil {
		err = fmt.Errorf("compile job failed: %w", err)
		return &compiler.Result{Err: err, Log: []byte(err.Error())}
	}
	return v.(*compiler.Result)
}
