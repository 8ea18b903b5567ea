package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("worker pool stopped")

// request is a unit of work executed on a pool goroutine.
type request struct {
	fn   func() interface{}
	done chan result
}

// result holds the return value of a unit of work.
type result struct {
	value interface{}
	err   error
}

// Pool runs jobs on a fixed number of goroutines. Connections are cheap;
// compile jobs are bounded by the pool size.
type Pool struct {
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool starts n workers. n below 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case req := <-p.requests:
			req.done <- execute(req.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func execute(fn func() interface{}) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn()
	}()
	return res
}

// Do submits fn and blocks until it completes or ctx is done. A panic in
// fn is returned as an error. When ctx expires first, fn may still run to
// completion in the background; its result is dropped. After Stop, Do
// returns ErrStopped without queueing fn, and a queued fn that had not
// finished reports ErrStopped too.
func (p *Pool) Do(ctx context.Context, fn func() interface{}) (interface{}, error) {
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	// A buffered send can win the select below even after quit is closed.
	select {
	case <-p.quit:
		return nil, ErrStopped
	default:
	}
	select {
	case p.requests <- req:
	case <-p.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-p.quit:
		select {
		case res := <-req.done:
			return res.value, res.err
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the workers and waits for running jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
