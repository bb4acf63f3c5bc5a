// Package transport also provides the per-address transport pool the
// client borrows from.
//
// Each Pool manages multiplexed ClientTransports to a single address.
// Transports are created lazily up to the pool limit; a transport whose
// connection has broken is discarded on return and replaced on the next
// Get, so a dead instance doesn't poison the pool.
//
// Pool design: uses a buffered channel as a natural FIFO queue.
// Buffered channels are concurrency-safe, and blocking on empty is built-in.
package transport

import (
	"fmt"
	"net"
	"sync"

	"balance-rpc/codec"
)

// Pool manages reusable transports to a single instance address.
type Pool struct {
	mu         sync.Mutex
	transports chan *ClientTransport // Buffered channel as pool — FIFO, goroutine-safe
	addr       string                // Target address
	max        int                   // Maximum number of transports
	cur        int                   // Currently created transports (may be < max)
	codecType  codec.CodecType
	dial       func(addr string) (net.Conn, error) // Connection factory
}

// NewPool creates a transport pool for addr with the given max size.
// Transports are created lazily — the pool starts empty and grows on demand.
// A nil dial uses plain TCP.
func NewPool(addr string, max int, codecType codec.CodecType, dial func(addr string) (net.Conn, error)) *Pool {
	if dial == nil {
		dial = func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) }
	}
	return &Pool{
		transports: make(chan *ClientTransport, max),
		addr:       addr,
		max:        max,
		codecType:  codecType,
		dial:       dial,
	}
}

// Get retrieves a transport from the pool.
// Strategy:
//  1. Try to get an existing transport from the channel (non-blocking select)
//  2. If pool is empty but under limit, dial a new connection
//  3. If pool is empty and at limit, block until one is returned
//
// A broken transport pulled from the channel is dropped and replaced.
func (p *Pool) Get() (*ClientTransport, error) {
	for {
		select {
		case t := <-p.transports:
			if t.Broken() {
				p.discard(t)
				continue
			}
			return t, nil
		default:
			// Pool is empty
			p.mu.Lock()
			if p.cur < p.max {
				p.cur++
				p.mu.Unlock()
				t, err := p.create()
				if err != nil {
					p.mu.Lock()
					p.cur--
					p.mu.Unlock()
					return nil, err
				}
				return t, nil
			}
			p.mu.Unlock()
			// At capacity — block until a transport is returned
			t := <-p.transports
			if t.Broken() {
				p.discard(t)
				continue
			}
			return t, nil
		}
	}
}

// Put returns a transport to the pool.
// A broken transport is closed and discarded instead.
func (p *Pool) Put(t *ClientTransport) {
	if t.Broken() {
		p.discard(t)
		return
	}
	p.transports <- t
}

// Close shuts down the pool and closes all pooled transports.
// Borrowed transports must be returned before Close.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.transports)
	for t := range p.transports {
		t.Close()
		p.cur--
	}
	return nil
}

func (p *Pool) discard(t *ClientTransport) {
	t.Close()
	p.mu.Lock()
	p.cur--
	p.mu.Unlock()
}

func (p *Pool) create() (*ClientTransport, error) {
	conn, err := p.dial(p.addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", p.addr, err)
	}
	return NewClientTransport(conn, p.codecType), nil
}
