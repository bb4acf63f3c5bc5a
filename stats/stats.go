// Package stats tracks in-flight RPC calls per (instance address, method).
//
// The client calls Begin before sending a request and End when the
// response (or failure) arrives. The least-active load balancing policy
// reads the counts to route new calls toward instances that are draining
// their queue fastest.
package stats

import (
	"sync"
	"sync/atomic"
)

type callKey struct {
	addr   string
	method string
}

// InFlight is a concurrent in-flight call counter. The zero value is
// ready to use; counters are created lazily per (address, method).
type InFlight struct {
	counts sync.Map // callKey → *int64
}

// Default is the process-wide counter shared by the client and the
// least-active policy.
var Default = New()

// New creates an empty counter.
func New() *InFlight {
	return &InFlight{}
}

// Begin records the start of a call to addr's method.
func (f *InFlight) Begin(addr, method string) {
	atomic.AddInt64(f.counter(addr, method), 1)
}

// End records the completion of a call started with Begin.
// The count never goes below zero even if End is over-called.
func (f *InFlight) End(addr, method string) {
	c := f.counter(addr, method)
	for {
		cur := atomic.LoadInt64(c)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(c, cur, cur-1) {
			return
		}
	}
}

// Get returns the number of calls to addr's method currently in flight.
func (f *InFlight) Get(addr, method string) int {
	if c, ok := f.counts.Load(callKey{addr, method}); ok {
		return int(atomic.LoadInt64(c.(*int64)))
	}
	return 0
}

func (f *InFlight) counter(addr, method string) *int64 {
	key := callKey{addr, method}
	if c, ok := f.counts.Load(key); ok {
		return c.(*int64)
	}
	c, _ := f.counts.LoadOrStore(key, new(int64))
	return c.(*int64)
}
