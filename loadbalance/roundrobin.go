package loadbalance

import (
	"sync"
	"sync/atomic"

	"balance-rpc/registry"
)

// RoundRobinBalancer produces a deterministic weighted rotation per
// (service, method): over one full cycle of weightSum calls, an instance
// with weight w is returned exactly w times. Equal weights degenerate to
// plain round-robin over the input order.
//
// Each key owns a monotonically increasing atomic sequence. The sequence
// deliberately survives candidate-set changes — weights are recomputed on
// every call, so a stale position only shifts the rotation's phase.
//
// Known limitation: the weighted branch walks the instance list up to
// maxWeight times (O(maxWeight × n)), and the rotation hands the tail of
// each cycle to the heaviest instance (weights 5/1/1 give A B C A A A A),
// which can pile consecutive requests onto one slow instance.
type RoundRobinBalancer struct {
	sequences sync.Map // stateKey → *uint64
}

// NewRoundRobinBalancer creates a weighted round-robin policy.
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Pick returns the instance at the current rotation position for this
// (service, method) and advances the position.
func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error) {
	n := len(instances)
	if n == 0 {
		return nil, ErrNoInstances
	}

	weights := make([]int, n)
	weightSum := 0
	maxWeight := 0
	minWeight := int(^uint(0) >> 1)
	for i := range instances {
		w := positiveWeight(&instances[i], inv)
		weights[i] = w
		weightSum += w
		if w > maxWeight {
			maxWeight = w
		}
		if w < minWeight {
			minWeight = w
		}
	}

	seq := b.next(stateKey(target, inv))

	if maxWeight > 0 && minWeight < maxWeight {
		// Non-uniform weights: walk the rotation. mod is this call's
		// position inside the weightSum-long cycle; each pass over the
		// list drains one unit of every instance's remaining quota until
		// the position lands on an instance with quota left.
		mod := int(seq % uint64(weightSum))
		remaining := weights
		for i := 0; i < maxWeight; i++ {
			for j := 0; j < n; j++ {
				if mod == 0 && remaining[j] > 0 {
					return &instances[j], nil
				}
				if remaining[j] > 0 {
					remaining[j]--
					mod--
				}
			}
		}
	}

	// Uniform weights (or nothing weighted): plain rotation
	return &instances[seq%uint64(n)], nil
}

// next returns the current sequence number for key and increments it.
// The counter is created lazily on first use and wraps on overflow.
func (b *RoundRobinBalancer) next(key string) uint64 {
	c, ok := b.sequences.Load(key)
	if !ok {
		c, _ = b.sequences.LoadOrStore(key, new(uint64))
	}
	return atomic.AddUint64(c.(*uint64), 1) - 1
}

func (b *RoundRobinBalancer) Name() string {
	return RoundRobin
}
