package loadbalance

import (
	"math/rand"
	"sync"
	"time"

	"balance-rpc/registry"
)

// RandomBalancer picks an instance with probability proportional to its
// effective weight. When every instance ends up with the same weight
// (the common case once warm-up has passed), it skips the weighted draw
// and picks a uniform index directly.
type RandomBalancer struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomBalancer creates a weighted random policy with its own seeded
// random source.
func NewRandomBalancer() *RandomBalancer {
	return &RandomBalancer{
		r: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick draws one instance. Weights are resolved once into a call-local
// slice so a concurrent warm-up tick cannot skew a single draw.
func (b *RandomBalancer) Pick(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error) {
	n := len(instances)
	if n == 0 {
		return nil, ErrNoInstances
	}

	weights := make([]int, n)
	total := 0
	sameWeight := true
	for i := range instances {
		w := positiveWeight(&instances[i], inv)
		weights[i] = w
		total += w
		if i > 0 && w != weights[0] {
			sameWeight = false
		}
	}

	if total > 0 && !sameWeight {
		return pickByWeight(instances, weights, b.intn(total)), nil
	}
	// All weights equal (or nothing weighted) — uniform index
	return &instances[b.intn(n)], nil
}

func (b *RandomBalancer) intn(n int) int {
	b.mu.Lock()
	v := b.r.Intn(n)
	b.mu.Unlock()
	return v
}

// pickByWeight resolves a random offset in [0, totalWeight) to an
// instance by scanning in input order and subtracting each weight until
// the offset goes negative. Zero-weight (excluded) instances can never
// absorb the offset.
func pickByWeight(instances []registry.ServiceInstance, weights []int, offset int) *registry.ServiceInstance {
	for i := range instances {
		offset -= weights[i]
		if offset < 0 {
			return &instances[i]
		}
	}
	// Unreachable when offset < sum(weights); guard for callers anyway
	return &instances[len(instances)-1]
}

func (b *RandomBalancer) Name() string {
	return Random
}
