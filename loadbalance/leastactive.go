package loadbalance

import (
	"math/rand"
	"sync"
	"time"

	"balance-rpc/registry"
)

// LeastActiveBalancer picks among the instances with the fewest in-flight
// calls. A fast instance drains its counter quicker and naturally
// attracts more load; a struggling one accumulates calls and is avoided.
//
// Ties on the minimum are broken by weighted random; ties on weight too
// fall back to a uniform pick.
type LeastActiveBalancer struct {
	counter ActiveCounter

	mu sync.Mutex
	r  *rand.Rand
}

// NewLeastActiveBalancer creates the policy reading from the given
// counter. A nil counter treats every instance as idle, which reduces the
// policy to weighted random over the full list.
func NewLeastActiveBalancer(counter ActiveCounter) *LeastActiveBalancer {
	return &LeastActiveBalancer{
		counter: counter,
		r:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick scans the candidates once, tracking the minimum active count seen,
// the indices tied on it, their weight sum, and whether those weights are
// all equal. The trackers reset whenever a strictly smaller count appears.
func (b *LeastActiveBalancer) Pick(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error) {
	n := len(instances)
	if n == 0 {
		return nil, ErrNoInstances
	}

	leastActive := -1
	leastIndexes := make([]int, 0, n)
	weights := make([]int, n)
	totalWeight := 0
	firstWeight := 0
	sameWeight := true

	for i := range instances {
		active := b.active(&instances[i], inv)
		w := positiveWeight(&instances[i], inv)
		weights[i] = w

		if leastActive == -1 || active < leastActive {
			leastActive = active
			leastIndexes = leastIndexes[:0]
			leastIndexes = append(leastIndexes, i)
			totalWeight = w
			firstWeight = w
			sameWeight = true
		} else if active == leastActive {
			leastIndexes = append(leastIndexes, i)
			totalWeight += w
			if sameWeight && w != firstWeight {
				sameWeight = false
			}
		}
	}

	if len(leastIndexes) == 1 {
		return &instances[leastIndexes[0]], nil
	}

	if !sameWeight && totalWeight > 0 {
		// Weighted draw restricted to the tied instances
		offset := b.intn(totalWeight)
		for _, i := range leastIndexes {
			offset -= weights[i]
			if offset < 0 {
				return &instances[i], nil
			}
		}
	}

	return &instances[leastIndexes[b.intn(len(leastIndexes))]], nil
}

func (b *LeastActiveBalancer) active(inst *registry.ServiceInstance, inv *Invocation) int {
	if b.counter == nil {
		return 0
	}
	return b.counter.Get(inst.Addr, inv.Method)
}

func (b *LeastActiveBalancer) intn(n int) int {
	b.mu.Lock()
	v := b.r.Intn(n)
	b.mu.Unlock()
	return v
}

func (b *LeastActiveBalancer) Name() string {
	return LeastActive
}
