// Package loadbalance selects one service instance per RPC invocation
// according to a configured policy.
//
// Four policies are implemented:
//   - random:         Weighted random — heterogeneous instances (different CPU/memory)
//   - roundrobin:     Weighted rotation — deterministic spread per (service, method)
//   - leastactive:    Fewest in-flight calls — latency-aware, fast responders attract load
//   - consistenthash: Sticky key→instance mapping — stateful services, cache affinity
//
// All policies share the weight model: an instance's base weight is ramped
// linearly from 1 during its warm-up window (see weight.go), so a freshly
// started instance is not hit with its full share while caches are cold.
package loadbalance

import (
	"errors"
	"fmt"
	"sync"

	"balance-rpc/registry"
	"balance-rpc/stats"
)

// Policy names, used for external configuration routing.
const (
	Random         = "random"
	RoundRobin     = "roundrobin"
	LeastActive    = "leastactive"
	ConsistentHash = "consistenthash"
)

// ErrNoInstances is returned when the candidate list is empty.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Target identifies the service a selection is made for.
// ServiceKey is stable across methods and instances.
type Target struct {
	ServiceKey string
}

// Invocation carries the per-call inputs a policy may consult:
// the method name (for per-method options and state) and the ordered
// call arguments (for consistent hashing).
//
// Metadata is optional; a "hash.key" entry overrides the argument-derived
// consistent-hash key.
type Invocation struct {
	Method   string
	Args     []any
	Metadata map[string]string
}

// stateKey is the per-method state key shared by the stateful policies.
func stateKey(target Target, inv *Invocation) string {
	return target.ServiceKey + "." + inv.Method
}

// Balancer is the interface for load balancing policies.
// Pick is called on every RPC and must be goroutine-safe; it returns one
// of the given instances.
type Balancer interface {
	Pick(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error)

	// Name returns the policy name (see the constants above).
	Name() string
}

var (
	balancersMu sync.RWMutex
	balancers   = make(map[string]Balancer)
)

// RegisterBalancer makes a policy available to NewDispatcher under its Name.
// The built-in policies register themselves; registering the same name
// again replaces the previous entry.
func RegisterBalancer(b Balancer) {
	balancersMu.Lock()
	balancers[b.Name()] = b
	balancersMu.Unlock()
}

// GetBalancer returns the policy registered under name, or nil.
func GetBalancer(name string) Balancer {
	balancersMu.RLock()
	b := balancers[name]
	balancersMu.RUnlock()
	return b
}

func init() {
	RegisterBalancer(NewRandomBalancer())
	RegisterBalancer(NewRoundRobinBalancer())
	RegisterBalancer(NewLeastActiveBalancer(stats.Default))
	RegisterBalancer(NewConsistentHashBalancer())
}

// Dispatcher is the single selection entry point. The policy is fixed at
// construction; a client creates one dispatcher and uses it for every
// service it calls (policy state is kept per service and method).
type Dispatcher struct {
	balancer Balancer
}

// NewDispatcher builds a dispatcher for the named policy.
func NewDispatcher(policy string) (*Dispatcher, error) {
	b := GetBalancer(policy)
	if b == nil {
		return nil, fmt.Errorf("loadbalance: unknown policy %q", policy)
	}
	return &Dispatcher{balancer: b}, nil
}

// Select returns one instance from the candidate list.
//
// An empty list fails with ErrNoInstances. A single candidate is returned
// unconditionally — no weight resolution, no policy state is touched.
// Everything else is delegated to the configured policy.
func (d *Dispatcher) Select(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	if len(instances) == 1 {
		return &instances[0], nil
	}
	return d.balancer.Pick(instances, target, inv)
}

// Policy returns the name of the configured policy.
func (d *Dispatcher) Policy() string {
	return d.balancer.Name()
}
