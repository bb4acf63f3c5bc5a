// Package client implements the RPC client: discovery, load-balanced
// instance selection, in-flight call accounting, and pooled multiplexed
// transports.
//
// Call flow:
//
//	Call → Registry.Discover → Dispatcher.Select (policy) → transport pool
//	  → Send → wait response → decode reply
//
// The client maintains the in-flight counter around every call; the
// least-active policy reads it to steer new calls toward instances that
// answer fastest.
package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"balance-rpc/codec"
	"balance-rpc/loadbalance"
	"balance-rpc/registry"
	"balance-rpc/stats"
	"balance-rpc/transport"
)

type Client struct {
	registry   registry.Registry       // find service instances from registry
	dispatcher *loadbalance.Dispatcher // policy-bound selection entry point
	inflight   *stats.InFlight         // active-call accounting, read by leastactive
	pools      map[string]*transport.Pool
	codecType  codec.CodecType
	mu         sync.Mutex
	poolSize   int
	logger     *zap.Logger
}

// NewClient creates a client that selects instances with the named
// load balancing policy ("random", "roundrobin", "leastactive",
// "consistenthash").
func NewClient(reg registry.Registry, policy string, codecType codec.CodecType, poolSize int) (*Client, error) {
	d, err := loadbalance.NewDispatcher(policy)
	if err != nil {
		return nil, err
	}
	return &Client{
		registry:   reg,
		dispatcher: d,
		inflight:   stats.Default,
		pools:      make(map[string]*transport.Pool),
		codecType:  codecType,
		poolSize:   poolSize,
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger replaces the client's logger (zap.NewNop by default).
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// pool returns the transport pool for addr, creating it on first use.
func (c *Client) pool(addr string) *transport.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[addr]
	if !ok {
		p = transport.NewPool(addr, c.poolSize, c.codecType, nil)
		c.pools[addr] = p
	}
	return p
}

// Call invokes serviceMethod ("Service.Method") with args and stores the
// result in reply.
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	return c.CallWithMetadata(serviceMethod, nil, args, reply)
}

// CallWithMetadata is Call with attachments that travel in the message
// envelope. A "hash.key" entry overrides the consistent-hash key, pinning
// the call's affinity regardless of its arguments.
func (c *Client) CallWithMetadata(serviceMethod string, md map[string]string, args any, reply any) error {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	serviceName, methodName := split[0], split[1]

	// Get service instances from registry
	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	// Select one instance with the configured policy
	inv := &loadbalance.Invocation{
		Method:   methodName,
		Args:     []any{args},
		Metadata: md,
	}
	instance, err := c.dispatcher.Select(instances, loadbalance.Target{ServiceKey: serviceName}, inv)
	if err != nil {
		return err
	}

	c.logger.Debug("instance selected",
		zap.String("serviceMethod", serviceMethod),
		zap.String("policy", c.dispatcher.Policy()),
		zap.String("addr", instance.Addr),
	)

	// Borrow a transport to the selected instance
	pool := c.pool(instance.Addr)
	t, err := pool.Get()
	if err != nil {
		return err
	}
	defer pool.Put(t)

	// Account the call for the least-active policy
	c.inflight.Begin(instance.Addr, methodName)
	defer c.inflight.End(instance.Addr, methodName)

	// Send the request and wait for the response
	_, ch, err := t.Send(serviceMethod, args, md)
	if err != nil {
		return err
	}

	resp := <-ch
	if resp.Error != "" {
		return fmt.Errorf("server error: %v", resp.Error)
	}

	// Unmarshal the payload to reply
	if err := json.Unmarshal(resp.Payload, &reply); err != nil {
		return err
	}

	return nil
}

// Close shuts down every transport pool.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pools {
		p.Close()
	}
	c.pools = make(map[string]*transport.Pool)
}
