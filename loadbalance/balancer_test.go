package loadbalance

import (
	"errors"
	"testing"

	"balance-rpc/registry"
)

func TestDispatcherEmpty(t *testing.T) {
	d, err := NewDispatcher(Random)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Select(nil, Target{ServiceKey: "Arith"}, &Invocation{Method: "Add"})
	if !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestDispatcherSingleFastPath(t *testing.T) {
	// A lone candidate is returned unconditionally: its weight is never
	// resolved, so even a disabled instance comes back
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001", Weight: -1},
	}
	for _, policy := range []string{Random, RoundRobin, LeastActive, ConsistentHash} {
		d, err := NewDispatcher(policy)
		if err != nil {
			t.Fatal(err)
		}
		inst, err := d.Select(instances, Target{ServiceKey: "Arith"}, &Invocation{Method: "Add"})
		if err != nil {
			t.Fatalf("%s: %v", policy, err)
		}
		if inst.Addr != "127.0.0.1:8001" {
			t.Fatalf("%s: expect the single instance, got %s", policy, inst.Addr)
		}
	}
}

func TestDispatcherReturnsInputElement(t *testing.T) {
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001", Weight: 3},
		{Addr: "127.0.0.1:8002", Weight: 7},
		{Addr: "127.0.0.1:8003"},
	}
	for _, policy := range []string{Random, RoundRobin, LeastActive, ConsistentHash} {
		d, err := NewDispatcher(policy)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 50; i++ {
			inst, err := d.Select(instances, Target{ServiceKey: "Arith"}, &Invocation{Method: "Add", Args: []any{i}})
			if err != nil {
				t.Fatalf("%s: %v", policy, err)
			}
			found := false
			for j := range instances {
				if instances[j].Addr == inst.Addr {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("%s returned %s, not an input candidate", policy, inst.Addr)
			}
		}
	}
}

func TestDispatcherUnknownPolicy(t *testing.T) {
	if _, err := NewDispatcher("p2c"); err == nil {
		t.Fatal("expect error for unregistered policy")
	}
}

func TestBuiltinBalancersRegistered(t *testing.T) {
	for _, name := range []string{Random, RoundRobin, LeastActive, ConsistentHash} {
		b := GetBalancer(name)
		if b == nil {
			t.Fatalf("policy %q not registered", name)
		}
		if b.Name() != name {
			t.Fatalf("policy registered under %q reports name %q", name, b.Name())
		}
	}
}
